// Package similarity provides vector similarity scoring for the memory system.
package similarity

import "math"

// Cosine returns the cosine similarity between two vectors, in [-1, 1].
//
// Empty vectors, vectors of different lengths, and zero-magnitude vectors
// all score 0.0 rather than returning an error. Downstream threshold
// comparisons treat 0.0 as "not similar", which is the safe default for
// degenerate input.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, magA, magB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}

	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
