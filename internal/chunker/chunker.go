// Package chunker splits raw text artifacts into bounded-size segments
// for embedding and analysis.
package chunker

// DefaultChunkSize is the default maximum chunk length in characters.
// Sized so a chunk plus the analysis instruction fits comfortably in a
// single completion request.
const DefaultChunkSize = 8000

// Split divides text into contiguous, non-overlapping segments of at most
// size characters (runes), preserving input order. Concatenating the
// returned segments reconstructs the input exactly.
//
// Empty input yields a nil slice; callers treat that as "nothing to
// ingest", not an error. Split is a pure function: the same input and
// size always produce the same segments.
func Split(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
