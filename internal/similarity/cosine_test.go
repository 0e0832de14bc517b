package similarity

import (
	"math"
	"testing"
)

func TestCosine_IdenticalVectors(t *testing.T) {
	v := []float32{0.5, 0.3, 0.2}
	got := Cosine(v, v)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Cosine(v, v) = %f, want 1.0", got)
	}
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	got := Cosine([]float32{1, 0}, []float32{0, 1})
	if math.Abs(got) > 1e-9 {
		t.Errorf("Cosine(orthogonal) = %f, want 0.0", got)
	}
}

func TestCosine_OppositeVectors(t *testing.T) {
	got := Cosine([]float32{1, 2, 3}, []float32{-1, -2, -3})
	if math.Abs(got+1.0) > 1e-9 {
		t.Errorf("Cosine(opposite) = %f, want -1.0", got)
	}
}

func TestCosine_DegenerateInput(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"both empty", nil, nil},
		{"left empty", nil, []float32{1, 2}},
		{"right empty", []float32{1, 2}, nil},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}},
		{"zero magnitude left", []float32{0, 0}, []float32{1, 2}},
		{"zero magnitude right", []float32{1, 2}, []float32{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); got != 0.0 {
				t.Errorf("Cosine = %f, want 0.0", got)
			}
		})
	}
}

func TestCosine_KnownValue(t *testing.T) {
	// cos(45°) between (1,0) and (1,1)
	got := Cosine([]float32{1, 0}, []float32{1, 1})
	want := 1.0 / math.Sqrt2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Cosine = %f, want %f", got, want)
	}
}

func TestCosine_Range(t *testing.T) {
	a := []float32{0.1, -0.7, 0.4, 0.2}
	b := []float32{-0.3, 0.9, 0.5, -0.8}
	got := Cosine(a, b)
	if got < -1.0 || got > 1.0 {
		t.Errorf("Cosine = %f, outside [-1, 1]", got)
	}
}
