package vector

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"diagonal", []float32{0.5, 0.5}, []float32{1, 0}, math.Sqrt2 / 2},
		{"zero norm left", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero norm right", []float32{1, 1}, []float32{0, 0}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1, 0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.IsNaN(got) {
				t.Fatalf("got NaN")
			}
			if math.Abs(got-tc.want) > 1e-6 {
				t.Fatalf("CosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCosineSimilarityScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.4, 0.5}
	b := []float32{3, 4, 5}
	if got := CosineSimilarity(a, b); math.Abs(got-1) > 1e-6 {
		t.Fatalf("expected 1 for parallel vectors, got %v", got)
	}
}

func TestValid(t *testing.T) {
	nan := float32(math.NaN())
	if Valid(nil, 0) {
		t.Fatalf("nil vector must be invalid")
	}
	if Valid([]float32{1, 2}, 3) {
		t.Fatalf("dimension mismatch must be invalid")
	}
	if Valid([]float32{1, nan}, 2) {
		t.Fatalf("NaN component must be invalid")
	}
	if !Valid([]float32{1, 2}, 0) {
		t.Fatalf("unchecked dimension should accept any non-empty vector")
	}
}

func TestNormalize(t *testing.T) {
	vec := Normalize([]float32{3, 4})
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Fatalf("unexpected normalized vector %v", vec)
	}
	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector should stay zero, got %v", zero)
	}
}
