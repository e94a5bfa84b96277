package vectors

import (
	"errors"
	"math"
	"testing"
)

func TestCosine_SelfIdentity(t *testing.T) {
	vecs := [][]float32{
		{1},
		{1, 0, 0},
		{0.3, -0.2, 0.9, 4},
	}
	for _, v := range vecs {
		got, err := Cosine(v, v)
		if err != nil {
			t.Fatalf("Cosine(%v, %v): %v", v, v, err)
		}
		if math.Abs(got-1) > 1e-9 {
			t.Fatalf("Cosine(v, v) = %v, want ~1 for %v", got, v)
		}
	}
}

func TestCosine_Orthogonal(t *testing.T) {
	got, err := Cosine([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors scored %v, want ~0", got)
	}
}

func TestCosine_Opposite(t *testing.T) {
	got, err := Cosine([]float32{1, 2}, []float32{-1, -2})
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if math.Abs(got+1) > 1e-9 {
		t.Fatalf("opposite vectors scored %v, want ~-1", got)
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	cases := [][2][]float32{
		{{1, 2}, {1, 2, 3}},
		{{}, {1}},
		{{1, 2, 3, 4}, {1}},
	}
	for _, c := range cases {
		if _, err := Cosine(c[0], c[1]); !errors.Is(err, ErrDimensionMismatch) {
			t.Fatalf("Cosine(len %d, len %d): got err %v, want ErrDimensionMismatch",
				len(c[0]), len(c[1]), err)
		}
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	got, err := Cosine([]float32{0, 0, 0}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if got != 0 {
		t.Fatalf("zero vector scored %v, want 0", got)
	}
	// Both sides zero behaves the same.
	got, err = Cosine([]float32{0, 0}, []float32{0, 0})
	if err != nil {
		t.Fatalf("Cosine: %v", err)
	}
	if got != 0 {
		t.Fatalf("zero/zero scored %v, want 0", got)
	}
}

func TestCosine_EmptyVectors(t *testing.T) {
	got, err := Cosine(nil, nil)
	if err != nil {
		t.Fatalf("Cosine(nil, nil): %v", err)
	}
	if got != 0 {
		t.Fatalf("empty vectors scored %v, want 0", got)
	}
}
