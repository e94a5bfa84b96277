// Package vectors provides the similarity arithmetic used by semantic
// search. Embeddings from a single provider are near-unit and mostly
// non-negative, so cosine scores cluster in [0, 1] in practice.
package vectors

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared. Mixing embedding models produces this; it is a caller bug, not a
// retryable condition.
var ErrDimensionMismatch = errors.New("vectors: dimension mismatch")

// Cosine returns the cosine similarity dot(a,b) / (|a|·|b|) between two
// equal-length vectors. A zero vector on either side yields 0 rather than
// propagating NaN: a direction-less vector is treated as maximally
// dissimilar.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	mag := math.Sqrt(normA) * math.Sqrt(normB)
	if mag == 0 {
		return 0, nil
	}
	return dot / mag, nil
}
