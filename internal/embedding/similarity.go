package embedding

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Cosine computes the cosine similarity of two embeddings. Returns an
// error on dimension mismatch or a zero vector.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}

	x := make([]float64, len(a))
	y := make([]float64, len(b))
	for i := range a {
		x[i] = float64(a[i])
		y[i] = float64(b[i])
	}

	nx := floats.Norm(x, 2)
	ny := floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0, fmt.Errorf("zero vector")
	}
	return floats.Dot(x, y) / (nx * ny), nil
}
