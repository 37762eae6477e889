package embedding

import (
	"context"
	"testing"
)

func TestHashEngineDeterministic(t *testing.T) {
	e := NewHashEngine(0)

	a1, err := e.Embed(context.Background(), "configure the database backup")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	a2, _ := e.Embed(context.Background(), "configure the database backup")

	sim, err := Cosine(a1, a2)
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if sim < 0.999 {
		t.Errorf("identical texts should have similarity ~1, got %f", sim)
	}
	if len(a1) != e.Dimensions() {
		t.Errorf("expected %d dimensions, got %d", e.Dimensions(), len(a1))
	}
}

func TestHashEngineLexicalOverlap(t *testing.T) {
	e := NewHashEngine(0)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "how do I restore a checkpoint")
	near, _ := e.Embed(ctx, "restore the last checkpoint please")
	far, _ := e.Embed(ctx, "purple elephants enjoy jazz")

	simNear, _ := Cosine(base, near)
	simFar, _ := Cosine(base, far)
	if simNear <= simFar {
		t.Errorf("overlapping text should rank closer: near=%f far=%f", simNear, simFar)
	}
}

func TestCosineErrors(t *testing.T) {
	if _, err := Cosine([]float32{1, 0}, []float32{1}); err == nil {
		t.Error("dimension mismatch should error")
	}
	if _, err := Cosine([]float32{0, 0}, []float32{1, 0}); err == nil {
		t.Error("zero vector should error")
	}
	if _, err := Cosine(nil, nil); err == nil {
		t.Error("empty vectors should error")
	}
}
