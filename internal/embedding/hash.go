package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDimensions = 256

// HashEngine is a deterministic, dependency-free embedding backend: tokens
// are hashed into a fixed number of buckets and the vector L2-normalized.
// It captures lexical overlap only, which is enough to keep the semantic
// index and its tests working without a network provider.
type HashEngine struct {
	dims int
}

// NewHashEngine creates a hash-projection engine. dims <= 0 selects the
// default dimensionality.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashEngine{dims: dims}
}

// Embed projects the text's tokens into the bucket space.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := e.Embed(ctx, t)
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions returns the bucket count.
func (e *HashEngine) Dimensions() int { return e.dims }

// Name returns the engine name.
func (e *HashEngine) Name() string { return "hash" }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
