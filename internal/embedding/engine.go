// Package embedding provides vector embedding generation for the semantic
// index. Backends: Google GenAI (cloud), Ollama (local), and a deterministic
// hash projection used when no provider is configured.
package embedding

import (
	"context"
	"fmt"

	"nexus/internal/config"
	"nexus/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// NewEngine creates an embedding engine based on configuration. An
// unconfigured or unusable cloud provider falls back to the hash engine so
// the semantic index keeps working offline.
func NewEngine(cfg config.EmbeddingConfig) Engine {
	log := logging.L("embedding")

	switch cfg.Provider {
	case "genai":
		eng, err := NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
		if err == nil {
			return eng
		}
		log.Warn(fmt.Sprintf("genai engine unavailable (%v), falling back to hash", err))
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	}
	return NewHashEngine(0)
}
