// Package embeddings provides the embedding collaborator the pipeline's
// enrichment stage and episode segmentation's semantic term both call out
// to. The concrete embedding model is deliberately an external
// collaborator: this package offers a deterministic no-op fallback and an
// HTTP client for an OpenAI-embeddings-compatible endpoint, both satisfying
// the same narrow EmbedBatch shape so either can be injected wherever
// pipeline.Embedder or segmentation.Embedder is expected.
package embeddings

import (
	"context"

	"github.com/athenamem/episodic/pkg/config"
)

// Embedder requests a vector embedding for each of a batch of texts, in the
// same order. Both pipeline.Embedder and segmentation.Embedder are
// satisfied by this exact method set.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// ZeroVectorEmbedder is the deterministic fallback: every text maps to a
// fixed-length vector of zeros. It never fails and never calls out to
// anything, so it is always a safe default — the provider of last resort
// when no real embedding model is configured.
type ZeroVectorEmbedder struct {
	Dimensions int
}

// NewZeroVectorEmbedder returns a ZeroVectorEmbedder producing vectors of
// the given dimensionality (384 if dims <= 0).
func NewZeroVectorEmbedder(dims int) *ZeroVectorEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &ZeroVectorEmbedder{Dimensions: dims}
}

func (z *ZeroVectorEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = make([]float64, z.Dimensions)
	}
	return out, nil
}

// New builds the Embedder configured by cfg: an HTTPEmbedder for provider
// "http", otherwise the deterministic ZeroVectorEmbedder.
func New(cfg config.EmbeddingConfig) Embedder {
	if cfg.Provider == "http" {
		return NewHTTPEmbedder(cfg)
	}
	return NewZeroVectorEmbedder(cfg.Dimensions)
}
