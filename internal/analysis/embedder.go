package analysis

import (
	"context"
	"fmt"

	"github.com/openwall-hq/wallboard/internal/gemini"
)

// GeminiEmbedder produces fixed-dimension semantic-similarity embeddings.
// The dimension is a deployment-time constant shared with the similarity
// index; a response of any other length is a configuration fault, not a
// retryable outage.
type GeminiEmbedder struct {
	llm *gemini.Client
	dim int
}

func NewGeminiEmbedder(llm *gemini.Client, dim int) *GeminiEmbedder {
	return &GeminiEmbedder{llm: llm, dim: dim}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := e.llm.Embed(ctx, text, e.dim)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
	}
	if len(vec) != e.dim {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(vec), e.dim)
	}
	return vec, nil
}
