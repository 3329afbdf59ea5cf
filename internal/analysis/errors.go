package analysis

import (
	"errors"
	"fmt"
)

// ErrUnavailable is the common base for retryable upstream failures. A port
// returns an error wrapping it when the model service errored or produced an
// unparseable result; the workflow engine retries such steps with backoff.
var ErrUnavailable = errors.New("analysis service unavailable")

var (
	ErrClassifierUnavailable = fmt.Errorf("classifier: %w", ErrUnavailable)
	ErrEmbedderUnavailable   = fmt.Errorf("embedder: %w", ErrUnavailable)
	ErrExtractorUnavailable  = fmt.Errorf("extractor: %w", ErrUnavailable)
	ErrSummarizerUnavailable = fmt.Errorf("summarizer: %w", ErrUnavailable)
)

// ErrDimensionMismatch means an embedding does not match the configured
// dimension. Configuration-level, fatal, never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")
