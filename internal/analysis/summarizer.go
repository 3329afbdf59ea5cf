package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openwall-hq/wallboard/internal/gemini"
)

// SummaryInput is one feedback record's contribution to a summary request.
type SummaryInput struct {
	Content   string    `json:"content"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
}

// Summarizer condenses a set of feedback records into an HTML digest.
type Summarizer interface {
	Summarize(ctx context.Context, inputs []SummaryInput) (string, error)
}

// DigestSummarizer runs the summary prompt against the model service.
type DigestSummarizer struct {
	llm    *gemini.Client
	logger *slog.Logger
}

func NewDigestSummarizer(llm *gemini.Client, logger *slog.Logger) *DigestSummarizer {
	return &DigestSummarizer{llm: llm, logger: logger}
}

type summaryResult struct {
	Summary string `json:"summary"`
}

func (s *DigestSummarizer) Summarize(ctx context.Context, inputs []SummaryInput) (string, error) {
	if len(inputs) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}

	payload, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("encode summary input: %w", err)
	}
	prompt := fmt.Sprintf(summaryPrompt, payload)

	raw, err := s.llm.GenerateJSON(ctx, prompt, summarySchema)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizerUnavailable, err)
	}

	var result summaryResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		s.logger.Error("failed to parse summary response", "error", err, "raw", raw)
		return "", fmt.Errorf("%w: parse summary: %v", ErrSummarizerUnavailable, err)
	}
	if result.Summary == "" {
		return "", fmt.Errorf("%w: empty summary in response", ErrSummarizerUnavailable)
	}

	s.logger.Info("summary generated", "inputs", len(inputs))
	return result.Summary, nil
}
