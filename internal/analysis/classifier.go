package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openwall-hq/wallboard/internal/gemini"
)

// ModerationClassifier runs the approval prompt against the model service.
type ModerationClassifier struct {
	llm    *gemini.Client
	logger *slog.Logger
}

func NewModerationClassifier(llm *gemini.Client, logger *slog.Logger) *ModerationClassifier {
	return &ModerationClassifier{llm: llm, logger: logger}
}

type moderationResult struct {
	Approval string `json:"approval"`
}

func (c *ModerationClassifier) Classify(ctx context.Context, text string) (Approval, error) {
	prompt := fmt.Sprintf(moderationPrompt, text)

	raw, err := c.llm.GenerateJSON(ctx, prompt, moderationSchema)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	var result moderationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Error("failed to parse moderation response", "error", err, "raw", raw)
		return "", fmt.Errorf("%w: parse verdict: %v", ErrClassifierUnavailable, err)
	}

	switch result.Approval {
	case "approved":
		return ApprovalApproved, nil
	case "rejected":
		return ApprovalRejected, nil
	default:
		return "", fmt.Errorf("%w: unknown verdict %q", ErrClassifierUnavailable, result.Approval)
	}
}
