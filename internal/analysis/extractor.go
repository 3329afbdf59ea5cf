package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openwall-hq/wallboard/internal/gemini"
)

// KeywordExtractor runs the keyword/sentiment prompt and normalizes the
// returned topics so semantically identical phrases land on the same ledger
// key.
type KeywordExtractor struct {
	llm    *gemini.Client
	logger *slog.Logger
}

func NewKeywordExtractor(llm *gemini.Client, logger *slog.Logger) *KeywordExtractor {
	return &KeywordExtractor{llm: llm, logger: logger}
}

type extractionResult struct {
	Keywords  []string `json:"keywords"`
	Sentiment string   `json:"sentiment"`
}

func (x *KeywordExtractor) Extract(ctx context.Context, text string) (Extraction, error) {
	prompt := fmt.Sprintf(extractionPrompt, text)

	raw, err := x.llm.GenerateJSON(ctx, prompt, extractionSchema)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrExtractorUnavailable, err)
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		x.logger.Error("failed to parse extraction response", "error", err, "raw", raw)
		return Extraction{}, fmt.Errorf("%w: parse extraction: %v", ErrExtractorUnavailable, err)
	}

	var sentiment Sentiment
	switch result.Sentiment {
	case "positive":
		sentiment = SentimentPositive
	case "neutral":
		sentiment = SentimentNeutral
	case "negative":
		sentiment = SentimentNegative
	default:
		return Extraction{}, fmt.Errorf("%w: unknown sentiment %q", ErrExtractorUnavailable, result.Sentiment)
	}

	topics := NormalizeTopics(result.Keywords)
	if len(topics) == 0 {
		return Extraction{}, fmt.Errorf("%w: no usable keywords in response", ErrExtractorUnavailable)
	}
	if len(topics) > 3 {
		topics = topics[:3]
	}

	x.logger.Info("extraction complete", "topics", topics, "sentiment", sentiment)

	return Extraction{Topics: topics, Sentiment: sentiment}, nil
}
