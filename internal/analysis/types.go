package analysis

import "context"

// Approval is the moderation verdict for a feedback submission.
type Approval string

const (
	ApprovalPending  Approval = "pending"
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)

// Sentiment is the three-way tone classification of a submission.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Extraction is the analytical result for a novel submission: 1-3 normalized
// topic strings ordered by importance, plus a sentiment label.
type Extraction struct {
	Topics    []string  `json:"topics"`
	Sentiment Sentiment `json:"sentiment"`
}

// Classifier decides whether raw text is safe to publish.
type Classifier interface {
	Classify(ctx context.Context, text string) (Approval, error)
}

// Embedder maps raw text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Extractor pulls topics and sentiment out of raw text.
type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}
