// Package topics maintains the counted, deduplicated topic registry. Every
// published feedback contributes each of its topics exactly once; deleting a
// feedback reverses exactly what it contributed. Sentiment is recorded on the
// feedback-topic link so reversal decrements the same tally the add
// incremented.
package topics

import (
	"context"

	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

// Topic is one canonical topic string with its occurrence count and
// three-way sentiment tally.
type Topic struct {
	ID          uuid.UUID `json:"id"`
	Topic       string    `json:"topic"`
	Occurrences int       `json:"occurrences"`
	Positive    int       `json:"positive"`
	Neutral     int       `json:"neutral"`
	Negative    int       `json:"negative"`
}

type Ledger interface {
	// AddTopics gets-or-creates each topic and links it to the feedback,
	// incrementing the occurrence count and sentiment tally once per new
	// link. Re-adding an existing link is a no-op.
	AddTopics(ctx context.Context, feedbackID uuid.UUID, topicStrings []string, sentiment analysis.Sentiment) error
	// RemoveTopics deletes the feedback's links and decrements each touched
	// topic's counters by what the link contributed, never below zero.
	// Unknown topics and absent links are skipped.
	RemoveTopics(ctx context.Context, feedbackID uuid.UUID, topicStrings []string) error
	// List returns all topics, most frequent first.
	List(ctx context.Context) ([]Topic, error)
}
