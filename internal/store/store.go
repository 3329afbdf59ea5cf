// Package store holds feedback records and their evolving analysis fields.
// Approval, sentiment, and topics are written only by the workflow engine's
// stage mutations; votes and the noted flag move through user actions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

// ErrNotFound means the feedback record does not exist (possibly deleted
// mid-pipeline). Fatal to a workflow run, never retried.
var ErrNotFound = errors.New("feedback not found")

// Status is the moderation-workflow state, independent of publication.
type Status string

const (
	StatusOpen  Status = "open"
	StatusNoted Status = "noted"
)

type Feedback struct {
	ID          uuid.UUID          `json:"id"`
	Content     string             `json:"content"`
	AuthorID    uuid.UUID          `json:"author_id"`
	Status      Status             `json:"status"`
	Approval    analysis.Approval  `json:"approval"`
	Sentiment   analysis.Sentiment `json:"sentiment,omitempty"`
	Topics      []string           `json:"topics,omitempty"`
	Published   bool               `json:"published"`
	Votes       int                `json:"votes"`
	EmbeddingID *uuid.UUID         `json:"embedding_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Patch is a partial update; nil fields are left untouched. Patches apply
// atomically per record.
type Patch struct {
	Approval    *analysis.Approval
	Sentiment   *analysis.Sentiment
	Topics      []string
	Published   *bool
	Status      *Status
	EmbeddingID *uuid.UUID
}

// Filter narrows List. VotesOrder is "asc" or "desc" (default desc);
// Content is a full-text search over the submission text.
type Filter struct {
	Published  *bool
	Sentiment  analysis.Sentiment
	Status     Status
	AuthorID   *uuid.UUID
	Content    string
	VotesOrder string
}

// SentimentCounts is the wall-wide sentiment breakdown. Total counts every
// record, including those not yet analyzed.
type SentimentCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
	Total    int `json:"total"`
}

type Store interface {
	Insert(ctx context.Context, f *Feedback) error
	Get(ctx context.Context, id uuid.UUID) (*Feedback, error)
	GetByEmbeddingID(ctx context.Context, embeddingID uuid.UUID) (*Feedback, error)
	Patch(ctx context.Context, id uuid.UUID, p Patch) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ToggleVote records or withdraws one user's vote and adjusts the vote
	// count atomically. Returns true when the vote is now present.
	ToggleVote(ctx context.Context, feedbackID, userID uuid.UUID) (bool, error)
	// ToggleNoted flips status between open and noted, returning the new
	// status.
	ToggleNoted(ctx context.Context, id uuid.UUID) (Status, error)
	List(ctx context.Context, f Filter) ([]*Feedback, error)
	SentimentCounts(ctx context.Context) (SentimentCounts, error)
}

func approvalPtr(a analysis.Approval) *analysis.Approval { return &a }

// ApprovalPatch is a convenience for the engine's set-approval stage.
func ApprovalPatch(a analysis.Approval) Patch {
	return Patch{Approval: approvalPtr(a)}
}

// PublishPatch marks a record published with its resolved analysis.
func PublishPatch(sentiment analysis.Sentiment, topics []string) Patch {
	published := true
	return Patch{Sentiment: &sentiment, Topics: topics, Published: &published}
}
