// Package simindex provides nearest-neighbor lookup over feedback embeddings.
// The workflow engine only needs top-1 cosine similarity; implementations are
// an in-process brute-force index and a pgvector-backed one. The index stores
// vectors only; the neighbor's analysis lives on its feedback record, looked
// up by embedding id.
package simindex

import (
	"context"

	"github.com/google/uuid"
)

// Entry is one stored embedding keyed by its feedback record.
type Entry struct {
	FeedbackID uuid.UUID
	Vector     []float64
}

// Match is the best neighbor for a query vector. Score is cosine similarity
// in [-1, 1].
type Match struct {
	FeedbackID  uuid.UUID
	EmbeddingID uuid.UUID
	Score       float64
}

type Index interface {
	// Query returns the top-1 neighbor, or nil when the index is empty.
	Query(ctx context.Context, vector []float64) (*Match, error)
	// Insert stores an entry keyed by feedback id. Re-insertion overwrites;
	// it never duplicates. Returns the embedding id.
	Insert(ctx context.Context, e Entry) (uuid.UUID, error)
	// Remove drops the entry for a feedback id. Removing an absent id is a
	// no-op.
	Remove(ctx context.Context, feedbackID uuid.UUID) error
}
