package simindex

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

func TestMemory_QueryEmpty(t *testing.T) {
	idx := NewMemory(3)

	match, err := idx.Query(context.Background(), []float64{1, 0, 0})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if match != nil {
		t.Errorf("expected nil match on empty index, got %+v", match)
	}
}

func TestMemory_TopOneByCosine(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(3)

	near, far := uuid.New(), uuid.New()
	if _, err := idx.Insert(ctx, Entry{FeedbackID: near, Vector: []float64{1, 0.1, 0}}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := idx.Insert(ctx, Entry{FeedbackID: far, Vector: []float64{0, 1, 0}}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	match, err := idx.Query(ctx, []float64{1, 0, 0})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.FeedbackID != near {
		t.Errorf("expected nearest entry %s, got %s", near, match.FeedbackID)
	}
	if match.Score <= 0.9 {
		t.Errorf("expected high similarity, got %f", match.Score)
	}
	if match.EmbeddingID == uuid.Nil {
		t.Error("expected an embedding id on the match")
	}
}

func TestMemory_InsertIsIdempotentPerFeedback(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	id := uuid.New()

	first, err := idx.Insert(ctx, Entry{FeedbackID: id, Vector: []float64{1, 0}})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	second, err := idx.Insert(ctx, Entry{FeedbackID: id, Vector: []float64{0, 1}})
	if err != nil {
		t.Fatalf("re-Insert failed: %v", err)
	}

	if first != second {
		t.Errorf("expected stable embedding id on re-insert, got %s then %s", first, second)
	}
	if idx.Len() != 1 {
		t.Errorf("expected 1 entry after re-insert, got %d", idx.Len())
	}

	// The overwrite must win.
	match, err := idx.Query(ctx, []float64{0, 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if match.Score < 0.99 {
		t.Errorf("expected overwritten vector to match, score %f", match.Score)
	}
}

func TestMemory_RemoveDropsFromQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	id := uuid.New()

	vec := []float64{0.6, 0.8}
	if _, err := idx.Insert(ctx, Entry{FeedbackID: id, Vector: vec}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := idx.Remove(ctx, id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	match, err := idx.Query(ctx, vec)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if match != nil {
		t.Errorf("expected removed entry to stop matching, got %+v", match)
	}

	// Removing again is a no-op.
	if err := idx.Remove(ctx, id); err != nil {
		t.Errorf("second Remove errored: %v", err)
	}
}

func TestMemory_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(3)

	if _, err := idx.Insert(ctx, Entry{FeedbackID: uuid.New(), Vector: []float64{1, 0}}); !errors.Is(err, analysis.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch on insert, got %v", err)
	}
	if _, err := idx.Query(ctx, []float64{1, 0}); !errors.Is(err, analysis.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch on query, got %v", err)
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float64{1, 0}, []float64{1, 0}); got < 0.999 {
		t.Errorf("identical vectors should score ~1, got %f", got)
	}
	if got := cosine([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors should score 0, got %f", got)
	}
	if got := cosine([]float64{1, 0}, []float64{-1, 0}); got > -0.999 {
		t.Errorf("opposite vectors should score ~-1, got %f", got)
	}
	if got := cosine([]float64{0, 0}, []float64{1, 0}); got != 0 {
		t.Errorf("zero vector should score 0, got %f", got)
	}
}
