package simindex

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

// Memory is a brute-force in-process index. Fine for tests and small
// deployments; the interface lets an ANN structure or vector database slot
// in without touching the engine.
type Memory struct {
	dim int

	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
}

type memoryEntry struct {
	embeddingID uuid.UUID
	vector      []float64
}

func NewMemory(dim int) *Memory {
	return &Memory{dim: dim, entries: make(map[uuid.UUID]memoryEntry)}
}

func (m *Memory) Query(ctx context.Context, vector []float64) (*Match, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", analysis.ErrDimensionMismatch, len(vector), m.dim)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Match
	for id, e := range m.entries {
		score := cosine(vector, e.vector)
		if best == nil || score > best.Score {
			best = &Match{
				FeedbackID:  id,
				EmbeddingID: e.embeddingID,
				Score:       score,
			}
		}
	}
	return best, nil
}

func (m *Memory) Insert(ctx context.Context, e Entry) (uuid.UUID, error) {
	if len(e.Vector) != m.dim {
		return uuid.Nil, fmt.Errorf("%w: entry has %d values, index expects %d", analysis.ErrDimensionMismatch, len(e.Vector), m.dim)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	embeddingID := uuid.New()
	if existing, ok := m.entries[e.FeedbackID]; ok {
		embeddingID = existing.embeddingID
	}
	m.entries[e.FeedbackID] = memoryEntry{
		embeddingID: embeddingID,
		vector:      append([]float64(nil), e.Vector...),
	}
	return embeddingID, nil
}

func (m *Memory) Remove(ctx context.Context, feedbackID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, feedbackID)
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
