package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

// Memory is an in-process store with the same per-record atomicity the
// Postgres store gets from row-level updates.
type Memory struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Feedback
	votes   map[uuid.UUID]map[uuid.UUID]bool // feedback -> voter set
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[uuid.UUID]*Feedback),
		votes:   make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *Memory) Insert(ctx context.Context, f *Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	cp := *f
	m.records[f.ID] = &cp
	return nil
}

func (m *Memory) Get(ctx context.Context, id uuid.UUID) (*Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *Memory) GetByEmbeddingID(ctx context.Context, embeddingID uuid.UUID) (*Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.records {
		if f.EmbeddingID != nil && *f.EmbeddingID == embeddingID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Patch(ctx context.Context, id uuid.UUID, p Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if p.Approval != nil {
		f.Approval = *p.Approval
	}
	if p.Sentiment != nil {
		f.Sentiment = *p.Sentiment
	}
	if p.Topics != nil {
		f.Topics = append([]string(nil), p.Topics...)
	}
	if p.Published != nil {
		f.Published = *p.Published
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.EmbeddingID != nil {
		id := *p.EmbeddingID
		f.EmbeddingID = &id
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	delete(m.votes, id)
	return nil
}

func (m *Memory) ToggleVote(ctx context.Context, feedbackID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.records[feedbackID]
	if !ok {
		return false, ErrNotFound
	}
	if m.votes[feedbackID] == nil {
		m.votes[feedbackID] = make(map[uuid.UUID]bool)
	}

	if m.votes[feedbackID][userID] {
		delete(m.votes[feedbackID], userID)
		if f.Votes > 0 {
			f.Votes--
		}
		return false, nil
	}
	m.votes[feedbackID][userID] = true
	f.Votes++
	return true, nil
}

func (m *Memory) ToggleNoted(ctx context.Context, id uuid.UUID) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.records[id]
	if !ok {
		return "", ErrNotFound
	}
	if f.Status == StatusOpen {
		f.Status = StatusNoted
	} else {
		f.Status = StatusOpen
	}
	return f.Status, nil
}

func (m *Memory) SentimentCounts(ctx context.Context) (SentimentCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c SentimentCounts
	for _, f := range m.records {
		switch f.Sentiment {
		case analysis.SentimentPositive:
			c.Positive++
		case analysis.SentimentNeutral:
			c.Neutral++
		case analysis.SentimentNegative:
			c.Negative++
		}
		c.Total++
	}
	return c, nil
}

func (m *Memory) List(ctx context.Context, filter Filter) ([]*Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Feedback
	for _, f := range m.records {
		if filter.Published != nil && f.Published != *filter.Published {
			continue
		}
		if filter.Sentiment != "" && f.Sentiment != filter.Sentiment {
			continue
		}
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.AuthorID != nil && f.AuthorID != *filter.AuthorID {
			continue
		}
		if filter.Content != "" && !strings.Contains(strings.ToLower(f.Content), strings.ToLower(filter.Content)) {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if filter.VotesOrder == "asc" {
			if out[i].Votes != out[j].Votes {
				return out[i].Votes < out[j].Votes
			}
		} else {
			if out[i].Votes != out[j].Votes {
				return out[i].Votes > out[j].Votes
			}
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
