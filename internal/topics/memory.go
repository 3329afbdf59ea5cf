package topics

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

// Memory is an in-process ledger. The mutex serializes concurrent runs, so
// the duplicate-topic race the shared registry otherwise tolerates cannot
// occur here.
type Memory struct {
	mu     sync.Mutex
	byName map[string]*Topic
	links  map[uuid.UUID]map[uuid.UUID]analysis.Sentiment // feedback -> topic -> contributed sentiment
}

func NewMemory() *Memory {
	return &Memory{
		byName: make(map[string]*Topic),
		links:  make(map[uuid.UUID]map[uuid.UUID]analysis.Sentiment),
	}
}

func (m *Memory) AddTopics(ctx context.Context, feedbackID uuid.UUID, topicStrings []string, sentiment analysis.Sentiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range topicStrings {
		topic, ok := m.byName[name]
		if !ok {
			topic = &Topic{ID: uuid.New(), Topic: name}
			m.byName[name] = topic
		}

		if m.links[feedbackID] == nil {
			m.links[feedbackID] = make(map[uuid.UUID]analysis.Sentiment)
		}
		if _, linked := m.links[feedbackID][topic.ID]; linked {
			continue
		}
		m.links[feedbackID][topic.ID] = sentiment

		topic.Occurrences++
		bump(topic, sentiment, 1)
	}
	return nil
}

func (m *Memory) RemoveTopics(ctx context.Context, feedbackID uuid.UUID, topicStrings []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range topicStrings {
		topic, ok := m.byName[name]
		if !ok {
			continue
		}
		sentiment, linked := m.links[feedbackID][topic.ID]
		if !linked {
			continue
		}
		delete(m.links[feedbackID], topic.ID)

		if topic.Occurrences > 0 {
			topic.Occurrences--
		}
		bump(topic, sentiment, -1)
	}
	return nil
}

func (m *Memory) List(ctx context.Context) ([]Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Topic, 0, len(m.byName))
	for _, t := range m.byName {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

// Get returns a topic by its canonical string. Test helper.
func (m *Memory) Get(name string) (Topic, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byName[name]
	if !ok {
		return Topic{}, false
	}
	return *t, true
}

func bump(t *Topic, s analysis.Sentiment, delta int) {
	switch s {
	case analysis.SentimentPositive:
		if t.Positive += delta; t.Positive < 0 {
			t.Positive = 0
		}
	case analysis.SentimentNeutral:
		if t.Neutral += delta; t.Neutral < 0 {
			t.Neutral = 0
		}
	case analysis.SentimentNegative:
		if t.Negative += delta; t.Negative < 0 {
			t.Negative = 0
		}
	}
}
