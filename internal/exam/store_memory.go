package exam

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store, used by tests and the offline demo.
type MemoryStore struct {
	mu       sync.RWMutex
	cats     []Category
	profiles map[string]Quota
	answered map[QuestionKey]int64
	correct  map[QuestionKey]int64
}

func NewMemoryStore(cats []Category, profiles map[string]Quota) *MemoryStore {
	if profiles == nil {
		profiles = map[string]Quota{}
	}
	return &MemoryStore{
		cats:     cats,
		profiles: profiles,
		answered: map[QuestionKey]int64{},
		correct:  map[QuestionKey]int64{},
	}
}

func (m *MemoryStore) LoadCategories(_ context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Category, len(m.cats))
	copy(out, m.cats)
	return out, nil
}

func (m *MemoryStore) LoadQuota(_ context.Context, profile string) (Quota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := Quota{}
	for k, v := range m.profiles[profile] {
		q[k] = v
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", profile, err)
	}
	return q, nil
}

func (m *MemoryStore) IncrementCounter(_ context.Context, k QuestionKey, c Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has(k) {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, k)
	}
	switch c {
	case CounterAnswered:
		m.answered[k]++
	case CounterCorrect:
		m.correct[k]++
	default:
		return fmt.Errorf("exam: unknown counter %q", c)
	}
	return nil
}

func (m *MemoryStore) has(k QuestionKey) bool {
	for _, c := range m.cats {
		if c.Name == k.Category {
			return k.ID >= 0 && k.ID < len(c.Questions)
		}
	}
	return false
}

// Counts returns (times_answered, times_correct) for k.
func (m *MemoryStore) Counts(k QuestionKey) (int64, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.answered[k], m.correct[k]
}

func (m *MemoryStore) Stats(_ context.Context) ([]QuestionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []QuestionStats
	for _, c := range m.cats {
		for _, q := range c.Questions {
			k := q.Key()
			out = append(out, QuestionStats{
				Category:      c.Name,
				ID:            q.ID,
				Text:          q.Text,
				TimesAnswered: m.answered[k],
				TimesCorrect:  m.correct[k],
			})
		}
	}
	return out, nil
}
