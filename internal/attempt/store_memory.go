package attempt

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps classes and records in process.
type MemoryStore struct {
	mu      sync.Mutex
	classes map[string]Class
	records map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{classes: map[string]Class{}, records: map[string][]Record{}}
}

func (m *MemoryStore) GetClass(_ context.Context, code string) (Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[code]
	if !ok {
		return Class{}, ErrClassNotFound
	}
	return c, nil
}

func (m *MemoryStore) PutClass(_ context.Context, c Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.Code] = c
	return nil
}

func (m *MemoryStore) Get(_ context.Context, k Key) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.at(k)
	if !ok {
		return Record{}, ErrNotFound
	}
	return *p, nil
}

func (m *MemoryStore) at(k Key) (*Record, bool) {
	rs := m.records[k.ClassCode]
	if k.Index < 0 || k.Index >= len(rs) {
		return nil, false
	}
	return &rs[k.Index], true
}

func (m *MemoryStore) List(_ context.Context, classCode string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records[classCode]))
	copy(out, m.records[classCode])
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[r.ClassCode]; !ok {
		return Record{}, ErrClassNotFound
	}
	for _, x := range m.records[r.ClassCode] {
		if strings.EqualFold(x.Email, r.Email) {
			return Record{}, ErrDuplicateEmail
		}
	}
	r.Index = len(m.records[r.ClassCode])
	m.records[r.ClassCode] = append(m.records[r.ClassCode], r)
	return r, nil
}

func (m *MemoryStore) SetEmailed(_ context.Context, k Key, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.at(k)
	if !ok || p.EmailedAt != nil {
		return false, nil
	}
	p.EmailedAt = &at
	return true, nil
}

func (m *MemoryStore) SetLinkClicked(_ context.Context, k Key, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.at(k)
	if !ok || p.EmailedAt == nil || p.LinkClickedAt != nil {
		return false, nil
	}
	p.LinkClickedAt = &at
	return true, nil
}

func (m *MemoryStore) SetSubmitted(_ context.Context, k Key, s Submission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.at(k)
	if !ok || p.LinkClickedAt == nil || p.SubmittedAt != nil {
		return false, nil
	}
	at, score, passed := s.At, s.Score, s.Passed
	p.SubmittedAt, p.Score, p.Passed = &at, &score, &passed
	p.RawResponseJSON = s.RawResponseJSON
	return true, nil
}
