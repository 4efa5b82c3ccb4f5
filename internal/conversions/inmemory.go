package conversions

import (
	"context"
	"sync"
	"time"
)

const DefaultLimit = 1000

// InMemoryStore keeps the most recent records in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	limit   int
	order   []string
	records map[string]Record
}

func NewInMemoryStore(limit int) *InMemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &InMemoryStore{limit: limit, records: make(map[string]Record)}
}

func (s *InMemoryStore) Record(_ context.Context, rec Record) error {
	rec = normalize(rec, time.Now().UTC())
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[rec.ID]; ok {
		s.records[rec.ID] = merge(prev, rec)
		return nil
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	if over := len(s.order) - s.limit; over > 0 {
		for _, id := range s.order[:over] {
			delete(s.records, id)
		}
		s.order = append([]string(nil), s.order[over:]...)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]Record, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[s.order[i]])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
