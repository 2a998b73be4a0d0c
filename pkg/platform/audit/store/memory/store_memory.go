package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/sentinel"
)

// InMemoryStore is an append-only audit.Store backed by a slice. Contents
// are lost on restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	byID    map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]int)}
}

func (s *InMemoryStore) Append(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[record.ID]; ok {
		return fmt.Errorf("audit record %s: %w", record.ID, sentinel.ErrInvalidState)
	}
	s.byID[record.ID] = len(s.records)
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return audit.Record{}, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	return s.records[i], nil
}

// List filters, orders by OccurredAt (ties by ID) and returns the requested
// page together with the filtered total.
func (s *InMemoryStore) List(_ context.Context, filter audit.Filter, page audit.Page) ([]audit.Record, int, error) {
	s.mu.RLock()
	matched := make([]audit.Record, 0, len(s.records))
	for _, r := range s.records {
		if filter.Matches(r) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	asc := page.Sort == audit.SortAsc
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			if asc {
				return a.OccurredAt.Before(b.OccurredAt)
			}
			return a.OccurredAt.After(b.OccurredAt)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	total := len(matched)
	start := page.Offset()
	if start >= total || page.Limit <= 0 {
		return []audit.Record{}, total, nil
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return append([]audit.Record(nil), matched[start:end]...), total, nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
