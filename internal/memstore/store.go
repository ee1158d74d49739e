// Package memstore is the process-lifetime fallback tier: a table keyed by
// entity type and ticker, used only when the durable store and fast cache are
// both degraded. Incoming records never replace existing ones here; merge
// appends only records whose natural key is not already present.
package memstore

import (
	"sync"

	"market-data-cache/internal/models"
)

// Filter is applied client-side on reads. Zero-valued fields are no-ops, and
// date bounds are ignored for records without a qualifying date field.
type Filter struct {
	StartDate string
	EndDate   string
	Limit     int
}

type Store struct {
	mu   sync.RWMutex
	data map[models.EntityType]map[string][]models.Record
}

func New() *Store {
	return &Store{
		data: make(map[models.EntityType]map[string][]models.Record),
	}
}

// Merge adds the incoming records for (entity, ticker), skipping any whose
// natural key already exists. Existing records keep their original field
// values.
func (s *Store) Merge(entity models.EntityType, ticker string, incoming []models.Record) {
	if len(incoming) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byTicker, ok := s.data[entity]
	if !ok {
		byTicker = make(map[string][]models.Record)
		s.data[entity] = byTicker
	}

	existing := byTicker[ticker]
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.NaturalKey()] = struct{}{}
	}

	for _, r := range incoming {
		key := r.NaturalKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, r)
	}
	byTicker[ticker] = existing
}

// Get returns the records stored for (entity, ticker) with the filter applied
// by linear scan. The result is a copy; callers may not mutate stored records.
func (s *Store) Get(entity models.EntityType, ticker string, filter Filter) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[entity][ticker]
	if len(stored) == 0 {
		return nil
	}

	out := make([]models.Record, 0, len(stored))
	for _, r := range stored {
		date := r.DateKey()
		if date != "" {
			if filter.StartDate != "" && date < filter.StartDate {
				continue
			}
			if filter.EndDate != "" && date > filter.EndDate {
				continue
			}
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// Count returns the number of records stored for (entity, ticker).
func (s *Store) Count(entity models.EntityType, ticker string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[entity][ticker])
}

// Clear drops every record stored for a ticker across all entity types.
func (s *Store) Clear(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byTicker := range s.data {
		delete(byTicker, ticker)
	}
}
