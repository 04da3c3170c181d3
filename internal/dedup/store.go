// Package dedup tracks which traffic records have already been seen.
package dedup

import (
	"sync"

	"github.com/pscheid92/trafficpulse/internal/domain"
)

// Store is an id index plus the accepted records in acceptance order.
//
// Merge has a single writer (the poller). The read methods are safe to call concurrently
// with it so HTTP handlers can report on the store.
type Store struct {
	mu      sync.RWMutex
	index   map[int64]struct{}
	records []domain.TrafficRecord
	lastID  int64
}

func NewStore() *Store {
	return &Store{index: make(map[int64]struct{})}
}

func (s *Store) IsKnown(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Merge returns the candidates whose id is not yet known, in input order, and records them.
// A candidate repeated within the same batch is only returned once.
func (s *Store) Merge(candidates []domain.TrafficRecord) []domain.TrafficRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var novel []domain.TrafficRecord
	for _, rec := range candidates {
		if _, ok := s.index[rec.ID]; ok {
			continue
		}
		s.index[rec.ID] = struct{}{}
		s.records = append(s.records, rec)
		s.lastID = rec.ID
		novel = append(novel, rec)
	}
	return novel
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// LastID is the id of the most recently accepted record, or false if nothing was accepted.
func (s *Store) LastID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID, len(s.records) > 0
}

// Records returns a copy of the accepted records, oldest acceptance first.
func (s *Store) Records() []domain.TrafficRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TrafficRecord, len(s.records))
	copy(out, s.records)
	return out
}
