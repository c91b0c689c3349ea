// Package store persists finalized validation reports.
//
// Three backends share one method set: an in-process memory store (the
// default), a Redis cache keyed by validation id with a TTL, and a Postgres
// history table. Chain combines them so reads hit the cache first.
package store

import (
	"context"
	"sync"

	"triplecheck/internal/validation/models"
	"triplecheck/pkg/platform/sentinel"
)

const defaultMemoryCapacity = 10_000

// MemoryStore keeps the most recent reports in process. When full, the oldest
// report is evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	byID     map[string]*models.Report
	order    []string
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, byID: make(map[string]*models.Report)}
}

func (s *MemoryStore) Save(_ context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[report.ValidationID]; !exists {
		s.order = append(s.order, report.ValidationID)
	}
	s.byID[report.ValidationID] = report
	for len(s.order) > s.capacity {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, validationID string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.byID[validationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return report, nil
}

// Recent returns up to limit reports, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*models.Report, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out, nil
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*models.Report)
	s.order = nil
}
