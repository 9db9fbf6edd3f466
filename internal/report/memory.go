package report

import (
	"context"
	"sync"
)

// MemoryStore is an in-process append-only report log. It backs tests and
// single-box deployments that run without PostgreSQL.
type MemoryStore struct {
	mu      sync.Mutex
	reports []Report
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create appends a report after validating its reason.
func (s *MemoryStore) Create(_ context.Context, r *Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.reports = append(s.reports, *r)
	s.mu.Unlock()
	return nil
}

// List returns a copy of all reports in insertion order.
func (s *MemoryStore) List(_ context.Context) ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, len(s.reports))
	copy(out, s.reports)
	return out, nil
}
