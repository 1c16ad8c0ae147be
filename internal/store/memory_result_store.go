package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string][]domain.FileResult
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		results: make(map[string][]domain.FileResult),
	}
}

func (s *MemoryResultStore) Record(_ context.Context, result domain.FileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.RunID] = append(s.results[result.RunID], result)
	return nil
}

// ListRun returns the run's results ordered by source path.
func (s *MemoryResultStore) ListRun(_ context.Context, runID string) ([]domain.FileResult, error) {
	s.mu.RLock()
	out := append([]domain.FileResult(nil), s.results[runID]...)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Source < out[j].Source
	})
	return out, nil
}
