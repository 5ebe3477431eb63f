package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps runs in memory. It is the default when no database is
// configured.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]Run
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]Run)}
}

// StartRun stores run as running.
func (s *MemoryStore) StartRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return nil
	}
	run.Status = StatusRunning
	run.FinishedAt = nil
	s.runs[run.ID] = run
	return nil
}

// FinishRun updates the terminal fields of a run.
func (s *MemoryStore) FinishRun(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status Status,
	download,
	errMsg string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.Download = download
	run.Error = errMsg
	s.runs[id] = run
	return nil
}

// GetRun returns a copy of the run.
func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// ListRuns returns up to limit runs of owner, newest first. A limit <= 0
// returns all of them.
func (s *MemoryStore) ListRuns(_ context.Context, owner string, limit int) ([]Run, error) {
	s.mu.RLock()
	runs := make([]Run, 0)
	for _, run := range s.runs {
		if run.Owner == owner {
			runs = append(runs, run)
		}
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
