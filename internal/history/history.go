// Package history records every scraper run so users can look back at what
// they started and download earlier artifacts.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Status mirrors the status column of the runs table.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "success"
	StatusFailed    Status = "error"
)

// Run is one execution of a scraper inside a session.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Session    string     `json:"session"`
	Owner      string     `json:"owner"`
	Scraper    string     `json:"scraper"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     Status     `json:"status"`
	Download   string     `json:"download,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Store persists runs.
type Store interface {
	// StartRun records a run in running state. Starting a known ID is a no-op.
	StartRun(ctx context.Context, run Run) error
	// FinishRun marks the run terminal or returns ErrNotFound.
	FinishRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status Status, download, errMsg string) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns the newest runs of owner first.
	ListRuns(ctx context.Context, owner string, limit int) ([]Run, error)
}
