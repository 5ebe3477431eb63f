// Package events carries job lifecycle events from session coordinators to
// the sinks that record them.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage is the lifecycle milestone an Event represents.
type Stage string

// Lifecycle stages.
const (
	StageStarted   Stage = "started"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// Event describes one milestone of a scraper run.
type Event struct {
	// RunID identifies the run across its events.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Session and Owner identify who started the run.
	Session string
	Owner   string
	Scraper string
	// Download is the artifact name of a completed run.
	Download string
	// Dur is the run time for terminal stages.
	Dur time.Duration
	// Note carries the failure reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Scraper == "" {
		return errors.New("scraper is required")
	}
	switch e.Stage {
	case StageStarted, StageCompleted, StageFailed:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Stage == StageCompleted || e.Stage == StageFailed
}
