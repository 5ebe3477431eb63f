package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/events"
	"github.com/JakeFAU/scraperhub/internal/history"
)

// StoreSink persists run lifecycle events into a history.Store.
type StoreSink struct {
	store  history.Store
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided store.
func NewStoreSink(store history.Store, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Consume applies the batch in order and stops at the first store error.
func (s *StoreSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case events.StageStarted:
			err := s.store.StartRun(ctx, history.Run{
				ID:        evt.RunID,
				Session:   evt.Session,
				Owner:     evt.Owner,
				Scraper:   evt.Scraper,
				StartedAt: evt.TS,
			})
			if err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case events.StageCompleted, events.StageFailed:
			status := history.StatusSucceeded
			if evt.Stage == events.StageFailed {
				status = history.StatusFailed
			}
			err := s.store.FinishRun(ctx, evt.RunID, evt.TS, status, evt.Download, evt.Note)
			if errors.Is(err, history.ErrNotFound) {
				s.logger.Warn("finished run was never started", zap.String("run_id", evt.RunID.String()))
				continue
			}
			if err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
