package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/events"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("scraper", evt.Scraper),
			zap.String("owner", evt.Owner),
			zap.String("session", evt.Session),
		}
		if evt.Download != "" {
			fields = append(fields, zap.String("download", evt.Download))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Stage == events.StageFailed {
			s.logger.Warn("run failed", append(fields, zap.String("note", evt.Note))...)
			continue
		}
		s.logger.Info("run "+string(evt.Stage), fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
