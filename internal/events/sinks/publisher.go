package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/events"
)

// Publisher delivers a payload to a message broker.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) (string, error)
}

// Notification is the message published when a run finishes.
type Notification struct {
	RunID      string    `json:"run_id"`
	Scraper    string    `json:"scraper"`
	Owner      string    `json:"owner"`
	Session    string    `json:"session"`
	Status     string    `json:"status"`
	Download   string    `json:"download,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
	Seconds    float64   `json:"duration_seconds"`
}

// PublisherSink announces finished runs. Started events are not published.
type PublisherSink struct {
	pub    Publisher
	logger *zap.Logger
}

// NewPublisherSink wraps pub.
func NewPublisherSink(pub Publisher, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, logger: logger}
}

// Consume publishes one Notification per terminal event.
func (s *PublisherSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		msg := Notification{
			RunID:      evt.RunID.String(),
			Scraper:    evt.Scraper,
			Owner:      evt.Owner,
			Session:    evt.Session,
			Status:     string(evt.Stage),
			Download:   evt.Download,
			Error:      evt.Note,
			FinishedAt: evt.TS.UTC(),
			Seconds:    evt.Dur.Seconds(),
		}
		id, err := s.pub.Publish(ctx, evt.Scraper, msg)
		if err != nil {
			return fmt.Errorf("publish run %s: %w", msg.RunID, err)
		}
		s.logger.Debug("run notification published", zap.String("run_id", msg.RunID), zap.String("message_id", id))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
