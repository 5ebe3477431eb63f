package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/scraperhub/internal/events"
)

// PrometheusSink exports job counters derived from lifecycle events.
type PrometheusSink struct {
	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraperhub_jobs_started_total",
			Help: "Scraper runs started, partitioned by scraper.",
		}, []string{"scraper"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraperhub_jobs_completed_total",
			Help: "Scraper runs finished, partitioned by scraper and result.",
		}, []string{"scraper", "result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraperhub_jobs_running",
			Help: "Scraper runs currently in progress.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraperhub_job_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		running: make(map[uuid.UUID]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register job collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case events.StageStarted:
			s.jobsStarted.WithLabelValues(evt.Scraper).Inc()
			if s.track(evt.RunID, true) {
				s.jobsRunning.Inc()
			}
		case events.StageCompleted, events.StageFailed:
			result := "success"
			if evt.Stage == events.StageFailed {
				result = "error"
			}
			s.jobsCompleted.WithLabelValues(evt.Scraper, result).Inc()
			if evt.Dur > 0 {
				s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
			if s.track(evt.RunID, false) {
				s.jobsRunning.Dec()
			}
		}
	}
	return nil
}

// track records a run as started or finished and reports whether the call
// changed the running set.
func (s *PrometheusSink) track(id uuid.UUID, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		if ok {
			return false
		}
		s.running[id] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, id)
	return true
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
