// Package scraper defines the contract between the job coordinator and the
// scrapers contributed by plugin components.
package scraper

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/browser"
	"github.com/JakeFAU/scraperhub/internal/output"
	"github.com/JakeFAU/scraperhub/internal/progress"
)

// Output describes the artifact a finished scraper produced.
type Output struct {
	File string `json:"file"`
}

// Scraper is one runnable job instance. Instances are single-use.
type Scraper interface {
	Name() string
	Progress() *progress.Channel[float64]
	Output() Output
	Run(ctx context.Context) error
}

// BrowserPool hands out browser handles.
type BrowserPool interface {
	Acquire(ctx context.Context) (browser.Handle, error)
	Release(h browser.Handle) error
}

// ArtifactStore reserves output files.
type ArtifactStore interface {
	Create(name, ext string) (*output.Artifact, error)
}

// Env carries the shared services a constructor may use.
type Env struct {
	Browsers  BrowserPool
	Artifacts ArtifactStore
	Logger    *zap.Logger
}

// Constructor builds a fresh Scraper for one job.
type Constructor func(env Env) (Scraper, error)

// Base holds the state every scraper shares: its name, progress channel and
// output. Embed it and implement Run.
type Base struct {
	name     string
	progress *progress.Channel[float64]

	mu       sync.Mutex
	last     float64
	complete bool
	output   Output
}

// NewBase creates a Base whose progress starts at 0.
func NewBase(name string, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{
		name:     name,
		progress: progress.NewChannel(0.0, logger.Named("progress").With(zap.String("scraper", name))),
	}
}

// Name returns the registered scraper name.
func (b *Base) Name() string { return b.name }

// Progress returns the scraper's progress channel.
func (b *Base) Progress() *progress.Channel[float64] { return b.progress }

// Output returns the artifact descriptor, empty until one is set.
func (b *Base) Output() Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.output
}

// SetOutput records the download name of the artifact.
func (b *Base) SetOutput(file string) {
	b.mu.Lock()
	b.output = Output{File: file}
	b.mu.Unlock()
}

// Report publishes an intermediate progress value. Values that do not move
// progress forward, or that would reach 1, are ignored; use Complete for that.
func (b *Base) Report(ctx context.Context, v float64) bool {
	b.mu.Lock()
	if b.complete || v <= b.last || v >= 1 {
		b.mu.Unlock()
		return false
	}
	b.last = v
	b.mu.Unlock()

	b.progress.Publish(ctx, v)
	return true
}

// Complete publishes 1.0. Only the first call has an effect.
func (b *Base) Complete(ctx context.Context) bool {
	b.mu.Lock()
	if b.complete {
		b.mu.Unlock()
		return false
	}
	b.complete = true
	b.last = 1
	b.mu.Unlock()

	b.progress.Publish(ctx, 1.0)
	return true
}

// Completed reports whether Complete has been called.
func (b *Base) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete
}
