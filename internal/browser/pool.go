package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/metrics"
)

// ErrPoolClosed is returned by Acquire once the pool has been closed.
var ErrPoolClosed = errors.New("browser pool closed")

const defaultMaxConcurrent = 5

// Handle is one checked-out browser instance.
type Handle interface {
	ID() string
	// Render navigates to url, waits for waitSelector (when set) and returns
	// the rendered document HTML.
	Render(ctx context.Context, url, waitSelector string) (string, error)
	Close() error
}

// Launcher creates fresh browser handles.
type Launcher interface {
	Launch(ctx context.Context) (Handle, error)
}

// Config controls pool capacity.
type Config struct {
	MaxConcurrent int
	Logger        *zap.Logger
}

// Pool bounds the number of outstanding browser handles. A handle is either
// free (not yet launched) or checked out by exactly one caller.
type Pool struct {
	launcher Launcher
	slots    chan struct{}
	done     chan struct{}
	logger   *zap.Logger

	mu        sync.Mutex
	out       map[Handle]struct{}
	closed    bool
	closeOnce sync.Once
}

// NewPool creates a Pool that admits at most cfg.MaxConcurrent handles.
func NewPool(cfg Config, launcher Launcher) (*Pool, error) {
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	if cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrent must be >= 0")
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		launcher: launcher,
		slots:    make(chan struct{}, cfg.MaxConcurrent),
		done:     make(chan struct{}),
		logger:   logger,
		out:      make(map[Handle]struct{}),
	}, nil
}

// Capacity returns the configured maximum of outstanding handles.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}

// Acquire blocks until fewer than Capacity handles are outstanding, then
// launches and returns a fresh handle. Waiting ends early when ctx is done or
// the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (Handle, error) {
	start := time.Now()
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	case <-p.done:
		return nil, ErrPoolClosed
	}
	metrics.ObserveBrowserWait(time.Since(start))

	handle, err := p.launcher.Launch(ctx)
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.closeHandle(handle)
		<-p.slots
		return nil, ErrPoolClosed
	}
	p.out[handle] = struct{}{}
	inUse := len(p.out)
	p.mu.Unlock()

	metrics.SetBrowsersInUse(inUse)
	p.logger.Info("browser checked out", zap.String("browser", handle.ID()), zap.Int("in_use", inUse))
	return handle, nil
}

// Release terminates a checked-out handle and frees its slot. Handles that
// are not checked out from this pool are ignored, so double release is safe.
func (p *Pool) Release(handle Handle) error {
	if handle == nil {
		return nil
	}
	p.mu.Lock()
	if _, ok := p.out[handle]; !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.out, handle)
	inUse := len(p.out)
	p.mu.Unlock()

	err := handle.Close()
	<-p.slots
	metrics.SetBrowsersInUse(inUse)
	p.logger.Info("browser released", zap.String("browser", handle.ID()), zap.Int("in_use", inUse))
	if err != nil {
		return fmt.Errorf("close browser %s: %w", handle.ID(), err)
	}
	return nil
}

// Outstanding reports how many handles are currently checked out.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.out)
}

// Close stops admitting callers and terminates every outstanding handle.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		handles := make([]Handle, 0, len(p.out))
		for h := range p.out {
			handles = append(handles, h)
		}
		p.out = make(map[Handle]struct{})
		p.mu.Unlock()
		for _, h := range handles {
			p.closeHandle(h)
			<-p.slots
		}
		metrics.SetBrowsersInUse(0)
	})
}

func (p *Pool) closeHandle(handle Handle) {
	if err := handle.Close(); err != nil {
		p.logger.Warn("browser close failed", zap.String("browser", handle.ID()), zap.Error(err))
	}
}
