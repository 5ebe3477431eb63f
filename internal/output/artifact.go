package output

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Artifact is a file being written by one scraper run.
type Artifact struct {
	name string
	path string
	mgr  *Manager

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Name returns the download name of the artifact.
func (a *Artifact) Name() string {
	return a.name
}

// Write appends p to the artifact.
func (a *Artifact) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, fmt.Errorf("write %s: %w", a.name, os.ErrClosed)
	}
	n, err := a.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", a.name, err)
	}
	return n, nil
}

// Close flushes the file and, when a mirror is configured, uploads a copy.
// Upload failures wrap ErrMirror and leave the local file in place.
func (a *Artifact) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	err := a.file.Close()
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("close %s: %w", a.name, err)
	}
	if a.mgr.mirror == nil {
		return nil
	}
	return a.upload(ctx)
}

// Discard closes and removes a partially written artifact.
func (a *Artifact) Discard() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		_ = a.file.Close()
	}
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", a.name, err)
	}
	return nil
}

func (a *Artifact) upload(ctx context.Context) error {
	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(a.path); err == nil {
		contentType = mt.String()
	}
	f, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", a.name, err)
	}
	defer func() { _ = f.Close() }()

	uri, err := a.mgr.mirror.PutObject(ctx, a.mgr.objectPath(a.name), contentType, f)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMirror, a.name, err)
	}
	a.mgr.logger.Info("artifact mirrored", zap.String("file", a.name), zap.String("uri", uri))
	return nil
}
