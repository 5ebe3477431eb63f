// Package memory keeps mirrored artifacts in memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Object is one mirrored artifact.
type Object struct {
	ContentType string
	Data        []byte
}

// Mirror stores artifacts in-memory and returns pseudo URIs.
type Mirror struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New creates an empty in-memory mirror.
func New() *Mirror {
	return &Mirror{objects: make(map[string]Object)}
}

// PutObject persists the content and returns a memory:// URI.
func (m *Mirror) PutObject(_ context.Context, path string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	m.mu.Lock()
	m.objects[path] = Object{ContentType: contentType, Data: data}
	m.mu.Unlock()
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns the object stored under path.
func (m *Mirror) Get(path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj, ok
}

// Len reports how many objects are stored.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
