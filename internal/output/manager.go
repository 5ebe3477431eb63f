package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidName is returned for file names containing path separators.
	ErrInvalidName = errors.New("invalid file name")
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("file does not exist")
	// ErrMirror marks a failed upload of an otherwise complete artifact.
	ErrMirror = errors.New("artifact mirror failed")
)

// Mirror receives a copy of every finished artifact.
type Mirror interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Config captures the parameters for the artifact directory.
type Config struct {
	Dir    string
	Prefix string
}

// Manager creates artifacts under a single writable directory.
type Manager struct {
	dir    string
	prefix string
	mirror Mirror
	logger *zap.Logger
}

// New creates the directory when needed and verifies it is writable. mirror
// may be nil.
func New(cfg Config, mirror Mirror, logger *zap.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat output directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("output path %q is not a directory", cfg.Dir)
	}

	probe, err := os.CreateTemp(cfg.Dir, ".writable_*")
	if err != nil {
		return nil, fmt.Errorf("output directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &Manager{
		dir:    cfg.Dir,
		prefix: strings.Trim(cfg.Prefix, "/"),
		mirror: mirror,
		logger: logger,
	}, nil
}

// Dir returns the artifact directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create reserves a new file named <name>_<uuid>.<ext>.
func (m *Manager) Create(name, ext string) (*Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ext = strings.TrimPrefix(ext, ".")
	if strings.ContainsAny(ext, `/\`) {
		return nil, fmt.Errorf("extension %q: %w", ext, ErrInvalidName)
	}
	file := fmt.Sprintf("%s_%s", name, uuid.NewString())
	if ext != "" {
		file += "." + ext
	}
	path := filepath.Join(m.dir, file)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create artifact %s: %w", file, err)
	}
	m.logger.Debug("artifact created", zap.String("file", file))
	return &Artifact{name: file, path: path, file: f, mgr: m}, nil
}

// Open returns the artifact named filename for reading.
func (m *Manager) Open(filename string) (*os.File, error) {
	if err := ValidateName(filename); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(m.dir, filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filename, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", filename, ErrNotFound)
	}
	return f, nil
}

// ValidateName rejects empty names, path separators and dot segments.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

func (m *Manager) objectPath(file string) string {
	if m.prefix == "" {
		return file
	}
	return m.prefix + "/" + file
}
