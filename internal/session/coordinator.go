package session

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/events"
	"github.com/JakeFAU/scraperhub/internal/scraper"
)

var (
	// ErrScraperNotFound is returned when no scraper is registered under a name.
	ErrScraperNotFound = errors.New("scraper does not exist")
	// ErrAlreadyRunning is returned when the session already runs a scraper.
	ErrAlreadyRunning = errors.New("scraper already running")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrIncomplete marks a run that returned without publishing completion.
	ErrIncomplete = errors.New("scraper returned without completing")
)

const defaultSendTimeout = 5 * time.Second

// Catalog resolves scraper names to constructors.
type Catalog interface {
	Lookup(name string) (scraper.Constructor, bool)
}

// Clock supplies timestamps for lifecycle events.
type Clock interface {
	Now() time.Time
}

// Config holds the dependencies shared by every session.
type Config struct {
	Catalog     Catalog
	Env         scraper.Env
	Events      events.Emitter
	Clock       Clock
	SendTimeout time.Duration
	Logger      *zap.Logger
}

// Coordinator creates sessions bound to shared dependencies.
type Coordinator struct {
	cfg    Config
	logger *zap.Logger
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// NewCoordinator validates cfg and fills in defaults.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("scraper catalog is required")
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Clock == nil {
		cfg.Clock = utcClock{}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{cfg: cfg, logger: cfg.Logger}, nil
}

// NewSession creates an idle session for owner.
func (c *Coordinator) NewSession(id, owner string) *Session {
	return &Session{
		id:     id,
		owner:  owner,
		coord:  c,
		logger: c.logger.With(zap.String("session", id), zap.String("owner", owner)),
		conns:  make(map[Conn]struct{}),
	}
}
