package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/events"
	"github.com/JakeFAU/scraperhub/internal/metrics"
	"github.com/JakeFAU/scraperhub/internal/progress"
	"github.com/JakeFAU/scraperhub/internal/scraper"
)

// Conn is one duplex client connection bound to a session.
type Conn interface {
	Send(ctx context.Context, evt Event) error
	Close() error
}

type job struct {
	runID   uuid.UUID
	scraper scraper.Scraper
	sub     progress.Subscription
	cancel  context.CancelFunc
	started time.Time
	done    bool
}

// Session tracks one user's running scraper and live connections.
type Session struct {
	id     string
	owner  string
	coord  *Coordinator
	logger *zap.Logger

	// fanout serializes broadcasts and late-joiner replays so every
	// connection observes events in publish order.
	fanout sync.Mutex

	mu     sync.Mutex
	job    *job
	conns  map[Conn]struct{}
	closed bool
}

// ID returns the session token.
func (s *Session) ID() string { return s.id }

// Owner returns the email of the user owning the session.
func (s *Session) Owner() string { return s.owner }

// Active reports the running scraper name and its last published progress.
func (s *Session) Active() (string, float64, bool) {
	s.mu.Lock()
	j := s.job
	s.mu.Unlock()
	if j == nil {
		return "", 0, false
	}
	return j.scraper.Name(), j.scraper.Progress().Current(), true
}

// Connections returns the number of attached connections.
func (s *Session) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// StartJob instantiates the scraper registered under name and runs it in
// the background. Progress is pushed to every attached connection.
func (s *Session) StartJob(ctx context.Context, name string) (scraper.Scraper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.job != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, s.job.scraper.Name())
	}
	ctor, ok := s.coord.cfg.Catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScraperNotFound, name)
	}
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	env := s.coord.cfg.Env
	env.Logger = s.logger.With(zap.String("scraper", name), zap.String("run_id", runID.String()))
	sc, err := ctor(env)
	if err != nil {
		return nil, fmt.Errorf("construct scraper %s: %w", name, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{
		runID:   runID,
		scraper: sc,
		cancel:  cancel,
		started: s.coord.cfg.Clock.Now(),
	}
	j.sub = sc.Progress().Subscribe(func(ctx context.Context, v float64) error {
		return s.onProgress(ctx, j, v)
	})
	s.job = j

	s.emit(j, events.StageStarted, "", 0, "")
	s.logger.Info("job started", zap.String("scraper", sc.Name()), zap.String("run_id", runID.String()))

	go s.run(runCtx, j)
	return sc, nil
}

func (s *Session) run(ctx context.Context, j *job) {
	defer j.cancel()
	err := s.runScraper(ctx, j.scraper)
	if err == nil {
		s.mu.Lock()
		done := j.done
		s.mu.Unlock()
		if done {
			return
		}
		err = ErrIncomplete
	}
	s.fail(ctx, j, err)
}

func (s *Session) runScraper(ctx context.Context, sc scraper.Scraper) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scraper panic: %v", rec)
		}
	}()
	return sc.Run(ctx)
}

// release clears j from the slot and reports whether the caller owns the
// terminal transition.
func (s *Session) release(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.done {
		return false
	}
	j.done = true
	if s.job == j {
		s.job = nil
	}
	j.scraper.Progress().Unsubscribe(j.sub)
	return true
}

func (s *Session) onProgress(ctx context.Context, j *job, v float64) error {
	s.mu.Lock()
	stale := j.done || s.job != j
	s.mu.Unlock()
	if stale {
		return nil
	}
	name := j.scraper.Name()
	if v < 1 {
		s.Broadcast(ctx, ActiveEvent(name, v))
		return nil
	}
	if !s.release(j) {
		return nil
	}
	download := j.scraper.Output().File
	s.Broadcast(ctx, CompletedEvent(name, download))
	dur := s.coord.cfg.Clock.Now().Sub(j.started)
	s.emit(j, events.StageCompleted, download, dur, "")
	s.logger.Info("job completed",
		zap.String("scraper", name),
		zap.String("download", download),
		zap.Duration("duration", dur),
	)
	return nil
}

func (s *Session) fail(ctx context.Context, j *job, err error) {
	if !s.release(j) {
		return
	}
	name := j.scraper.Name()
	s.Broadcast(context.WithoutCancel(ctx), FailedEvent(name, err))
	dur := s.coord.cfg.Clock.Now().Sub(j.started)
	s.emit(j, events.StageFailed, "", dur, err.Error())
	s.logger.Warn("job failed", zap.String("scraper", name), zap.Error(err))
}

func (s *Session) emit(j *job, stage events.Stage, download string, dur time.Duration, note string) {
	s.coord.cfg.Events.Emit(events.Event{
		RunID:    j.runID,
		TS:       s.coord.cfg.Clock.Now(),
		Stage:    stage,
		Session:  s.id,
		Owner:    s.owner,
		Scraper:  j.scraper.Name(),
		Download: download,
		Dur:      dur,
		Note:     note,
	})
}

// Attach registers conn. When a scraper is running, conn immediately
// receives its current progress; a failed replay drops conn.
func (s *Session) Attach(ctx context.Context, conn Conn) error {
	s.fanout.Lock()
	defer s.fanout.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.conns[conn] = struct{}{}
	j := s.job
	s.mu.Unlock()
	metrics.IncConnections()
	s.logger.Debug("connection attached")

	if j == nil {
		return nil
	}
	v := j.scraper.Progress().Current()
	if v >= 1 {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.coord.cfg.SendTimeout)
	defer cancel()
	if err := conn.Send(sendCtx, ActiveEvent(j.scraper.Name(), v)); err != nil {
		s.drop(conn, err)
		return fmt.Errorf("replay progress: %w", err)
	}
	return nil
}

// Detach forgets conn without closing it. Unknown connections are ignored.
func (s *Session) Detach(conn Conn) {
	s.mu.Lock()
	_, ok := s.conns[conn]
	delete(s.conns, conn)
	s.mu.Unlock()
	if ok {
		metrics.DecConnections()
		s.logger.Debug("connection detached")
	}
}

// Broadcast sends evt to every attached connection concurrently and waits
// for all sends. Connections whose send fails or times out are closed and
// removed.
func (s *Session) Broadcast(ctx context.Context, evt Event) {
	s.fanout.Lock()
	defer s.fanout.Unlock()

	s.mu.Lock()
	conns := make([]Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, s.coord.cfg.SendTimeout)
			defer cancel()
			if err := c.Send(sendCtx, evt); err != nil {
				s.drop(c, err)
			}
		}(c)
	}
	wg.Wait()
}

func (s *Session) drop(conn Conn, cause error) {
	s.mu.Lock()
	_, ok := s.conns[conn]
	delete(s.conns, conn)
	s.mu.Unlock()
	if !ok {
		return
	}
	metrics.DecConnections()
	metrics.ObserveDroppedConnection()
	if err := conn.Close(); err != nil {
		s.logger.Debug("close dropped connection", zap.Error(err))
	}
	s.logger.Info("connection dropped", zap.Error(cause))
}

// Close ends the session: the running job is cancelled and every
// connection is closed. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	j := s.job
	conns := s.conns
	s.conns = make(map[Conn]struct{})
	s.mu.Unlock()

	if j != nil {
		j.cancel()
		if s.release(j) {
			dur := s.coord.cfg.Clock.Now().Sub(j.started)
			s.emit(j, events.StageFailed, "", dur, ErrSessionClosed.Error())
		}
	}
	var errs []error
	for c := range conns {
		metrics.DecConnections()
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Debug("close connections", zap.Error(err))
	}
	s.logger.Info("session closed")
}
