// Package postgres persists scraper run history in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/scraperhub/internal/history"
)

const defaultTable = "scraper_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for run rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// RunStore implements history.Store on top of a pgx pool.
type RunStore struct {
	pool  querier
	table string
}

// NewRunStore connects to Postgres using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool querier, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *RunStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the runs table when it does not exist yet.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id            UUID PRIMARY KEY,
			session_id    TEXT NOT NULL,
			owner         TEXT NOT NULL,
			scraper       TEXT NOT NULL,
			started_at    TIMESTAMPTZ NOT NULL,
			finished_at   TIMESTAMPTZ,
			status        TEXT NOT NULL,
			download      TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS %[1]s_owner_started_idx ON %[1]s (owner, started_at DESC);`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure %s schema: %w", s.table, err)
	}
	return nil
}

// StartRun inserts a running row; an existing ID is left untouched.
func (s *RunStore) StartRun(ctx context.Context, run history.Run) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, owner, scraper, started_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING;`, s.table)
	_, err := s.pool.Exec(ctx, query,
		run.ID,
		run.Session,
		run.Owner,
		run.Scraper,
		run.StartedAt,
		history.StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *RunStore) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status history.Status,
	download,
	errMsg string,
) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, status = $2, download = $3, error_message = $4
		WHERE id = $5;`, s.table)
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, download, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return history.ErrNotFound
	}
	return nil
}

// GetRun loads a single run by ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (history.Run, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, owner, scraper, started_at, finished_at, status, download, error_message
		FROM %s
		WHERE id = $1;`, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return history.Run{}, history.ErrNotFound
		}
		return history.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs of owner first.
func (s *RunStore) ListRuns(ctx context.Context, owner string, limit int) ([]history.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT id, session_id, owner, scraper, started_at, finished_at, status, download, error_message
		FROM %s
		WHERE owner = $1
		ORDER BY started_at DESC
		LIMIT $2;`, s.table)
	rows, err := s.pool.Query(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]history.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (history.Run, error) {
	var (
		run    history.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Session,
		&run.Owner,
		&run.Scraper,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Download,
		&run.Error,
	)
	if err != nil {
		return history.Run{}, err //nolint:wrapcheck
	}
	run.Status = history.Status(status)
	return run, nil
}
