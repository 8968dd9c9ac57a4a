// Package postgres provides Postgres-backed persistence implementations.
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

	"github.com/JakeFAU/chunkgen/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for run rows.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository on a single table:
//
//	CREATE TABLE runs (
//	    id            UUID PRIMARY KEY,
//	    region        TEXT NOT NULL,
//	    status        TEXT NOT NULL,
//	    total         BIGINT NOT NULL,
//	    completed     BIGINT NOT NULL DEFAULT 0,
//	    failed        BIGINT NOT NULL DEFAULT 0,
//	    pass          INT NOT NULL DEFAULT 1,
//	    started_at    TIMESTAMPTZ NOT NULL,
//	    updated_at    TIMESTAMPTZ NOT NULL,
//	    finished_at   TIMESTAMPTZ,
//	    error_message TEXT
//	);
type RunStore struct {
	pool  pool
	table string
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects a pool using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage.postgres.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p, table: table}, nil
}

// NewRunStoreWithPool wraps an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "runs"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun inserts a running row; an existing id is left untouched.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, region string, total int64, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, region, status, total, completed, failed, pass, started_at, updated_at)
VALUES ($1, $2, $3, $4, 0, 0, 1, $5, $5)
ON CONFLICT (id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, id, region, string(store.RunRunning), total, startedAt); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// UpdateProgress overwrites counters while the run is still running.
func (s *RunStore) UpdateProgress(ctx context.Context, id uuid.UUID, p store.RunProgress) error {
	query := fmt.Sprintf(`
UPDATE %s SET completed = $1, failed = $2, pass = $3, updated_at = $4
WHERE id = $5 AND status = $6`, s.table)
	if _, err := s.pool.Exec(ctx, query, p.Completed, p.Failed, p.Pass, p.At, id, string(store.RunRunning)); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// FinishRun writes the final counters and terminal status.
func (s *RunStore) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	status store.RunStatus,
	p store.RunProgress,
	errMsg *string,
) error {
	if !status.Valid() || status == store.RunRunning {
		return fmt.Errorf("finish run: invalid terminal status %q", status)
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $1, completed = $2, failed = $3, pass = $4,
	updated_at = $5, finished_at = $5, error_message = $6
WHERE id = $7`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(status), p.Completed, p.Failed, p.Pass, p.At, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun loads one run by id.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.RunRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, runColumns, s.table)
	rec, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, store.ErrNotFound
		}
		return store.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs newest first with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.RunRecord, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, runColumns, s.table)
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

const runColumns = `id, region, status, total, completed, failed, pass, started_at, updated_at, finished_at, error_message`

func scanRun(row pgx.Row) (store.RunRecord, error) {
	var (
		rec    store.RunRecord
		status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Region,
		&status,
		&rec.Total,
		&rec.Completed,
		&rec.Failed,
		&rec.Pass,
		&rec.StartedAt,
		&rec.UpdatedAt,
		&rec.FinishedAt,
		&rec.ErrorMessage,
	)
	if err != nil {
		return store.RunRecord{}, err
	}
	rec.Status = store.RunStatus(status)
	return rec, nil
}
