// Package postgres provides Postgres-backed persistence for read metrics.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

const defaultTable = "read_metrics"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for read-metrics rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execPinger interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// ReadMetricsStore writes one row per engagement session. A session that is
// delivered twice keeps its first row.
type ReadMetricsStore struct {
	pool  execPinger
	table string
	query string
}

// NewReadMetricsStore connects a pool using cfg.
func NewReadMetricsStore(ctx context.Context, cfg Config) (*ReadMetricsStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	store, err := NewReadMetricsStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewReadMetricsStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReadMetricsStoreWithPool(pool execPinger, table string) (*ReadMetricsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	session_id,
	article_id,
	dwell_time_seconds,
	max_scroll_depth_pct,
	received_at
) VALUES (
	$1,$2,$3,$4,$5
)
ON CONFLICT (session_id) DO NOTHING`, table)
	return &ReadMetricsStore{pool: pool, table: table, query: query}, nil
}

// StoreReadMetrics inserts the session summary.
func (s *ReadMetricsStore) StoreReadMetrics(
	ctx context.Context,
	sessionID string,
	payload engagement.ReadMetricsPayload,
	receivedAt time.Time,
) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("read metrics store is not configured")
	}
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if payload.ArticleID == "" {
		return fmt.Errorf("article id is required")
	}
	if _, err := s.pool.Exec(ctx, s.query,
		sessionID,
		payload.ArticleID,
		payload.DwellTimeSeconds,
		payload.MaxScrollDepthPct,
		receivedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert read metrics: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (s *ReadMetricsStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ReadMetricsStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
