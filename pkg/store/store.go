// Package store is the persistence layer: schema bootstrap, connection
// pooling and typed accessors over the memories, memory_edges,
// ingestion_staging, context_store and primer_cache tables.
package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx driver for database/sql, used only to drive migrations

	"github.com/isaacriehm/memory-mcp/pkg/config"
	"github.com/isaacriehm/memory-mcp/pkg/errs"
)

//go:embed migrations
var migrationsFS embed.FS

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// accessor in this package run either standalone or composed into a caller's
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the connection pool and exposes the typed accessors declared
// across this package's other files.
type Store struct {
	pool     *pgxpool.Pool
	embedDim int
}

// Pool exposes the underlying connection pool for packages (retrieval,
// health checks) that need to compose raw queries this package doesn't wrap.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// New bootstraps the schema via golang-migrate, verifies the configured
// embedding dimension matches what's already on disk, and opens the pooled
// connection the rest of the service uses.
func New(ctx context.Context, cfg config.Config) (*Store, error) {
	if err := runMigrations(cfg.DatabaseURL); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to apply schema migrations")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "invalid DATABASE_URL")
	}
	poolCfg.MinConns = int32(cfg.PGPoolMin)
	poolCfg.MaxConns = int32(cfg.PGPoolMax)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to ping database")
	}

	s := &Store{pool: pool, embedDim: cfg.EmbedDim}
	if err := s.verifyEmbeddingDimension(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// runMigrations drives golang-migrate against a transient database/sql
// connection obtained through the stdlib pgx driver. Migrations only need a
// handle for the duration of Up(); the service's steady-state traffic goes
// through the pgxpool created by New.
func runMigrations(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "memories", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Only close the source; closing the migrate instance itself would close
	// the underlying *sql.DB through the postgres driver a second time.
	return sourceDriver.Close()
}

// verifyEmbeddingDimension fails startup if the vector column's width on
// disk disagrees with the configured EMBED_DIM, since changing a pgvector
// column's dimension requires an explicit migration, not a silent rewrite.
func (s *Store) verifyEmbeddingDimension(ctx context.Context) error {
	var atttypmod int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		JOIN pg_class ON pg_class.oid = pg_attribute.attrelid
		WHERE pg_class.relname = 'memories' AND pg_attribute.attname = 'embedding'
	`).Scan(&atttypmod)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to read embedding column metadata")
	}
	if atttypmod != -1 && atttypmod != s.embedDim {
		return errs.New(errs.EmbeddingDimMismatch,
			"database vector dimension mismatch: column is %d, config specifies %d; migration required",
			atttypmod, s.embedDim)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-raised after rollback).
func (s *Store) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to commit transaction")
	}
	return nil
}

// HealthStatus mirrors the pool statistics callers surface on /healthz.
type HealthStatus struct {
	Status        string        `json:"status"`
	ResponseTime  time.Duration `json:"response_time_ms"`
	AcquiredConns int32         `json:"acquired_conns"`
	IdleConns     int32         `json:"idle_conns"`
	MaxConns      int32         `json:"max_conns"`
}

// Health pings the pool and reports its current statistics.
func (s *Store) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start)}, err
	}
	stat := s.pool.Stat()
	return &HealthStatus{
		Status:        "healthy",
		ResponseTime:  time.Since(start),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
	}, nil
}
