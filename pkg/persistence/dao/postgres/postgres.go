// Package postgres implements the Batch DAO boundary (dao.BatchDAO) against
// PostgreSQL. It is grounded on the teacher's
// pkg/compliance/storage/postgres/database.go: pgxpool for the connection
// pool, golang-migrate (backed by a blank lib/pq import through
// database/sql) for schema management, and the same
// config-with-defaults/timeout-bounded-connect shape.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/oapcore/persistence/pkg/persistence/dao"
	"github.com/oapcore/persistence/pkg/persistence/model"
)

// Config holds connection and migration settings for the Postgres DAO.
type Config struct {
	ConnectionString string
	MaxConnections    int32
	ConnectTimeout    time.Duration
	MigrationsPath    string
}

// withDefaults fills zero-valued fields the same way the teacher's
// NewComplianceDatabase does inline, pulled out here so it is reusable from
// tests.
func (c *Config) withDefaults() *Config {
	out := *c
	if out.MaxConnections == 0 {
		out.MaxConnections = 10
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = 30 * time.Second
	}
	if out.MigrationsPath == "" {
		out.MigrationsPath = "file://pkg/persistence/dao/postgres/migrations"
	}
	return &out
}

// Request is what the Postgres DAO needs from a model.PreparedRequest: the
// statement and arguments to execute. Workers' Mapper functions produce
// values satisfying this interface so the scheduler can remain ignorant of
// SQL entirely (spec.md §4.3's storage-driver boundary).
type Request interface {
	model.PreparedRequest
	SQL() (stmt string, args []any)
}

// DAO is a dao.BatchDAO backed by a PostgreSQL connection pool. Every
// request in a batch is sent as one pipelined pgx.Batch, matching spec.md
// §4.3's "implementations are free to parallelize and reorder internally".
type DAO struct {
	pool   *pgxpool.Pool
	config *Config
}

var _ dao.BatchDAO = (*DAO)(nil)

// New opens a connection pool against cfg.ConnectionString and verifies
// connectivity with a bounded-timeout ping.
func New(ctx context.Context, cfg *Config) (*DAO, error) {
	if cfg == nil || cfg.ConnectionString == "" {
		return nil, fmt.Errorf("postgres dao: connection string is required")
	}
	cfg = cfg.withDefaults()

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres dao: parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres dao: create pool: %w", err)
	}
	if err := pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres dao: ping: %w", err)
	}

	return &DAO{pool: pool, config: cfg}, nil
}

// Close releases every pooled connection.
func (d *DAO) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// MigrateToLatest applies every pending migration under the configured
// migrations path, tolerating the already-current case.
func (d *DAO) MigrateToLatest(ctx context.Context) error {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres dao: acquire connection for migration: %w", err)
	}
	defer conn.Release()

	migrationDB, err := sql.Open("postgres", d.config.ConnectionString)
	if err != nil {
		return fmt.Errorf("postgres dao: open migration connection: %w", err)
	}
	defer migrationDB.Close()

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres dao: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(d.config.MigrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres dao: create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres dao: apply migrations: %w", err)
	}
	return nil
}

// Ping verifies connectivity against the pool.
func (d *DAO) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Flush sends every request in the batch as one pipelined pgx.Batch and
// resolves the returned Future once the server has acknowledged every
// statement (spec.md §4.4, step 3e: the execute stage is asynchronous from
// the scheduler's perspective).
func (d *DAO) Flush(ctx context.Context, requests []model.PreparedRequest) dao.Future {
	future, resolve := dao.NewFuture()

	go func() {
		batch := &pgx.Batch{}
		for _, r := range requests {
			req, ok := r.(Request)
			if !ok {
				resolve(fmt.Errorf("postgres dao: request for model %q does not implement SQL()", r.Model().Name))
				return
			}
			stmt, args := req.SQL()
			batch.Queue(stmt, args...)
		}

		results := d.pool.SendBatch(ctx, batch)
		defer results.Close()

		for range requests {
			if _, err := results.Exec(); err != nil {
				resolve(fmt.Errorf("postgres dao: batch exec: %w", err))
				return
			}
		}
		resolve(nil)
	}()

	return future
}
