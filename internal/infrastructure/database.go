// Package infrastructure provides database, broker and cache connection setup.
//
// A single pgxpool is shared by the record store and the queue broker so
// that connection limits are accounted for in one place.
package infrastructure

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/pkg/logger"
)

//go:embed migrations/schema.sql
var schemaSQL string

// DatabaseClients contains the shared connection pool.
//
// Do not create a second pool with pgxpool.New elsewhere; pass Pool instead.
type DatabaseClients struct {
	Pool *pgxpool.Pool
}

// NewDatabaseClients creates the shared connection pool.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection pool created",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &DatabaseClients{Pool: pool}, nil
}

// AutoMigrate applies the application schema and the queue broker tables.
// Broker tables live in queueSchema so that several deployments can share
// one database without colliding.
func (c *DatabaseClients) AutoMigrate(ctx context.Context, queueSchema string) error {
	logger.Info("Applying application schema...")
	if err := ApplySchema(ctx, c.Pool); err != nil {
		return err
	}

	return MigrateQueue(ctx, c.Pool, queueSchema)
}

// ApplySchema runs the embedded idempotent DDL.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// MigrateQueue creates the broker schema if needed and runs River migrations in it.
func MigrateQueue(ctx context.Context, pool *pgxpool.Pool, queueSchema string) error {
	if queueSchema != "" {
		stmt := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{queueSchema}.Sanitize()
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create queue schema %q: %w", queueSchema, err)
		}
	}

	logger.Info("Running River migration...", zap.String("schema", queueSchema))
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{
		Schema: queueSchema,
	})
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		logger.Info("River migration completed",
			zap.Int("versions_applied", len(res.Versions)),
		)
	} else {
		logger.Info("River migration: already up-to-date")
	}
	return nil
}

// Ping reports whether the pool can reach PostgreSQL.
func (c *DatabaseClients) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

// Close closes the connection pool.
func (c *DatabaseClients) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
