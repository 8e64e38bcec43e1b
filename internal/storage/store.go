// Package storage implements the time-series storage layer: the
// history/history_properties/metric_properties tables, composite indexes,
// the migration runner, and the windowed-downsample query engine.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store wraps the pgx connection pool shared by storage, the property
// store, the hidden-item filter and the alarm engine — every component
// that reads or writes Postgres-compatible state goes
// through the same pool so transaction/connection limits stay coherent.
type Store struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens the pool and verifies connectivity with a ping.
func Connect(ctx context.Context, databaseURL string, poolMax, poolMin int32, log zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = poolMax
	cfg.MinConns = poolMin

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("storage connected")

	return &Store{Pool: pool, log: log}, nil
}

// EnsureDatabase connects to the administrative database and creates
// dbName if it does not yet exist. CREATE DATABASE cannot run inside a
// transaction, so this uses a single plain connection rather than the
// pool.
func EnsureDatabase(ctx context.Context, adminURL, dbName string, log zerolog.Logger) error {
	conn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_database WHERE datname = $1)`, dbName,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check database %q: %w", dbName, err)
	}
	if exists {
		return nil
	}

	log.Info().Str("database", dbName).Msg("creating database")
	if _, err := conn.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %s`, pgx.Identifier{dbName}.Sanitize())); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

func (s *Store) Close() {
	s.log.Info().Msg("closing storage pool")
	s.Pool.Close()
}
