package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor is satisfied by both *pgxpool.Pool and pgx.Tx.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens the pool and waits for the database to answer a ping. The ping is
// retried cfg.ConnectAttempts times with doubling backoff, so the service can start
// alongside a database that is still booting.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pgxCfg, err := cfg.PgxConfig()
	if err != nil {
		logger.Error("failed to build pgx config", "error", err)
		return nil, err
	}

	logger = logger.With(
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
	)
	logger.Info("connecting to database", "application_name", cfg.ApplicationName)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		logger.Error("failed to create connection pool", "error", err)
		return nil, err
	}

	if err := pingWithRetry(ctx, pool, cfg.ConnectAttempts, cfg.ConnectBackoff, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to database",
		"max_conns", pgxCfg.MaxConns,
		"min_conns", pgxCfg.MinConns,
		"statement_timeout", cfg.StatementTimeout,
	)

	return &DB{
		Pool:   pool,
		logger: logger,
	}, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingWithRetry(ctx context.Context, db pinger, attempts int, backoff time.Duration, logger *slog.Logger) error {
	attempts = max(attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = db.Ping(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		logger.Warn("database not ready, retrying", "attempt", attempt, "of", attempts, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for database: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	logger.Error("failed to ping database", "attempts", attempts, "error", err)
	return fmt.Errorf("ping database after %d attempts: %w", attempts, err)
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.Pool.Close()
}

// IsUniqueViolation reports a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
