package postgres

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements ports.Repository on a single executor, either the pool
// or an open transaction.
type Repository struct {
	pool *pgxpool.Pool
	q    Executor
}

func NewRepository(db *DB) *Repository {
	return &Repository{
		pool: db.Pool,
		q:    db.Pool,
	}
}

// WithTx executes fn within a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ports.Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// No-op once committed.
	defer tx.Rollback(ctx) //nolint:errcheck

	repoWithTx := &Repository{
		pool: r.pool,
		q:    tx,
	}

	if err := fn(repoWithTx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ ports.Repository = (*Repository)(nil)
