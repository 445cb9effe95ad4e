package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// Directory reads the tables owned by the surrounding marketplace: bookings,
// administrators and feature flags.
type Directory struct {
	q Executor
}

func NewDirectory(db *DB) *Directory {
	return &Directory{q: db.Pool}
}

func (d *Directory) FindBookingByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT id, client_id, supplier_id, status, total_amount, paid_amount, event_name
		FROM bookings WHERE id = $1`

	var b domain.Booking
	err := d.q.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.ClientID,
		&b.SupplierID,
		&b.Status,
		&b.TotalAmount,
		&b.PaidAmount,
		&b.EventName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	return &b, nil
}

func (d *Directory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var isAdmin bool
	err := d.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`, userID).Scan(&isAdmin)
	if err != nil {
		return false, fmt.Errorf("check admin role: %w", err)
	}
	return isAdmin, nil
}

// IsEnabled reports a missing flag as enabled.
func (d *Directory) IsEnabled(ctx context.Context, feature string) (bool, error) {
	var enabled bool
	err := d.q.QueryRow(ctx, `SELECT enabled FROM feature_flags WHERE name = $1`, feature).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("read feature flag: %w", err)
	}
	return enabled, nil
}

func (d *Directory) SetEnabled(ctx context.Context, feature string, enabled bool) error {
	_, err := d.q.Exec(ctx, `
		INSERT INTO feature_flags (name, enabled, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()`,
		feature, enabled,
	)
	if err != nil {
		return fmt.Errorf("write feature flag: %w", err)
	}
	return nil
}

// GrantAdmin adds userID to the administrator list.
func (d *Directory) GrantAdmin(ctx context.Context, userID string) error {
	_, err := d.q.Exec(ctx, `INSERT INTO admins (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}
	return nil
}
