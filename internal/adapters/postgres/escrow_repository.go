package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

const escrowColumns = `id, booking_id, client_id, supplier_id, total_amount, currency, status, payment_id,
	refund_amount, refunded_by, refund_reason, release_amount, released_by,
	created_at, updated_at, funded_at, service_completed_at, disputed_at, refunded_at, released_at`

func (r *Repository) CreateEscrow(ctx context.Context, e *domain.Escrow) error {
	query := `INSERT INTO escrows (` + escrowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := r.q.Exec(ctx, query,
		e.ID,
		e.BookingID,
		e.ClientID,
		e.SupplierID,
		e.TotalAmount,
		e.Currency,
		e.Status,
		e.PaymentID,
		e.RefundAmount,
		e.RefundedBy,
		e.RefundReason,
		e.ReleaseAmount,
		e.ReleasedBy,
		e.CreatedAt,
		e.UpdatedAt,
		e.FundedAt,
		e.ServiceCompletedAt,
		e.DisputedAt,
		e.RefundedAt,
		e.ReleasedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create escrow: %w", err)
	}
	return nil
}

func (r *Repository) FindEscrowByID(ctx context.Context, id string) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`
	return scanEscrow(r.q.QueryRow(ctx, query, id))
}

// FindEscrowByIDForUpdate locks the row until the surrounding transaction ends.
func (r *Repository) FindEscrowByIDForUpdate(ctx context.Context, id string) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1 FOR UPDATE`
	return scanEscrow(r.q.QueryRow(ctx, query, id))
}

func (r *Repository) UpdateEscrow(ctx context.Context, e *domain.Escrow) error {
	query := `
		UPDATE escrows SET status = $1, payment_id = $2,
			refund_amount = $3, refunded_by = $4, refund_reason = $5,
			release_amount = $6, released_by = $7,
			funded_at = $8, service_completed_at = $9, disputed_at = $10,
			refunded_at = $11, released_at = $12, updated_at = $13
		WHERE id = $14
	`

	cmdTag, err := r.q.Exec(ctx, query,
		e.Status,
		e.PaymentID,
		e.RefundAmount,
		e.RefundedBy,
		e.RefundReason,
		e.ReleaseAmount,
		e.ReleasedBy,
		e.FundedAt,
		e.ServiceCompletedAt,
		e.DisputedAt,
		e.RefundedAt,
		e.ReleasedAt,
		e.UpdatedAt,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update escrow: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("escrow %s: %w", e.ID, domain.ErrEscrowNotFound)
	}
	return nil
}

func (r *Repository) LinkPayment(ctx context.Context, escrowID, paymentID string) error {
	cmdTag, err := r.q.Exec(ctx,
		`UPDATE escrows SET payment_id = $1, updated_at = NOW() WHERE id = $2`,
		paymentID, escrowID,
	)
	if err != nil {
		return fmt.Errorf("failed to link payment to escrow: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("escrow %s: %w", escrowID, domain.ErrEscrowNotFound)
	}
	return nil
}

func (r *Repository) CreateAuditEntry(ctx context.Context, a *domain.EscrowAuditEntry) error {
	query := `INSERT INTO escrow_audit_log
		(id, escrow_id, action, from_status, to_status, actor_id, reason, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.q.Exec(ctx, query,
		a.ID,
		a.EscrowID,
		a.Action,
		a.FromStatus,
		a.ToStatus,
		a.ActorID,
		a.Reason,
		a.Amount,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write escrow audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns the audit trail of an escrow, oldest first.
func (r *Repository) ListAuditEntries(ctx context.Context, escrowID string) ([]*domain.EscrowAuditEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, escrow_id, action, from_status, to_status, actor_id, reason, amount, created_at
		FROM escrow_audit_log
		WHERE escrow_id = $1
		ORDER BY created_at ASC`, escrowID)
	if err != nil {
		return nil, fmt.Errorf("query escrow audit log: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.EscrowAuditEntry, error) {
		var a domain.EscrowAuditEntry
		err := row.Scan(
			&a.ID,
			&a.EscrowID,
			&a.Action,
			&a.FromStatus,
			&a.ToStatus,
			&a.ActorID,
			&a.Reason,
			&a.Amount,
			&a.CreatedAt,
		)
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan escrow audit log: %w", err)
	}
	return entries, nil
}

func scanEscrow(row pgx.Row) (*domain.Escrow, error) {
	var e domain.Escrow
	err := row.Scan(
		&e.ID,
		&e.BookingID,
		&e.ClientID,
		&e.SupplierID,
		&e.TotalAmount,
		&e.Currency,
		&e.Status,
		&e.PaymentID,
		&e.RefundAmount,
		&e.RefundedBy,
		&e.RefundReason,
		&e.ReleaseAmount,
		&e.ReleasedBy,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.FundedAt,
		&e.ServiceCompletedAt,
		&e.DisputedAt,
		&e.RefundedAt,
		&e.ReleasedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("failed to scan escrow: %w", err)
	}
	return &e, nil
}
