package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, booking_id, user_id, supplier_id, amount_cents, currency, method, provider,
	provider_payment_id, reference, status, checkout_url, payment_url, entity_id, reference_number,
	metadata, expires_at, created_at, updated_at`

func (r *Repository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode payment metadata: %w", err)
	}

	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = r.q.Exec(ctx, query,
		p.ID,
		p.BookingID,
		p.UserID,
		p.SupplierID,
		p.AmountCents,
		p.Currency,
		p.Method,
		p.Provider,
		p.ProviderPaymentID,
		p.Reference,
		p.Status,
		p.CheckoutURL,
		p.PaymentURL,
		p.EntityID,
		p.ReferenceNumber,
		metadata,
		p.ExpiresAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *Repository) FindPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	var (
		p        domain.Payment
		metadata []byte
	)
	err := r.q.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.BookingID,
		&p.UserID,
		&p.SupplierID,
		&p.AmountCents,
		&p.Currency,
		&p.Method,
		&p.Provider,
		&p.ProviderPaymentID,
		&p.Reference,
		&p.Status,
		&p.CheckoutURL,
		&p.PaymentURL,
		&p.EntityID,
		&p.ReferenceNumber,
		&metadata,
		&p.ExpiresAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
		return nil, fmt.Errorf("decode payment metadata: %w", err)
	}
	return &p, nil
}

const attemptColumns = `id, user_id, idempotency_key, request_hash, reference, booking_id, supplier_id,
	method, provider, amount_cents, currency, recovery_point, request, provider_result, response,
	payment_id, escrow_id, last_error, reconcile_failures, expires_at, created_at, updated_at`

func (r *Repository) CreateAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	request, providerResult, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	query := `INSERT INTO payment_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = r.q.Exec(ctx, query,
		a.ID,
		a.UserID,
		a.IdempotencyKey,
		a.RequestHash,
		a.Reference,
		a.BookingID,
		a.SupplierID,
		a.Method,
		a.Provider,
		a.AmountCents,
		a.Currency,
		a.RecoveryPoint,
		request,
		providerResult,
		nullableJSON(a.Response),
		a.PaymentID,
		a.EscrowID,
		a.LastError,
		a.ReconcileFailures,
		a.ExpiresAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) && constraintName(err) == "payment_attempts_user_key" {
			return fmt.Errorf("key %q: %w", a.IdempotencyKey, domain.ErrDuplicateAttempt)
		}
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

func (r *Repository) FindAttemptByKey(ctx context.Context, userID, key string) (*domain.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE user_id = $1 AND idempotency_key = $2`
	return scanAttempt(r.q.QueryRow(ctx, query, userID, key))
}

func (r *Repository) FindAttemptByIDForUpdate(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE id = $1 FOR UPDATE`
	return scanAttempt(r.q.QueryRow(ctx, query, id))
}

func (r *Repository) UpdateAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	_, providerResult, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	query := `
		UPDATE payment_attempts SET recovery_point = $1, provider_result = $2, response = $3,
			payment_id = $4, escrow_id = $5, last_error = $6, reconcile_failures = $7, updated_at = $8
		WHERE id = $9
	`
	cmdTag, err := r.q.Exec(ctx, query,
		a.RecoveryPoint,
		providerResult,
		nullableJSON(a.Response),
		a.PaymentID,
		a.EscrowID,
		a.LastError,
		a.ReconcileFailures,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment attempt: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("attempt %s: %w", a.ID, domain.ErrAttemptNotFound)
	}
	return nil
}

// FindStaleAttempts returns attempts stuck at point whose last update is older
// than olderThan, oldest first.
func (r *Repository) FindStaleAttempts(ctx context.Context, point domain.RecoveryPoint, olderThan time.Duration, limit int) ([]*domain.PaymentAttempt, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE recovery_point = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`

	rows, err := r.q.Query(ctx, query, point, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.PaymentAttempt, error) {
		return scanAttempt(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale attempts: %w", err)
	}
	return attempts, nil
}

func encodeAttempt(a *domain.PaymentAttempt) (request, providerResult []byte, err error) {
	request, err = json.Marshal(a.Request)
	if err != nil {
		return nil, nil, fmt.Errorf("encode attempt request: %w", err)
	}
	if a.ProviderResult != nil {
		providerResult, err = json.Marshal(a.ProviderResult)
		if err != nil {
			return nil, nil, fmt.Errorf("encode provider result: %w", err)
		}
	}
	return request, providerResult, nil
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func scanAttempt(row pgx.Row) (*domain.PaymentAttempt, error) {
	var (
		a                                 domain.PaymentAttempt
		request, providerResult, response []byte
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.IdempotencyKey,
		&a.RequestHash,
		&a.Reference,
		&a.BookingID,
		&a.SupplierID,
		&a.Method,
		&a.Provider,
		&a.AmountCents,
		&a.Currency,
		&a.RecoveryPoint,
		&request,
		&providerResult,
		&response,
		&a.PaymentID,
		&a.EscrowID,
		&a.LastError,
		&a.ReconcileFailures,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
	}

	if err := json.Unmarshal(request, &a.Request); err != nil {
		return nil, fmt.Errorf("decode attempt request: %w", err)
	}
	if len(providerResult) > 0 {
		a.ProviderResult = &domain.ProviderPaymentResult{}
		if err := json.Unmarshal(providerResult, a.ProviderResult); err != nil {
			return nil, fmt.Errorf("decode provider result: %w", err)
		}
	}
	if len(response) > 0 {
		a.Response = json.RawMessage(response)
	}
	return &a, nil
}
