package ports

import (
	"context"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
)

type EscrowRepository interface {
	CreateEscrow(ctx context.Context, escrow *domain.Escrow) error
	FindEscrowByID(ctx context.Context, id string) (*domain.Escrow, error)
	FindEscrowByIDForUpdate(ctx context.Context, id string) (*domain.Escrow, error)
	UpdateEscrow(ctx context.Context, escrow *domain.Escrow) error
	LinkPayment(ctx context.Context, escrowID, paymentID string) error
	CreateAuditEntry(ctx context.Context, entry *domain.EscrowAuditEntry) error
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindPaymentByID(ctx context.Context, id string) (*domain.Payment, error)
}

// AttemptRepository stores the recovery point of each payment attempt.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error
	FindAttemptByKey(ctx context.Context, userID, key string) (*domain.PaymentAttempt, error)
	FindAttemptByIDForUpdate(ctx context.Context, id string) (*domain.PaymentAttempt, error)
	UpdateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error
	FindStaleAttempts(ctx context.Context, point domain.RecoveryPoint, olderThan time.Duration, limit int) ([]*domain.PaymentAttempt, error)
}

// Repository groups the stores that must change together.
type Repository interface {
	EscrowRepository
	PaymentRepository
	AttemptRepository

	// WithTx executes a function within a database transaction.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// BookingReader reads bookings owned by the booking service.
type BookingReader interface {
	FindBookingByID(ctx context.Context, id string) (*domain.Booking, error)
}

// AdminDirectory answers whether a user holds the administrator role.
type AdminDirectory interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}
