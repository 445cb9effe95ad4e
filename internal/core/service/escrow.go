package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
	"github.com/DanielPopoola/marketplace-escrow/internal/logctx"
	"github.com/google/uuid"
)

// NewEscrowParams describes the hold opened for a payment attempt.
type NewEscrowParams struct {
	BookingID  string
	ClientID   string
	SupplierID string
	Amount     int64
	Currency   string
}

// EscrowService owns the escrow lifecycle. Every transition re-reads the row
// under lock inside a transaction and writes the new state before commit.
type EscrowService struct {
	repo   ports.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewEscrowService(repo ports.Repository, logger *slog.Logger) *EscrowService {
	return &EscrowService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// bind returns a copy of the service that works on repo, typically a transaction.
func (s *EscrowService) bind(repo ports.Repository) *EscrowService {
	bound := *s
	bound.repo = repo
	return &bound
}

func (s *EscrowService) CreateEscrow(ctx context.Context, p NewEscrowParams) (*domain.Escrow, error) {
	switch {
	case p.BookingID == "":
		return nil, domain.NewMissingFieldError("bookingId")
	case p.ClientID == "":
		return nil, domain.NewMissingFieldError("clientId")
	case p.SupplierID == "":
		return nil, domain.NewMissingFieldError("supplierId")
	case p.Amount <= 0:
		return nil, domain.NewInvalidArgumentError("amount", "O valor do escrow deve ser positivo.")
	}

	now := s.now()
	escrow := &domain.Escrow{
		ID:          uuid.NewString(),
		BookingID:   p.BookingID,
		ClientID:    p.ClientID,
		SupplierID:  p.SupplierID,
		TotalAmount: p.Amount,
		Currency:    strings.ToUpper(p.Currency),
		Status:      domain.EscrowCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateEscrow(ctx, escrow); err != nil {
		return nil, err
	}

	logctx.From(ctx, s.logger).Info("escrow_created",
		"escrow_id", escrow.ID,
		"booking_id", escrow.BookingID,
		"amount", escrow.TotalAmount,
	)
	return escrow, nil
}

func (s *EscrowService) LinkPayment(ctx context.Context, escrowID, paymentID string) error {
	if err := s.repo.LinkPayment(ctx, escrowID, paymentID); err != nil {
		return err
	}
	logctx.From(ctx, s.logger).Info("escrow_linked", "escrow_id", escrowID, "payment_id", paymentID)
	return nil
}

func (s *EscrowService) GetEscrow(ctx context.Context, escrowID string) (*domain.Escrow, error) {
	escrow, err := s.repo.FindEscrowByID(ctx, escrowID)
	if err != nil {
		if errors.Is(err, domain.ErrEscrowNotFound) {
			return nil, domain.NewNotFoundError("Escrow não encontrado.", err)
		}
		return nil, err
	}
	return escrow, nil
}

func (s *EscrowService) MarkFunded(ctx context.Context, escrowID string) (*domain.Escrow, error) {
	return s.transition(ctx, escrowID, "escrow_funded", func(e *domain.Escrow, now time.Time) error {
		return e.MarkFunded(now)
	})
}

func (s *EscrowService) MarkServiceCompleted(ctx context.Context, escrowID string) (*domain.Escrow, error) {
	return s.transition(ctx, escrowID, "escrow_service_completed", func(e *domain.Escrow, now time.Time) error {
		return e.MarkServiceCompleted(now)
	})
}

func (s *EscrowService) OpenDispute(ctx context.Context, escrowID string) (*domain.Escrow, error) {
	return s.transition(ctx, escrowID, "escrow_disputed", func(e *domain.Escrow, now time.Time) error {
		return e.OpenDispute(now)
	})
}

func (s *EscrowService) transition(
	ctx context.Context,
	escrowID, event string,
	apply func(e *domain.Escrow, now time.Time) error,
) (*domain.Escrow, error) {
	var updated *domain.Escrow
	err := s.repo.WithTx(ctx, func(txRepo ports.Repository) error {
		escrow, err := lockEscrow(ctx, txRepo, escrowID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := apply(escrow, now); err != nil {
			return err
		}
		escrow.UpdatedAt = now
		if err := txRepo.UpdateEscrow(ctx, escrow); err != nil {
			return err
		}
		updated = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}

	logctx.From(ctx, s.logger).Info(event, "escrow_id", escrowID, "status", updated.Status)
	return updated, nil
}

// RefundEscrow returns the held amount to the client. An escrow that is already
// refunded yields the recorded amount with Replayed set and nothing is written.
func (s *EscrowService) RefundEscrow(ctx context.Context, escrowID, initiator, reason string) (*domain.EscrowSettlement, error) {
	return s.settle(ctx, escrowID, domain.AuditActionRefund, func(e *domain.Escrow, now time.Time) (*domain.EscrowSettlement, error) {
		if e.Status == domain.EscrowRefunded {
			return &domain.EscrowSettlement{EscrowID: e.ID, Amount: e.RecordedRefund(), Status: e.Status, Replayed: true}, nil
		}
		amount, err := e.Refund(initiator, reason, now)
		if err != nil {
			return nil, err
		}
		return &domain.EscrowSettlement{EscrowID: e.ID, Amount: amount, Status: e.Status}, nil
	}, initiator, reason)
}

// ReleaseEscrow pays the held amount out to the supplier, valid only once the
// service is completed. Repeated calls replay the recorded release.
func (s *EscrowService) ReleaseEscrow(ctx context.Context, escrowID, initiator string) (*domain.EscrowSettlement, error) {
	return s.settle(ctx, escrowID, domain.AuditActionRelease, func(e *domain.Escrow, now time.Time) (*domain.EscrowSettlement, error) {
		if e.Status == domain.EscrowReleased {
			return &domain.EscrowSettlement{EscrowID: e.ID, Amount: e.RecordedRelease(), Status: e.Status, Replayed: true}, nil
		}
		amount, err := e.Release(initiator, now)
		if err != nil {
			return nil, err
		}
		return &domain.EscrowSettlement{EscrowID: e.ID, Amount: amount, Status: e.Status}, nil
	}, initiator, "")
}

func (s *EscrowService) settle(
	ctx context.Context,
	escrowID, action string,
	apply func(e *domain.Escrow, now time.Time) (*domain.EscrowSettlement, error),
	initiator, reason string,
) (*domain.EscrowSettlement, error) {
	logger := logctx.From(ctx, s.logger)

	var settlement *domain.EscrowSettlement
	err := s.repo.WithTx(ctx, func(txRepo ports.Repository) error {
		escrow, err := lockEscrow(ctx, txRepo, escrowID)
		if err != nil {
			return err
		}
		from := escrow.Status
		now := s.now()

		result, err := apply(escrow, now)
		if err != nil {
			return err
		}
		settlement = result
		if result.Replayed {
			return nil
		}

		escrow.UpdatedAt = now
		if err := txRepo.UpdateEscrow(ctx, escrow); err != nil {
			return err
		}
		return txRepo.CreateAuditEntry(ctx, &domain.EscrowAuditEntry{
			ID:         uuid.NewString(),
			EscrowID:   escrow.ID,
			Action:     action,
			FromStatus: from,
			ToStatus:   escrow.Status,
			ActorID:    initiator,
			Reason:     reason,
			Amount:     result.Amount,
			CreatedAt:  now,
		})
	})
	if err != nil {
		logger.Warn("escrow settlement rejected", "escrow_id", escrowID, "action", action, "error", err)
		return nil, err
	}

	if settlement.Replayed {
		logger.Info(action+"_replayed",
			"escrow_id", escrowID,
			"initiator", initiator,
			"amount", settlement.Amount,
		)
	} else {
		logger.Info(settledEvents[action],
			"escrow_id", escrowID,
			"initiator", initiator,
			"amount", settlement.Amount,
			"reason", reason,
		)
	}
	return settlement, nil
}

var settledEvents = map[string]string{
	domain.AuditActionRefund:  "escrow_refunded",
	domain.AuditActionRelease: "escrow_released",
}

func lockEscrow(ctx context.Context, repo ports.EscrowRepository, escrowID string) (*domain.Escrow, error) {
	escrow, err := repo.FindEscrowByIDForUpdate(ctx, escrowID)
	if err != nil {
		if errors.Is(err, domain.ErrEscrowNotFound) {
			return nil, domain.NewNotFoundError("Escrow não encontrado.", err)
		}
		return nil, err
	}
	return escrow, nil
}
