package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
	"github.com/DanielPopoola/marketplace-escrow/internal/logctx"
)

type RefundEscrowRequest struct {
	EscrowID string `json:"escrowId"`
	Reason   string `json:"reason,omitempty"`
}

type ReleaseEscrowRequest struct {
	EscrowID string `json:"escrowId"`
}

// RefundService exposes the administrator-only money movements on an escrow.
type RefundService struct {
	escrows *EscrowService
	admins  ports.AdminDirectory
	logger  *slog.Logger
}

func NewRefundService(escrows *EscrowService, admins ports.AdminDirectory, logger *slog.Logger) *RefundService {
	return &RefundService{
		escrows: escrows,
		admins:  admins,
		logger:  logger,
	}
}

func (s *RefundService) RefundEscrow(ctx context.Context, req RefundEscrowRequest, caller *domain.Caller) (*domain.RefundResult, error) {
	logger := logctx.From(ctx, s.logger)

	escrowID, err := s.authorize(ctx, req.EscrowID, caller, "reembolsar")
	if err != nil {
		return nil, err
	}

	settlement, err := s.escrows.RefundEscrow(ctx, escrowID, caller.UserID, strings.TrimSpace(req.Reason))
	if err != nil {
		return nil, s.surface(logger, "refund", escrowID, err)
	}
	if settlement.Replayed {
		logger.Info("refund_replayed",
			"escrow_id", escrowID,
			"admin_id", caller.UserID,
			"refund_amount", settlement.Amount,
		)
	}

	return &domain.RefundResult{
		Success:      true,
		EscrowID:     escrowID,
		RefundAmount: settlement.Amount,
	}, nil
}

func (s *RefundService) ReleaseEscrow(ctx context.Context, req ReleaseEscrowRequest, caller *domain.Caller) (*domain.ReleaseResult, error) {
	logger := logctx.From(ctx, s.logger)

	escrowID, err := s.authorize(ctx, req.EscrowID, caller, "libertar fundos")
	if err != nil {
		return nil, err
	}

	settlement, err := s.escrows.ReleaseEscrow(ctx, escrowID, caller.UserID)
	if err != nil {
		return nil, s.surface(logger, "release", escrowID, err)
	}
	if settlement.Replayed {
		logger.Info("release_replayed",
			"escrow_id", escrowID,
			"admin_id", caller.UserID,
			"release_amount", settlement.Amount,
		)
	}

	return &domain.ReleaseResult{
		Success:       true,
		EscrowID:      escrowID,
		ReleaseAmount: settlement.Amount,
	}, nil
}

// authorize checks, in order: authenticated caller, escrow id present, escrow
// exists and caller is an administrator.
func (s *RefundService) authorize(ctx context.Context, rawID string, caller *domain.Caller, action string) (string, error) {
	if !caller.IsAuthenticated() {
		return "", domain.NewUnauthenticatedError()
	}

	escrowID := strings.TrimSpace(rawID)
	if escrowID == "" {
		return "", domain.NewMissingFieldError("escrowId")
	}

	if _, err := s.escrows.GetEscrow(ctx, escrowID); err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return "", err
		}
		return "", s.surface(logctx.From(ctx, s.logger), action, escrowID, err)
	}

	isAdmin, err := s.admins.IsAdmin(ctx, caller.UserID)
	if err != nil {
		return "", s.surface(logctx.From(ctx, s.logger), action, escrowID, fmt.Errorf("check admin role: %w", err))
	}
	if !isAdmin {
		logctx.From(ctx, s.logger).Warn("non-admin attempted escrow operation",
			"escrow_id", escrowID,
			"user_id", caller.UserID,
			"action", action,
		)
		return "", domain.NewPermissionDeniedError(
			fmt.Sprintf("Apenas administradores podem %s um escrow.", action))
	}
	return escrowID, nil
}

// surface re-raises structured errors unchanged and hides everything else behind
// a generic internal error.
func (s *RefundService) surface(logger *slog.Logger, action, escrowID string, err error) error {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	logger.Error("escrow operation failed", "action", action, "escrow_id", escrowID, "error", err)
	return domain.NewInternalError(err)
}
