package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
)

// AttemptReconciler finishes an attempt the provider already accepted.
type AttemptReconciler interface {
	Reconcile(ctx context.Context, attempt *domain.PaymentAttempt) error
}

// Reconciler sweeps payment attempts that stopped between recovery points.
type Reconciler struct {
	repo       ports.Repository
	intents    AttemptReconciler
	interval   time.Duration
	batchSize  int
	staleAfter time.Duration
	maxFails   int
	logger     *slog.Logger
	now        func() time.Time
}

func NewReconciler(repo ports.Repository, intents AttemptReconciler, cfg config.WorkerConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:       repo,
		intents:    intents,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		staleAfter: cfg.StaleAfter,
		maxFails:   cfg.MaxReconcileFailures,
		logger:     logger,
		now:        time.Now,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("starting background reconciler",
		"interval", r.interval,
		"batch_size", r.batchSize,
		"stale_after", r.staleAfter,
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping background reconciler")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// SweepResult counts what a single sweep did.
type SweepResult struct {
	Reconciled int
	Abandoned  int
	Failed     int
}

// RunOnce executes a single reconciliation cycle.
func (r *Reconciler) RunOnce(ctx context.Context) SweepResult {
	var result SweepResult
	r.finishProviderCreated(ctx, &result)
	r.abandonExpired(ctx, &result)
	return result
}

func (r *Reconciler) finishProviderCreated(ctx context.Context, result *SweepResult) {
	stuck, err := r.repo.FindStaleAttempts(ctx, domain.RecoveryProviderCreated, r.staleAfter, r.batchSize)
	if err != nil {
		r.logger.Error("failed to fetch provider_created attempts", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	r.logger.Info("reconciling stuck payment attempts", "count", len(stuck))

	for _, attempt := range stuck {
		if err := r.intents.Reconcile(ctx, attempt); err != nil {
			result.Failed++
			r.logger.Error("reconciliation failed for payment attempt",
				"attempt_id", attempt.ID,
				"reference", attempt.Reference,
				"provider", attempt.Provider,
				"severity", "high",
				"error", err,
			)
			r.recordFailure(ctx, attempt, err, result)
			continue
		}
		result.Reconciled++
	}
}

// recordFailure stores the reconcile error and moves the attempt to the back of the
// stale queue. Once it has failed maxFails times it is abandoned. The provider already
// holds a payment for it, so abandonment is logged for manual review.
func (r *Reconciler) recordFailure(ctx context.Context, candidate *domain.PaymentAttempt, cause error, result *SweepResult) {
	var (
		abandoned bool
		failures  int
	)
	err := r.repo.WithTx(ctx, func(txRepo ports.Repository) error {
		attempt, err := txRepo.FindAttemptByIDForUpdate(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if attempt.RecoveryPoint != domain.RecoveryProviderCreated {
			return nil
		}
		failures = attempt.RecordReconcileFailure(cause)
		if r.maxFails > 0 && failures >= r.maxFails {
			attempt.Abandon(fmt.Sprintf("reconciliation failed %d times: %v", failures, cause))
			abandoned = true
		}
		attempt.UpdatedAt = r.now()
		return txRepo.UpdateAttempt(ctx, attempt)
	})
	if err != nil {
		r.logger.Error("failed to record reconciliation failure", "attempt_id", candidate.ID, "error", err)
		return
	}
	if !abandoned {
		return
	}

	providerPaymentID := ""
	if candidate.ProviderResult != nil {
		providerPaymentID = candidate.ProviderResult.ProviderPaymentID
	}
	result.Abandoned++
	r.logger.Warn("payment attempt abandoned after repeated reconciliation failures, needs manual review",
		"attempt_id", candidate.ID,
		"reference", candidate.Reference,
		"provider", candidate.Provider,
		"provider_payment_id", providerPaymentID,
		"user_id", candidate.UserID,
		"booking_id", candidate.BookingID,
		"amount", candidate.AmountCents,
		"failures", failures,
	)
}

// abandonExpired closes attempts that never got a provider answer once their payment
// window has passed. The provider may still hold an intent for them, so each one is
// logged for manual review.
func (r *Reconciler) abandonExpired(ctx context.Context, result *SweepResult) {
	started, err := r.repo.FindStaleAttempts(ctx, domain.RecoveryStarted, r.staleAfter, r.batchSize)
	if err != nil {
		r.logger.Error("failed to fetch started attempts", "error", err)
		return
	}

	now := r.now()
	for _, candidate := range started {
		if candidate.ExpiresAt.After(now) {
			continue
		}

		abandoned := false
		err := r.repo.WithTx(ctx, func(txRepo ports.Repository) error {
			attempt, err := txRepo.FindAttemptByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if attempt.RecoveryPoint != domain.RecoveryStarted {
				return nil
			}
			attempt.Abandon(fmt.Sprintf("no provider response before expiry at %s", attempt.ExpiresAt.UTC().Format(time.RFC3339)))
			attempt.UpdatedAt = now
			if err := txRepo.UpdateAttempt(ctx, attempt); err != nil {
				return err
			}
			abandoned = true
			return nil
		})
		if err != nil {
			result.Failed++
			r.logger.Error("failed to abandon payment attempt", "attempt_id", candidate.ID, "error", err)
			continue
		}
		if !abandoned {
			continue
		}

		result.Abandoned++
		r.logger.Warn("payment attempt abandoned, needs manual review",
			"attempt_id", candidate.ID,
			"reference", candidate.Reference,
			"provider", candidate.Provider,
			"user_id", candidate.UserID,
			"booking_id", candidate.BookingID,
			"amount", candidate.AmountCents,
		)
	}
}
