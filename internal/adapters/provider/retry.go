package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
)

// RetryingProvider retries transient failures of the wrapped adapter with
// exponential backoff, staying inside the caller's deadline.
type RetryingProvider struct {
	inner      ports.PaymentProvider
	baseDelay  time.Duration
	maxRetries int
	logger     *slog.Logger
}

func NewRetryingProvider(inner ports.PaymentProvider, cfg config.RetryConfig, logger *slog.Logger) *RetryingProvider {
	maxRetries := int(cfg.MaxRetries)
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RetryingProvider{
		inner:      inner,
		baseDelay:  cfg.BaseDelay,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (r *RetryingProvider) Name() domain.ProviderName {
	return r.inner.Name()
}

func (r *RetryingProvider) CreatePaymentIntent(ctx context.Context, req domain.ProviderPaymentRequest) (*domain.ProviderPaymentResult, error) {
	return retry(r, ctx, func(ctx context.Context) (*domain.ProviderPaymentResult, error) {
		return r.inner.CreatePaymentIntent(ctx, req)
	})
}

func retry[T any](r *RetryingProvider, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return nil, err
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
		if attempt == r.maxRetries-1 {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Warn("provider call failed, retrying",
			"provider", r.inner.Name(),
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

// isRetryable retries transient provider errors only. A timeout is not retried
// because the provider may already have created the intent.
func isRetryable(err error) bool {
	if isTimeout(err) || errors.Is(err, context.Canceled) {
		return false
	}
	var retryable domain.Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// backoff doubles the base delay per attempt and adds up to 25% jitter.
func (r *RetryingProvider) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)
	if base <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(base)/4 + 1))
	return base + jitter
}
