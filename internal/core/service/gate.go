package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
	"github.com/DanielPopoola/marketplace-escrow/internal/logctx"
)

type cachedFlag struct {
	enabled   bool
	expiresAt time.Time
}

// FeatureGate is the kill switch checked before any side-effecting work.
type FeatureGate struct {
	store    ports.FeatureFlagStore
	failOpen bool
	timeout  time.Duration
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedFlag
}

func NewFeatureGate(store ports.FeatureFlagStore, cfg config.FeaturesConfig, logger *slog.Logger) *FeatureGate {
	return &FeatureGate{
		store:    store,
		failOpen: cfg.FailOpen,
		timeout:  cfg.ReadTimeout,
		ttl:      cfg.CacheTTL,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]cachedFlag),
	}
}

// RequireEnabled fails with unavailable when feature is off. A store read failure
// is treated as disabled unless the gate is configured fail-open.
func (g *FeatureGate) RequireEnabled(ctx context.Context, feature string) error {
	logger := logctx.From(ctx, g.logger)

	enabled, err := g.isEnabled(ctx, feature)
	if err != nil {
		if g.failOpen {
			logger.Warn("feature flag read failed, failing open", "feature", feature, "error", err)
			return nil
		}
		logger.Error("feature flag read failed", "feature", feature, "error", err)
		return domain.NewUnavailableError("O serviço está temporariamente indisponível. Tente novamente mais tarde.", err)
	}
	if !enabled {
		logger.Info("feature disabled", "feature", feature)
		return domain.NewUnavailableError(
			fmt.Sprintf("A funcionalidade %q está temporariamente desativada.", feature), nil)
	}
	return nil
}

func (g *FeatureGate) isEnabled(ctx context.Context, feature string) (bool, error) {
	now := g.now()
	if g.ttl > 0 {
		g.mu.Lock()
		cached, ok := g.cache[feature]
		g.mu.Unlock()
		if ok && now.Before(cached.expiresAt) {
			return cached.enabled, nil
		}
	}

	readCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	enabled, err := g.store.IsEnabled(readCtx, feature)
	if err != nil {
		return false, err
	}

	if g.ttl > 0 {
		g.mu.Lock()
		g.cache[feature] = cachedFlag{enabled: enabled, expiresAt: now.Add(g.ttl)}
		g.mu.Unlock()
	}
	return enabled, nil
}
