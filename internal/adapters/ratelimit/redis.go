package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
	"github.com/DanielPopoola/marketplace-escrow/internal/logctx"
	"github.com/redis/go-redis/v9"
)

// fixedWindow increments the counter and sets its expiry on first use. It
// returns the count after the increment; the key is never rolled back.
var fixedWindow = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter is a fixed-window counter per (operation, user) shared by every
// instance of the service.
type RedisLimiter struct {
	client *redis.Client
	limits map[string]int64
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, cfg config.RateLimitConfig, logger *slog.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limits: map[string]int64{
			domain.OperationCreateIntent: int64(cfg.CreateIntentLimit),
		},
		window: cfg.Window,
		logger: logger,
		now:    time.Now,
	}
}

// Enforce admits the call or fails with resource-exhausted. Operations without a
// configured limit are always admitted.
func (l *RedisLimiter) Enforce(ctx context.Context, userID, operation string) error {
	limit, ok := l.limits[operation]
	if !ok || limit <= 0 {
		return nil
	}

	windowStart := l.now().Truncate(l.window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", operation, userID, windowStart.Unix())

	count, err := fixedWindow.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64()
	if err != nil {
		logctx.From(ctx, l.logger).Error("rate limit check failed", "operation", operation, "error", err)
		return domain.NewUnavailableError("O serviço está temporariamente indisponível. Tente novamente mais tarde.", err)
	}

	if count > limit {
		retryAfter := windowStart.Add(l.window).Sub(l.now())
		logctx.From(ctx, l.logger).Warn("rate limit exceeded",
			"operation", operation,
			"user_id", userID,
			"count", count,
			"limit", limit,
			"retry_after", retryAfter.Round(time.Second),
		)
		return domain.NewResourceExhaustedError()
	}
	return nil
}

var _ ports.RateLimiter = (*RedisLimiter)(nil)
