package ports

import "context"

// RateLimiter admits or rejects a call for (userID, operation).
type RateLimiter interface {
	Enforce(ctx context.Context, userID, operation string) error
}

// FeatureFlagStore is the externally administered kill-switch store.
type FeatureFlagStore interface {
	IsEnabled(ctx context.Context, feature string) (bool, error)
	SetEnabled(ctx context.Context, feature string, enabled bool) error
}
