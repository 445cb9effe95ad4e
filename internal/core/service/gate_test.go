package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureGate_RequireEnabled(t *testing.T) {
	t.Run("missing flag counts as enabled", func(t *testing.T) {
		gate := NewFeatureGate(NewMockFlagStore(), config.FeaturesConfig{ReadTimeout: time.Second}, discardLogger())
		assert.NoError(t, gate.RequireEnabled(context.Background(), domain.FeaturePayments))
	})

	t.Run("disabled flag is unavailable", func(t *testing.T) {
		store := NewMockFlagStore()
		require.NoError(t, store.SetEnabled(context.Background(), domain.FeaturePayments, false))
		gate := NewFeatureGate(store, config.FeaturesConfig{ReadTimeout: time.Second}, discardLogger())

		err := gate.RequireEnabled(context.Background(), domain.FeaturePayments)

		assert.True(t, domain.IsKind(err, domain.KindUnavailable))
	})

	t.Run("read failure fails closed", func(t *testing.T) {
		store := NewMockFlagStore()
		store.Err = errors.New("connection refused")
		gate := NewFeatureGate(store, config.FeaturesConfig{ReadTimeout: time.Second}, discardLogger())

		err := gate.RequireEnabled(context.Background(), domain.FeaturePayments)

		assert.True(t, domain.IsKind(err, domain.KindUnavailable))
	})

	t.Run("read failure fails open when configured", func(t *testing.T) {
		store := NewMockFlagStore()
		store.Err = errors.New("connection refused")
		gate := NewFeatureGate(store, config.FeaturesConfig{FailOpen: true, ReadTimeout: time.Second}, discardLogger())

		assert.NoError(t, gate.RequireEnabled(context.Background(), domain.FeaturePayments))
	})
}

func TestFeatureGate_Cache(t *testing.T) {
	store := NewMockFlagStore()
	gate := NewFeatureGate(store, config.FeaturesConfig{ReadTimeout: time.Second, CacheTTL: time.Minute}, discardLogger())
	now := time.Now()
	gate.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		require.NoError(t, gate.RequireEnabled(context.Background(), domain.FeaturePayments))
	}
	assert.Equal(t, 1, store.Reads())

	require.NoError(t, store.SetEnabled(context.Background(), domain.FeaturePayments, false))
	now = now.Add(2 * time.Minute)

	err := gate.RequireEnabled(context.Background(), domain.FeaturePayments)
	assert.True(t, domain.IsKind(err, domain.KindUnavailable))
	assert.Equal(t, 2, store.Reads())
}

func TestFeatureGate_UncachedByDefault(t *testing.T) {
	store := NewMockFlagStore()
	gate := NewFeatureGate(store, config.FeaturesConfig{ReadTimeout: time.Second}, discardLogger())

	require.NoError(t, gate.RequireEnabled(context.Background(), domain.FeaturePayments))
	require.NoError(t, store.SetEnabled(context.Background(), domain.FeaturePayments, false))

	err := gate.RequireEnabled(context.Background(), domain.FeaturePayments)
	assert.True(t, domain.IsKind(err, domain.KindUnavailable), "the next request sees the kill switch")
	assert.Equal(t, 2, store.Reads())
}
