package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEscrow(status domain.EscrowStatus) *domain.Escrow {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Escrow{
		ID:          uuid.NewString(),
		BookingID:   "B1",
		ClientID:    "client-1",
		SupplierID:  "supplier-1",
		TotalAmount: 85000,
		Currency:    "AOA",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newTestAttempt(key string) *domain.PaymentAttempt {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PaymentAttempt{
		ID:             uuid.NewString(),
		UserID:         "client-1",
		IdempotencyKey: key,
		RequestHash:    "hash",
		Reference:      "REF" + key,
		BookingID:      "B1",
		SupplierID:     "supplier-1",
		Method:         domain.MethodReference,
		Provider:       domain.ProviderProxyPay,
		AmountCents:    85000,
		Currency:       "AOA",
		RecoveryPoint:  domain.RecoveryStarted,
		Request: domain.ProviderPaymentRequest{
			Reference:   "REF" + key,
			AmountCents: 85000,
			Currency:    "AOA",
			Method:      domain.MethodReference,
		},
		ExpiresAt: now.Add(30 * time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRepository_Integration(t *testing.T) {
	td := setupTestDatabase(t)
	repo := NewRepository(td.db)
	ctx := context.Background()

	t.Run("escrow round trip and audit log", func(t *testing.T) {
		td.cleanTables(t)
		escrow := newTestEscrow(domain.EscrowFunded)
		require.NoError(t, repo.CreateEscrow(ctx, escrow))

		_, err := repo.FindEscrowByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrEscrowNotFound)

		err = repo.WithTx(ctx, func(tx ports.Repository) error {
			locked, err := tx.FindEscrowByIDForUpdate(ctx, escrow.ID)
			if err != nil {
				return err
			}
			if _, err := locked.Refund("admin-1", "cliente cancelou", time.Now()); err != nil {
				return err
			}
			if err := tx.UpdateEscrow(ctx, locked); err != nil {
				return err
			}
			return tx.CreateAuditEntry(ctx, &domain.EscrowAuditEntry{
				ID:         uuid.NewString(),
				EscrowID:   escrow.ID,
				Action:     domain.AuditActionRefund,
				FromStatus: domain.EscrowFunded,
				ToStatus:   domain.EscrowRefunded,
				ActorID:    "admin-1",
				Reason:     "cliente cancelou",
				Amount:     85000,
				CreatedAt:  time.Now(),
			})
		})
		require.NoError(t, err)

		stored, err := repo.FindEscrowByID(ctx, escrow.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowRefunded, stored.Status)
		assert.Equal(t, int64(85000), *stored.RefundAmount)
		assert.Equal(t, "admin-1", *stored.RefundedBy)

		entries, err := repo.ListAuditEntries(ctx, escrow.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.EscrowRefunded, entries[0].ToStatus)
	})

	t.Run("failed transaction rolls back", func(t *testing.T) {
		td.cleanTables(t)
		escrow := newTestEscrow(domain.EscrowCreated)

		err := repo.WithTx(ctx, func(tx ports.Repository) error {
			if err := tx.CreateEscrow(ctx, escrow); err != nil {
				return err
			}
			return errors.New("boom")
		})
		require.Error(t, err)

		_, err = repo.FindEscrowByID(ctx, escrow.ID)
		assert.ErrorIs(t, err, domain.ErrEscrowNotFound)
	})

	t.Run("payment round trip", func(t *testing.T) {
		td.cleanTables(t)
		entity := "10111"
		number := "123456789"
		now := time.Now().UTC().Truncate(time.Microsecond)
		payment := &domain.Payment{
			ID:                uuid.NewString(),
			BookingID:         "B1",
			UserID:            "client-1",
			SupplierID:        "supplier-1",
			AmountCents:       85000,
			Currency:          "AOA",
			Method:            domain.MethodReference,
			Provider:          domain.ProviderProxyPay,
			ProviderPaymentID: "123456789",
			Reference:         "LX1ABCDEF123",
			Status:            domain.PaymentPending,
			EntityID:          &entity,
			ReferenceNumber:   &number,
			Metadata:          map[string]string{domain.MetadataEscrowID: "esc-1"},
			ExpiresAt:         now.Add(30 * time.Minute),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		require.NoError(t, repo.CreatePayment(ctx, payment))

		stored, err := repo.FindPaymentByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, "esc-1", stored.EscrowID())
		assert.Equal(t, "10111", *stored.EntityID)
		assert.Nil(t, stored.CheckoutURL)

		_, err = repo.FindPaymentByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})

	t.Run("attempt lifecycle", func(t *testing.T) {
		td.cleanTables(t)
		attempt := newTestAttempt("k1")
		require.NoError(t, repo.CreateAttempt(ctx, attempt))

		err := repo.CreateAttempt(ctx, newTestAttempt("k1"))
		assert.ErrorIs(t, err, domain.ErrDuplicateAttempt)

		found, err := repo.FindAttemptByKey(ctx, "client-1", "k1")
		require.NoError(t, err)
		assert.Equal(t, domain.RecoveryStarted, found.RecoveryPoint)
		assert.Nil(t, found.ProviderResult)
		assert.Nil(t, found.Response)
		assert.Equal(t, int64(85000), found.Request.AmountCents)

		_, err = repo.FindAttemptByKey(ctx, "client-2", "k1")
		assert.ErrorIs(t, err, domain.ErrAttemptNotFound)

		found.ProviderCreated(&domain.ProviderPaymentResult{ProviderPaymentID: "pp-1", EntityID: "10111"})
		found.Complete("pay-1", "esc-1", json.RawMessage(`{"success":true}`))
		found.UpdatedAt = time.Now()
		require.NoError(t, repo.UpdateAttempt(ctx, found))

		err = repo.WithTx(ctx, func(tx ports.Repository) error {
			locked, err := tx.FindAttemptByIDForUpdate(ctx, attempt.ID)
			require.NoError(t, err)
			assert.True(t, locked.IsComplete())
			assert.Equal(t, "pp-1", locked.ProviderResult.ProviderPaymentID)
			assert.JSONEq(t, `{"success":true}`, string(locked.Response))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("stale attempts", func(t *testing.T) {
		td.cleanTables(t)
		old := newTestAttempt("old")
		old.UpdatedAt = time.Now().Add(-time.Hour)
		fresh := newTestAttempt("fresh")
		require.NoError(t, repo.CreateAttempt(ctx, old))
		require.NoError(t, repo.CreateAttempt(ctx, fresh))

		stale, err := repo.FindStaleAttempts(ctx, domain.RecoveryStarted, 10*time.Minute, 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, old.ID, stale[0].ID)
	})

	t.Run("row lock serializes concurrent settlements", func(t *testing.T) {
		td.cleanTables(t)
		escrow := newTestEscrow(domain.EscrowFunded)
		require.NoError(t, repo.CreateEscrow(ctx, escrow))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			applied int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = repo.WithTx(ctx, func(tx ports.Repository) error {
					locked, err := tx.FindEscrowByIDForUpdate(ctx, escrow.ID)
					if err != nil {
						return err
					}
					if locked.IsTerminal() {
						return nil
					}
					if _, err := locked.Refund("admin-1", "", time.Now()); err != nil {
						return err
					}
					mu.Lock()
					applied++
					mu.Unlock()
					return tx.UpdateEscrow(ctx, locked)
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, applied)
	})
}

func TestDirectory_Integration(t *testing.T) {
	td := setupTestDatabase(t)
	dir := NewDirectory(td.db)
	ctx := context.Background()
	td.cleanTables(t)

	_, err := td.db.Pool.Exec(ctx,
		`INSERT INTO bookings (id, client_id, supplier_id, status, total_amount, paid_amount, event_name)
		 VALUES ('B1', 'client-1', 'supplier-1', 'confirmed', 100000, 20000, 'Casamento')`)
	require.NoError(t, err)

	booking, err := dir.FindBookingByID(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, booking.Status)
	assert.Equal(t, int64(80000), booking.OutstandingAmount())

	_, err = dir.FindBookingByID(ctx, "B2")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	isAdmin, err := dir.IsAdmin(ctx, "admin-1")
	require.NoError(t, err)
	assert.False(t, isAdmin)
	require.NoError(t, dir.GrantAdmin(ctx, "admin-1"))
	isAdmin, err = dir.IsAdmin(ctx, "admin-1")
	require.NoError(t, err)
	assert.True(t, isAdmin)

	enabled, err := dir.IsEnabled(ctx, domain.FeaturePayments)
	require.NoError(t, err)
	assert.True(t, enabled, "missing flag defaults to enabled")

	require.NoError(t, dir.SetEnabled(ctx, domain.FeaturePayments, false))
	enabled, err = dir.IsEnabled(ctx, domain.FeaturePayments)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, dir.SetEnabled(ctx, domain.FeaturePayments, true))
	enabled, err = dir.IsEnabled(ctx, domain.FeaturePayments)
	require.NoError(t, err)
	assert.True(t, enabled)
}
