package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/service"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	*service.MockBookingReader
	*service.MockFlagStore
	admins []string
}

func (d *fakeDirectory) GrantAdmin(ctx context.Context, userID string) error {
	d.admins = append(d.admins, userID)
	return nil
}

type testApp struct {
	*app
	repo      *service.MockRepository
	directory *fakeDirectory
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	repo := service.NewMockRepository()
	dir := &fakeDirectory{
		MockBookingReader: service.NewMockBookingReader(),
		MockFlagStore:     service.NewMockFlagStore(),
	}
	return &testApp{
		app: &app{
			cfg: &config.Config{
				Redis:    config.RedisConfig{Addr: "127.0.0.1:6379"},
				Payments: config.PaymentsConfig{MinAmount: 100, DefaultCurrency: "AOA", Expiry: 30 * time.Minute},
				Worker: config.WorkerConfig{
					Interval:             time.Minute,
					BatchSize:            50,
					StaleAfter:           time.Minute,
					MaxReconcileFailures: 3,
				},
			},
			logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
			repo:      repo,
			directory: dir,
		},
		repo:      repo,
		directory: dir,
	}
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedEscrow(repo *service.MockRepository, id string, status domain.EscrowStatus) {
	now := time.Now()
	repo.SeedEscrow(&domain.Escrow{
		ID:          id,
		BookingID:   "B-" + id,
		ClientID:    "client-1",
		SupplierID:  "supplier-1",
		TotalAmount: 85000,
		Currency:    "AOA",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func escrowStatus(t *testing.T, repo *service.MockRepository, id string) domain.EscrowStatus {
	t.Helper()
	escrow, err := repo.FindEscrowByID(context.Background(), id)
	require.NoError(t, err)
	return escrow.Status
}

func TestEscrowCmd_Transitions(t *testing.T) {
	ta := newTestApp(t)
	seedEscrow(ta.repo, "esc-1", domain.EscrowCreated)
	seedEscrow(ta.repo, "esc-2", domain.EscrowFunded)

	out, err := run(t, escrowCmd(ta.app), "fund", "esc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "esc-1")
	assert.Contains(t, out, "funded")
	assert.NotContains(t, out, "closed")
	assert.Equal(t, domain.EscrowFunded, escrowStatus(t, ta.repo, "esc-1"))

	out, err = run(t, escrowCmd(ta.app), "complete", "esc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "service_completed")
	assert.Equal(t, domain.EscrowServiceCompleted, escrowStatus(t, ta.repo, "esc-1"))

	out, err = run(t, escrowCmd(ta.app), "dispute", "esc-2")
	require.NoError(t, err)
	assert.Contains(t, out, "disputed")
	assert.Equal(t, domain.EscrowDisputed, escrowStatus(t, ta.repo, "esc-2"))
}

func TestEscrowCmd_RejectsInvalidTransitions(t *testing.T) {
	ta := newTestApp(t)
	seedEscrow(ta.repo, "esc-1", domain.EscrowCreated)

	_, err := run(t, escrowCmd(ta.app), "complete", "esc-1")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindFailedPrecondition))
	assert.Equal(t, domain.EscrowCreated, escrowStatus(t, ta.repo, "esc-1"))

	_, err = run(t, escrowCmd(ta.app), "fund", "missing")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = run(t, escrowCmd(ta.app), "fund")
	assert.Error(t, err, "an escrow id is required")
}

func TestEscrowCmd_ShowPrintsAuditTrail(t *testing.T) {
	ta := newTestApp(t)
	seedEscrow(ta.repo, "esc-1", domain.EscrowRefunded)
	seedEscrow(ta.repo, "esc-2", domain.EscrowRefunded)
	ctx := context.Background()
	require.NoError(t, ta.repo.CreateAuditEntry(ctx, &domain.EscrowAuditEntry{
		ID:         "audit-1",
		EscrowID:   "esc-1",
		Action:     domain.AuditActionRefund,
		FromStatus: domain.EscrowFunded,
		ToStatus:   domain.EscrowRefunded,
		ActorID:    "admin-1",
		Reason:     "cliente cancelou",
		Amount:     85000,
		CreatedAt:  time.Now(),
	}))
	require.NoError(t, ta.repo.CreateAuditEntry(ctx, &domain.EscrowAuditEntry{
		ID:        "audit-2",
		EscrowID:  "esc-2",
		Action:    domain.AuditActionRefund,
		ActorID:   "admin-2",
		Amount:    85000,
		CreatedAt: time.Now(),
	}))

	out, err := run(t, escrowCmd(ta.app), "show", "esc-1")
	require.NoError(t, err)

	assert.Contains(t, out, "esc-1")
	assert.Contains(t, out, "refunded")
	assert.Contains(t, out, "supplier=supplier-1  closed")
	assert.Contains(t, out, "refund")
	assert.Contains(t, out, "by admin-1 cliente cancelou")
	assert.NotContains(t, out, "admin-2", "only the requested escrow's trail is printed")
}

func reconcileAttempt(id, supplierID string) *domain.PaymentAttempt {
	created := time.Now().Add(-5 * time.Minute)
	return &domain.PaymentAttempt{
		ID:             id,
		UserID:         "client-1",
		IdempotencyKey: "key-" + id,
		RequestHash:    "hash-" + id,
		Reference:      "LX1" + id,
		BookingID:      "B1",
		SupplierID:     supplierID,
		Method:         domain.MethodOPG,
		Provider:       domain.ProviderEMIS,
		AmountCents:    85000,
		Currency:       "AOA",
		RecoveryPoint:  domain.RecoveryProviderCreated,
		ProviderResult: &domain.ProviderPaymentResult{
			ProviderPaymentID: "emis-" + id,
			PaymentURL:        "https://pay.example.ao/frame/" + id,
		},
		ExpiresAt: created.Add(30 * time.Minute),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestReconcileCmd(t *testing.T) {
	t.Run("finishes stuck attempts", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.SeedAttempt(reconcileAttempt("a1", "supplier-1"))

		out, err := run(t, reconcileCmd(ta.app))

		require.NoError(t, err)
		assert.Equal(t, "reconciled=1 abandoned=0 failed=0\n", out)
		assert.Len(t, ta.repo.Escrows(), 1)
		assert.Len(t, ta.repo.Payments(), 1)
	})

	t.Run("reports failures as an error", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.SeedAttempt(reconcileAttempt("a1", ""))

		out, err := run(t, reconcileCmd(ta.app))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 attempts could not be reconciled")
		assert.Equal(t, "reconciled=0 abandoned=0 failed=1\n", out)
		assert.Empty(t, ta.repo.Escrows())
	})

	t.Run("batch size flag overrides the configured batch", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.SeedAttempt(reconcileAttempt("a1", "supplier-1"))
		ta.repo.SeedAttempt(reconcileAttempt("a2", "supplier-1"))
		ta.repo.SeedAttempt(reconcileAttempt("a3", "supplier-1"))

		out, err := run(t, reconcileCmd(ta.app), "--batch-size", "2")

		require.NoError(t, err)
		assert.Equal(t, "reconciled=2 abandoned=0 failed=0\n", out)
		assert.Len(t, ta.repo.Escrows(), 2)
	})
}

func TestFlagsAndAdminsCmd(t *testing.T) {
	ta := newTestApp(t)

	out, err := run(t, flagsCmd(ta.app), "set", domain.FeaturePayments, "off")
	require.NoError(t, err)
	assert.Equal(t, "payments: off\n", out)

	out, err = run(t, flagsCmd(ta.app), "get", domain.FeaturePayments)
	require.NoError(t, err)
	assert.Equal(t, "payments: off\n", out)

	_, err = run(t, flagsCmd(ta.app), "set", domain.FeaturePayments, "maybe")
	assert.ErrorContains(t, err, "maybe")

	out, err = run(t, adminsCmd(ta.app), "grant", "admin-9")
	require.NoError(t, err)
	assert.Contains(t, out, "admin-9 is an administrator")
	assert.Equal(t, []string{"admin-9"}, ta.directory.admins)
}
