package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminID = "admin-1"

func newRefundFixture(status domain.EscrowStatus) (*RefundService, *MockRepository, *MockAdminDirectory) {
	repo := NewMockRepository()
	repo.SeedEscrow(&domain.Escrow{
		ID:          "esc-1",
		BookingID:   "B1",
		ClientID:    "client-1",
		SupplierID:  "supplier-1",
		TotalAmount: 85000,
		Currency:    "AOA",
		Status:      status,
		CreatedAt:   time.Now(),
	})
	admins := &MockAdminDirectory{Admins: map[string]bool{adminID: true}}
	escrows := NewEscrowService(repo, discardLogger())
	return NewRefundService(escrows, admins, discardLogger()), repo, admins
}

func TestRefundService_RefundEscrow_Success(t *testing.T) {
	svc, repo, _ := newRefundFixture(domain.EscrowFunded)

	result, err := svc.RefundEscrow(context.Background(),
		RefundEscrowRequest{EscrowID: "esc-1", Reason: "cliente cancelou"},
		&domain.Caller{UserID: adminID})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "esc-1", result.EscrowID)
	assert.Equal(t, int64(85000), result.RefundAmount)

	escrow, err := repo.FindEscrowByID(context.Background(), "esc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowRefunded, escrow.Status)
	assert.Equal(t, adminID, *escrow.RefundedBy)
	assert.Equal(t, "cliente cancelou", *escrow.RefundReason)
	assert.NotNil(t, escrow.RefundedAt)

	audit := repo.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, domain.AuditActionRefund, audit[0].Action)
	assert.Equal(t, domain.EscrowFunded, audit[0].FromStatus)
	assert.Equal(t, domain.EscrowRefunded, audit[0].ToStatus)
	assert.Equal(t, adminID, audit[0].ActorID)
	assert.Equal(t, "cliente cancelou", audit[0].Reason)
	assert.Equal(t, int64(85000), audit[0].Amount)
}

func TestRefundService_RefundEscrow_Idempotent(t *testing.T) {
	svc, repo, _ := newRefundFixture(domain.EscrowServiceCompleted)
	caller := &domain.Caller{UserID: adminID}
	req := RefundEscrowRequest{EscrowID: "esc-1"}

	first, err := svc.RefundEscrow(context.Background(), req, caller)
	require.NoError(t, err)
	after1, _ := repo.FindEscrowByID(context.Background(), "esc-1")

	second, err := svc.RefundEscrow(context.Background(), req, caller)
	require.NoError(t, err)
	after2, _ := repo.FindEscrowByID(context.Background(), "esc-1")

	assert.Equal(t, first, second)
	assert.Equal(t, after1, after2)
	assert.Len(t, repo.AuditEntries(), 1)
}

func TestRefundService_RefundEscrow_NonAdmin(t *testing.T) {
	for _, status := range []domain.EscrowStatus{
		domain.EscrowCreated, domain.EscrowFunded, domain.EscrowServiceCompleted,
		domain.EscrowDisputed, domain.EscrowRefunded, domain.EscrowReleased,
	} {
		t.Run(string(status), func(t *testing.T) {
			svc, repo, _ := newRefundFixture(status)

			_, err := svc.RefundEscrow(context.Background(),
				RefundEscrowRequest{EscrowID: "esc-1"},
				&domain.Caller{UserID: "client-1"})

			assert.True(t, domain.IsKind(err, domain.KindPermissionDenied))
			escrow, _ := repo.FindEscrowByID(context.Background(), "esc-1")
			assert.Equal(t, status, escrow.Status)
		})
	}
}

func TestRefundService_RefundEscrow_NotFunded(t *testing.T) {
	svc, repo, _ := newRefundFixture(domain.EscrowCreated)

	_, err := svc.RefundEscrow(context.Background(), RefundEscrowRequest{EscrowID: "esc-1"}, &domain.Caller{UserID: adminID})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindFailedPrecondition))
	assert.Contains(t, err.Error(), "created")
	assert.Empty(t, repo.AuditEntries())
}

func TestRefundService_RefundEscrow_Preconditions(t *testing.T) {
	svc, _, admins := newRefundFixture(domain.EscrowFunded)

	_, err := svc.RefundEscrow(context.Background(), RefundEscrowRequest{EscrowID: "esc-1"}, nil)
	assert.True(t, domain.IsKind(err, domain.KindUnauthenticated))

	_, err = svc.RefundEscrow(context.Background(), RefundEscrowRequest{EscrowID: "  "}, &domain.Caller{UserID: adminID})
	domainErr, ok := domain.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindInvalidArgument, domainErr.Kind)
	assert.Equal(t, "escrowId", domainErr.Field)

	_, err = svc.RefundEscrow(context.Background(), RefundEscrowRequest{EscrowID: "missing"}, &domain.Caller{UserID: adminID})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = svc.RefundEscrow(context.Background(), RefundEscrowRequest{EscrowID: "missing"}, &domain.Caller{UserID: "client-1"})
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "existence is checked before the admin role")

	admins.IsAdminFn = func(ctx context.Context, userID string) (bool, error) {
		return false, errors.New("directory down")
	}
	_, err = svc.RefundEscrow(context.Background(), RefundEscrowRequest{EscrowID: "esc-1"}, &domain.Caller{UserID: adminID})
	domainErr, ok = domain.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindInternal, domainErr.Kind)
	assert.NotContains(t, domainErr.Message, "directory down")
}

func TestRefundService_RefundEscrow_StoreFailureIsInternal(t *testing.T) {
	svc, repo, _ := newRefundFixture(domain.EscrowFunded)
	repo.UpdateEscrowFn = func(ctx context.Context, escrow *domain.Escrow) error {
		return errors.New("deadlock detected")
	}

	_, err := svc.RefundEscrow(context.Background(), RefundEscrowRequest{EscrowID: "esc-1"}, &domain.Caller{UserID: adminID})

	domainErr, ok := domain.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindInternal, domainErr.Kind)
	assert.NotContains(t, domainErr.Message, "deadlock")

	escrow, _ := repo.FindEscrowByID(context.Background(), "esc-1")
	assert.Equal(t, domain.EscrowFunded, escrow.Status)
}

func TestRefundService_ConcurrentRefunds(t *testing.T) {
	svc, repo, _ := newRefundFixture(domain.EscrowFunded)
	caller := &domain.Caller{UserID: adminID}

	const numRequests = 10
	var wg sync.WaitGroup
	amounts := make(chan int64, numRequests)
	errs := make(chan error, numRequests)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.RefundEscrow(context.Background(), RefundEscrowRequest{EscrowID: "esc-1"}, caller)
			if err != nil {
				errs <- err
				return
			}
			amounts <- result.RefundAmount
		}()
	}
	wg.Wait()
	close(amounts)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	for amount := range amounts {
		assert.Equal(t, int64(85000), amount)
	}
	assert.Len(t, repo.AuditEntries(), 1, "exactly one transfer recorded")
}

func TestRefundService_ReleaseEscrow(t *testing.T) {
	t.Run("releases from service_completed", func(t *testing.T) {
		svc, repo, _ := newRefundFixture(domain.EscrowServiceCompleted)

		result, err := svc.ReleaseEscrow(context.Background(), ReleaseEscrowRequest{EscrowID: "esc-1"}, &domain.Caller{UserID: adminID})

		require.NoError(t, err)
		assert.Equal(t, int64(85000), result.ReleaseAmount)
		escrow, _ := repo.FindEscrowByID(context.Background(), "esc-1")
		assert.Equal(t, domain.EscrowReleased, escrow.Status)

		again, err := svc.ReleaseEscrow(context.Background(), ReleaseEscrowRequest{EscrowID: "esc-1"}, &domain.Caller{UserID: adminID})
		require.NoError(t, err)
		assert.Equal(t, result, again)
		assert.Len(t, repo.AuditEntries(), 1)
	})

	t.Run("rejects funded", func(t *testing.T) {
		svc, _, _ := newRefundFixture(domain.EscrowFunded)

		_, err := svc.ReleaseEscrow(context.Background(), ReleaseEscrowRequest{EscrowID: "esc-1"}, &domain.Caller{UserID: adminID})

		assert.True(t, domain.IsKind(err, domain.KindFailedPrecondition))
		assert.Contains(t, err.Error(), "funded")
	})

	t.Run("refunded escrow cannot be released", func(t *testing.T) {
		svc, _, _ := newRefundFixture(domain.EscrowRefunded)

		_, err := svc.ReleaseEscrow(context.Background(), ReleaseEscrowRequest{EscrowID: "esc-1"}, &domain.Caller{UserID: adminID})

		assert.True(t, domain.IsKind(err, domain.KindFailedPrecondition))
	})
}
