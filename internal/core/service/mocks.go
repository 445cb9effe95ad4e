package service

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
)

// MockRepository is an in-memory ports.Repository. WithTx runs one transaction
// at a time and restores the previous state when fn fails.
type MockRepository struct {
	txMu     sync.Mutex
	mu       sync.RWMutex
	escrows  map[string]domain.Escrow
	payments map[string]domain.Payment
	attempts map[string]domain.PaymentAttempt
	audit    []domain.EscrowAuditEntry

	CreateEscrowFn     func(ctx context.Context, escrow *domain.Escrow) error
	UpdateEscrowFn     func(ctx context.Context, escrow *domain.Escrow) error
	LinkPaymentFn      func(ctx context.Context, escrowID, paymentID string) error
	CreatePaymentFn    func(ctx context.Context, payment *domain.Payment) error
	CreateAttemptFn    func(ctx context.Context, attempt *domain.PaymentAttempt) error
	UpdateAttemptFn    func(ctx context.Context, attempt *domain.PaymentAttempt) error
	FindStaleAttemptFn func(ctx context.Context, point domain.RecoveryPoint, olderThan time.Duration, limit int) ([]*domain.PaymentAttempt, error)
	WithTxFn           func(ctx context.Context, fn func(repo ports.Repository) error) error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		escrows:  make(map[string]domain.Escrow),
		payments: make(map[string]domain.Payment),
		attempts: make(map[string]domain.PaymentAttempt),
	}
}

// SeedEscrow stores e as if it had been created earlier.
func (m *MockRepository) SeedEscrow(e *domain.Escrow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escrows[e.ID] = *e
}

// SeedAttempt stores a as if it had been created earlier.
func (m *MockRepository) SeedAttempt(a *domain.PaymentAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = *a
}

func (m *MockRepository) Escrows() []domain.Escrow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Escrow, 0, len(m.escrows))
	for _, e := range m.escrows {
		out = append(out, e)
	}
	return out
}

func (m *MockRepository) Payments() []domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, p)
	}
	return out
}

func (m *MockRepository) Attempts() []domain.PaymentAttempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PaymentAttempt, 0, len(m.attempts))
	for _, a := range m.attempts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MockRepository) AuditEntries() []domain.EscrowAuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.EscrowAuditEntry(nil), m.audit...)
}

func (m *MockRepository) ListAuditEntries(ctx context.Context, escrowID string) ([]*domain.EscrowAuditEntry, error) {
	var out []*domain.EscrowAuditEntry
	for _, e := range m.AuditEntries() {
		if e.EscrowID == escrowID {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (m *MockRepository) CreateEscrow(ctx context.Context, escrow *domain.Escrow) error {
	if m.CreateEscrowFn != nil {
		return m.CreateEscrowFn(ctx, escrow)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escrows[escrow.ID] = *escrow
	return nil
}

func (m *MockRepository) FindEscrowByID(ctx context.Context, id string) (*domain.Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.escrows[id]
	if !ok {
		return nil, domain.ErrEscrowNotFound
	}
	return &e, nil
}

func (m *MockRepository) FindEscrowByIDForUpdate(ctx context.Context, id string) (*domain.Escrow, error) {
	return m.FindEscrowByID(ctx, id)
}

func (m *MockRepository) UpdateEscrow(ctx context.Context, escrow *domain.Escrow) error {
	if m.UpdateEscrowFn != nil {
		return m.UpdateEscrowFn(ctx, escrow)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.escrows[escrow.ID]; !ok {
		return domain.ErrEscrowNotFound
	}
	m.escrows[escrow.ID] = *escrow
	return nil
}

func (m *MockRepository) LinkPayment(ctx context.Context, escrowID, paymentID string) error {
	if m.LinkPaymentFn != nil {
		return m.LinkPaymentFn(ctx, escrowID, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[escrowID]
	if !ok {
		return domain.ErrEscrowNotFound
	}
	e.PaymentID = &paymentID
	m.escrows[escrowID] = e
	return nil
}

func (m *MockRepository) CreateAuditEntry(ctx context.Context, entry *domain.EscrowAuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *entry)
	return nil
}

func (m *MockRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	if m.CreatePaymentFn != nil {
		return m.CreatePaymentFn(ctx, payment)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = *payment
	return nil
}

func (m *MockRepository) FindPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (m *MockRepository) CreateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error {
	if m.CreateAttemptFn != nil {
		return m.CreateAttemptFn(ctx, attempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.UserID == attempt.UserID && a.IdempotencyKey == attempt.IdempotencyKey {
			return fmt.Errorf("attempt %s: %w", attempt.IdempotencyKey, domain.ErrDuplicateAttempt)
		}
	}
	m.attempts[attempt.ID] = *attempt
	return nil
}

func (m *MockRepository) FindAttemptByKey(ctx context.Context, userID, key string) (*domain.PaymentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.UserID == userID && a.IdempotencyKey == key {
			return &a, nil
		}
	}
	return nil, domain.ErrAttemptNotFound
}

func (m *MockRepository) FindAttemptByIDForUpdate(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return &a, nil
}

func (m *MockRepository) UpdateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error {
	if m.UpdateAttemptFn != nil {
		return m.UpdateAttemptFn(ctx, attempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	m.attempts[attempt.ID] = *attempt
	return nil
}

func (m *MockRepository) FindStaleAttempts(ctx context.Context, point domain.RecoveryPoint, olderThan time.Duration, limit int) ([]*domain.PaymentAttempt, error) {
	if m.FindStaleAttemptFn != nil {
		return m.FindStaleAttemptFn(ctx, point, olderThan, limit)
	}
	cutoff := time.Now().Add(-olderThan)
	attempts := m.Attempts()
	sort.SliceStable(attempts, func(i, j int) bool { return attempts[i].UpdatedAt.Before(attempts[j].UpdatedAt) })

	var out []*domain.PaymentAttempt
	for _, a := range attempts {
		if a.RecoveryPoint == point && a.UpdatedAt.Before(cutoff) {
			out = append(out, &a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockRepository) WithTx(ctx context.Context, fn func(repo ports.Repository) error) error {
	if m.WithTxFn != nil {
		return m.WithTxFn(ctx, fn)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	escrows := maps.Clone(m.escrows)
	payments := maps.Clone(m.payments)
	attempts := maps.Clone(m.attempts)
	audit := len(m.audit)
	m.mu.RUnlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.escrows, m.payments, m.attempts = escrows, payments, attempts
		m.audit = m.audit[:audit]
		m.mu.Unlock()
		return err
	}
	return nil
}

// MockBookingReader
type MockBookingReader struct {
	mu       sync.RWMutex
	bookings map[string]domain.Booking

	FindBookingByIDFn func(ctx context.Context, id string) (*domain.Booking, error)
}

func NewMockBookingReader(bookings ...*domain.Booking) *MockBookingReader {
	m := &MockBookingReader{bookings: make(map[string]domain.Booking)}
	for _, b := range bookings {
		m.bookings[b.ID] = *b
	}
	return m
}

func (m *MockBookingReader) FindBookingByID(ctx context.Context, id string) (*domain.Booking, error) {
	if m.FindBookingByIDFn != nil {
		return m.FindBookingByIDFn(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

// MockAdminDirectory
type MockAdminDirectory struct {
	Admins map[string]bool

	IsAdminFn func(ctx context.Context, userID string) (bool, error)
}

func (m *MockAdminDirectory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if m.IsAdminFn != nil {
		return m.IsAdminFn(ctx, userID)
	}
	return m.Admins[userID], nil
}

// MockRateLimiter admits Limit calls per (user, operation). A zero Limit admits everything.
type MockRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Limit  int

	EnforceFn func(ctx context.Context, userID, operation string) error
}

func (m *MockRateLimiter) Enforce(ctx context.Context, userID, operation string) error {
	if m.EnforceFn != nil {
		return m.EnforceFn(ctx, userID, operation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	key := userID + ":" + operation
	if m.Limit > 0 && m.counts[key] >= m.Limit {
		return domain.NewResourceExhaustedError()
	}
	m.counts[key]++
	return nil
}

func (m *MockRateLimiter) Calls(userID, operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[userID+":"+operation]
}

// MockFlagStore treats unknown flags as enabled.
type MockFlagStore struct {
	mu    sync.Mutex
	flags map[string]bool
	reads int
	Err   error
}

func NewMockFlagStore() *MockFlagStore {
	return &MockFlagStore{flags: make(map[string]bool)}
}

func (m *MockFlagStore) IsEnabled(ctx context.Context, feature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.Err != nil {
		return false, m.Err
	}
	enabled, ok := m.flags[feature]
	return !ok || enabled, nil
}

func (m *MockFlagStore) SetEnabled(ctx context.Context, feature string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[feature] = enabled
	return nil
}

func (m *MockFlagStore) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// StaticResolver resolves methods from a fixed table; missing entries are unavailable.
type StaticResolver map[domain.PaymentMethod]ports.PaymentProvider

func (r StaticResolver) ProviderFor(method domain.PaymentMethod) (ports.PaymentProvider, error) {
	p, ok := r[method]
	if !ok || p == nil {
		return nil, fmt.Errorf("%s: %w", method, domain.ErrProviderUnavailable)
	}
	return p, nil
}

// StubProvider returns a canned result and counts calls.
type StubProvider struct {
	mu       sync.Mutex
	calls    []domain.ProviderPaymentRequest
	ProvName domain.ProviderName
	Delay    time.Duration

	CreatePaymentIntentFn func(ctx context.Context, req domain.ProviderPaymentRequest) (*domain.ProviderPaymentResult, error)
}

func (p *StubProvider) Name() domain.ProviderName {
	return p.ProvName
}

func (p *StubProvider) CreatePaymentIntent(ctx context.Context, req domain.ProviderPaymentRequest) (*domain.ProviderPaymentResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.CreatePaymentIntentFn != nil {
		return p.CreatePaymentIntentFn(ctx, req)
	}

	result := &domain.ProviderPaymentResult{ProviderPaymentID: string(p.ProvName) + "-" + req.Reference}
	switch req.Method {
	case domain.MethodOPG:
		result.PaymentURL = "https://pay.example.ao/frame/" + req.Reference
	case domain.MethodReference:
		result.EntityID = "10111"
		result.ReferenceNumber = "123456789"
	case domain.MethodStripe:
		result.CheckoutURL = "https://checkout.stripe.com/c/pay/cs_test_" + req.Reference
	}
	return result, nil
}

func (p *StubProvider) Calls() []domain.ProviderPaymentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ProviderPaymentRequest(nil), p.calls...)
}
