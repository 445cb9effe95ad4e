package domain

import (
	"encoding/json"
	"time"
)

// RecoveryPoint marks how far a payment attempt got before it stopped.
type RecoveryPoint string

const (
	RecoveryStarted         RecoveryPoint = "started"
	RecoveryProviderCreated RecoveryPoint = "provider_created"
	RecoveryCompleted       RecoveryPoint = "completed"
	RecoveryAbandoned       RecoveryPoint = "abandoned"
)

// PaymentAttempt tracks one createPaymentIntent call across the provider boundary.
// The row exists before the provider is called so a crash between the provider
// call and the escrow/payment writes can be finished later.
type PaymentAttempt struct {
	ID             string
	UserID         string
	IdempotencyKey string
	RequestHash    string
	Reference      string
	BookingID      string
	SupplierID     string
	Method         PaymentMethod
	Provider       ProviderName
	AmountCents    int64
	Currency       string
	RecoveryPoint  RecoveryPoint

	Request        ProviderPaymentRequest
	ProviderResult *ProviderPaymentResult
	Response       json.RawMessage

	PaymentID *string
	EscrowID  *string
	LastError *string

	// ReconcileFailures counts background attempts to finish a provider_created
	// attempt that ended in error.
	ReconcileFailures int

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsComplete checks if the attempt has a stored response that can be replayed.
func (a *PaymentAttempt) IsComplete() bool {
	return a.RecoveryPoint == RecoveryCompleted && a.Response != nil
}

func (a *PaymentAttempt) IsAbandoned() bool {
	return a.RecoveryPoint == RecoveryAbandoned
}

func (a *PaymentAttempt) ProviderCreated(result *ProviderPaymentResult) {
	a.ProviderResult = result
	a.RecoveryPoint = RecoveryProviderCreated
	a.LastError = nil
}

func (a *PaymentAttempt) Complete(paymentID, escrowID string, response json.RawMessage) {
	a.PaymentID = &paymentID
	a.EscrowID = &escrowID
	a.Response = response
	a.RecoveryPoint = RecoveryCompleted
}

func (a *PaymentAttempt) Abandon(reason string) {
	a.RecoveryPoint = RecoveryAbandoned
	a.LastError = &reason
}

func (a *PaymentAttempt) RecordError(err error) {
	msg := err.Error()
	a.LastError = &msg
}

// RecordReconcileFailure stores err and returns the updated failure count.
func (a *PaymentAttempt) RecordReconcileFailure(err error) int {
	a.RecordError(err)
	a.ReconcileFailures++
	return a.ReconcileFailures
}
