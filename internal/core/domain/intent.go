package domain

import "time"

// Caller is the authenticated identity behind an RPC. A nil Caller is anonymous.
type Caller struct {
	UserID string
	Email  string
}

func (c *Caller) IsAuthenticated() bool {
	return c != nil && c.UserID != ""
}

const (
	FeaturePayments       = "payments"
	OperationCreateIntent = "createPaymentIntent"
)

// PaymentIntentRequest carries the fields of a createPaymentIntent call.
type PaymentIntentRequest struct {
	BookingID      string        `json:"bookingId"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency,omitempty"`
	PaymentMethod  PaymentMethod `json:"paymentMethod"`
	CustomerName   string        `json:"customerName,omitempty"`
	CustomerEmail  string        `json:"customerEmail,omitempty"`
	CustomerPhone  string        `json:"customerPhone,omitempty"`
	SuccessURL     string        `json:"successUrl,omitempty"`
	CancelURL      string        `json:"cancelUrl,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty"`
}

// PaymentIntentResult is the response of createPaymentIntent, shaped by the chosen method.
type PaymentIntentResult struct {
	Success         bool         `json:"success"`
	PaymentID       string       `json:"paymentId"`
	EscrowID        string       `json:"escrowId"`
	Reference       string       `json:"reference"`
	Provider        ProviderName `json:"provider"`
	ExpiresAt       time.Time    `json:"expiresAt"`
	CheckoutURL     string       `json:"checkoutUrl,omitempty"`
	PaymentURL      string       `json:"paymentUrl,omitempty"`
	EntityID        string       `json:"entityId,omitempty"`
	ReferenceNumber string       `json:"referenceNumber,omitempty"`
}

// EscrowSettlement is the outcome of moving money out of an escrow.
type EscrowSettlement struct {
	EscrowID string
	Amount   int64
	Status   EscrowStatus
	Replayed bool
}

type RefundResult struct {
	Success      bool   `json:"success"`
	EscrowID     string `json:"escrowId"`
	RefundAmount int64  `json:"refundAmount"`
}

type ReleaseResult struct {
	Success       bool   `json:"success"`
	EscrowID      string `json:"escrowId"`
	ReleaseAmount int64  `json:"releaseAmount"`
}
