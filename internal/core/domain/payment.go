// Package domain defines the payment, escrow and booking models of the marketplace.
package domain

import (
	"time"
)

// PaymentStatus represents the current state of a payment record
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentExpired   PaymentStatus = "expired"
)

// PaymentMethod is the caller-chosen way of paying.
type PaymentMethod string

const (
	MethodOPG       PaymentMethod = "opg"
	MethodReference PaymentMethod = "reference"
	MethodStripe    PaymentMethod = "stripe"
)

// PaymentMethods lists every recognised method.
var PaymentMethods = []PaymentMethod{MethodOPG, MethodReference, MethodStripe}

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodOPG, MethodReference, MethodStripe:
		return true
	}
	return false
}

// Payment is the auditable record of a single payment attempt.
type Payment struct {
	ID                string
	BookingID         string
	UserID            string
	SupplierID        string
	AmountCents       int64
	Currency          string
	Method            PaymentMethod
	Provider          ProviderName
	ProviderPaymentID string
	Reference         string
	Status            PaymentStatus

	CheckoutURL     *string
	PaymentURL      *string
	EntityID        *string
	ReferenceNumber *string

	Metadata  map[string]string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	MetadataEscrowID   = "escrowId"
	MetadataSupplierID = "supplierId"
	MetadataBookingID  = "bookingId"
)

// EscrowID returns the escrow linked through the payment metadata.
func (p *Payment) EscrowID() string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata[MetadataEscrowID]
}
