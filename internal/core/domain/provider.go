package domain

import (
	"errors"
	"fmt"
	"time"
)

// ProviderName identifies an external payment processor.
type ProviderName string

const (
	ProviderEMIS     ProviderName = "emis_gpo"
	ProviderProxyPay ProviderName = "proxypay"
	ProviderStripe   ProviderName = "stripe"
)

// ProviderPaymentRequest is the normalized parameter set handed to every provider.
type ProviderPaymentRequest struct {
	Reference     string            `json:"reference"`
	AmountCents   int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Method        PaymentMethod     `json:"method"`
	CustomerName  string            `json:"customerName,omitempty"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	CustomerPhone string            `json:"customerPhone,omitempty"`
	Description   string            `json:"description"`
	BookingID     string            `json:"bookingId"`
	UserID        string            `json:"userId"`
	ExpiresAt     time.Time         `json:"expiresAt"`
	SuccessURL    string            `json:"successUrl,omitempty"`
	CancelURL     string            `json:"cancelUrl,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ProviderPaymentResult is what a provider hands back once the intent exists on its side.
type ProviderPaymentResult struct {
	ProviderPaymentID string         `json:"providerPaymentId"`
	ReferenceNumber   string         `json:"referenceNumber,omitempty"`
	PaymentURL        string         `json:"paymentUrl,omitempty"`
	CheckoutURL       string         `json:"checkoutUrl,omitempty"`
	EntityID          string         `json:"entityId,omitempty"`
	ProviderData      map[string]any `json:"providerData,omitempty"`
}

// ProviderError is returned when a provider call was made and failed.
type ProviderError struct {
	Provider   ProviderName
	StatusCode int
	Code       string
	Message    string
	Transient  bool
	// Indeterminate marks a failure after the request may have reached the
	// provider. It is never retried automatically.
	Indeterminate bool
	Err           error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error: %s (status: %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) IsRetryable() bool {
	return e.Transient && !e.Indeterminate
}

// IsIndeterminate reports whether err leaves the provider-side outcome unknown.
func IsIndeterminate(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr) && providerErr.Indeterminate
}
