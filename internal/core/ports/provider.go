package ports

import (
	"context"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
)

// PaymentProvider defines the behavior of an external payment processor.
type PaymentProvider interface {
	Name() domain.ProviderName
	CreatePaymentIntent(ctx context.Context, req domain.ProviderPaymentRequest) (*domain.ProviderPaymentResult, error)
}

// ProviderResolver maps a payment method to the adapter that serves it.
// Resolution fails with domain.ErrProviderUnavailable when the adapter is not configured.
type ProviderResolver interface {
	ProviderFor(method domain.PaymentMethod) (PaymentProvider, error)
}
