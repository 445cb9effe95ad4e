package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Checkout Sessions must expire at least 30 minutes after creation.
const stripeMinSessionTTL = 31 * time.Minute

// StripeClient creates hosted Stripe Checkout Sessions.
type StripeClient struct {
	api        *client.API
	successURL string
	cancelURL  string
	now        func() time.Time
}

func NewStripeClient(cfg config.StripeConfig, httpClient *http.Client) *StripeClient {
	backendCfg := &stripe.BackendConfig{
		HTTPClient: httpClient,
		// Retries are owned by RetryingProvider.
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.APIBaseURL != "" {
		backendCfg.URL = stripe.String(cfg.APIBaseURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg))

	return &StripeClient{
		api:        api,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		now:        time.Now,
	}
}

func (c *StripeClient) Name() domain.ProviderName {
	return domain.ProviderStripe
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, req domain.ProviderPaymentRequest) (*domain.ProviderPaymentResult, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.Reference),
		SuccessURL:        stripe.String(firstNonEmpty(req.SuccessURL, c.successURL)),
		CancelURL:         stripe.String(firstNonEmpty(req.CancelURL, c.cancelURL)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.ExpiresAt.Sub(c.now()) >= stripeMinSessionTTL {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.AddMetadata("reference", req.Reference)
	params.AddMetadata("booking_id", req.BookingID)
	params.AddMetadata("user_id", req.UserID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError(err)
	}

	return &domain.ProviderPaymentResult{
		ProviderPaymentID: session.ID,
		CheckoutURL:       session.URL,
		ProviderData: map[string]any{
			"sessionId": session.ID,
			"expiresAt": session.ExpiresAt,
		},
	}, nil
}

func stripeError(err error) error {
	if isTimeout(err) {
		return err
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &domain.ProviderError{
			Provider:  domain.ProviderStripe,
			Code:      "network_error",
			Message:   "request failed",
			Transient: true,
			Err:       err,
		}
	}
	status := stripeErr.HTTPStatusCode
	return &domain.ProviderError{
		Provider:   domain.ProviderStripe,
		StatusCode: status,
		Code:       string(stripeErr.Code),
		Message:    stripeErr.Msg,
		Transient:  status >= 500 || status == http.StatusTooManyRequests || stripeErr.Type == stripe.ErrorTypeAPI,
		Err:        err,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
