package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
)

const proxyPayAccept = "application/vnd.proxypay.v2+json"

// ProxyPayClient issues ATM/reference payments through ProxyPay RPS. A
// reference id is reserved first and then populated with the amount.
type ProxyPayClient struct {
	http     *jsonClient
	entityID string
}

func NewProxyPayClient(cfg config.ProxyPayConfig, httpClient *http.Client) *ProxyPayClient {
	return &ProxyPayClient{
		http: &jsonClient{
			provider: domain.ProviderProxyPay,
			baseURL:  cfg.BaseURL,
			headers: map[string]string{
				"Authorization": "Token " + cfg.APIKey,
				"Accept":        proxyPayAccept,
			},
			httpClient: httpClient,
		},
		entityID: cfg.EntityID,
	}
}

type proxyPayReference struct {
	Amount       string            `json:"amount"`
	EndDatetime  string            `json:"end_datetime"`
	CustomFields map[string]string `json:"custom_fields"`
}

func (c *ProxyPayClient) Name() domain.ProviderName {
	return domain.ProviderProxyPay
}

func (c *ProxyPayClient) CreatePaymentIntent(ctx context.Context, req domain.ProviderPaymentRequest) (*domain.ProviderPaymentResult, error) {
	var id json.RawMessage
	if err := c.http.do(ctx, http.MethodPost, "/reference_ids", nil, &id); err != nil {
		return nil, err
	}
	referenceID := strings.Trim(strings.TrimSpace(string(id)), `"`)
	if referenceID == "" || referenceID == "null" {
		return nil, &domain.ProviderError{
			Provider: domain.ProviderProxyPay,
			Code:     "empty_reference",
			Message:  "reference id missing from response",
		}
	}

	err := c.http.do(ctx, http.MethodPut, "/references/"+referenceID, proxyPayReference{
		Amount:      majorUnits(req.AmountCents),
		EndDatetime: req.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
		CustomFields: map[string]string{
			"booking_id": req.BookingID,
			"reference":  req.Reference,
			"user_id":    req.UserID,
		},
	}, nil)
	if err != nil {
		return nil, err
	}

	return &domain.ProviderPaymentResult{
		ProviderPaymentID: referenceID,
		ReferenceNumber:   referenceID,
		EntityID:          c.entityID,
	}, nil
}
