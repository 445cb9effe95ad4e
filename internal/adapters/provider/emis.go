package provider

import (
	"context"
	"net/http"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
)

const emisFramePath = "/online-payment-gateway/portal/frameToken"

// EMISClient creates Multicaixa Express mobile-push payments through the EMIS
// GPO frame token API.
type EMISClient struct {
	http        *jsonClient
	frameToken  string
	callbackURL string
}

func NewEMISClient(cfg config.EMISConfig, httpClient *http.Client) *EMISClient {
	return &EMISClient{
		http: &jsonClient{
			provider:   domain.ProviderEMIS,
			baseURL:    cfg.BaseURL,
			httpClient: httpClient,
		},
		frameToken:  cfg.FrameToken,
		callbackURL: cfg.CallbackURL,
	}
}

type emisFrameRequest struct {
	Reference    string `json:"reference"`
	Amount       string `json:"amount"`
	Token        string `json:"token"`
	Mobile       string `json:"mobile"`
	Card         string `json:"card"`
	QRCode       string `json:"qrCode"`
	MobileNumber string `json:"mobileNumber,omitempty"`
	CallbackURL  string `json:"callbackUrl,omitempty"`
}

type emisFrameResponse struct {
	ID         string `json:"id"`
	TimeToLive int64  `json:"timeToLive"`
}

func (c *EMISClient) Name() domain.ProviderName {
	return domain.ProviderEMIS
}

func (c *EMISClient) CreatePaymentIntent(ctx context.Context, req domain.ProviderPaymentRequest) (*domain.ProviderPaymentResult, error) {
	var resp emisFrameResponse
	err := c.http.do(ctx, http.MethodPost, emisFramePath, emisFrameRequest{
		Reference:    req.Reference,
		Amount:       majorUnits(req.AmountCents),
		Token:        c.frameToken,
		Mobile:       "PAYMENT",
		Card:         "DISABLED",
		QRCode:       "DISABLED",
		MobileNumber: req.CustomerPhone,
		CallbackURL:  c.callbackURL,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &domain.ProviderError{
			Provider: domain.ProviderEMIS,
			Code:     "empty_token",
			Message:  "frame token missing from response",
		}
	}

	return &domain.ProviderPaymentResult{
		ProviderPaymentID: resp.ID,
		PaymentURL:        c.http.baseURL + "/online-payment-gateway/portal/?token=" + resp.ID,
		ProviderData: map[string]any{
			"timeToLive": resp.TimeToLive,
		},
	}, nil
}
