package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/ports"
)

// Resolver maps each payment method to its configured adapter. Adapters with
// missing credentials are left out and resolve to domain.ErrProviderUnavailable.
type Resolver struct {
	emis     ports.PaymentProvider
	proxypay ports.PaymentProvider
	stripe   ports.PaymentProvider
}

func NewResolver(cfg config.ProvidersConfig, retryCfg config.RetryConfig, timeout time.Duration, logger *slog.Logger) *Resolver {
	httpClient := &http.Client{Timeout: timeout}
	r := &Resolver{}

	if cfg.EMIS.BaseURL != "" && cfg.EMIS.FrameToken != "" {
		r.emis = NewRetryingProvider(NewEMISClient(cfg.EMIS, httpClient), retryCfg, logger)
	} else {
		logger.Warn("payment provider not configured", "provider", domain.ProviderEMIS)
	}
	if cfg.ProxyPay.BaseURL != "" && cfg.ProxyPay.APIKey != "" && cfg.ProxyPay.EntityID != "" {
		r.proxypay = NewRetryingProvider(NewProxyPayClient(cfg.ProxyPay, httpClient), retryCfg, logger)
	} else {
		logger.Warn("payment provider not configured", "provider", domain.ProviderProxyPay)
	}
	if cfg.Stripe.SecretKey != "" {
		r.stripe = NewRetryingProvider(NewStripeClient(cfg.Stripe, httpClient), retryCfg, logger)
	} else {
		logger.Warn("payment provider not configured", "provider", domain.ProviderStripe)
	}
	return r
}

func (r *Resolver) ProviderFor(method domain.PaymentMethod) (ports.PaymentProvider, error) {
	var p ports.PaymentProvider
	switch method {
	case domain.MethodOPG:
		p = r.emis
	case domain.MethodReference:
		p = r.proxypay
	case domain.MethodStripe:
		p = r.stripe
	default:
		return nil, fmt.Errorf("unknown payment method %q: %w", method, domain.ErrProviderUnavailable)
	}
	if p == nil {
		return nil, fmt.Errorf("%s not configured: %w", method, domain.ErrProviderUnavailable)
	}
	return p, nil
}

var _ ports.ProviderResolver = (*Resolver)(nil)
