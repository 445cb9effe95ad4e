package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/shopspring/decimal"
)

// jsonClient is the HTTP plumbing shared by the REST-based gateways.
type jsonClient struct {
	provider   domain.ProviderName
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// do sends body as JSON and decodes a JSON response into out when out is non-nil.
// Failures come back as *domain.ProviderError.
func (c *jsonClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshalling json: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &domain.ProviderError{
			Provider:      c.provider,
			Code:          "network_error",
			Message:       "request failed",
			Transient:     true,
			Indeterminate: !isDialError(err),
			Err:           err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(c.provider, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Code:       "decode_error",
			Message:    "unreadable response",
			Err:        err,
		}
	}
	return nil
}

type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusError classifies a non-2xx answer: 5xx, 408 and 429 are transient and
// everything else is a rejection.
func statusError(provider domain.ProviderName, status int, raw []byte) *domain.ProviderError {
	var parsed errorBody
	_ = json.Unmarshal(raw, &parsed)

	code := parsed.Code
	if code == "" {
		code = parsed.Error
	}
	message := parsed.Message
	if message == "" {
		message = string(raw)
	}

	return &domain.ProviderError{
		Provider:   provider,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Transient:  status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests,
	}
}

// majorUnits renders an amount in minor units as a fixed two-decimal string.
func majorUnits(amountCents int64) string {
	return decimal.New(amountCents, -2).StringFixed(2)
}

// isDialError reports failures that happened before a connection existed, so the
// provider cannot have seen the request.
func isDialError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
