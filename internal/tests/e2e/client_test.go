package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClient wraps RPC calls to the escrow service
type TestClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type rpcResponse struct {
	Status  int
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *rpcError       `json:"error"`
}

func (r *rpcResponse) decode(t *testing.T, dst any) {
	t.Helper()
	require.True(t, r.Success, "rpc failed: %+v", r.Error)
	require.NoError(t, json.Unmarshal(r.Data, dst))
}

// Call posts body to /rpc/{method} with a bearer token and optional Idempotency-Key header.
func (c *TestClient) Call(t *testing.T, method, token, idempotencyKey string, body any) *rpcResponse {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+"/rpc/"+method, bytes.NewReader(raw))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := &rpcResponse{Status: resp.StatusCode}
	require.NoError(t, json.Unmarshal(bodyBytes, out), string(bodyBytes))
	return out
}
