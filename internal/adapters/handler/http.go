package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/service"
)

type PaymentIntentService interface {
	CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest, caller *domain.Caller) (*domain.PaymentIntentResult, error)
}

type EscrowAdminService interface {
	RefundEscrow(ctx context.Context, req service.RefundEscrowRequest, caller *domain.Caller) (*domain.RefundResult, error)
	ReleaseEscrow(ctx context.Context, req service.ReleaseEscrowRequest, caller *domain.Caller) (*domain.ReleaseResult, error)
}

type FeatureGate interface {
	RequireEnabled(ctx context.Context, feature string) error
}

type RPCHandler struct {
	intents PaymentIntentService
	escrows EscrowAdminService
	gate    FeatureGate
	logger  *slog.Logger
}

func NewRPCHandler(intents PaymentIntentService, escrows EscrowAdminService, gate FeatureGate, logger *slog.Logger) *RPCHandler {
	return &RPCHandler{
		intents: intents,
		escrows: escrows,
		gate:    gate,
		logger:  logger,
	}
}

func (h *RPCHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rpc/createPaymentIntent", h.HandleCreatePaymentIntent)
	mux.HandleFunc("POST /rpc/refundEscrow", h.HandleRefundEscrow)
	mux.HandleFunc("POST /rpc/releaseEscrow", h.HandleReleaseEscrow)
	mux.HandleFunc("GET /openapi.yaml", ServeOpenAPI)
}

// decodeRequest reads the body into dst. A body that failed schema validation or
// decoding is answered here, after the checks the services run ahead of input
// validation: the kill switch for gated features, then authentication.
func (h *RPCHandler) decodeRequest(w http.ResponseWriter, r *http.Request, feature string, dst any) bool {
	err := requestErrorFrom(r.Context())
	if err == nil {
		err = decodeJSON(w, r, dst)
	}
	if err == nil {
		return true
	}

	if feature != "" && h.gate != nil {
		if gateErr := h.gate.RequireEnabled(r.Context(), feature); gateErr != nil {
			respondWithError(w, gateErr)
			return false
		}
	}
	if !CallerFrom(r.Context()).IsAuthenticated() {
		respondWithError(w, domain.NewUnauthenticatedError())
		return false
	}
	respondWithError(w, err)
	return false
}
