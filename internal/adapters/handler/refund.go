package handler

import (
	"net/http"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/service"
)

type RefundEscrowRequest struct {
	EscrowID string `json:"escrowId" example:"3f1c2a9e-6a3b-4f7e-9d2c-1b8e5f0a7c44"`
	Reason   string `json:"reason,omitempty" example:"cliente cancelou"`
}

type ReleaseEscrowRequest struct {
	EscrowID string `json:"escrowId" example:"3f1c2a9e-6a3b-4f7e-9d2c-1b8e5f0a7c44"`
}

// HandleRefundEscrow returns the held amount to the client
// @Summary      Refund an escrow
// @Description  Administrator only. Repeating the call on a refunded escrow returns the recorded amount.
// @Tags         escrow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      RefundEscrowRequest  true  "Escrow to refund"
// @Success      200      {object}  APIResponse          "Escrow refunded"
// @Failure      400      {object}  APIResponse          "Missing escrowId"
// @Failure      401      {object}  APIResponse          "Unauthenticated"
// @Failure      403      {object}  APIResponse          "Caller is not an administrator"
// @Failure      404      {object}  APIResponse          "Escrow not found"
// @Failure      409      {object}  APIResponse          "Escrow not in a refundable state"
// @Failure      500      {object}  APIResponse          "Internal error"
// @Router       /rpc/refundEscrow [post]
func (h *RPCHandler) HandleRefundEscrow(w http.ResponseWriter, r *http.Request) {
	var req RefundEscrowRequest
	if !h.decodeRequest(w, r, "", &req) {
		return
	}

	result, err := h.escrows.RefundEscrow(r.Context(),
		service.RefundEscrowRequest{EscrowID: req.EscrowID, Reason: req.Reason},
		CallerFrom(r.Context()))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// HandleReleaseEscrow pays the held amount out to the supplier
// @Summary      Release an escrow
// @Description  Administrator only. Valid once the service is completed; repeated calls replay the recorded release.
// @Tags         escrow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      ReleaseEscrowRequest  true  "Escrow to release"
// @Success      200      {object}  APIResponse           "Escrow released"
// @Failure      400      {object}  APIResponse           "Missing escrowId"
// @Failure      401      {object}  APIResponse           "Unauthenticated"
// @Failure      403      {object}  APIResponse           "Caller is not an administrator"
// @Failure      404      {object}  APIResponse           "Escrow not found"
// @Failure      409      {object}  APIResponse           "Escrow not releasable"
// @Failure      500      {object}  APIResponse           "Internal error"
// @Router       /rpc/releaseEscrow [post]
func (h *RPCHandler) HandleReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	var req ReleaseEscrowRequest
	if !h.decodeRequest(w, r, "", &req) {
		return
	}

	result, err := h.escrows.ReleaseEscrow(r.Context(),
		service.ReleaseEscrowRequest{EscrowID: req.EscrowID},
		CallerFrom(r.Context()))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
