package handler

import (
	"net/http"
	"strings"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
)

type CreatePaymentIntentRequest struct {
	BookingID      string `json:"bookingId" example:"B1"`
	Amount         int64  `json:"amount" example:"85000"`
	Currency       string `json:"currency,omitempty" example:"AOA"`
	PaymentMethod  string `json:"paymentMethod" example:"opg"`
	CustomerName   string `json:"customerName,omitempty"`
	CustomerEmail  string `json:"customerEmail,omitempty"`
	CustomerPhone  string `json:"customerPhone,omitempty" example:"923000000"`
	SuccessURL     string `json:"successUrl,omitempty"`
	CancelURL      string `json:"cancelUrl,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

func (r CreatePaymentIntentRequest) toDomain() domain.PaymentIntentRequest {
	return domain.PaymentIntentRequest{
		BookingID:      r.BookingID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		PaymentMethod:  domain.PaymentMethod(r.PaymentMethod),
		CustomerName:   r.CustomerName,
		CustomerEmail:  r.CustomerEmail,
		CustomerPhone:  r.CustomerPhone,
		SuccessURL:     r.SuccessURL,
		CancelURL:      r.CancelURL,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// HandleCreatePaymentIntent starts a payment for a booking
// @Summary      Create a payment intent
// @Description  Charges a booking through the provider serving the chosen method and opens an escrow hold.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string                      false  "Replays the original response when repeated"
// @Param        request          body      CreatePaymentIntentRequest  true   "Payment details"
// @Success      200              {object}  APIResponse                 "Intent created"
// @Failure      400              {object}  APIResponse                 "Invalid argument"
// @Failure      401              {object}  APIResponse                 "Unauthenticated"
// @Failure      409              {object}  APIResponse                 "Booking not payable"
// @Failure      429              {object}  APIResponse                 "Rate limit exceeded"
// @Failure      503              {object}  APIResponse                 "Feature disabled or provider unavailable"
// @Failure      500              {object}  APIResponse                 "Internal error"
// @Router       /rpc/createPaymentIntent [post]
func (h *RPCHandler) HandleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentIntentRequest
	if !h.decodeRequest(w, r, domain.FeaturePayments, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	result, err := h.intents.CreatePaymentIntent(r.Context(), req.toDomain(), CallerFrom(r.Context()))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
