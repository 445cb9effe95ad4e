package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
)

const maxBodyBytes = 1 << 20

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

var kindStatus = map[domain.Kind]int{
	domain.KindUnauthenticated:    http.StatusUnauthorized,
	domain.KindInvalidArgument:    http.StatusBadRequest,
	domain.KindFailedPrecondition: http.StatusConflict,
	domain.KindPermissionDenied:   http.StatusForbidden,
	domain.KindNotFound:           http.StatusNotFound,
	domain.KindResourceExhausted:  http.StatusTooManyRequests,
	domain.KindUnavailable:        http.StatusServiceUnavailable,
	domain.KindInternal:           http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondWithJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
	}
	if response.Success {
		response.Data = data
	} else if apiErr, ok := data.(*APIError); ok {
		response.Error = apiErr
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondWithError never exposes unstructured error text.
func respondWithError(w http.ResponseWriter, err error) {
	domainErr, ok := domain.AsDomainError(err)
	if !ok {
		domainErr = domain.NewInternalError(err)
	}

	respondWithJSON(w, StatusFor(domainErr.Kind), &APIError{
		Code:    string(domainErr.Kind),
		Message: domainErr.Message,
		Field:   domainErr.Field,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewInvalidArgumentError("", "O corpo do pedido está vazio.")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.NewInvalidArgumentError(typeErr.Field,
				fmt.Sprintf("Tipo inválido para o campo %q.", typeErr.Field))
		}
		return domain.NewInvalidArgumentError("", "O corpo do pedido não é JSON válido.")
	}
	return nil
}
