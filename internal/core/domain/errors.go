package domain

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories surfaced to callers.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidArgument    Kind = "invalid-argument"
	KindFailedPrecondition Kind = "failed-precondition"
	KindPermissionDenied   Kind = "permission-denied"
	KindNotFound           Kind = "not-found"
	KindResourceExhausted  Kind = "resource-exhausted"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

// DomainError represents a business logic error
type DomainError struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Retryable is implemented by errors that know whether a retry may succeed.
type Retryable interface {
	IsRetryable() bool
}

var (
	ErrEscrowNotFound      = errors.New("escrow not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrAttemptNotFound     = errors.New("payment attempt not found")
	ErrDuplicateAttempt    = errors.New("payment attempt already exists")
	ErrInvalidTransition   = errors.New("invalid escrow transition")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

func NewUnauthenticatedError() *DomainError {
	return &DomainError{
		Kind:    KindUnauthenticated,
		Message: "É necessário iniciar sessão para continuar.",
	}
}

func NewInvalidArgumentError(field, message string) *DomainError {
	return &DomainError{
		Kind:    KindInvalidArgument,
		Field:   field,
		Message: message,
	}
}

func NewMissingFieldError(field string) *DomainError {
	return NewInvalidArgumentError(field, fmt.Sprintf("O campo %s é obrigatório.", field))
}

func NewFailedPreconditionError(message string) *DomainError {
	return &DomainError{
		Kind:    KindFailedPrecondition,
		Message: message,
	}
}

// NewInvalidStateError names the current escrow state so the caller can explain the refusal.
func NewInvalidStateError(current EscrowStatus, operation string) *DomainError {
	return &DomainError{
		Kind:    KindFailedPrecondition,
		Field:   "status",
		Message: fmt.Sprintf("Não é possível %s: o escrow está no estado %q.", operation, current),
		Err:     ErrInvalidTransition,
	}
}

func NewPermissionDeniedError(message string) *DomainError {
	return &DomainError{
		Kind:    KindPermissionDenied,
		Message: message,
	}
}

func NewNotFoundError(message string, err error) *DomainError {
	return &DomainError{
		Kind:    KindNotFound,
		Message: message,
		Err:     err,
	}
}

func NewResourceExhaustedError() *DomainError {
	return &DomainError{
		Kind:    KindResourceExhausted,
		Message: "Demasiados pedidos. Tente novamente mais tarde.",
	}
}

func NewUnavailableError(message string, err error) *DomainError {
	return &DomainError{
		Kind:    KindUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewInternalError wraps err behind a generic message that is safe to show to callers.
func NewInternalError(err error) *DomainError {
	return &DomainError{
		Kind:    KindInternal,
		Message: "Ocorreu um erro interno. Tente novamente mais tarde.",
		Err:     err,
	}
}

// AsDomainError reports whether err carries a structured kind.
func AsDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	ok := errors.As(err, &domainErr)
	return domainErr, ok
}

// KindOf returns the kind carried by err, or KindInternal for unstructured errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Kind
	}
	return KindInternal
}

// IsKind checks if an error is a DomainError with a specific kind
func IsKind(err error, kind Kind) bool {
	domainErr, ok := AsDomainError(err)
	return ok && domainErr.Kind == kind
}
