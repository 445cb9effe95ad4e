package domain

import (
	"slices"
	"time"
)

// EscrowStatus represents the current state of an escrow hold in its lifecycle
type EscrowStatus string

const (
	EscrowCreated          EscrowStatus = "created"
	EscrowFunded           EscrowStatus = "funded"
	EscrowServiceCompleted EscrowStatus = "service_completed"
	EscrowReleased         EscrowStatus = "released"
	EscrowDisputed         EscrowStatus = "disputed"
	EscrowRefunded         EscrowStatus = "refunded"
)

// Escrow holds funds collected from a client until the supplier's service is completed.
type Escrow struct {
	ID          string
	BookingID   string
	ClientID    string
	SupplierID  string
	TotalAmount int64
	Currency    string
	Status      EscrowStatus
	PaymentID   *string

	RefundAmount  *int64
	RefundedBy    *string
	RefundReason  *string
	ReleaseAmount *int64
	ReleasedBy    *string

	CreatedAt          time.Time
	UpdatedAt          time.Time
	FundedAt           *time.Time
	ServiceCompletedAt *time.Time
	DisputedAt         *time.Time
	RefundedAt         *time.Time
	ReleasedAt         *time.Time
}

// EscrowAuditEntry records who moved money out of an escrow, when, why and how much.
type EscrowAuditEntry struct {
	ID         string
	EscrowID   string
	Action     string
	FromStatus EscrowStatus
	ToStatus   EscrowStatus
	ActorID    string
	Reason     string
	Amount     int64
	CreatedAt  time.Time
}

const (
	AuditActionRefund  = "refund"
	AuditActionRelease = "release"
)

var refundableStatuses = []EscrowStatus{EscrowFunded, EscrowServiceCompleted, EscrowDisputed}

// CanTransitionTo validates whether an escrow can move from its current status to target.
//
// Valid transitions are:
//   - created → funded
//   - funded → service_completed, disputed, refunded
//   - service_completed → released, disputed, refunded
//   - disputed → refunded
//
// released and refunded are terminal.
func (e *Escrow) CanTransitionTo(target EscrowStatus) error {
	var allowed []EscrowStatus
	switch e.Status {
	case EscrowCreated:
		allowed = []EscrowStatus{EscrowFunded}
	case EscrowFunded:
		allowed = []EscrowStatus{EscrowServiceCompleted, EscrowDisputed, EscrowRefunded}
	case EscrowServiceCompleted:
		allowed = []EscrowStatus{EscrowReleased, EscrowDisputed, EscrowRefunded}
	case EscrowDisputed:
		allowed = []EscrowStatus{EscrowRefunded}
	}
	if slices.Contains(allowed, target) {
		return nil
	}
	return ErrInvalidTransition
}

func (e *Escrow) IsTerminal() bool {
	return e.Status == EscrowReleased || e.Status == EscrowRefunded
}

func (e *Escrow) IsRefundable() bool {
	return slices.Contains(refundableStatuses, e.Status)
}

func (e *Escrow) MarkFunded(at time.Time) error {
	if err := e.CanTransitionTo(EscrowFunded); err != nil {
		return NewInvalidStateError(e.Status, "confirmar o pagamento")
	}
	e.Status = EscrowFunded
	e.FundedAt = &at
	return nil
}

func (e *Escrow) MarkServiceCompleted(at time.Time) error {
	if err := e.CanTransitionTo(EscrowServiceCompleted); err != nil {
		return NewInvalidStateError(e.Status, "concluir o serviço")
	}
	e.Status = EscrowServiceCompleted
	e.ServiceCompletedAt = &at
	return nil
}

func (e *Escrow) OpenDispute(at time.Time) error {
	if err := e.CanTransitionTo(EscrowDisputed); err != nil {
		return NewInvalidStateError(e.Status, "abrir uma disputa")
	}
	e.Status = EscrowDisputed
	e.DisputedAt = &at
	return nil
}

// Refund moves the full held amount back to the client.
func (e *Escrow) Refund(initiator, reason string, at time.Time) (int64, error) {
	if !e.IsRefundable() {
		return 0, NewInvalidStateError(e.Status, "reembolsar")
	}
	amount := e.TotalAmount
	e.Status = EscrowRefunded
	e.RefundAmount = &amount
	e.RefundedBy = &initiator
	if reason != "" {
		e.RefundReason = &reason
	}
	e.RefundedAt = &at
	return amount, nil
}

// Release pays the held amount out to the supplier.
func (e *Escrow) Release(initiator string, at time.Time) (int64, error) {
	if err := e.CanTransitionTo(EscrowReleased); err != nil {
		return 0, NewInvalidStateError(e.Status, "libertar os fundos")
	}
	amount := e.TotalAmount
	e.Status = EscrowReleased
	e.ReleaseAmount = &amount
	e.ReleasedBy = &initiator
	e.ReleasedAt = &at
	return amount, nil
}

// RecordedRefund returns the amount stored by a previous refund.
func (e *Escrow) RecordedRefund() int64 {
	if e.RefundAmount != nil {
		return *e.RefundAmount
	}
	return e.TotalAmount
}

// RecordedRelease returns the amount stored by a previous release.
func (e *Escrow) RecordedRelease() int64 {
	if e.ReleaseAmount != nil {
		return *e.ReleaseAmount
	}
	return e.TotalAmount
}
