package domain

import "slices"

type BookingStatus string

const (
	BookingPending       BookingStatus = "pending"
	BookingConfirmed     BookingStatus = "confirmed"
	BookingPartiallyPaid BookingStatus = "partially_paid"
	BookingInProgress    BookingStatus = "in_progress"
	BookingCompleted     BookingStatus = "completed"
	BookingCancelled     BookingStatus = "cancelled"
	BookingDisputed      BookingStatus = "disputed"
	BookingRefunded      BookingStatus = "refunded"
)

var payableBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingPartiallyPaid}

// Booking is owned by the booking service; payments only read it.
type Booking struct {
	ID          string
	ClientID    string
	SupplierID  string
	Status      BookingStatus
	TotalAmount int64
	PaidAmount  int64
	EventName   string
}

func (b *Booking) AcceptsPayment() bool {
	return slices.Contains(payableBookingStatuses, b.Status)
}

func (b *Booking) IsFullyPaid() bool {
	return b.PaidAmount >= b.TotalAmount
}

func (b *Booking) OutstandingAmount() int64 {
	if b.IsFullyPaid() {
		return 0
	}
	return b.TotalAmount - b.PaidAmount
}
