package domain

import (
	"encoding/json"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending       BookingStatus = "PENDING"
	BookingStatusConfirmed     BookingStatus = "CONFIRMED"
	BookingStatusCancelled     BookingStatus = "CANCELLED"
	BookingStatusFailed        BookingStatus = "FAILED"
	BookingStatusCompleted     BookingStatus = "COMPLETED"
	BookingStatusPaymentFailed BookingStatus = "PAYMENT_FAILED"
	BookingStatusRefunded      BookingStatus = "REFUNDED"
)

// bookingTransitions is the full status machine. PAYMENT_FAILED may still reach
// CONFIRMED: a retried charge or a late success webhook can recover the booking.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:       {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusFailed, BookingStatusPaymentFailed},
	BookingStatusConfirmed:     {BookingStatusCancelled, BookingStatusCompleted, BookingStatusPaymentFailed, BookingStatusRefunded},
	BookingStatusPaymentFailed: {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusRefunded},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

type Passenger struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
}

type Booking struct {
	ID                string
	Reference         string // JT + 6 digits, unique, never reused
	UserID            *string
	OfferSnapshot     json.RawMessage
	Passengers        []Passenger
	ContactEmail      string
	ContactPhone      string
	TotalAmount       float64
	Currency          string
	Status            BookingStatus
	FailureReason     *string
	ProviderOrderID   *string
	ProviderOrderData json.RawMessage
	ETicketURL        *string
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
