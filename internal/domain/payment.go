package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Terminal reports whether no further transition is allowed from s.
// COMPLETED is not terminal: a completed payment may still be refunded.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusRefunded
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	default:
		return false
	}
}

// Payment records one attempt to collect funds for a booking. TransactionID is
// the gateway-side reference and the idempotency key for reconciliation.
// PaymentData is an append-only bag: writes merge into it, never replace it.
type Payment struct {
	ID            string
	TransactionID string // PAYM- + 8 hex chars
	BookingID     string
	UserID        *string
	Amount        float64
	Currency      string
	PaymentMethod string
	Status        PaymentStatus
	PaymentData   map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
