package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// FlightOffer is a priced itinerary from the inventory provider, validated once
// at the boundary. Itinerary keeps the provider payload verbatim so order
// creation can echo it back.
type FlightOffer struct {
	ID                    string          `json:"id"`
	Origin                string          `json:"origin"`
	Destination           string          `json:"destination"`
	DepartureDate         string          `json:"departure_date"` // YYYY-MM-DD
	ReturnDate            string          `json:"return_date,omitempty"`
	TotalAmount           float64         `json:"total_amount"`
	Currency              string          `json:"currency"`
	NumberOfBookableSeats int             `json:"number_of_bookable_seats"`
	Itinerary             json.RawMessage `json:"itinerary,omitempty"`
}

func (o FlightOffer) Validate() error {
	if o.ID == "" {
		return &ValidationError{Field: "id", Reason: "offer id is required"}
	}
	if o.Origin == "" || o.Destination == "" {
		return &ValidationError{Field: "origin", Reason: "origin and destination are required"}
	}
	if strings.EqualFold(o.Origin, o.Destination) {
		return &ValidationError{Field: "destination", Reason: "origin and destination must differ"}
	}
	if len(o.Currency) != 3 {
		return &ValidationError{Field: "currency", Reason: "currency must be a 3-letter ISO 4217 code"}
	}
	if o.TotalAmount <= 0 {
		return &ValidationError{Field: "total_amount", Reason: "total amount must be positive"}
	}
	return nil
}

// ValidateTravelDate rejects dates in the past or more than 11 months out,
// before any provider round-trip is spent on them.
func ValidateTravelDate(field, date string, now time.Time) error {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return &ValidationError{Field: field, Reason: "date must be YYYY-MM-DD"}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return &ValidationError{Field: field, Reason: "date must not be in the past"}
	}
	if d.After(today.AddDate(0, 11, 0)) {
		return &ValidationError{Field: field, Reason: "date must be within 11 months"}
	}
	return nil
}

// VerifiedOffer is a provider-reconfirmed offer, the only thing a booking may
// be created from while it has not expired.
type VerifiedOffer struct {
	Offer          FlightOffer `json:"offer"`
	PriceChanged   bool        `json:"price_changed"`
	SeatsAvailable bool        `json:"seats_available"`
	VerifiedAt     time.Time   `json:"verified_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
}

func (v VerifiedOffer) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
