package domain

import (
	"errors"
	"fmt"
)

// Upstream error codes surfaced to callers so clients can act on them
// (re-quote on price change, re-search on expiry) instead of blindly retrying.
const (
	CodeOfferVerificationFailed = "OFFER_VERIFICATION_FAILED"
	CodeOfferExpired            = "OFFER_EXPIRED"
	CodeSeatsUnavailable        = "SEATS_UNAVAILABLE"
	CodePriceChanged            = "PRICE_CHANGED"
	CodeProviderOrderFailed     = "PROVIDER_ORDER_FAILED"
	CodeGatewayFailed           = "GATEWAY_FAILED"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ConflictError signals an illegal state transition, e.g. cancelling a
// completed booking.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

type UpstreamError struct {
	Code string
	Op   string
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Op)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type ExpiredError struct {
	What string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("%s has expired", e.What)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsExpired(err error) bool {
	var ee *ExpiredError
	return errors.As(err, &ee)
}

// UpstreamCode returns the machine code of an upstream error, or "".
func UpstreamCode(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}
