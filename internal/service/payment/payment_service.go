package payment

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jettravel/backend/internal/domain"
	"github.com/jettravel/backend/internal/kafka"
	"github.com/jettravel/backend/internal/notify"
	"github.com/jettravel/backend/internal/repository"
)

type PaymentUseCase interface {
	InitializePayment(ctx context.Context, input InitializePaymentInput) (*domain.Payment, string, error)
	HandleGatewayEvent(ctx context.Context, rawEvent []byte, signature string) error
	VerifyPayment(ctx context.Context, reference string) (*domain.Payment, bool, error)
}

// PaymentGateway is the payment processor capability. The reference we pass to
// InitializeTransaction is our transaction id; every later gateway event names
// it back, which is what makes reconciliation idempotent.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, reference string, amount float64, currency, email string) (*domain.TransactionInit, error)
	VerifyTransaction(ctx context.Context, reference string) (*domain.GatewayStatus, error)
}

// Bookings is the slice of the booking state machine this engine drives.
type Bookings interface {
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	SetStatus(ctx context.Context, id string, status domain.BookingStatus, reason *string) (*domain.Booking, error)
}

type PaymentService struct {
	payments      repository.PaymentRepository
	bookings      Bookings
	gateway       PaymentGateway
	notifier      notify.Notifier
	webhookSecret string
	now           func() time.Time
}

type InitializePaymentInput struct {
	BookingID     string  `json:"booking_id"`
	UserID        *string `json:"user_id"`
	CustomerEmail string  `json:"customer_email"`
	PaymentMethod string  `json:"payment_method"`
}

func NewPaymentService(
	payments repository.PaymentRepository,
	bookings Bookings,
	gateway PaymentGateway,
	notifier notify.Notifier,
	webhookSecret string,
) *PaymentService {
	return &PaymentService{
		payments:      payments,
		bookings:      bookings,
		gateway:       gateway,
		notifier:      notifier,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

// InitializePayment opens a gateway transaction for the booking's exact total.
// A retry after a FAILED payment creates a fresh Payment row with a fresh
// transaction id; the old row stays inert because events name references.
func (s *PaymentService) InitializePayment(ctx context.Context, input InitializePaymentInput) (*domain.Payment, string, error) {
	if input.BookingID == "" {
		return nil, "", &domain.ValidationError{Field: "booking_id", Reason: "booking id is required"}
	}
	if input.CustomerEmail == "" {
		return nil, "", &domain.ValidationError{Field: "customer_email", Reason: "customer email is required"}
	}

	booking, err := s.bookings.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, "", err
	}
	switch booking.Status {
	case domain.BookingStatusPending, domain.BookingStatusPaymentFailed:
	default:
		return nil, "", &domain.ConflictError{Reason: fmt.Sprintf("booking %s is %s and cannot accept a payment", booking.Reference, booking.Status)}
	}

	transactionID, err := newTransactionID()
	if err != nil {
		return nil, "", fmt.Errorf("generate transaction id: %w", err)
	}

	payment := &domain.Payment{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		BookingID:     booking.ID,
		UserID:        input.UserID,
		Amount:        booking.TotalAmount,
		Currency:      booking.Currency,
		PaymentMethod: input.PaymentMethod,
		Status:        domain.PaymentStatusPending,
		PaymentData:   map[string]any{},
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, "", err
	}

	init, err := s.gateway.InitializeTransaction(ctx, transactionID, payment.Amount, payment.Currency, input.CustomerEmail)
	if err != nil {
		reason := err.Error()
		if _, uerr := s.payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusFailed, map[string]any{"failure_reason": reason}); uerr != nil {
			log.Printf("WARNING: payment %s: gateway init failed (%v) and status write also failed: %v", transactionID, err, uerr)
		}
		return nil, "", &domain.UpstreamError{Code: domain.CodeGatewayFailed, Op: "initialize transaction " + transactionID, Err: err}
	}

	updated, err := s.payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusPending, map[string]any{
		"authorization_url": init.AuthorizationURL,
		"access_code":       init.AccessCode,
	})
	if err != nil {
		return nil, "", err
	}
	return updated, init.AuthorizationURL, nil
}

type gatewayEvent struct {
	Event string           `json:"event"`
	Data  gatewayEventData `json:"data"`
}

type gatewayEventData struct {
	ID              int64  `json:"id"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"` // minor units
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	PaidAt          string `json:"paid_at"`
	Channel         string `json:"channel"`
	GatewayResponse string `json:"gateway_response"`
}

// HandleGatewayEvent processes one webhook delivery. The transport layer acks
// the gateway regardless of the returned error; errors here exist for the
// operator log, not for the gateway.
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, rawEvent []byte, signature string) error {
	if s.webhookSecret != "" {
		if !validSignature(s.webhookSecret, rawEvent, signature) {
			return &domain.ValidationError{Field: "signature", Reason: "webhook signature mismatch"}
		}
	}

	var event gatewayEvent
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		return fmt.Errorf("decode gateway event: %w", err)
	}

	switch event.Event {
	case "charge.success":
		_, err := s.applySuccess(ctx, event.Data)
		return err
	case "charge.failed":
		_, err := s.applyFailure(ctx, event.Data)
		return err
	case "refund.processed":
		_, err := s.applyRefund(ctx, event.Data)
		return err
	default:
		log.Printf("ignoring unrecognized gateway event %q for reference %s", event.Event, event.Data.Reference)
		return nil
	}
}

// VerifyPayment is the poll-path twin of the webhook: it asks the gateway for
// the transaction's status and converges on the same status-gated applies.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*domain.Payment, bool, error) {
	status, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, false, &domain.UpstreamError{Code: domain.CodeGatewayFailed, Op: "verify transaction " + reference, Err: err}
	}

	data := gatewayEventData{
		Reference:       status.Reference,
		Amount:          status.Amount,
		Currency:        status.Currency,
		Status:          status.Status,
		PaidAt:          status.PaidAt,
		Channel:         status.Channel,
		GatewayResponse: status.GatewayResponse,
	}

	switch status.Status {
	case "success":
		payment, err := s.applySuccess(ctx, data)
		if err != nil {
			return nil, false, err
		}
		return payment, true, nil
	case "failed", "abandoned":
		payment, err := s.applyFailure(ctx, data)
		if err != nil {
			return nil, false, err
		}
		return payment, true, nil
	default:
		payment, err := s.payments.GetByTransactionID(ctx, reference)
		if err != nil {
			return nil, false, err
		}
		return payment, false, nil
	}
}

// applySuccess is idempotent: re-delivery of a terminal event is a no-op, so
// exactly one notification goes out per first application.
func (s *PaymentService) applySuccess(ctx context.Context, data gatewayEventData) (*domain.Payment, error) {
	payment, err := s.payments.GetByTransactionID(ctx, data.Reference)
	if err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusCompleted) {
		return payment, nil
	}

	settled := float64(data.Amount) / 100
	if data.Amount > 0 && settled != payment.Amount {
		log.Printf("WARNING: payment %s settled for %.2f but was initialized for %.2f", payment.TransactionID, settled, payment.Amount)
	}

	merge := map[string]any{
		"gateway_reference": data.ID,
		"gateway_amount":    data.Amount,
		"paid_at":           data.PaidAt,
		"channel":           data.Channel,
		"gateway_response":  data.GatewayResponse,
	}
	updated, err := s.payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusCompleted, merge)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.SetStatus(ctx, payment.BookingID, domain.BookingStatusConfirmed, nil)
	if err != nil {
		if domain.IsConflict(err) {
			log.Printf("payment %s completed but booking left as-is: %v", payment.TransactionID, err)
		} else {
			// The payment is settled but the booking write failed. Keep enough
			// context in the log to replay the transition by hand.
			log.Printf("WARNING: payment %s completed but booking %s status write failed: %v", payment.TransactionID, payment.BookingID, err)
			return updated, err
		}
	}

	recipient := ""
	reference := ""
	if booking != nil {
		recipient = booking.ContactEmail
		reference = booking.Reference
	}
	s.sendNotification(ctx, kafka.NotificationEvent{
		Type:             kafka.EventPaymentConfirmed,
		Recipient:        recipient,
		BookingReference: reference,
		Payload:          map[string]string{"transaction_id": payment.TransactionID},
		CreatedAt:        s.now(),
	})
	return updated, nil
}

func (s *PaymentService) applyFailure(ctx context.Context, data gatewayEventData) (*domain.Payment, error) {
	payment, err := s.payments.GetByTransactionID(ctx, data.Reference)
	if err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusFailed) {
		return payment, nil
	}

	merge := map[string]any{
		"failure_reason":   data.GatewayResponse,
		"gateway_response": data.GatewayResponse,
	}
	updated, err := s.payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusFailed, merge)
	if err != nil {
		return nil, err
	}

	reason := data.GatewayResponse
	if _, err := s.bookings.SetStatus(ctx, payment.BookingID, domain.BookingStatusPaymentFailed, &reason); err != nil {
		if domain.IsConflict(err) {
			log.Printf("payment %s failed but booking left as-is: %v", payment.TransactionID, err)
		} else {
			log.Printf("WARNING: payment %s failed but booking %s status write failed: %v", payment.TransactionID, payment.BookingID, err)
			return updated, err
		}
	}
	return updated, nil
}

func (s *PaymentService) applyRefund(ctx context.Context, data gatewayEventData) (*domain.Payment, error) {
	payment, err := s.payments.GetByTransactionID(ctx, data.Reference)
	if err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusRefunded) {
		return payment, nil
	}

	merge := map[string]any{
		"refunded_amount": data.Amount,
		"refunded_at":     data.PaidAt,
	}
	updated, err := s.payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusRefunded, merge)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.SetStatus(ctx, payment.BookingID, domain.BookingStatusRefunded, nil)
	if err != nil {
		if domain.IsConflict(err) {
			log.Printf("payment %s refunded but booking left as-is: %v", payment.TransactionID, err)
		} else {
			log.Printf("WARNING: payment %s refunded but booking %s status write failed: %v", payment.TransactionID, payment.BookingID, err)
			return updated, err
		}
	}

	recipient := ""
	reference := ""
	if booking != nil {
		recipient = booking.ContactEmail
		reference = booking.Reference
	}
	s.sendNotification(ctx, kafka.NotificationEvent{
		Type:             kafka.EventPaymentRefunded,
		Recipient:        recipient,
		BookingReference: reference,
		Payload:          map[string]string{"transaction_id": payment.TransactionID},
		CreatedAt:        s.now(),
	})
	return updated, nil
}

func (s *PaymentService) sendNotification(ctx context.Context, event kafka.NotificationEvent) {
	if s.notifier == nil || event.Recipient == "" {
		return
	}
	if err := s.notifier.Send(ctx, event); err != nil {
		log.Printf("WARNING: failed to send %s notification for booking %s: %v", event.Type, event.BookingReference, err)
	}
}

// validSignature checks the HMAC-SHA512 hex digest of the raw body.
func validSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// newTransactionID draws a PAYM- reference with eight random hex chars.
func newTransactionID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "PAYM-" + hex.EncodeToString(buf), nil
}

var _ PaymentUseCase = (*PaymentService)(nil)
