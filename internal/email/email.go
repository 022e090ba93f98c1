package email

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/jettravel/backend/internal/kafka"
)

var templates = map[string]*template.Template{
	kafka.EventBookingCreated: template.Must(template.New("").Parse(
		"Your booking {{.BookingReference}} is held until payment completes. Total: {{index .Payload \"amount\"}} {{index .Payload \"currency\"}}.")),
	kafka.EventBookingCancelled: template.Must(template.New("").Parse(
		"Your booking {{.BookingReference}} has been cancelled.")),
	kafka.EventPaymentConfirmed: template.Must(template.New("").Parse(
		"Payment received for booking {{.BookingReference}}. You're all set.")),
	kafka.EventPaymentRefunded: template.Must(template.New("").Parse(
		"Your payment for booking {{.BookingReference}} has been refunded.")),
	kafka.EventOTPCode: template.Must(template.New("").Parse(
		"Your verification code is {{index .Payload \"code\"}}. It expires in {{index .Payload \"expires_in\"}}.")),
}

type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) Send(ctx context.Context, event kafka.NotificationEvent) error {
	tmpl, ok := templates[event.Type]
	if !ok {
		return fmt.Errorf("no email template for event type %q", event.Type)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, event); err != nil {
		return fmt.Errorf("render %s email: %w", event.Type, err)
	}
	// Delivery transport is stubbed: bodies are written to stdout. The OTP
	// code inside the body must not go through the logger.
	fmt.Printf("send email to %s: %s\n", event.Recipient, body.String())
	return nil
}
