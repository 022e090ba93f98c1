package notify

import (
	"context"

	"github.com/jettravel/backend/internal/kafka"
)

// Notifier is the fire-and-forget email capability consumed by the services.
// Failures are for the caller to log, never to propagate.
type Notifier interface {
	Send(ctx context.Context, event kafka.NotificationEvent) error
}

// KafkaNotifier publishes notification events to the notifications topic; the
// worker process consumes them and renders the actual email.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaNotifier(producer *kafka.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Send(ctx context.Context, event kafka.NotificationEvent) error {
	if n.producer == nil || n.topic == "" {
		return nil
	}
	key := event.BookingReference
	if key == "" {
		key = event.Recipient
	}
	return n.producer.Publish(ctx, n.topic, key, event)
}

var _ Notifier = (*KafkaNotifier)(nil)
