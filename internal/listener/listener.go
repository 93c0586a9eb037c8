// Package listener consumes the upstream event-catalog notifications and
// keeps the local event replica converged. It is the replica's only writer.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ReplicaLayer interface {
	UpsertActive(ctx context.Context, eventID string, capacity int, endTime *time.Time) error
	Deactivate(ctx context.Context, eventID string) error
}

// BookingCanceller drives the cascade when an event is cancelled upstream.
type BookingCanceller interface {
	CancelAllForEvent(ctx context.Context, eventID string) (int, error)
}

type Listener struct {
	Replica  ReplicaLayer
	Bookings BookingCanceller
	Logger   *logger.Logger
}

func New(replica ReplicaLayer, bookings BookingCanceller, log *logger.Logger) *Listener {
	return &Listener{Replica: replica, Bookings: bookings, Logger: log}
}

// Run processes deliveries until the channel closes or the context ends.
// The subscription uses prefetch=1, so exactly one message is in flight:
// cascade cancellations for the same event never interleave.
//
// Acknowledgement policy: success and unknown routing keys ack; any failed
// or undecodable message is nacked with requeue so the channel redelivers
// it (bounded retry is the broker deployment's concern).
func (l *Listener) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	l.Logger.Info("LISTENER", "Consuming event-catalog notifications")
	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("LISTENER", "Context cancelled, stopping consumer")
			return
		case d, ok := <-deliveries:
			if !ok {
				l.Logger.Warn("LISTENER", "Delivery channel closed")
				return
			}
			l.handleDelivery(ctx, d)
		}
	}
}

func (l *Listener) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var err error
	switch d.RoutingKey {
	case models.RouteEventPublished:
		err = l.HandleEventPublished(ctx, d.Body)
	case models.RouteEventCancelled:
		err = l.HandleEventCancelled(ctx, d.Body)
	default:
		// Forward-compatible no-op: discard kinds this service does not
		// know rather than poisoning the queue.
		l.Logger.Warn("LISTENER", fmt.Sprintf("Discarding unknown notification kind %q", d.RoutingKey))
		if ackErr := d.Ack(false); ackErr != nil {
			l.Logger.Error("LISTENER", fmt.Sprintf("Ack failed: %v", ackErr))
		}
		return
	}

	if err != nil {
		l.Logger.Error("LISTENER", fmt.Sprintf("Handling %s failed, returning to channel: %v", d.RoutingKey, err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			l.Logger.Error("LISTENER", fmt.Sprintf("Nack failed: %v", nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		l.Logger.Error("LISTENER", fmt.Sprintf("Ack failed: %v", ackErr))
	}
}

// HandleEventPublished upserts the replica row and marks it active. It
// never touches bookings: a stale republish after a cancellation must not
// resurrect cascade-cancelled bookings.
func (l *Listener) HandleEventPublished(ctx context.Context, body []byte) error {
	var note models.EventPublishedNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return fmt.Errorf("decode event-published: %w", err)
	}
	if note.EventID == "" {
		return fmt.Errorf("event-published without event_id")
	}

	if err := l.Replica.UpsertActive(ctx, note.EventID, note.Capacity, note.EndTime); err != nil {
		return fmt.Errorf("upsert replica for %s: %w", note.EventID, err)
	}
	l.Logger.Info("LISTENER", fmt.Sprintf("Event %s published with capacity %d", note.EventID, note.Capacity))
	return nil
}

// HandleEventCancelled deactivates the replica row and cascades the
// cancellation through the booking ledger. Both steps must succeed before
// the message is acknowledged; a failure after the replica update leaves
// the message unacked so redelivery retries the cascade (both writes are
// idempotent).
func (l *Listener) HandleEventCancelled(ctx context.Context, body []byte) error {
	var note models.EventCancelledNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return fmt.Errorf("decode event-cancelled: %w", err)
	}
	if note.EventID == "" {
		return fmt.Errorf("event-cancelled without event_id")
	}

	if err := l.Replica.Deactivate(ctx, note.EventID); err != nil {
		return fmt.Errorf("deactivate replica for %s: %w", note.EventID, err)
	}

	count, err := l.Bookings.CancelAllForEvent(ctx, note.EventID)
	if err != nil {
		return fmt.Errorf("cascade cancel for %s: %w", note.EventID, err)
	}
	l.Logger.Info("LISTENER", fmt.Sprintf("Event %s cancelled, %d bookings cascade-cancelled", note.EventID, count))
	return nil
}
