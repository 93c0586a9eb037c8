// Package notifier publishes booking and ticket notifications to the
// outbound exchange. Delivery is at-least-once and fire-and-forget: callers
// log publish failures and never unwind the storage write that triggered
// them.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-registration/internal/models"
	"ms-registration/internal/mq"
)

type Notifier struct {
	MQ       mq.Publisher
	Exchange string
}

func New(publisher mq.Publisher, exchange string) *Notifier {
	return &Notifier{MQ: publisher, Exchange: exchange}
}

func (n *Notifier) publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", routingKey, err)
	}
	if err := n.MQ.Publish(ctx, n.Exchange, routingKey, body); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (n *Notifier) PublishBookingConfirmed(ctx context.Context, note models.BookingConfirmedNotification) error {
	return n.publish(ctx, models.RouteBookingConfirmed, note)
}

func (n *Notifier) PublishBookingCancelled(ctx context.Context, note models.BookingCancelledNotification) error {
	return n.publish(ctx, models.RouteBookingCancelled, note)
}

func (n *Notifier) PublishTicketGenerated(ctx context.Context, note models.TicketGeneratedNotification) error {
	return n.publish(ctx, models.RouteTicketGenerated, note)
}
