// Package mq wraps the broker connection and channel in a scoped resource.
// The rest of the core depends on the narrow Publisher capability rather
// than a concrete connection, so it can be substituted with a fake in tests.
package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the outbound capability handed to services.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker and opens the single channel the process
// uses. Close releases both.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Client{conn: conn, ch: ch}, nil
}

// DeclareTopicExchange declares a durable topic exchange. Idempotent on the
// broker side.
func (c *Client) DeclareTopicExchange(name string) error {
	if err := c.ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// Publish sends a persistent JSON message to the given exchange and routing
// key. Delivery is at-least-once; callers treat failures as log-and-continue.
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return c.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Subscribe declares a durable queue bound to the given routing keys and
// starts delivering with manual acknowledgement. prefetch=1 keeps message
// processing single-concurrency per consumer instance, which is what the
// cascade-cancellation path relies on.
func (c *Client) Subscribe(ctx context.Context, exchange, queue string, routingKeys []string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	q, err := c.ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, rk := range routingKeys {
		if err := c.ch.QueueBind(q.Name, rk, exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", q.Name, rk, err)
		}
	}
	return c.ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
}

func (c *Client) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
