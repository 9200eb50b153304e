// Package amqp publishes and consumes ledger events over RabbitMQ.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyTransactionAdded = "transaction.added"
	RoutingKeyPeriodClosed     = "period.closed"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// One queue receives both event kinds; consumers branch on routing key.
	for _, key := range []string{RoutingKeyTransactionAdded, RoutingKeyPeriodClosed} {
		if err := c.channel.QueueBind(c.queueName, key, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue for %s: %w", key, err)
		}
	}

	return nil
}

// PublishTransactionAdded announces an ingested transaction. Callers treat a
// publish failure as a degraded notification, never as an ingestion failure.
func (c *Client) PublishTransactionAdded(ctx context.Context, msg *TransactionAddedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, RoutingKeyTransactionAdded, body)
}

// PublishPeriodClosed announces a completed rollover.
func (c *Client) PublishPeriodClosed(ctx context.Context, msg *PeriodClosedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, RoutingKeyPeriodClosed, body)
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	slog.DebugContext(ctx, "Published ledger event",
		"routing_key", routingKey,
		"exchange", c.exchangeName)

	return nil
}

// Handlers receives decoded events from Consume. A nil handler skips that
// event kind with an ack.
type Handlers struct {
	TransactionAdded func(*TransactionAddedMessage) error
	PeriodClosed     func(*PeriodClosedMessage) error
}

// Consume processes ledger events until the context is cancelled. Handler
// failures nack with requeue; undecodable messages are dropped.
func (c *Client) Consume(ctx context.Context, handlers Handlers) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ledger events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.dispatch(ctx, delivery, handlers)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, delivery amqp091.Delivery, handlers Handlers) {
	var err error
	switch delivery.RoutingKey {
	case RoutingKeyTransactionAdded:
		if handlers.TransactionAdded == nil {
			delivery.Ack(false)
			return
		}
		var msg *TransactionAddedMessage
		if msg, err = TransactionAddedMessageFromJSON(delivery.Body); err == nil {
			err = handlers.TransactionAdded(msg)
		} else {
			slog.ErrorContext(ctx, "Failed to unmarshal message",
				"routing_key", delivery.RoutingKey, "error", err)
			delivery.Nack(false, false)
			return
		}
	case RoutingKeyPeriodClosed:
		if handlers.PeriodClosed == nil {
			delivery.Ack(false)
			return
		}
		var msg *PeriodClosedMessage
		if msg, err = PeriodClosedMessageFromJSON(delivery.Body); err == nil {
			err = handlers.PeriodClosed(msg)
		} else {
			slog.ErrorContext(ctx, "Failed to unmarshal message",
				"routing_key", delivery.RoutingKey, "error", err)
			delivery.Nack(false, false)
			return
		}
	default:
		slog.WarnContext(ctx, "Unknown routing key, dropping",
			"routing_key", delivery.RoutingKey)
		delivery.Nack(false, false)
		return
	}

	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle event",
			"routing_key", delivery.RoutingKey, "error", err)
		delivery.Nack(false, true)
		return
	}
	delivery.Ack(false)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
