// Package events publishes reservation lifecycle events to RabbitMQ. Failures
// are returned to the caller, which logs them without failing the request.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mojochat/internal/config"
	"mojochat/internal/metrics"
)

const (
	ReservationCreated = "reservation.created"
	ReservationPaid    = "reservation.paid"
)

// ReservationEvent is the JSON body of every reservation message.
type ReservationEvent struct {
	Type                string    `json:"type"`
	ReservationID       string    `json:"reservationId"`
	UserID              string    `json:"userId"`
	HasCompletedPayment bool      `json:"hasCompletedPayment"`
	OccurredAt          time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, ev ReservationEvent) error
	Close() error
}

// New returns an AMQP publisher, or a no-op one when no broker URL is configured.
func New(cfg config.RabbitMQConfig) (Publisher, error) {
	if cfg.URL == "" {
		return Nop{}, nil
	}
	return NewAMQPPublisher(cfg.URL, cfg.Exchange)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, ReservationEvent) error { return nil }
func (Nop) Close() error                                    { return nil }

// AMQPPublisher holds one connection and channel for the process lifetime.
type AMQPPublisher struct {
	exchange string
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = "mojochat.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	return &AMQPPublisher{exchange: exchange, conn: conn, ch: ch}, nil
}

// Publish sends ev as a persistent JSON message routed by its type.
func (p *AMQPPublisher) Publish(ctx context.Context, ev ReservationEvent) error {
	if ev.Type == "" {
		return errors.New("event type is required")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, pub)
	p.mu.Unlock()
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	metrics.EventsPublishedTotal.WithLabelValues(ev.Type, "ok").Inc()
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	chErr := p.ch.Close()
	connErr := p.conn.Close()
	return errors.Join(chErr, connErr)
}
