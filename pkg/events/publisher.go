// Package events publishes listening events to RabbitMQ for the author
// dashboard analytics pipeline. Publishing is fire-and-forget: failures are
// logged and never surface to transport controls.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const exchange = "chapterly.listening"

// Event is one playback transition.
type Event struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	SessionKey   string    `json:"sessionKey"`
	BookID       string    `json:"bookId,omitempty"`
	ChapterIndex int       `json:"chapterIndex"`
	PositionMs   int64     `json:"positionMs"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Publisher emits listening events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// AMQPPublisher publishes events to a RabbitMQ topic exchange, routed by
// event type.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPPublisher dials RabbitMQ and declares the listening exchange.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: channel}, nil
}

// Publish sends one event, filling ID and OccurredAt when absent.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, exchange, ev.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   ev.ID,
		Timestamp:   ev.OccurredAt,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
