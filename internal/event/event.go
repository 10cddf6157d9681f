// Package event publishes lifecycle events (matches, room open and close) to
// RabbitMQ so other services can react to them.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"matchroom/backend/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event is the JSON body of every published message.
type Event struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"room_id,omitempty"`
	UserIDs []string `json:"user_ids,omitempty"`
	At      int64    `json:"at"`
}

// New stamps an event with the current time in unix milliseconds.
func New(eventType, roomID string, userIDs ...string) Event {
	return Event{Type: eventType, RoomID: roomID, UserIDs: userIDs, At: time.Now().UnixMilli()}
}

type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// Nop drops every event. Used when AMQP_URL is not configured.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// RabbitEmitter publishes events on a durable topic exchange, routed by type.
type RabbitEmitter struct {
	conn     *amqp.Connection
	exchange string

	mu      sync.Mutex
	channel *amqp.Channel
}

// Dial connects to RabbitMQ and declares the exchange.
func Dial(url, exchange string) (*RabbitEmitter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		logger.Error("Failed to open RabbitMQ channel", "error", err)
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,          // exchange name
		ExchangeTypeTopic, // type
		true,              // durable
		false,             // autoDelete
		false,             // internal
		false,             // noWait
		nil,               // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &RabbitEmitter{conn: conn, exchange: exchange, channel: ch}, nil
}

func (r *RabbitEmitter) Emit(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing.
	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(ctx,
		r.exchange, // exchange name
		e.Type,     // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.UnixMilli(e.At),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", e.Type, err)
	}
	return nil
}

func (r *RabbitEmitter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.channel.Close(); err != nil {
		logger.Warn("Failed to close RabbitMQ channel", "error", err)
	}
	return r.conn.Close()
}

// EmitLogged emits e and logs any failure instead of returning it.
func EmitLogged(ctx context.Context, em Emitter, e Event) {
	if em == nil {
		return
	}
	if err := em.Emit(ctx, e); err != nil {
		logger.Error("Failed to emit event", "type", e.Type, "room_id", e.RoomID, "error", err)
	}
}
