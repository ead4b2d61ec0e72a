// Package rabbitmq publishes settlement events to a durable queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"contest-settlement/internal/app"
)

// DefaultQueue receives every settlement event.
const DefaultQueue = "settlement.events"

// Publisher implements app.Publisher on one AMQP channel.
type Publisher struct {
	conn  *amqp.Connection
	queue string

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewPublisher dials url and declares queue.
func NewPublisher(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p := &Publisher{conn: conn, queue: queue, channel: channel}
	if err := p.declare(); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return p, nil
}

func (p *Publisher) declare() error {
	_, err := p.channel.QueueDeclare(
		p.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

// Publish sends event as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, event app.Event) error {
	msg, err := Message(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Queue is the routing key events are published under.
func (p *Publisher) Queue() string {
	return p.queue
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Message encodes event. The event ID becomes the message ID so consumers
// can drop redeliveries.
func Message(event app.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.OccurredAt,
		Headers:      amqp.Table{"contest_id": event.ContestID},
		Body:         body,
	}, nil
}

// Decode reads an event envelope back from a delivery body. The payload is
// left as raw JSON.
func Decode(body []byte) (app.Event, json.RawMessage, error) {
	var envelope struct {
		app.Event
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return app.Event{}, nil, fmt.Errorf("decode event: %w", err)
	}
	event := envelope.Event
	event.Payload = nil
	return event, envelope.Payload, nil
}
