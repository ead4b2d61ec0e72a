package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"contest-settlement/internal/app"
)

// Handler receives one decoded event with its raw payload.
type Handler func(event app.Event, payload json.RawMessage) error

// Consume delivers events from queue to handle until ctx is done. A message
// is acked after handle returns nil and requeued otherwise; undecodable
// messages are dropped.
func Consume(ctx context.Context, url, queue string, handle Handler) error {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	deliveries, err := channel.Consume(
		queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := dispatch(d.Body, handle); err != nil {
				_ = d.Nack(false, !isDecodeError(err))
				continue
			}
			_ = d.Ack(false)
		}
	}
}

type decodeError struct{ error }

func isDecodeError(err error) bool {
	_, ok := err.(decodeError)
	return ok
}

func dispatch(body []byte, handle Handler) error {
	event, payload, err := Decode(body)
	if err != nil {
		return decodeError{err}
	}
	return handle(event, payload)
}
