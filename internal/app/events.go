package app

import (
	"context"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
)

// Event types published on the settlement queue.
const (
	EventWinnersDeclared = "winners.declared"
	EventPayoutRequested = "payout.requested"
	EventContestClosed   = "contest.closed"
)

// Event is one lifecycle notification. ID doubles as the idempotency key.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	ContestID  string      `json:"contestId"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload,omitempty"`
}

func newEvent(eventType, contestID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ContestID:  contestID,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the log; used when no broker is configured.
type LogPublisher struct {
	log slog.Logger
}

func NewLogPublisher(log slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.log.Infof("Event %s for contest %s (%s)", event.Type, event.ContestID, event.ID)
	return nil
}
