package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-settlement/internal/app"
	"contest-settlement/internal/domain"
)

func TestMessageCarriesEventIdentity(t *testing.T) {
	at := time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)
	event := app.Event{
		ID:         "7c0c7c4e-8d8f-5a59-9d7e-4c3e2f1a0b9d",
		Type:       app.EventPayoutRequested,
		ContestID:  "contest-1",
		OccurredAt: at,
		Payload: domain.Payout{
			ID: "7c0c7c4e-8d8f-5a59-9d7e-4c3e2f1a0b9d", ContestID: "contest-1",
			PlayerID: "alice", Rank: 1, Amount: 537_142, RequestedAt: at,
		},
	}

	msg, err := Message(event)
	require.NoError(t, err)
	assert.Equal(t, event.ID, msg.MessageId)
	assert.Equal(t, app.EventPayoutRequested, msg.Type)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "contest-1", msg.Headers["contest_id"])
	assert.True(t, msg.Timestamp.Equal(at))

	decoded, payload, err := Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.Type, decoded.Type)
	assert.True(t, decoded.OccurredAt.Equal(at))

	var p domain.Payout
	require.NoError(t, json.Unmarshal(payload, &p))
	assert.Equal(t, "alice", p.PlayerID)
	assert.Equal(t, uint64(537_142), p.Amount)
}

func TestMessageRejectsUnencodablePayload(t *testing.T) {
	_, err := Message(app.Event{ID: "x", Type: app.EventContestClosed, Payload: make(chan int)})
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestDispatch(t *testing.T) {
	msg, err := Message(app.Event{ID: "e1", Type: app.EventContestClosed, ContestID: "c1"})
	require.NoError(t, err)

	var got app.Event
	require.NoError(t, dispatch(msg.Body, func(e app.Event, _ json.RawMessage) error {
		got = e
		return nil
	}))
	assert.Equal(t, "c1", got.ContestID)

	err = dispatch([]byte("{"), func(app.Event, json.RawMessage) error { return nil })
	assert.True(t, isDecodeError(err))

	handlerErr := dispatch(msg.Body, func(app.Event, json.RawMessage) error { return assert.AnError })
	assert.False(t, isDecodeError(handlerErr))
}
