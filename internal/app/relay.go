package app

import (
	"context"
	"time"

	"github.com/decred/slog"

	"contest-settlement/internal/ledger"
)

const relayBatchSize = 100

// PayoutRelay moves claimed payouts from the ledger outbox to the publisher.
// A payout leaves the outbox only after it was published, so delivery is at
// least once and consumers dedupe on the payout ID.
type PayoutRelay struct {
	ledger    ledger.Ledger
	publisher Publisher
	log       slog.Logger
	now       func() time.Time
}

func NewPayoutRelay(l ledger.Ledger, publisher Publisher, log slog.Logger) *PayoutRelay {
	return &PayoutRelay{ledger: l, publisher: publisher, log: log, now: time.Now}
}

// RunOnce publishes one batch and returns how many payouts were delivered.
func (r *PayoutRelay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.ledger.PendingPayouts(ctx, relayBatchSize)
	if err != nil {
		return 0, err
	}

	delivered := make([]string, 0, len(pending))
	var publishErr error
	for _, p := range pending {
		event := Event{
			ID:         p.ID,
			Type:       EventPayoutRequested,
			ContestID:  p.ContestID,
			OccurredAt: r.now().UTC(),
			Payload:    p,
		}
		if publishErr = r.publisher.Publish(ctx, event); publishErr != nil {
			r.log.Warnf("Publishing payout %s failed: %v", p.ID, publishErr)
			break
		}
		delivered = append(delivered, p.ID)
	}

	if len(delivered) > 0 {
		if err := r.ledger.MarkPaid(ctx, delivered...); err != nil {
			return 0, err
		}
		r.log.Debugf("Relayed %d payouts", len(delivered))
	}
	return len(delivered), publishErr
}

// Run drains the outbox every interval until ctx is done.
func (r *PayoutRelay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Errorf("Payout relay: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
