// Package ledger records declared winners and enforces that each of them is
// paid exactly once.
//
// A record moves Unclaimed -> Claimed and never back. The transition and the
// payout instruction it produces are written together, so a crash between
// "flag set" and "instruction recorded" cannot happen. Instructions wait in an
// outbox until a relay hands them to the payment side.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"contest-settlement/internal/domain"
)

// Ledger is implemented by every winner store.
type Ledger interface {
	// Declare validates d and writes all of its records at once.
	Declare(ctx context.Context, d Declaration) ([]domain.WinnerRecord, error)
	// Claim flips the player's record to claimed and queues its payout.
	Claim(ctx context.Context, contestID, playerID string) (domain.Payout, error)
	// Close releases a contest whose prizes are all claimed.
	Close(ctx context.Context, contestID string) error
	// Winners lists records by rank.
	Winners(ctx context.Context, contestID string) ([]domain.WinnerRecord, error)
	// PendingPayouts returns up to limit queued payouts, oldest first.
	PendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error)
	// MarkPaid removes delivered payouts from the outbox.
	MarkPaid(ctx context.Context, ids ...string) error
}

var payoutNamespace = uuid.MustParse("6f1d8c2e-51a4-4e8b-9d67-3c0b2a7e4f19")

// PayoutID is stable for a contest and player, so a relay retry carries the
// same idempotency key.
func PayoutID(contestID, playerID string) string {
	return uuid.NewSHA1(payoutNamespace, []byte(contestID+"\x00"+playerID)).String()
}

// NewPayout builds the instruction for a record that has just been claimed.
func NewPayout(rec domain.WinnerRecord, at time.Time) domain.Payout {
	return domain.Payout{
		ID:          PayoutID(rec.ContestID, rec.PlayerID),
		ContestID:   rec.ContestID,
		PlayerID:    rec.PlayerID,
		Rank:        rec.Rank,
		Amount:      rec.PrizeAmount,
		RequestedAt: at.UTC(),
	}
}
