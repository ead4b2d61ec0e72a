// Package ledgertest runs the same behavioural checks against every ledger
// implementation.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/ledger"
	"contest-settlement/internal/ranking"
)

// Factory returns an empty ledger.
type Factory func(t *testing.T) ledger.Ledger

var finish = time.Date(2024, 7, 20, 15, 0, 0, 0, time.UTC)

// Declaration returns a valid two-winner declaration for contestID over
// three finishers: alice, bob, carol.
func Declaration(t *testing.T, contestID string) ledger.Declaration {
	t.Helper()
	standings := []domain.ScoredSubmission{
		{PlayerID: "carol", NumCorrect: 3, FinishedAt: finish.Add(3 * time.Second)},
		{PlayerID: "alice", NumCorrect: 5, FinishedAt: finish.Add(1 * time.Second)},
		{PlayerID: "bob", NumCorrect: 5, FinishedAt: finish.Add(2 * time.Second)},
	}
	policy := ranking.WinnerPolicy{MaxWinners: 2}
	entries, err := ranking.Rank(standings, policy)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	return ledger.Declaration{
		ContestID:    contestID,
		Participants: []string{"alice", "bob", "carol", "dave"},
		Standings:    standings,
		Policy:       policy,
		Winners:      ranking.Winners(entries),
		Prizes:       []uint64{600, 300},
	}
}

// Run exercises l's full state machine.
func Run(t *testing.T, newLedger Factory) {
	t.Run("declare", func(t *testing.T) { testDeclare(t, newLedger(t)) })
	t.Run("declare twice", func(t *testing.T) { testDeclareTwice(t, newLedger(t)) })
	t.Run("rejected declaration writes nothing", func(t *testing.T) { testRejectedDeclaration(t, newLedger(t)) })
	t.Run("claim once", func(t *testing.T) { testClaimOnce(t, newLedger(t)) })
	t.Run("not a winner", func(t *testing.T) { testNotAWinner(t, newLedger(t)) })
	t.Run("close gate", func(t *testing.T) { testCloseGate(t, newLedger(t)) })
	t.Run("close undeclared", func(t *testing.T) { testCloseUndeclared(t, newLedger(t)) })
	t.Run("concurrent claims", func(t *testing.T) { testConcurrentClaims(t, newLedger(t)) })
	t.Run("outbox", func(t *testing.T) { testOutbox(t, newLedger(t)) })
}

func testDeclare(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	records, err := l.Declare(ctx, Declaration(t, "c-1"))
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	if len(records) != 2 || records[0].PlayerID != "alice" || records[1].PlayerID != "bob" {
		t.Fatalf("unexpected records: %+v", records)
	}

	winners, err := l.Winners(ctx, "c-1")
	if err != nil {
		t.Fatalf("winners: %v", err)
	}
	if len(winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(winners))
	}
	for i, w := range winners {
		if w.Rank != i+1 || w.Claimed || w.ContestID != "c-1" {
			t.Fatalf("unexpected winner %d: %+v", i, w)
		}
	}
	if winners[0].PrizeAmount != 600 || winners[1].PrizeAmount != 300 {
		t.Fatalf("unexpected prizes: %+v", winners)
	}
}

func testDeclareTwice(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	if _, err := l.Declare(ctx, Declaration(t, "c-1")); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if _, err := l.Declare(ctx, Declaration(t, "c-1")); !errors.Is(err, domain.ErrAlreadyDeclared) {
		t.Fatalf("expected already declared, got %v", err)
	}
}

func testRejectedDeclaration(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()

	swapped := Declaration(t, "c-1")
	swapped.Winners[0], swapped.Winners[1] = swapped.Winners[1], swapped.Winners[0]
	if _, err := l.Declare(ctx, swapped); !errors.Is(err, domain.ErrOutOfOrderWinners) {
		t.Fatalf("expected out of order, got %v", err)
	}

	outsider := Declaration(t, "c-1")
	outsider.Participants = []string{"bob", "carol"}
	if _, err := l.Declare(ctx, outsider); !errors.Is(err, domain.ErrWinnerNotParticipant) {
		t.Fatalf("expected not participant, got %v", err)
	}

	if _, err := l.Winners(ctx, "c-1"); !errors.Is(err, domain.ErrWinnersNotDeclared) {
		t.Fatalf("rejected declaration left records behind: %v", err)
	}
	if _, err := l.Declare(ctx, Declaration(t, "c-1")); err != nil {
		t.Fatalf("valid declaration after rejection: %v", err)
	}
}

func testClaimOnce(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	if _, err := l.Declare(ctx, Declaration(t, "c-1")); err != nil {
		t.Fatalf("declare: %v", err)
	}

	payout, err := l.Claim(ctx, "c-1", "bob")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if payout.Amount != 300 || payout.Rank != 2 || payout.PlayerID != "bob" {
		t.Fatalf("unexpected payout: %+v", payout)
	}
	if payout.ID != ledger.PayoutID("c-1", "bob") {
		t.Fatalf("unexpected payout id %s", payout.ID)
	}

	if _, err := l.Claim(ctx, "c-1", "bob"); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("expected already claimed, got %v", err)
	}

	winners, _ := l.Winners(ctx, "c-1")
	if winners[0].Claimed || !winners[1].Claimed {
		t.Fatalf("unexpected claim flags: %+v", winners)
	}
	pending, err := l.PendingPayouts(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != payout.ID {
		t.Fatalf("expected exactly one queued payout, got %+v", pending)
	}
}

func testNotAWinner(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	if _, err := l.Declare(ctx, Declaration(t, "c-1")); err != nil {
		t.Fatalf("declare: %v", err)
	}
	for _, player := range []string{"carol", "dave", "mallory"} {
		if _, err := l.Claim(ctx, "c-1", player); !errors.Is(err, domain.ErrNotAWinner) {
			t.Fatalf("%s: expected not a winner, got %v", player, err)
		}
	}
	if _, err := l.Claim(ctx, "c-unknown", "alice"); !errors.Is(err, domain.ErrNotAWinner) {
		t.Fatalf("undeclared contest: expected not a winner, got %v", err)
	}
}

func testCloseGate(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	if _, err := l.Declare(ctx, Declaration(t, "c-1")); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := l.Close(ctx, "c-1"); !errors.Is(err, domain.ErrUnclaimedPrizesRemain) {
		t.Fatalf("expected unclaimed prizes, got %v", err)
	}
	if _, err := l.Claim(ctx, "c-1", "alice"); err != nil {
		t.Fatalf("claim alice: %v", err)
	}
	if err := l.Close(ctx, "c-1"); !errors.Is(err, domain.ErrUnclaimedPrizesRemain) {
		t.Fatalf("expected unclaimed prizes with one left, got %v", err)
	}
	if _, err := l.Claim(ctx, "c-1", "bob"); err != nil {
		t.Fatalf("claim bob: %v", err)
	}
	if err := l.Close(ctx, "c-1"); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := l.Close(ctx, "c-1"); !errors.Is(err, domain.ErrContestClosed) {
		t.Fatalf("expected closed on second close, got %v", err)
	}
	if _, err := l.Claim(ctx, "c-1", "alice"); !errors.Is(err, domain.ErrContestClosed) {
		t.Fatalf("expected closed on claim, got %v", err)
	}
	if _, err := l.Declare(ctx, Declaration(t, "c-1")); !errors.Is(err, domain.ErrContestClosed) {
		t.Fatalf("expected closed on declare, got %v", err)
	}
	if _, err := l.Winners(ctx, "c-1"); !errors.Is(err, domain.ErrContestClosed) {
		t.Fatalf("expected closed on winners, got %v", err)
	}
}

func testCloseUndeclared(t *testing.T, l ledger.Ledger) {
	if err := l.Close(context.Background(), "c-1"); !errors.Is(err, domain.ErrWinnersNotDeclared) {
		t.Fatalf("expected not declared, got %v", err)
	}
}

func testConcurrentClaims(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	if _, err := l.Declare(ctx, Declaration(t, "c-1")); err != nil {
		t.Fatalf("declare: %v", err)
	}

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Claim(ctx, "c-1", "alice")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyClaimed):
				conflicts++
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", attempts-1, successes, conflicts)
	}
	pending, _ := l.PendingPayouts(ctx, attempts)
	if len(pending) != 1 {
		t.Fatalf("expected one payout, got %d", len(pending))
	}
}

func testOutbox(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	for _, id := range []string{"c-1", "c-2"} {
		if _, err := l.Declare(ctx, Declaration(t, id)); err != nil {
			t.Fatalf("declare %s: %v", id, err)
		}
		for _, player := range []string{"alice", "bob"} {
			if _, err := l.Claim(ctx, id, player); err != nil {
				t.Fatalf("claim %s/%s: %v", id, player, err)
			}
		}
	}

	first, err := l.PendingPayouts(ctx, 3)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected limit to apply, got %d", len(first))
	}
	ids := make([]string, len(first))
	for i, p := range first {
		ids[i] = p.ID
	}
	if err := l.MarkPaid(ctx, ids...); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := l.MarkPaid(ctx, "no-such-payout"); err != nil {
		t.Fatalf("mark unknown payout: %v", err)
	}

	rest, err := l.PendingPayouts(ctx, 10)
	if err != nil {
		t.Fatalf("pending after mark: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected one payout left, got %d", len(rest))
	}
	for _, id := range ids {
		if rest[0].ID == id {
			t.Fatalf("paid payout %s still pending", id)
		}
	}
}
