package redis

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"contest-settlement/internal/ledger"
	"contest-settlement/internal/ledger/ledgertest"
)

func TestLedger(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("run miniredis: %v", err)
		}
		t.Cleanup(mr.Close)
		return NewLedger(newClient(mr))
	})
}

func TestLedgerKeepsClaimAndOutboxTogether(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	l := NewLedger(newClient(mr))
	ctx := context.Background()

	if _, err := l.Declare(ctx, ledgertest.Declaration(t, "c-1")); err != nil {
		t.Fatalf("declare: %v", err)
	}
	payout, err := l.Claim(ctx, "c-1", "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if got := mr.HGet("ledger:contest:c-1:claimed", "alice"); got != "1" {
		t.Fatalf("expected claimed flag, got %q", got)
	}
	if mr.HGet(outboxKey, payout.ID) == "" {
		t.Fatalf("expected outbox entry for %s", payout.ID)
	}

	pending, err := l.PendingPayouts(ctx, 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Amount != 600 || !pending[0].RequestedAt.Equal(payout.RequestedAt) {
		t.Fatalf("outbox does not match claim: %+v vs %+v", pending, payout)
	}
}

func TestDecodeOutboxEntry(t *testing.T) {
	p, err := decodeOutboxEntry("id-1", "c-1\t2\t300\t1700000000000000000\tplayer\twith tab")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.PlayerID != "player\twith tab" || p.Rank != 2 || p.Amount != 300 {
		t.Fatalf("unexpected payout: %+v", p)
	}
	if _, err := decodeOutboxEntry("id-2", "c-1\tx"); !errors.Is(err, errBadOutboxEntry) {
		t.Fatalf("expected malformed entry, got %v", err)
	}
}
