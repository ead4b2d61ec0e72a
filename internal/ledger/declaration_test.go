package ledger_test

import (
	"errors"
	"testing"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/ledger"
	"contest-settlement/internal/ledger/ledgertest"
	"contest-settlement/internal/ranking"
)

func TestDeclarationValidate(t *testing.T) {
	records, err := ledgertest.Declaration(t, "c-1").Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].PlayerID != "alice" || records[0].Rank != 1 || records[0].PrizeAmount != 600 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Claimed {
		t.Fatalf("records must start unclaimed")
	}
}

func TestDeclarationRejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(d *ledger.Declaration)
		want   error
	}{
		"prize count": {
			mutate: func(d *ledger.Declaration) { d.Prizes = d.Prizes[:1] },
			want:   domain.ErrWinnerCountMismatch,
		},
		"no winners": {
			mutate: func(d *ledger.Declaration) { d.Winners, d.Prizes = nil, nil },
			want:   domain.ErrInvalidWinnerCount,
		},
		"duplicate": {
			mutate: func(d *ledger.Declaration) { d.Winners[1] = d.Winners[0] },
			want:   domain.ErrDuplicateWinner,
		},
		"not a participant": {
			mutate: func(d *ledger.Declaration) { d.Participants = []string{"alice"} },
			want:   domain.ErrWinnerNotParticipant,
		},
		"swapped": {
			mutate: func(d *ledger.Declaration) { d.Winners[0], d.Winners[1] = d.Winners[1], d.Winners[0] },
			want:   domain.ErrOutOfOrderWinners,
		},
		"inflated score": {
			mutate: func(d *ledger.Declaration) { d.Winners[1].NumCorrect = 9 },
			want:   domain.ErrOutOfOrderWinners,
		},
		"rank renumbered": {
			mutate: func(d *ledger.Declaration) { d.Winners[0].Rank = 0 },
			want:   domain.ErrOutOfOrderWinners,
		},
		"skipped finisher": {
			mutate: func(d *ledger.Declaration) {
				d.Policy.MaxWinners = 1
				d.Winners = d.Winners[1:]
				d.Winners[0].Rank = 1
				d.Prizes = d.Prizes[:1]
			},
			want: domain.ErrOutOfOrderWinners,
		},
		"short prefix": {
			mutate: func(d *ledger.Declaration) { d.Winners, d.Prizes = d.Winners[:1], []uint64{900} },
			want:   domain.ErrWinnerCountMismatch,
		},
		"extra winner": {
			mutate: func(d *ledger.Declaration) { d.Policy.MaxWinners = 1 },
			want:   domain.ErrWinnerCountMismatch,
		},
		"no standings": {
			mutate: func(d *ledger.Declaration) {
				d.Standings = nil
				d.Winners = d.Winners[1:]
				d.Winners[0].Rank = 1
				d.Prizes = []uint64{900}
			},
			want: domain.ErrOutOfOrderWinners,
		},
		"ineligible": {
			mutate: func(d *ledger.Declaration) { d.Winners[1].Eligible = false },
			want:   domain.ErrOutOfOrderWinners,
		},
	}
	for name, tc := range cases {
		d := ledgertest.Declaration(t, "c-1")
		tc.mutate(&d)
		if _, err := d.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}

func TestDeclarationAllAreWinners(t *testing.T) {
	d := ledgertest.Declaration(t, "c-1")
	d.Policy = ranking.WinnerPolicy{AllAreWinners: true}
	if _, err := d.Validate(); !errors.Is(err, domain.ErrWinnerCountMismatch) {
		t.Fatalf("expected count mismatch for two of three finishers, got %v", err)
	}

	entries, err := ranking.Rank(d.Standings, d.Policy)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	d.Winners, d.Prizes = ranking.Winners(entries), []uint64{500, 300, 100}
	records, err := d.Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(records) != 3 || records[2].PlayerID != "carol" || records[2].Rank != 3 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestPayoutIDIsStable(t *testing.T) {
	a := ledger.PayoutID("c-1", "alice")
	if a != ledger.PayoutID("c-1", "alice") {
		t.Fatalf("payout id changed between calls")
	}
	if a == ledger.PayoutID("c-1", "bob") || a == ledger.PayoutID("c-2", "alice") {
		t.Fatalf("payout ids collide")
	}
}
