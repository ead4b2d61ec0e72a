package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/ledger"
)

// Ledger is an in-process ledger.Ledger. One mutex covers records and outbox,
// so a claim and its payout instruction become visible together.
type Ledger struct {
	clock func() time.Time

	mu      sync.Mutex
	winners map[string][]domain.WinnerRecord
	closed  map[string]struct{}
	outbox  map[string]queuedPayout
	seq     uint64
}

type queuedPayout struct {
	payout domain.Payout
	seq    uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		clock:   time.Now,
		winners: make(map[string][]domain.WinnerRecord),
		closed:  make(map[string]struct{}),
		outbox:  make(map[string]queuedPayout),
	}
}

func (l *Ledger) Declare(_ context.Context, d ledger.Declaration) ([]domain.WinnerRecord, error) {
	records, err := d.Validate()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.closed[d.ContestID]; ok {
		return nil, domain.ErrContestClosed
	}
	if _, ok := l.winners[d.ContestID]; ok {
		return nil, domain.ErrAlreadyDeclared
	}
	l.winners[d.ContestID] = append([]domain.WinnerRecord(nil), records...)
	return records, nil
}

func (l *Ledger) Claim(_ context.Context, contestID, playerID string) (domain.Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.closed[contestID]; ok {
		return domain.Payout{}, domain.ErrContestClosed
	}

	records := l.winners[contestID]
	for i := range records {
		if records[i].PlayerID != playerID {
			continue
		}
		if records[i].Claimed {
			return domain.Payout{}, domain.ErrAlreadyClaimed
		}
		records[i].Claimed = true
		payout := ledger.NewPayout(records[i], l.clock())
		l.seq++
		l.outbox[payout.ID] = queuedPayout{payout: payout, seq: l.seq}
		return payout, nil
	}
	return domain.Payout{}, fmt.Errorf("%w: %s", domain.ErrNotAWinner, playerID)
}

func (l *Ledger) Close(_ context.Context, contestID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.closed[contestID]; ok {
		return domain.ErrContestClosed
	}
	records, ok := l.winners[contestID]
	if !ok {
		return domain.ErrWinnersNotDeclared
	}
	for _, rec := range records {
		if !rec.Claimed {
			return fmt.Errorf("%w: rank %d (%s)", domain.ErrUnclaimedPrizesRemain, rec.Rank, rec.PlayerID)
		}
	}
	delete(l.winners, contestID)
	l.closed[contestID] = struct{}{}
	return nil
}

func (l *Ledger) Winners(_ context.Context, contestID string) ([]domain.WinnerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.closed[contestID]; ok {
		return nil, domain.ErrContestClosed
	}
	records, ok := l.winners[contestID]
	if !ok {
		return nil, domain.ErrWinnersNotDeclared
	}
	out := append([]domain.WinnerRecord(nil), records...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (l *Ledger) PendingPayouts(_ context.Context, limit int) ([]domain.Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	queued := make([]queuedPayout, 0, len(l.outbox))
	for _, q := range l.outbox {
		queued = append(queued, q)
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].seq < queued[j].seq })
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	out := make([]domain.Payout, len(queued))
	for i, q := range queued {
		out[i] = q.payout
	}
	return out, nil
}

func (l *Ledger) MarkPaid(_ context.Context, ids ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.outbox, id)
	}
	return nil
}
