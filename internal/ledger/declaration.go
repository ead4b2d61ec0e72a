package ledger

import (
	"fmt"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/ranking"
)

// Declaration is the winner set a settlement wants to write.
type Declaration struct {
	ContestID    string
	Participants []string
	// Standings are every scored submission of the contest; the winners must
	// be exactly the eligible head of their canonical ranking under Policy.
	Standings []domain.ScoredSubmission
	Policy    ranking.WinnerPolicy
	Winners   []domain.RankedEntry
	Prizes    []uint64
}

// Validate checks d without touching any state and returns the records to
// write.
func (d Declaration) Validate() ([]domain.WinnerRecord, error) {
	if d.ContestID == "" {
		return nil, fmt.Errorf("%w: missing contest id", domain.ErrInvalidContest)
	}
	if len(d.Winners) == 0 {
		return nil, fmt.Errorf("%w: no winners", domain.ErrInvalidWinnerCount)
	}
	if len(d.Prizes) != len(d.Winners) {
		return nil, fmt.Errorf("%w: %d prizes for %d winners", domain.ErrWinnerCountMismatch, len(d.Prizes), len(d.Winners))
	}

	participants := make(map[string]struct{}, len(d.Participants))
	for _, p := range d.Participants {
		participants[p] = struct{}{}
	}
	seen := make(map[string]struct{}, len(d.Winners))
	for _, w := range d.Winners {
		if _, dup := seen[w.PlayerID]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateWinner, w.PlayerID)
		}
		seen[w.PlayerID] = struct{}{}
		if _, ok := participants[w.PlayerID]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrWinnerNotParticipant, w.PlayerID)
		}
	}

	if err := d.checkOrder(); err != nil {
		return nil, err
	}

	records := make([]domain.WinnerRecord, len(d.Winners))
	for i, w := range d.Winners {
		records[i] = domain.WinnerRecord{
			ContestID:   d.ContestID,
			PlayerID:    w.PlayerID,
			Rank:        w.Rank,
			PrizeAmount: d.Prizes[i],
		}
	}
	return records, nil
}

// checkOrder recomputes the ranking from the standings and requires the
// winners to be its eligible prefix exactly, ranks included.
func (d Declaration) checkOrder() error {
	if len(d.Standings) == 0 {
		return fmt.Errorf("%w: declaration has no standings", domain.ErrOutOfOrderWinners)
	}
	canonical, err := ranking.Rank(d.Standings, d.Policy)
	if err != nil {
		return err
	}
	if want := len(ranking.Winners(canonical)); len(d.Winners) != want {
		return fmt.Errorf("%w: %d winners declared, ranking has %d", domain.ErrWinnerCountMismatch, len(d.Winners), want)
	}

	for i, w := range d.Winners {
		want := canonical[i]
		if !w.Eligible {
			return fmt.Errorf("%w: %s at position %d is not eligible", domain.ErrOutOfOrderWinners, w.PlayerID, i+1)
		}
		if w.PlayerID != want.PlayerID || w.Rank != want.Rank ||
			w.NumCorrect != want.NumCorrect || !w.FinishedAt.Equal(want.FinishedAt) {
			return fmt.Errorf("%w: position %d is %s, ranking has %s", domain.ErrOutOfOrderWinners, i+1, w.PlayerID, want.PlayerID)
		}
	}
	return nil
}
