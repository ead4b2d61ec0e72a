// Package ranking orders scored submissions into a total, gap-free ranking.
package ranking

import (
	"sort"

	"contest-settlement/internal/domain"
)

// WinnerPolicy decides how many ranked entries are eligible for a prize.
type WinnerPolicy struct {
	MaxWinners    int
	AllAreWinners bool
}

// Eligible returns how many of n ranked entries win under p.
func (p WinnerPolicy) Eligible(n int) int {
	if p.AllAreWinners || p.MaxWinners >= n {
		return n
	}
	if p.MaxWinners < 0 {
		return 0
	}
	return p.MaxWinners
}

// IdentityTieBreak is the last ordering key: equal score and equal finish
// time fall back to byte-wise comparison of player IDs. The choice is
// arbitrary but fixed, so every verifier derives the same ranks.
func IdentityTieBreak(a, b string) bool {
	return a < b
}

// Less reports whether a finishes ahead of b: more correct answers first,
// then the earlier finish, then IdentityTieBreak.
func Less(a, b domain.ScoredSubmission) bool {
	if a.NumCorrect != b.NumCorrect {
		return a.NumCorrect > b.NumCorrect
	}
	if !a.FinishedAt.Equal(b.FinishedAt) {
		return a.FinishedAt.Before(b.FinishedAt)
	}
	return IdentityTieBreak(a.PlayerID, b.PlayerID)
}

// Rank sorts scored and assigns ranks 1..n. The input slice is not modified.
func Rank(scored []domain.ScoredSubmission, policy WinnerPolicy) ([]domain.RankedEntry, error) {
	if len(scored) == 0 {
		return nil, domain.ErrNoEligibleEntries
	}

	ordered := append([]domain.ScoredSubmission(nil), scored...)
	sort.Slice(ordered, func(i, j int) bool { return Less(ordered[i], ordered[j]) })

	eligible := policy.Eligible(len(ordered))
	entries := make([]domain.RankedEntry, len(ordered))
	for i, s := range ordered {
		entries[i] = domain.RankedEntry{
			ScoredSubmission: s,
			Rank:             i + 1,
			Eligible:         i < eligible,
		}
	}
	return entries, nil
}

// Winners returns the eligible prefix of entries.
func Winners(entries []domain.RankedEntry) []domain.RankedEntry {
	n := 0
	for n < len(entries) && entries[n].Eligible {
		n++
	}
	return entries[:n]
}
