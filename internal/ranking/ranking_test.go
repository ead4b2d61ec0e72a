package ranking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-settlement/internal/domain"
)

var start = time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)

func sub(player string, correct int, after time.Duration) domain.ScoredSubmission {
	return domain.ScoredSubmission{PlayerID: player, NumCorrect: correct, FinishedAt: start.Add(after)}
}

func players(entries []domain.RankedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PlayerID
	}
	return out
}

func TestRankByScoreThenTime(t *testing.T) {
	scored := []domain.ScoredSubmission{
		sub("dave", 7, 4*time.Second),
		sub("bob", 9, 2*time.Second),
		sub("alice", 10, 1*time.Second),
		sub("carol", 8, 3*time.Second),
	}

	entries, err := Rank(scored, WinnerPolicy{MaxWinners: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, players(entries))
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
		assert.True(t, e.Eligible)
	}
	assert.Equal(t, "dave", scored[0].PlayerID, "input must not be reordered")
}

func TestEarlierFinishWinsEqualScore(t *testing.T) {
	entries, err := Rank([]domain.ScoredSubmission{
		sub("late", 5, 9*time.Second),
		sub("early", 5, 3*time.Second),
	}, WinnerPolicy{MaxWinners: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, players(entries))
	assert.True(t, entries[0].Eligible)
	assert.False(t, entries[1].Eligible)
}

func TestFullTieUsesPlayerIdentity(t *testing.T) {
	a := sub("player-b", 4, time.Second)
	b := sub("player-a", 4, time.Second)

	first, err := Rank([]domain.ScoredSubmission{a, b}, WinnerPolicy{MaxWinners: 2})
	require.NoError(t, err)
	second, err := Rank([]domain.ScoredSubmission{b, a}, WinnerPolicy{MaxWinners: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"player-a", "player-b"}, players(first))
	assert.Equal(t, players(first), players(second))
	assert.NotEqual(t, first[0].Rank, first[1].Rank)
}

func TestRanksAreUniqueAndGapFree(t *testing.T) {
	var scored []domain.ScoredSubmission
	for i := 0; i < 50; i++ {
		scored = append(scored, sub(fmt.Sprintf("p%02d", 49-i), i%3, time.Duration(i%2)*time.Second))
	}
	entries, err := Rank(scored, WinnerPolicy{MaxWinners: 5})
	require.NoError(t, err)
	require.Len(t, entries, 50)

	seen := make(map[string]bool)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
		assert.False(t, seen[e.PlayerID])
		seen[e.PlayerID] = true
		if i > 0 {
			assert.True(t, Less(entries[i-1].ScoredSubmission, e.ScoredSubmission))
		}
	}
	assert.Len(t, Winners(entries), 5)
}

func TestAllAreWinnersOverridesCap(t *testing.T) {
	entries, err := Rank([]domain.ScoredSubmission{
		sub("a", 1, 0), sub("b", 2, 0), sub("c", 3, 0),
	}, WinnerPolicy{MaxWinners: 1, AllAreWinners: true})
	require.NoError(t, err)
	assert.Len(t, Winners(entries), 3)
}

func TestRankEmpty(t *testing.T) {
	_, err := Rank(nil, WinnerPolicy{MaxWinners: 3})
	assert.ErrorIs(t, err, domain.ErrNoEligibleEntries)
}
