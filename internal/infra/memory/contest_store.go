package memory

import (
	"fmt"
	"sync"

	"contest-settlement/internal/app"
	"contest-settlement/internal/domain"
)

// ContestStore is an in-memory implementation of app.ContestStore.
type ContestStore struct {
	mu       sync.RWMutex
	contests map[string]*app.Contest
}

func NewContestStore() *ContestStore {
	return &ContestStore{
		contests: make(map[string]*app.Contest),
	}
}

func (s *ContestStore) Create(contest *app.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contests[contest.ID()]; ok {
		return fmt.Errorf("%w: contest %s already exists", domain.ErrInvalidContest, contest.ID())
	}
	s.contests[contest.ID()] = contest
	return nil
}

func (s *ContestStore) Get(contestID string) (*app.Contest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contest, ok := s.contests[contestID]
	return contest, ok
}

// Sync is a no-op; the map holds the live contest.
func (s *ContestStore) Sync(*app.Contest) {}
