package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"contest-settlement/internal/app"
	"contest-settlement/internal/domain"
)

// ContestStore is a Redis-aware implementation of app.ContestStore.
// Notes:
//   - Live contests stay in a local map so subscriptions keep using the
//     in-process broadcast.
//   - Redis holds a JSON view of each contest (contest:{id}) that is refreshed
//     on every change, so other instances and dashboards can read pool, status
//     and counts without asking this process.
//   - Closed contests get a shorter TTL; their results live in the ledger.
type ContestStore struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.RWMutex
	contests map[string]*app.Contest
}

func NewContestStore(client *redis.Client, ttl time.Duration) *ContestStore {
	return &ContestStore{
		client:   client,
		ttl:      ttl,
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

// Sync writes the contest view; failures are ignored.
func (s *ContestStore) Sync(contest *app.Contest) {
	view := contest.View()
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	ttl := s.ttl
	if view.Status == domain.StatusClosed && ttl > time.Minute {
		ttl = time.Minute
	}
	_ = s.client.Set(context.Background(), s.key(contest.ID()), raw, ttl).Err()
}

// View reads the projected view of a contest, which may belong to another
// instance.
func (s *ContestStore) View(ctx context.Context, contestID string) (domain.ContestView, error) {
	raw, err := s.client.Get(ctx, s.key(contestID)).Bytes()
	if err == redis.Nil {
		return domain.ContestView{}, domain.ErrContestNotFound
	}
	if err != nil {
		return domain.ContestView{}, fmt.Errorf("read contest view: %w", err)
	}
	var view domain.ContestView
	if err := json.Unmarshal(raw, &view); err != nil {
		return domain.ContestView{}, fmt.Errorf("decode contest view: %w", err)
	}
	return view, nil
}

func (s *ContestStore) key(contestID string) string {
	return "contest:" + contestID
}
