package app

import (
	"fmt"
	"sync"
	"time"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/ranking"
)

// Contest is the in-memory state of one contest between creation and close.
type Contest struct {
	id        string
	params    domain.ContestParams
	createdAt time.Time
	now       func() time.Time

	mu           sync.RWMutex
	status       domain.ContestStatus
	settling     bool
	pool         uint64
	participants map[string]time.Time
	joinOrder    []string
	scored       map[string]domain.ScoredSubmission
	standings    []domain.RankedEntry
	settlement   *domain.Settlement
	subscribers  map[chan domain.Standings]struct{}
}

// NewContest is exported for infrastructure layers that rebuild contests.
func NewContest(id string, params domain.ContestParams) *Contest {
	return NewContestWithClock(id, params, time.Now)
}

// NewContestWithClock allows deterministic timestamps in tests.
func NewContestWithClock(id string, params domain.ContestParams, now func() time.Time) *Contest {
	return &Contest{
		id:           id,
		params:       params,
		createdAt:    now(),
		now:          now,
		status:       domain.StatusOpen,
		pool:         params.Donation,
		participants: make(map[string]time.Time),
		scored:       make(map[string]domain.ScoredSubmission),
		subscribers:  make(map[chan domain.Standings]struct{}),
	}
}

func (c *Contest) ID() string {
	return c.id
}

// Params returns the contest parameters, commission included.
func (c *Contest) Params() domain.ContestParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// View is a read-only snapshot.
func (c *Contest) View() domain.ContestView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewLocked()
}

func (c *Contest) viewLocked() domain.ContestView {
	return domain.ContestView{
		ID:           c.id,
		Params:       c.params,
		Status:       c.status,
		Pool:         c.pool,
		Participants: len(c.participants),
		Submissions:  len(c.scored),
		CreatedAt:    c.createdAt,
	}
}

// checkOpenLocked rejects changes once settlement has started.
func (c *Contest) checkOpenLocked() error {
	switch {
	case c.status == domain.StatusClosed:
		return domain.ErrContestClosed
	case c.status == domain.StatusSettled || c.settling:
		return domain.ErrContestSettled
	}
	return nil
}

func (c *Contest) join(playerID string) (domain.ContestView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return domain.ContestView{}, err
	}
	if _, ok := c.participants[playerID]; ok {
		return domain.ContestView{}, domain.ErrAlreadyJoined
	}
	if err := c.addToPoolLocked(c.params.EntryFee); err != nil {
		return domain.ContestView{}, err
	}
	c.participants[playerID] = c.now()
	c.joinOrder = append(c.joinOrder, playerID)
	c.broadcastLocked()
	return c.viewLocked(), nil
}

func (c *Contest) donate(amount uint64) (domain.ContestView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return domain.ContestView{}, err
	}
	if err := c.addToPoolLocked(amount); err != nil {
		return domain.ContestView{}, err
	}
	c.params.Donation += amount
	return c.viewLocked(), nil
}

func (c *Contest) addToPoolLocked(amount uint64) error {
	if c.pool+amount < c.pool {
		return fmt.Errorf("%w: pool overflow", domain.ErrInvalidContest)
	}
	c.pool += amount
	return nil
}

func (c *Contest) setCommission(bps uint16) (domain.ContestView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return domain.ContestView{}, err
	}
	c.params.CommissionBps = bps
	return c.viewLocked(), nil
}

// checkCanSubmit is the cheap precondition run before verifying answers.
func (c *Contest) checkCanSubmit(playerID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkCanSubmitLocked(playerID)
}

func (c *Contest) checkCanSubmitLocked(playerID string) error {
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	if _, ok := c.participants[playerID]; !ok {
		return domain.ErrParticipantNotFound
	}
	if _, ok := c.scored[playerID]; ok {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (c *Contest) recordSubmission(scored domain.ScoredSubmission) (domain.Standings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkCanSubmitLocked(scored.PlayerID); err != nil {
		return domain.Standings{}, err
	}
	c.scored[scored.PlayerID] = scored
	return c.broadcastLocked(), nil
}

// settlementInput is the frozen state a settlement is computed from.
type settlementInput struct {
	params       domain.ContestParams
	pool         uint64
	participants []string
	scored       []domain.ScoredSubmission
}

// beginSettlement freezes the contest. Joins and submissions fail until
// finishSettlement or abortSettlement.
func (c *Contest) beginSettlement() (settlementInput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.status == domain.StatusClosed:
		return settlementInput{}, domain.ErrContestClosed
	case c.status == domain.StatusSettled || c.settling:
		return settlementInput{}, domain.ErrAlreadyDeclared
	case len(c.scored) == 0:
		return settlementInput{}, domain.ErrNoSubmissions
	}
	c.settling = true

	in := settlementInput{
		params:       c.params,
		pool:         c.pool,
		participants: append([]string(nil), c.joinOrder...),
		scored:       make([]domain.ScoredSubmission, 0, len(c.scored)),
	}
	for _, playerID := range c.joinOrder {
		if s, ok := c.scored[playerID]; ok {
			in.scored = append(in.scored, s)
		}
	}
	return in, nil
}

func (c *Contest) abortSettlement() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settling = false
}

func (c *Contest) finishSettlement(standings []domain.RankedEntry, settlement domain.Settlement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settling = false
	c.status = domain.StatusSettled
	c.standings = standings
	c.settlement = &settlement
	c.broadcastLocked()
}

func (c *Contest) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = domain.StatusClosed
	if c.settlement != nil {
		for i := range c.settlement.Winners {
			c.settlement.Winners[i].Claimed = true
		}
	}
	c.broadcastLocked()
}

// results returns the final ranking and settlement; nil settlement means the
// contest has not settled yet.
func (c *Contest) results() (domain.ContestView, []domain.RankedEntry, *domain.Settlement) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.settlement == nil {
		return c.viewLocked(), nil, nil
	}
	settlement := *c.settlement
	settlement.Winners = append([]domain.WinnerRecord(nil), c.settlement.Winners...)
	return c.viewLocked(), append([]domain.RankedEntry(nil), c.standings...), &settlement
}

func (c *Contest) subscribe() (<-chan domain.Standings, func()) {
	ch := make(chan domain.Standings, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	initial := c.snapshotLocked()
	c.mu.Unlock()

	ch <- initial

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Contest) broadcastLocked() domain.Standings {
	standings := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- standings:
		default:
			// slow consumer: drop its stale update for the newest one
			select {
			case <-ch:
			default:
			}
			ch <- standings
		}
	}
	return standings
}

// snapshotLocked ranks the current submissions. Until settlement the answers
// and their proofs are withheld.
func (c *Contest) snapshotLocked() domain.Standings {
	if c.settlement != nil {
		return domain.Standings{ContestID: c.id, Entries: c.standings, UpdatedAt: c.now()}
	}

	scored := make([]domain.ScoredSubmission, 0, len(c.scored))
	for _, s := range c.scored {
		s.Answers = nil
		scored = append(scored, s)
	}
	entries, err := ranking.Rank(scored, ranking.WinnerPolicy{
		MaxWinners:    c.params.MaxWinners,
		AllAreWinners: c.params.AllAreWinners,
	})
	if err != nil {
		entries = nil
	}
	return domain.Standings{ContestID: c.id, Entries: entries, UpdatedAt: c.now()}
}
