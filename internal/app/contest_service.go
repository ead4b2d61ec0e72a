// Package app holds the contest use cases: authoring, play, settlement,
// claims and teardown.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"contest-settlement/internal/commitment"
	"contest-settlement/internal/domain"
	"contest-settlement/internal/ledger"
	"contest-settlement/internal/payout"
	"contest-settlement/internal/ranking"
	"contest-settlement/internal/scoring"
)

const (
	maxNameLength = 32
	maxCodeLength = 16
)

// ContestStore abstracts where live contests are kept (in-memory, Redis, etc).
type ContestStore interface {
	Create(contest *Contest) error
	Get(contestID string) (*Contest, bool)
	// Sync is called after every state change so stores can project it.
	Sync(contest *Contest)
}

// ContestViewer is implemented by stores that project contests somewhere
// other instances can read.
type ContestViewer interface {
	View(ctx context.Context, contestID string) (domain.ContestView, error)
}

// AnswerKeyRepository loads and registers revealed answer keys.
type AnswerKeyRepository interface {
	GetAnswerKey(ctx context.Context, contestID string) (domain.AnswerKey, error)
	SaveAnswerKey(ctx context.Context, key domain.AnswerKey) error
}

// Deps wires a ContestService.
type Deps struct {
	Contests    ContestStore
	AnswerKeys  AnswerKeyRepository
	Ledger      ledger.Ledger
	Fees        *FeeRegistry
	Distributor *payout.Distributor
	Publisher   Publisher
	Log         slog.Logger
	// MaxWinnersCap bounds ContestParams.MaxWinners; zero means no bound.
	MaxWinnersCap int
}

// ContestService contains the contest use cases.
type ContestService struct {
	contests    ContestStore
	keys        AnswerKeyRepository
	ledger      ledger.Ledger
	fees        *FeeRegistry
	distributor *payout.Distributor
	publisher   Publisher
	log         slog.Logger
	maxWinners  int
	now         func() time.Time
}

func NewContestService(deps Deps) *ContestService {
	log := deps.Log
	if log == nil {
		log = slog.Disabled
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = NewLogPublisher(log)
	}
	return &ContestService{
		contests:    deps.Contests,
		keys:        deps.AnswerKeys,
		ledger:      deps.Ledger,
		fees:        deps.Fees,
		distributor: deps.Distributor,
		publisher:   publisher,
		log:         log,
		maxWinners:  deps.MaxWinnersCap,
		now:         time.Now,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *ContestService) WithClock(now func() time.Time) *ContestService {
	s.now = now
	return s
}

// CreateContest validates params and opens a contest. When questions are
// given the root is derived from them, or checked against params.AnswerRoot
// if that is already set.
func (s *ContestService) CreateContest(ctx context.Context, params domain.ContestParams, questions []domain.Question) (domain.ContestView, error) {
	if err := s.validateParams(params); err != nil {
		return domain.ContestView{}, err
	}
	h, err := commitment.NewHasher(commitment.HashKind(params.HashKind))
	if err != nil {
		return domain.ContestView{}, fmt.Errorf("%w: %v", domain.ErrInvalidContest, err)
	}
	params.HashKind = string(h.Kind())

	if len(questions) > 0 {
		tree, err := commitment.Commit(h, questions)
		if err != nil {
			return domain.ContestView{}, err
		}
		switch {
		case params.AnswerRoot == (domain.Digest{}):
			params.AnswerRoot = tree.Root()
		case params.AnswerRoot != tree.Root():
			return domain.ContestView{}, fmt.Errorf("%w: questions hash to %s", domain.ErrCommitmentMismatch, tree.Root())
		}
	} else if params.AnswerRoot == (domain.Digest{}) {
		return domain.ContestView{}, domain.ErrEmptyAnswerSet
	}

	id := uuid.NewString()
	if len(questions) > 0 {
		if err := s.keys.SaveAnswerKey(ctx, domain.AnswerKey{ContestID: id, Questions: questions}); err != nil {
			return domain.ContestView{}, err
		}
	}

	contest := NewContestWithClock(id, params, s.now)
	if err := s.contests.Create(contest); err != nil {
		return domain.ContestView{}, err
	}
	s.contests.Sync(contest)
	s.log.Infof("Contest %s (%s) created with root %s", id, params.Code, params.AnswerRoot)
	return contest.View(), nil
}

func (s *ContestService) validateParams(p domain.ContestParams) error {
	name := strings.TrimSpace(p.Name)
	switch {
	case name == "" || utf8.RuneCountInString(name) > maxNameLength:
		return fmt.Errorf("%w: name must be 1..%d characters", domain.ErrInvalidContest, maxNameLength)
	case p.Code == "" || utf8.RuneCountInString(p.Code) > maxCodeLength:
		return fmt.Errorf("%w: code must be 1..%d characters", domain.ErrInvalidContest, maxCodeLength)
	case !p.Mode.Valid():
		return fmt.Errorf("%w: %q", domain.ErrInvalidMode, p.Mode)
	case !p.AllAreWinners && p.MaxWinners < 1:
		return fmt.Errorf("%w: max winners %d", domain.ErrInvalidWinnerCount, p.MaxWinners)
	case !p.AllAreWinners && s.maxWinners > 0 && p.MaxWinners > s.maxWinners:
		return fmt.Errorf("%w: max winners %d over cap %d", domain.ErrInvalidWinnerCount, p.MaxWinners, s.maxWinners)
	case p.CommissionBps > payout.MaxBasisPoints:
		return fmt.Errorf("%w: commission %d", domain.ErrInvalidBasisPoints, p.CommissionBps)
	case p.StartTime.IsZero() || p.EndTime.IsZero() || !p.StartTime.Before(p.EndTime):
		return fmt.Errorf("%w: start must be before end", domain.ErrInvalidContest)
	}
	return nil
}

// RegisterAnswerKey stores the answer key of a contest created from a bare
// root. The key must hash to that root.
func (s *ContestService) RegisterAnswerKey(ctx context.Context, contestID string, questions []domain.Question) error {
	contest, err := s.contest(contestID)
	if err != nil {
		return err
	}
	params := contest.Params()
	h, err := commitment.NewHasher(commitment.HashKind(params.HashKind))
	if err != nil {
		return err
	}
	tree, err := commitment.Commit(h, questions)
	if err != nil {
		return err
	}
	if tree.Root() != params.AnswerRoot {
		return fmt.Errorf("%w: rebuilt %s, published %s", domain.ErrCommitmentMismatch, tree.Root(), params.AnswerRoot)
	}
	return s.keys.SaveAnswerKey(ctx, domain.AnswerKey{ContestID: contestID, Questions: questions})
}

// Join registers a player and adds the entry fee to the pool.
func (s *ContestService) Join(_ context.Context, contestID, playerID string) (domain.ContestView, error) {
	if playerID == "" {
		return domain.ContestView{}, domain.ErrParticipantNotFound
	}
	contest, err := s.contest(contestID)
	if err != nil {
		return domain.ContestView{}, err
	}
	view, err := contest.join(playerID)
	if err != nil {
		return domain.ContestView{}, err
	}
	s.contests.Sync(contest)
	return view, nil
}

// Donate adds a creator donation to the pool.
func (s *ContestService) Donate(_ context.Context, contestID string, amount uint64) (domain.ContestView, error) {
	contest, err := s.contest(contestID)
	if err != nil {
		return domain.ContestView{}, err
	}
	view, err := contest.donate(amount)
	if err != nil {
		return domain.ContestView{}, err
	}
	s.contests.Sync(contest)
	return view, nil
}

// UpdateCommission changes the host commission until settlement.
func (s *ContestService) UpdateCommission(_ context.Context, contestID string, bps uint16) (domain.ContestView, error) {
	if bps > payout.MaxBasisPoints {
		return domain.ContestView{}, fmt.Errorf("%w: commission %d", domain.ErrInvalidBasisPoints, bps)
	}
	contest, err := s.contest(contestID)
	if err != nil {
		return domain.ContestView{}, err
	}
	view, err := contest.setCommission(bps)
	if err != nil {
		return domain.ContestView{}, err
	}
	s.contests.Sync(contest)
	return view, nil
}

// Submit verifies and scores a player's answer sheet. The finish time must
// fall within the contest window and not after now; a zero finish time means now.
func (s *ContestService) Submit(ctx context.Context, contestID string, sub domain.PlayerSubmission) (domain.ScoredSubmission, error) {
	contest, err := s.contest(contestID)
	if err != nil {
		return domain.ScoredSubmission{}, err
	}
	if err := contest.checkCanSubmit(sub.PlayerID); err != nil {
		return domain.ScoredSubmission{}, err
	}

	params := contest.Params()
	if sub.FinishedAt.IsZero() {
		sub.FinishedAt = s.now()
	}
	sub.FinishedAt = sub.FinishedAt.UTC()
	if sub.FinishedAt.Before(params.StartTime) {
		return domain.ScoredSubmission{}, domain.ErrContestNotStarted
	}
	if sub.FinishedAt.After(params.EndTime) {
		return domain.ScoredSubmission{}, domain.ErrContestEnded
	}
	if sub.FinishedAt.After(s.now()) {
		return domain.ScoredSubmission{}, fmt.Errorf("%w: %s", domain.ErrInvalidFinishTime, sub.FinishedAt.Format(time.RFC3339))
	}

	key, err := s.keys.GetAnswerKey(ctx, contestID)
	if err != nil {
		return domain.ScoredSubmission{}, err
	}
	h, err := commitment.NewHasher(commitment.HashKind(params.HashKind))
	if err != nil {
		return domain.ScoredSubmission{}, err
	}
	scored, err := scoring.VerifyAndScoreWith(h, sub, key.Questions, params.AnswerRoot)
	if err != nil {
		if domain.Class(err) == domain.ClassIntegrity {
			s.log.Errorf("Contest %s: answer key fails its commitment: %v", contestID, err)
		}
		return domain.ScoredSubmission{}, err
	}

	if _, err := contest.recordSubmission(scored); err != nil {
		return domain.ScoredSubmission{}, err
	}
	s.contests.Sync(contest)
	s.log.Debugf("Contest %s: %s scored %d/%d", contestID, sub.PlayerID, scored.NumCorrect, len(scored.Answers))
	return scored, nil
}

// Settle ranks all submissions, distributes the pool against the current fee
// snapshot and declares the winners. It succeeds once per contest.
func (s *ContestService) Settle(ctx context.Context, contestID string) (domain.Settlement, error) {
	contest, err := s.contest(contestID)
	if err != nil {
		return domain.Settlement{}, err
	}
	in, err := contest.beginSettlement()
	if err != nil {
		return domain.Settlement{}, err
	}

	settlement, standings, err := s.settle(ctx, contestID, in)
	if err != nil {
		contest.abortSettlement()
		return domain.Settlement{}, err
	}
	contest.finishSettlement(standings, settlement)
	s.contests.Sync(contest)

	s.log.Infof("Contest %s settled: pool %d, %d winners, dust %d, fee version %d",
		contestID, settlement.Pool, len(settlement.Winners), settlement.Dust, settlement.Fees.Version)
	s.publish(ctx, newEvent(EventWinnersDeclared, contestID, settlement.SettledAt, settlement))
	return settlement, nil
}

func (s *ContestService) settle(ctx context.Context, contestID string, in settlementInput) (domain.Settlement, []domain.RankedEntry, error) {
	policy := ranking.WinnerPolicy{
		MaxWinners:    in.params.MaxWinners,
		AllAreWinners: in.params.AllAreWinners,
	}
	entries, err := ranking.Rank(in.scored, policy)
	if err != nil {
		return domain.Settlement{}, nil, err
	}
	winners := ranking.Winners(entries)

	fees := s.fees.Snapshot()
	dist, err := s.distributor.Distribute(in.pool, len(winners), Schedule(fees, in.params.CommissionBps), in.params.Mode)
	if err != nil {
		return domain.Settlement{}, nil, err
	}

	records, err := s.ledger.Declare(ctx, ledger.Declaration{
		ContestID:    contestID,
		Participants: in.participants,
		Standings:    in.scored,
		Policy:       policy,
		Winners:      winners,
		Prizes:       dist.Prizes,
	})
	if err != nil {
		return domain.Settlement{}, nil, err
	}

	return domain.Settlement{
		ContestID:     contestID,
		Fees:          fees,
		CommissionBps: in.params.CommissionBps,
		Mode:          in.params.Mode,
		Pool:          dist.Pool,
		Commission:    dist.Commission,
		PlatformFee:   dist.PlatformFee,
		Remaining:     dist.Remaining,
		Dust:          dist.Dust,
		Winners:       records,
		SettledAt:     s.now().UTC(),
	}, entries, nil
}

// Claim pays a winner's prize exactly once. The returned payout is queued in
// the ledger outbox in the same step.
func (s *ContestService) Claim(ctx context.Context, contestID, playerID string) (domain.Payout, error) {
	p, err := s.ledger.Claim(ctx, contestID, playerID)
	if err != nil {
		return domain.Payout{}, err
	}
	s.log.Infof("Contest %s: %s claimed rank %d prize %d", contestID, playerID, p.Rank, p.Amount)
	return p, nil
}

// Close tears a contest down once every prize is claimed.
func (s *ContestService) Close(ctx context.Context, contestID string) error {
	if err := s.ledger.Close(ctx, contestID); err != nil {
		return err
	}
	if contest, ok := s.contests.Get(contestID); ok {
		contest.markClosed()
		s.contests.Sync(contest)
	}
	s.log.Infof("Contest %s closed", contestID)
	s.publish(ctx, newEvent(EventContestClosed, contestID, s.now(), nil))
	return nil
}

// Results returns the final ranking, the winner records with their current
// claim state and the settlement.
func (s *ContestService) Results(ctx context.Context, contestID string) (domain.Results, error) {
	contest, err := s.contest(contestID)
	if err != nil {
		return domain.Results{}, err
	}
	view, standings, settlement := contest.results()
	if settlement == nil {
		return domain.Results{}, domain.ErrNotSettled
	}

	winners, err := s.ledger.Winners(ctx, contestID)
	switch {
	case errors.Is(err, domain.ErrContestClosed):
		winners = settlement.Winners
	case err != nil:
		return domain.Results{}, err
	}
	return domain.Results{
		Contest:    view,
		Standings:  standings,
		Winners:    winners,
		Settlement: settlement,
	}, nil
}

// Proofs returns a player's verified answers, each with the proof that lets
// anyone check it against the published root.
func (s *ContestService) Proofs(_ context.Context, contestID, playerID string) ([]domain.VerifiedAnswer, error) {
	contest, err := s.contest(contestID)
	if err != nil {
		return nil, err
	}
	_, standings, settlement := contest.results()
	if settlement == nil {
		return nil, domain.ErrNotSettled
	}
	for _, entry := range standings {
		if entry.PlayerID == playerID {
			return entry.Answers, nil
		}
	}
	return nil, domain.ErrParticipantNotFound
}

// Subscribe returns a channel that receives standings updates for a contest.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ContestService) Subscribe(_ context.Context, contestID string) (<-chan domain.Standings, func(), error) {
	contest, err := s.contest(contestID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := contest.subscribe()
	return ch, cancel, nil
}

// Contest returns a snapshot of a contest. Contests owned by another
// instance are read from the store's projection when it has one.
func (s *ContestService) Contest(ctx context.Context, contestID string) (domain.ContestView, error) {
	contest, err := s.contest(contestID)
	if err == nil {
		return contest.View(), nil
	}
	if viewer, ok := s.contests.(ContestViewer); ok {
		return viewer.View(ctx, contestID)
	}
	return domain.ContestView{}, err
}

// Fees returns the current platform fee configuration.
func (s *ContestService) Fees() domain.FeeSnapshot {
	return s.fees.Snapshot()
}

// UpdateFees installs a new platform fee version. Settled contests keep the
// version they were settled with.
func (s *ContestService) UpdateFees(platformFeeBps uint16, treasury string) (domain.FeeSnapshot, error) {
	snap, err := s.fees.Update(platformFeeBps, treasury)
	if err != nil {
		return domain.FeeSnapshot{}, err
	}
	s.log.Infof("Platform fee set to %d bps (version %d)", snap.PlatformFeeBps, snap.Version)
	return snap, nil
}

func (s *ContestService) contest(contestID string) (*Contest, error) {
	contest, ok := s.contests.Get(contestID)
	if !ok {
		return nil, domain.ErrContestNotFound
	}
	return contest, nil
}

// publish logs delivery failures and carries on.
func (s *ContestService) publish(ctx context.Context, event Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warnf("Publishing %s for contest %s failed: %v", event.Type, event.ContestID, err)
	}
}
