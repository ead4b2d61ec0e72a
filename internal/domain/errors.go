package domain

import "errors"

// Malformed input. Rejected before any state is touched.
var (
	// ErrEmptyAnswerSet is returned when a commitment is requested for no questions.
	ErrEmptyAnswerSet = errors.New("answer set is empty")
	// ErrInvalidQuestion indicates a question without answer or salt, or with a bad display order.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrUnknownQuestion is returned when no leaf has the requested display order.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrSubmissionQuestionMismatch indicates a partial or duplicated answer sheet.
	ErrSubmissionQuestionMismatch = errors.New("submission does not match contest questions")
	// ErrNoEligibleEntries is returned when ranking an empty contest.
	ErrNoEligibleEntries  = errors.New("no eligible entries")
	ErrInvalidWinnerCount = errors.New("invalid winner count")
	ErrInvalidBasisPoints = errors.New("basis points out of range")
	ErrPlatformFeeTooHigh = errors.New("platform fee exceeds configured maximum")
	ErrFeeExceedsPool     = errors.New("fees exceed pool")
	// ErrPoolTooSmallForTiers means the tiered curve cannot stay strictly decreasing after rounding.
	ErrPoolTooSmallForTiers = errors.New("pool too small for tiered distribution")
	ErrWinnerCountMismatch  = errors.New("winner count mismatch")
	ErrInvalidContest       = errors.New("invalid contest parameters")
	ErrInvalidMode          = errors.New("unknown distribution mode")
	ErrContestNotStarted    = errors.New("contest has not started")
	ErrContestEnded         = errors.New("contest has ended")
	// ErrInvalidFinishTime is a finish time the server has not reached yet.
	ErrInvalidFinishTime = errors.New("finish time is in the future")
)

// Integrity violations. Abort the whole operation.
var (
	// ErrCommitmentMismatch means the revealed answer key does not hash to the published root.
	ErrCommitmentMismatch   = errors.New("answer key does not match commitment")
	ErrOutOfOrderWinners    = errors.New("winners are not in ranking order")
	ErrDuplicateWinner      = errors.New("duplicate winner")
	ErrWinnerNotParticipant = errors.New("winner is not a participant")
)

// State conflicts. Expected and recoverable.
var (
	ErrContestNotFound       = errors.New("contest not found")
	ErrParticipantNotFound   = errors.New("participant not found in contest")
	ErrAnswerKeyNotFound     = errors.New("answer key not found")
	ErrAnswerKeyRevealed     = errors.New("answer key already registered")
	ErrAlreadyJoined         = errors.New("player already joined")
	ErrAlreadySubmitted      = errors.New("player already submitted")
	ErrNoSubmissions         = errors.New("contest has no submissions")
	ErrContestSettled        = errors.New("contest already settled")
	ErrContestClosed         = errors.New("contest closed")
	ErrNotSettled            = errors.New("contest not settled")
	ErrAlreadyDeclared       = errors.New("winners already declared")
	ErrWinnersNotDeclared    = errors.New("winners not declared")
	ErrNotAWinner            = errors.New("player is not a winner")
	ErrAlreadyClaimed        = errors.New("prize already claimed")
	ErrUnclaimedPrizesRemain = errors.New("unclaimed prizes remain")
)

// ErrorClass groups errors by how callers should react to them.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassMalformedInput
	ClassIntegrity
	ClassStateConflict
)

var (
	malformed = []error{
		ErrEmptyAnswerSet, ErrInvalidQuestion, ErrUnknownQuestion, ErrSubmissionQuestionMismatch,
		ErrNoEligibleEntries, ErrInvalidWinnerCount, ErrInvalidBasisPoints, ErrPlatformFeeTooHigh,
		ErrFeeExceedsPool, ErrPoolTooSmallForTiers, ErrWinnerCountMismatch, ErrInvalidContest,
		ErrInvalidMode, ErrContestNotStarted, ErrContestEnded, ErrInvalidFinishTime,
	}
	integrity = []error{
		ErrCommitmentMismatch, ErrOutOfOrderWinners, ErrDuplicateWinner, ErrWinnerNotParticipant,
	}
	conflicts = []error{
		ErrContestNotFound, ErrParticipantNotFound, ErrAnswerKeyNotFound, ErrAnswerKeyRevealed,
		ErrAlreadyJoined, ErrAlreadySubmitted, ErrNoSubmissions, ErrContestSettled, ErrContestClosed, ErrNotSettled,
		ErrAlreadyDeclared, ErrWinnersNotDeclared, ErrNotAWinner, ErrAlreadyClaimed, ErrUnclaimedPrizesRemain,
	}
)

// Class reports which class a (possibly wrapped) error belongs to.
func Class(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	for _, target := range integrity {
		if errors.Is(err, target) {
			return ClassIntegrity
		}
	}
	for _, target := range malformed {
		if errors.Is(err, target) {
			return ClassMalformedInput
		}
	}
	for _, target := range conflicts {
		if errors.Is(err, target) {
			return ClassStateConflict
		}
	}
	return ClassUnknown
}
