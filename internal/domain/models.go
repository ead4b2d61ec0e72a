package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Digest is a 256-bit hash value.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest decodes a hex encoded digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return d, fmt.Errorf("decode digest: %w", err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("decode digest: want %d bytes, got %d", len(d), len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// Question is one entry of a contest's answer key.
type Question struct {
	ID            string `json:"id" yaml:"id"`
	DisplayOrder  int    `json:"displayOrder" yaml:"display_order"`
	Salt          string `json:"salt" yaml:"salt"`
	CorrectAnswer string `json:"correctAnswer" yaml:"answer"`
}

// AnswerKey is the revealed answer key of a contest.
type AnswerKey struct {
	ContestID string     `json:"contestId"`
	Questions []Question `json:"questions"`
}

// NormalizeAnswer returns the form answers are compared in when scoring.
// Commitment leaves hash the raw answer.
func NormalizeAnswer(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SubmittedAnswer is a single answer of a player submission.
type SubmittedAnswer struct {
	DisplayOrder int    `json:"displayOrder"`
	Answer       string `json:"answer"`
	QuestionID   string `json:"questionId"`
}

// PlayerSubmission is the complete answer sheet of one player.
type PlayerSubmission struct {
	PlayerID   string            `json:"playerId"`
	Answers    []SubmittedAnswer `json:"answers"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// VerifiedAnswer is a submitted answer together with its proof and outcome.
type VerifiedAnswer struct {
	DisplayOrder int      `json:"displayOrder"`
	Answer       string   `json:"answer"`
	QuestionID   string   `json:"questionId"`
	Proof        []Digest `json:"proof"`
	IsCorrect    bool     `json:"isCorrect"`
}

// ScoredSubmission is produced once by the verifier and never recomputed.
type ScoredSubmission struct {
	PlayerID   string           `json:"playerId"`
	FinishedAt time.Time        `json:"finishedAt"`
	Answers    []VerifiedAnswer `json:"answers"`
	NumCorrect int              `json:"numCorrect"`
}

// RankedEntry is a scored submission with its final, unique rank.
type RankedEntry struct {
	ScoredSubmission
	Rank     int  `json:"rank"`
	Eligible bool `json:"eligible"`
}

// WinnerRecord tracks one declared winner's prize and claim state.
type WinnerRecord struct {
	ContestID   string `json:"contestId"`
	PlayerID    string `json:"playerId"`
	Rank        int    `json:"rank"`
	PrizeAmount uint64 `json:"prizeAmount"`
	Claimed     bool   `json:"claimed"`
}

// Payout is the instruction emitted by a successful claim: pay Amount to PlayerID once.
type Payout struct {
	ID          string    `json:"id"`
	ContestID   string    `json:"contestId"`
	PlayerID    string    `json:"playerId"`
	Rank        int       `json:"rank"`
	Amount      uint64    `json:"amount"`
	RequestedAt time.Time `json:"requestedAt"`
}

// DistributionMode selects how the prize pool is spread across ranks.
type DistributionMode string

const (
	DistributionTiered DistributionMode = "tiered"
	DistributionEven   DistributionMode = "even"
)

// Valid reports whether m is a known mode.
func (m DistributionMode) Valid() bool {
	return m == DistributionTiered || m == DistributionEven
}

// ContestParams are fixed by the creator when the contest is authored.
type ContestParams struct {
	Name          string           `json:"name"`
	Code          string           `json:"code"`
	Creator       string           `json:"creator"`
	AnswerRoot    Digest           `json:"answerRoot"`
	HashKind      string           `json:"hashKind"`
	EntryFee      uint64           `json:"entryFee"`
	Donation      uint64           `json:"donation"`
	CommissionBps uint16           `json:"commissionBps"`
	MaxWinners    int              `json:"maxWinners"`
	AllAreWinners bool             `json:"allAreWinners"`
	Mode          DistributionMode `json:"mode"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       time.Time        `json:"endTime"`
}

// ContestStatus is the lifecycle state of a contest.
type ContestStatus string

const (
	StatusOpen    ContestStatus = "open"
	StatusSettled ContestStatus = "settled"
	StatusClosed  ContestStatus = "closed"
)

// ContestView is a read-only snapshot of a contest.
type ContestView struct {
	ID           string        `json:"id"`
	Params       ContestParams `json:"params"`
	Status       ContestStatus `json:"status"`
	Pool         uint64        `json:"pool"`
	Participants int           `json:"participants"`
	Submissions  int           `json:"submissions"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// FeeSnapshot is the platform fee configuration captured when a contest settles.
type FeeSnapshot struct {
	Version           int    `json:"version"`
	PlatformFeeBps    uint16 `json:"platformFeeBps"`
	MaxPlatformFeeBps uint16 `json:"maxPlatformFeeBps"`
	Treasury          string `json:"treasury"`
}

// Settlement is the immutable record of a contest's distribution.
type Settlement struct {
	ContestID     string           `json:"contestId"`
	Fees          FeeSnapshot      `json:"fees"`
	CommissionBps uint16           `json:"commissionBps"`
	Mode          DistributionMode `json:"mode"`
	Pool          uint64           `json:"pool"`
	Commission    uint64           `json:"commission"`
	PlatformFee   uint64           `json:"platformFee"`
	Remaining     uint64           `json:"remaining"`
	Dust          uint64           `json:"dust"`
	Winners       []WinnerRecord   `json:"winners"`
	SettledAt     time.Time        `json:"settledAt"`
}

// Standings is the ordered scoreboard of a contest.
type Standings struct {
	ContestID string        `json:"contestId"`
	Entries   []RankedEntry `json:"entries"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Results is everything published about a contest once it has settled.
type Results struct {
	Contest    ContestView    `json:"contest"`
	Standings  []RankedEntry  `json:"standings"`
	Winners    []WinnerRecord `json:"winners"`
	Settlement *Settlement    `json:"settlement,omitempty"`
}
