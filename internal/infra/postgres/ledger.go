package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/ledger"
)

type winnerRow struct {
	bun.BaseModel `bun:"table:winner_records"`

	ContestID string     `bun:"contest_id,pk"`
	PlayerID  string     `bun:"player_id,pk"`
	Rank      int        `bun:"rank,notnull"`
	Prize     string     `bun:"prize,notnull"`
	Claimed   bool       `bun:"claimed,notnull"`
	ClaimedAt *time.Time `bun:"claimed_at"`
}

type payoutRow struct {
	bun.BaseModel `bun:"table:payouts"`

	ID          string     `bun:"id,pk"`
	ContestID   string     `bun:"contest_id,notnull"`
	PlayerID    string     `bun:"player_id,notnull"`
	Rank        int        `bun:"rank,notnull"`
	Amount      string     `bun:"amount,notnull"`
	RequestedAt time.Time  `bun:"requested_at,notnull"`
	PaidAt      *time.Time `bun:"paid_at"`
}

type closureRow struct {
	bun.BaseModel `bun:"table:contest_closures"`

	ContestID string    `bun:"contest_id,pk"`
	ClosedAt  time.Time `bun:"closed_at,notnull"`
}

// Ledger stores winner records in Postgres. Every operation on a contest runs
// in one transaction holding an advisory lock on the contest ID.
type Ledger struct {
	db    *bun.DB
	clock func() time.Time
}

func NewLedger(db *bun.DB) *Ledger {
	return &Ledger{db: db, clock: time.Now}
}

func (l *Ledger) Declare(ctx context.Context, d ledger.Declaration) ([]domain.WinnerRecord, error) {
	records, err := d.Validate()
	if err != nil {
		return nil, err
	}

	rows := make([]winnerRow, len(records))
	for i, rec := range records {
		rows[i] = winnerRow{
			ContestID: rec.ContestID,
			PlayerID:  rec.PlayerID,
			Rank:      rec.Rank,
			Prize:     strconv.FormatUint(rec.PrizeAmount, 10),
		}
	}

	err = l.inContest(ctx, d.ContestID, func(ctx context.Context, tx bun.Tx) error {
		declared, err := tx.NewSelect().Model((*winnerRow)(nil)).Where("contest_id = ?", d.ContestID).Exists(ctx)
		if err != nil {
			return err
		}
		if declared {
			return domain.ErrAlreadyDeclared
		}
		_, err = tx.NewInsert().Model(&rows).Exec(ctx)
		if isUniqueViolation(err) {
			return domain.ErrAlreadyDeclared
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (l *Ledger) Claim(ctx context.Context, contestID, playerID string) (domain.Payout, error) {
	var payout domain.Payout
	err := l.inContest(ctx, contestID, func(ctx context.Context, tx bun.Tx) error {
		now := l.clock().UTC()
		row := new(winnerRow)
		err := tx.NewUpdate().Model(row).
			Set("claimed = TRUE").
			Set("claimed_at = ?", now).
			Where("contest_id = ? AND player_id = ? AND NOT claimed", contestID, playerID).
			Returning("*").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && row.PlayerID == "") {
			return l.claimConflict(ctx, tx, contestID, playerID)
		}
		if err != nil {
			return err
		}

		rec, err := row.record()
		if err != nil {
			return err
		}
		payout = ledger.NewPayout(rec, now)
		_, err = tx.NewInsert().Model(&payoutRow{
			ID:          payout.ID,
			ContestID:   payout.ContestID,
			PlayerID:    payout.PlayerID,
			Rank:        payout.Rank,
			Amount:      row.Prize,
			RequestedAt: payout.RequestedAt,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Payout{}, err
	}
	return payout, nil
}

// claimConflict explains why the conditional update matched nothing.
func (l *Ledger) claimConflict(ctx context.Context, tx bun.Tx, contestID, playerID string) error {
	if _, err := l.checkOpen(ctx, tx, contestID); err != nil {
		return err
	}
	exists, err := tx.NewSelect().Model((*winnerRow)(nil)).
		Where("contest_id = ? AND player_id = ?", contestID, playerID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrAlreadyClaimed
	}
	return fmt.Errorf("%w: %s", domain.ErrNotAWinner, playerID)
}

func (l *Ledger) Close(ctx context.Context, contestID string) error {
	return l.inContest(ctx, contestID, func(ctx context.Context, tx bun.Tx) error {
		total, err := l.checkOpen(ctx, tx, contestID)
		if err != nil {
			return err
		}
		if total == 0 {
			return domain.ErrWinnersNotDeclared
		}
		unclaimed, err := tx.NewSelect().Model((*winnerRow)(nil)).
			Where("contest_id = ? AND NOT claimed", contestID).
			Count(ctx)
		if err != nil {
			return err
		}
		if unclaimed > 0 {
			return fmt.Errorf("%w: %d of %d", domain.ErrUnclaimedPrizesRemain, unclaimed, total)
		}

		if _, err := tx.NewDelete().Model((*winnerRow)(nil)).Where("contest_id = ?", contestID).Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewInsert().Model(&closureRow{ContestID: contestID, ClosedAt: l.clock().UTC()}).Exec(ctx)
		return err
	})
}

func (l *Ledger) Winners(ctx context.Context, contestID string) ([]domain.WinnerRecord, error) {
	var rows []winnerRow
	err := l.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := l.checkOpen(ctx, tx, contestID); err != nil {
			return err
		}
		return tx.NewSelect().Model(&rows).Where("contest_id = ?", contestID).Order("rank ASC").Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrWinnersNotDeclared
	}

	records := make([]domain.WinnerRecord, len(rows))
	for i := range rows {
		if records[i], err = rows[i].record(); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (l *Ledger) PendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error) {
	var rows []payoutRow
	q := l.db.NewSelect().Model(&rows).Where("paid_at IS NULL").OrderExpr("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}

	payouts := make([]domain.Payout, len(rows))
	for i, row := range rows {
		amount, err := strconv.ParseUint(row.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode payout %s: %w", row.ID, err)
		}
		payouts[i] = domain.Payout{
			ID:          row.ID,
			ContestID:   row.ContestID,
			PlayerID:    row.PlayerID,
			Rank:        row.Rank,
			Amount:      amount,
			RequestedAt: row.RequestedAt.UTC(),
		}
	}
	return payouts, nil
}

func (l *Ledger) MarkPaid(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := l.db.NewUpdate().Model((*payoutRow)(nil)).
		Set("paid_at = ?", l.clock().UTC()).
		Where("id IN (?)", bun.In(ids)).
		Where("paid_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return nil
}

// inContest runs fn in a transaction serialized with every other ledger
// transaction on the same contest.
func (l *Ledger) inContest(ctx context.Context, contestID string, fn func(context.Context, bun.Tx) error) error {
	return l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", contestID); err != nil {
			return fmt.Errorf("lock contest: %w", err)
		}
		return fn(ctx, tx)
	})
}

// checkOpen fails for closed contests and returns the number of records.
func (l *Ledger) checkOpen(ctx context.Context, tx bun.Tx, contestID string) (int, error) {
	closed, err := tx.NewSelect().Model((*closureRow)(nil)).Where("contest_id = ?", contestID).Exists(ctx)
	if err != nil {
		return 0, err
	}
	if closed {
		return 0, domain.ErrContestClosed
	}
	return tx.NewSelect().Model((*winnerRow)(nil)).Where("contest_id = ?", contestID).Count(ctx)
}

func (r winnerRow) record() (domain.WinnerRecord, error) {
	amount, err := strconv.ParseUint(r.Prize, 10, 64)
	if err != nil {
		return domain.WinnerRecord{}, fmt.Errorf("decode prize of %s: %w", r.PlayerID, err)
	}
	return domain.WinnerRecord{
		ContestID:   r.ContestID,
		PlayerID:    r.PlayerID,
		Rank:        r.Rank,
		PrizeAmount: amount,
		Claimed:     r.Claimed,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
