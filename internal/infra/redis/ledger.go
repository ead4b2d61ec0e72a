package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/ledger"
)

// Ledger keeps winner records in Redis. Each contest has three hashes keyed
// by player:
//
//	ledger:contest:{id}:rank     player -> rank
//	ledger:contest:{id}:prize    player -> amount
//	ledger:contest:{id}:claimed  player -> 0|1
//
// Every state change runs as one Lua script, so the claimed flag is read and
// written with no window in between and the payout lands in the outbox in
// the same step.
type Ledger struct {
	client *redis.Client
	clock  func() time.Time
}

func NewLedger(client *redis.Client) *Ledger {
	return &Ledger{client: client, clock: time.Now}
}

const (
	closedKey        = "ledger:closed"
	outboxKey        = "ledger:outbox"
	outboxOrderKey   = "ledger:outbox:order"
	outboxCounterKey = "ledger:outbox:seq"
)

var declareScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[4], ARGV[1]) == 1 then return -1 end
if redis.call('EXISTS', KEYS[1]) == 1 then return -2 end
for i = 2, #ARGV, 3 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i+2])
  redis.call('HSET', KEYS[3], ARGV[i], '0')
end
return 0
`)

var claimScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[4], ARGV[1]) == 1 then return {-1} end
local rank = redis.call('HGET', KEYS[1], ARGV[2])
if not rank then return {-2} end
if redis.call('HGET', KEYS[3], ARGV[2]) == '1' then return {-3} end
redis.call('HSET', KEYS[3], ARGV[2], '1')
local amount = redis.call('HGET', KEYS[2], ARGV[2])
local entry = ARGV[1] .. '\t' .. rank .. '\t' .. amount .. '\t' .. ARGV[4] .. '\t' .. ARGV[2]
redis.call('HSET', KEYS[5], ARGV[3], entry)
redis.call('ZADD', KEYS[6], redis.call('INCR', KEYS[7]), ARGV[3])
return {0, rank, amount}
`)

var closeScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[4], ARGV[1]) == 1 then return -1 end
if redis.call('EXISTS', KEYS[1]) == 0 then return -2 end
for _, flag in ipairs(redis.call('HVALS', KEYS[3])) do
  if flag ~= '1' then return -3 end
end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3])
redis.call('SADD', KEYS[4], ARGV[1])
return 0
`)

func (l *Ledger) Declare(ctx context.Context, d ledger.Declaration) ([]domain.WinnerRecord, error) {
	records, err := d.Validate()
	if err != nil {
		return nil, err
	}

	args := make([]interface{}, 0, 1+3*len(records))
	args = append(args, d.ContestID)
	for _, rec := range records {
		args = append(args, rec.PlayerID, rec.Rank, strconv.FormatUint(rec.PrizeAmount, 10))
	}
	status, err := declareScript.Run(ctx, l.client, l.contestKeys(d.ContestID), args...).Int()
	if err != nil {
		return nil, fmt.Errorf("declare winners: %w", err)
	}
	switch status {
	case -1:
		return nil, domain.ErrContestClosed
	case -2:
		return nil, domain.ErrAlreadyDeclared
	}
	return records, nil
}

func (l *Ledger) Claim(ctx context.Context, contestID, playerID string) (domain.Payout, error) {
	now := l.clock().UTC()
	keys := append(l.contestKeys(contestID), outboxKey, outboxOrderKey, outboxCounterKey)
	res, err := claimScript.Run(ctx, l.client, keys,
		contestID, playerID, ledger.PayoutID(contestID, playerID), now.UnixNano()).Slice()
	if err != nil {
		return domain.Payout{}, fmt.Errorf("claim prize: %w", err)
	}

	status, _ := res[0].(int64)
	switch status {
	case -1:
		return domain.Payout{}, domain.ErrContestClosed
	case -2:
		return domain.Payout{}, fmt.Errorf("%w: %s", domain.ErrNotAWinner, playerID)
	case -3:
		return domain.Payout{}, domain.ErrAlreadyClaimed
	}

	rank, err := strconv.Atoi(fmt.Sprint(res[1]))
	if err != nil {
		return domain.Payout{}, fmt.Errorf("decode rank: %w", err)
	}
	amount, err := strconv.ParseUint(fmt.Sprint(res[2]), 10, 64)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("decode prize: %w", err)
	}
	return ledger.NewPayout(domain.WinnerRecord{
		ContestID:   contestID,
		PlayerID:    playerID,
		Rank:        rank,
		PrizeAmount: amount,
		Claimed:     true,
	}, now), nil
}

func (l *Ledger) Close(ctx context.Context, contestID string) error {
	status, err := closeScript.Run(ctx, l.client, l.contestKeys(contestID), contestID).Int()
	if err != nil {
		return fmt.Errorf("close contest: %w", err)
	}
	switch status {
	case -1:
		return domain.ErrContestClosed
	case -2:
		return domain.ErrWinnersNotDeclared
	case -3:
		return domain.ErrUnclaimedPrizesRemain
	}
	return nil
}

func (l *Ledger) Winners(ctx context.Context, contestID string) ([]domain.WinnerRecord, error) {
	keys := l.contestKeys(contestID)
	var (
		closed                 *redis.BoolCmd
		ranks, prizes, claimed *redis.MapStringStringCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		closed = pipe.SIsMember(ctx, closedKey, contestID)
		ranks = pipe.HGetAll(ctx, keys[0])
		prizes = pipe.HGetAll(ctx, keys[1])
		claimed = pipe.HGetAll(ctx, keys[2])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load winners: %w", err)
	}
	if closed.Val() {
		return nil, domain.ErrContestClosed
	}
	if len(ranks.Val()) == 0 {
		return nil, domain.ErrWinnersNotDeclared
	}

	records := make([]domain.WinnerRecord, 0, len(ranks.Val()))
	for player, rankStr := range ranks.Val() {
		rank, err := strconv.Atoi(rankStr)
		if err != nil {
			return nil, fmt.Errorf("decode rank of %s: %w", player, err)
		}
		amount, err := strconv.ParseUint(prizes.Val()[player], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode prize of %s: %w", player, err)
		}
		records = append(records, domain.WinnerRecord{
			ContestID:   contestID,
			PlayerID:    player,
			Rank:        rank,
			PrizeAmount: amount,
			Claimed:     claimed.Val()[player] == "1",
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Rank < records[j].Rank })
	return records, nil
}

func (l *Ledger) PendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := l.client.ZRange(ctx, outboxOrderKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	entries, err := l.client.HMGet(ctx, outboxKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}

	payouts := make([]domain.Payout, 0, len(ids))
	for i, raw := range entries {
		entry, ok := raw.(string)
		if !ok {
			continue
		}
		payout, err := decodeOutboxEntry(ids[i], entry)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, payout)
	}
	return payouts, nil
}

func (l *Ledger) MarkPaid(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, outboxOrderKey, members...)
		pipe.HDel(ctx, outboxKey, ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return nil
}

func (l *Ledger) contestKeys(contestID string) []string {
	prefix := "ledger:contest:" + contestID
	return []string{prefix + ":rank", prefix + ":prize", prefix + ":claimed", closedKey}
}

var errBadOutboxEntry = errors.New("malformed outbox entry")

// decodeOutboxEntry parses contest \t rank \t amount \t unixnano \t player.
func decodeOutboxEntry(id, entry string) (domain.Payout, error) {
	fields := strings.SplitN(entry, "\t", 5)
	if len(fields) != 5 {
		return domain.Payout{}, fmt.Errorf("%w: %s", errBadOutboxEntry, id)
	}
	rank, err := strconv.Atoi(fields[1])
	if err != nil {
		return domain.Payout{}, fmt.Errorf("%w: %s rank: %v", errBadOutboxEntry, id, err)
	}
	amount, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("%w: %s amount: %v", errBadOutboxEntry, id, err)
	}
	nanos, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("%w: %s time: %v", errBadOutboxEntry, id, err)
	}
	return domain.Payout{
		ID:          id,
		ContestID:   fields[0],
		PlayerID:    fields[4],
		Rank:        rank,
		Amount:      amount,
		RequestedAt: time.Unix(0, nanos).UTC(),
	}, nil
}
