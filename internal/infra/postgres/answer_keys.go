package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"contest-settlement/internal/domain"
)

// AnswerKeyStore keeps revealed answer keys as JSONB.
type AnswerKeyStore struct {
	pool *pgxpool.Pool
}

func NewAnswerKeyStore(pool *pgxpool.Pool) *AnswerKeyStore {
	return &AnswerKeyStore{pool: pool}
}

func (s *AnswerKeyStore) LoadAnswerKey(ctx context.Context, contestID string) (domain.AnswerKey, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM answer_keys WHERE contest_id=$1`, contestID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnswerKey{}, domain.ErrAnswerKeyNotFound
	}
	if err != nil {
		return domain.AnswerKey{}, fmt.Errorf("load answer key: %w", err)
	}
	var key domain.AnswerKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return domain.AnswerKey{}, fmt.Errorf("unmarshal answer key: %w", err)
	}
	return key, nil
}

// SaveAnswerKey stores key once; a second key for the same contest is refused.
func (s *AnswerKeyStore) SaveAnswerKey(ctx context.Context, key domain.AnswerKey) error {
	raw, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal answer key: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO answer_keys (contest_id, data) VALUES ($1, $2) ON CONFLICT (contest_id) DO NOTHING`,
		key.ContestID, raw)
	if err != nil {
		return fmt.Errorf("save answer key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAnswerKeyRevealed
	}
	return nil
}
