package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/infra/memory"
)

// AnswerKeyRepository caches answer keys in Redis, one hash per contest:
//
//	HSET answerkey:{contestID} {displayOrder} {question json}
//
// and falls back to the store on a miss.
type AnswerKeyRepository struct {
	client *redis.Client
	store  memory.AnswerKeyStore
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewAnswerKeyRepository(client *redis.Client, store memory.AnswerKeyStore, ttl time.Duration) *AnswerKeyRepository {
	return &AnswerKeyRepository{
		client: client,
		store:  store,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *AnswerKeyRepository) GetAnswerKey(ctx context.Context, contestID string) (domain.AnswerKey, error) {
	if key, ok := r.fromCache(ctx, contestID); ok {
		return key, nil
	}

	result, err, _ := r.sf.Do(contestID, func() (interface{}, error) {
		// another caller may have filled the cache meanwhile
		if key, ok := r.fromCache(ctx, contestID); ok {
			return key, nil
		}
		key, err := r.store.LoadAnswerKey(ctx, contestID)
		if err != nil {
			return domain.AnswerKey{}, err
		}
		r.fill(ctx, key)
		return key, nil
	})
	if err != nil {
		return domain.AnswerKey{}, err
	}
	return result.(domain.AnswerKey), nil
}

func (r *AnswerKeyRepository) SaveAnswerKey(ctx context.Context, key domain.AnswerKey) error {
	if err := r.store.SaveAnswerKey(ctx, key); err != nil {
		return err
	}
	r.fill(ctx, key)
	return nil
}

func (r *AnswerKeyRepository) fromCache(ctx context.Context, contestID string) (domain.AnswerKey, bool) {
	fields, err := r.client.HGetAll(ctx, r.key(contestID)).Result()
	if err != nil || len(fields) == 0 {
		return domain.AnswerKey{}, false
	}
	key, err := buildAnswerKeyFromCache(contestID, fields)
	if err != nil {
		return domain.AnswerKey{}, false
	}
	return key, true
}

// fill is best effort; a failed write only costs a later reload.
func (r *AnswerKeyRepository) fill(ctx context.Context, key domain.AnswerKey) {
	cacheKey := r.key(key.ContestID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, cacheKey)
	for _, q := range key.Questions {
		raw, err := json.Marshal(q)
		if err != nil {
			return
		}
		pipe.HSet(ctx, cacheKey, strconv.Itoa(q.DisplayOrder), raw)
	}
	if ttl := r.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, cacheKey, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (r *AnswerKeyRepository) key(contestID string) string {
	return "answerkey:" + contestID
}

func buildAnswerKeyFromCache(contestID string, fields map[string]string) (domain.AnswerKey, error) {
	questions := make([]domain.Question, 0, len(fields))
	for order, raw := range fields {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return domain.AnswerKey{}, fmt.Errorf("decode cached question %s: %w", order, err)
		}
		questions = append(questions, q)
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].DisplayOrder < questions[j].DisplayOrder })
	return domain.AnswerKey{ContestID: contestID, Questions: questions}, nil
}

func (r *AnswerKeyRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
