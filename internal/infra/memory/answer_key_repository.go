package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"contest-settlement/internal/domain"
)

// AnswerKeyStore is the durable home of revealed answer keys.
type AnswerKeyStore interface {
	LoadAnswerKey(ctx context.Context, contestID string) (domain.AnswerKey, error)
	SaveAnswerKey(ctx context.Context, key domain.AnswerKey) error
}

// AnswerKeyRepository caches answer keys with a TTL in front of a store.
type AnswerKeyRepository struct {
	store AnswerKeyStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedKey
}

type cachedKey struct {
	key       domain.AnswerKey
	expiresAt time.Time
}

func NewAnswerKeyRepository(store AnswerKeyStore, ttl time.Duration) *AnswerKeyRepository {
	return &AnswerKeyRepository{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedKey),
	}
}

func (r *AnswerKeyRepository) GetAnswerKey(ctx context.Context, contestID string) (domain.AnswerKey, error) {
	if key, ok := r.cached(contestID); ok {
		return key, nil
	}

	result, err, _ := r.sf.Do(contestID, func() (interface{}, error) {
		if key, ok := r.cached(contestID); ok {
			return key, nil
		}
		key, err := r.store.LoadAnswerKey(ctx, contestID)
		if err != nil {
			return domain.AnswerKey{}, err
		}
		r.put(key)
		return key, nil
	})
	if err != nil {
		return domain.AnswerKey{}, err
	}
	return result.(domain.AnswerKey), nil
}

// SaveAnswerKey writes through to the store and warms the cache.
func (r *AnswerKeyRepository) SaveAnswerKey(ctx context.Context, key domain.AnswerKey) error {
	if err := r.store.SaveAnswerKey(ctx, key); err != nil {
		return err
	}
	r.put(key)
	return nil
}

func (r *AnswerKeyRepository) cached(contestID string) (domain.AnswerKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[contestID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.AnswerKey{}, false
	}
	return entry.key, true
}

func (r *AnswerKeyRepository) put(key domain.AnswerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key.ContestID] = cachedKey{
		key:       key,
		expiresAt: r.clock().Add(r.ttlWithJitter()),
	}
}

func (r *AnswerKeyRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticAnswerKeys is a map-backed AnswerKeyStore for tests and demos.
type StaticAnswerKeys struct {
	mu   sync.RWMutex
	keys map[string]domain.AnswerKey
}

func NewStaticAnswerKeys(keys map[string]domain.AnswerKey) *StaticAnswerKeys {
	if keys == nil {
		keys = make(map[string]domain.AnswerKey)
	}
	return &StaticAnswerKeys{keys: keys}
}

func (s *StaticAnswerKeys) LoadAnswerKey(_ context.Context, contestID string) (domain.AnswerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keys[contestID]; ok {
		return key, nil
	}
	return domain.AnswerKey{}, domain.ErrAnswerKeyNotFound
}

func (s *StaticAnswerKeys) SaveAnswerKey(_ context.Context, key domain.AnswerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ContestID]; ok {
		return domain.ErrAnswerKeyRevealed
	}
	s.keys[key.ContestID] = key
	return nil
}
