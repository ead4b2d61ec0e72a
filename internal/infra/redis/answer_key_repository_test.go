package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/infra/memory"
)

func TestAnswerKeyRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := &countingStore{AnswerKeyStore: memory.NewStaticAnswerKeys(map[string]domain.AnswerKey{
		"contest-1": sampleAnswerKey(),
	})}
	repo := NewAnswerKeyRepository(newClient(mr), store, time.Minute)

	if _, err := repo.GetAnswerKey(context.Background(), "contest-1"); err != nil {
		t.Fatalf("get answer key: %v", err)
	}
	if store.loads != 1 {
		t.Fatalf("expected store called once, got %d", store.loads)
	}
	if !mr.Exists("answerkey:contest-1") {
		t.Fatalf("expected redis hash to be written")
	}

	// second call is served from redis
	key, err := repo.GetAnswerKey(context.Background(), "contest-1")
	if err != nil {
		t.Fatalf("get answer key 2: %v", err)
	}
	if store.loads != 1 {
		t.Fatalf("expected cache hit, store loads=%d", store.loads)
	}
	want := sampleAnswerKey()
	if len(key.Questions) != len(want.Questions) {
		t.Fatalf("expected %d questions, got %d", len(want.Questions), len(key.Questions))
	}
	for i, q := range key.Questions {
		if q != want.Questions[i] {
			t.Fatalf("question %d mismatch: %+v vs %+v", i, q, want.Questions[i])
		}
	}
}

func TestAnswerKeyRepositorySaveFillsCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := &countingStore{AnswerKeyStore: memory.NewStaticAnswerKeys(nil)}
	repo := NewAnswerKeyRepository(newClient(mr), store, time.Minute)

	if err := repo.SaveAnswerKey(context.Background(), sampleAnswerKey()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := repo.GetAnswerKey(context.Background(), "contest-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if store.loads != 0 {
		t.Fatalf("expected saved key in redis, store loads=%d", store.loads)
	}
	if ttl := mr.TTL("answerkey:contest-1"); ttl <= 0 {
		t.Fatalf("expected ttl on cache key, got %v", ttl)
	}
}

type countingStore struct {
	memory.AnswerKeyStore
	mu    sync.Mutex
	loads int
}

func (s *countingStore) LoadAnswerKey(ctx context.Context, contestID string) (domain.AnswerKey, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return s.AnswerKeyStore.LoadAnswerKey(ctx, contestID)
}

func sampleAnswerKey() domain.AnswerKey {
	return domain.AnswerKey{
		ContestID: "contest-1",
		Questions: []domain.Question{
			{ID: "q1", DisplayOrder: 0, Salt: "9f2c", CorrectAnswer: "4"},
			{ID: "q2", DisplayOrder: 1, Salt: "71aa", CorrectAnswer: "Paris"},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
