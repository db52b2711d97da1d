package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/david/subsidy-matcher/internal/models"
)

type countingSource struct {
	candidates []models.SubsidyCandidate
	err        error
	calls      int
}

func (s *countingSource) FetchActive(ctx context.Context) ([]models.SubsidyCandidate, error) {
	s.calls++
	return s.candidates, s.err
}

func sampleCandidates() []models.SubsidyCandidate {
	return []models.SubsidyCandidate{
		{ID: "s1", Title: "Aide une", Active: true},
		{ID: "s2", Title: "Aide deux", Active: true},
	}
}

func newCacheWithMiniredis(t *testing.T, source Source, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(source, client, ttl, nil), mr
}

func TestCacheFetchActive_MissThenHit(t *testing.T) {
	source := &countingSource{candidates: sampleCandidates()}
	cache, mr := newCacheWithMiniredis(t, source, time.Minute)

	first, err := cache.FetchActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 2 || source.calls != 1 {
		t.Fatalf("expected a source fetch, got %d candidates after %d calls", len(first), source.calls)
	}
	if !mr.Exists(activeKey) {
		t.Fatal("expected the candidate set cached")
	}

	second, err := cache.FetchActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("expected the second fetch served from cache, source called %d times", source.calls)
	}
	if len(second) != 2 || second[0].ID != "s1" {
		t.Errorf("unexpected cached candidates: %+v", second)
	}
}

func TestCacheFetchActive_EntryExpires(t *testing.T) {
	source := &countingSource{candidates: sampleCandidates()}
	cache, mr := newCacheWithMiniredis(t, source, 30*time.Second)

	if _, err := cache.FetchActive(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mr.TTL(activeKey); got != 30*time.Second {
		t.Errorf("expected ttl 30s on the cache entry, got %s", got)
	}

	mr.FastForward(time.Minute)
	if _, err := cache.FetchActive(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expected a fresh fetch after expiry, source called %d times", source.calls)
	}
}

func TestCacheFetchActive_CorruptEntryRefreshed(t *testing.T) {
	source := &countingSource{candidates: sampleCandidates()}
	cache, mr := newCacheWithMiniredis(t, source, time.Minute)

	if err := mr.Set(activeKey, "pas du json"); err != nil {
		t.Fatalf("failed to seed corrupt entry: %v", err)
	}

	candidates, err := cache.FetchActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("expected the source consulted for a corrupt entry, called %d times", source.calls)
	}
	if len(candidates) != 2 {
		t.Errorf("expected source candidates, got %+v", candidates)
	}

	// The bad payload was replaced; the next call is a hit.
	if _, err := cache.FetchActive(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("expected the refreshed entry served, source called %d times", source.calls)
	}
}

func TestCacheFetchActive_RedisDownFallsThrough(t *testing.T) {
	source := &countingSource{candidates: sampleCandidates()}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := NewCache(source, client, time.Minute, nil)

	mr.Close()

	candidates, err := cache.FetchActive(context.Background())
	if err != nil {
		t.Fatalf("redis being down must not fail the fetch, got %v", err)
	}
	if len(candidates) != 2 || source.calls != 1 {
		t.Errorf("expected a direct source fetch, got %d candidates after %d calls",
			len(candidates), source.calls)
	}
}

func TestCacheFetchActive_SourceErrorPropagates(t *testing.T) {
	source := &countingSource{err: errors.New("connection refused")}
	cache, _ := newCacheWithMiniredis(t, source, time.Minute)

	if _, err := cache.FetchActive(context.Background()); err == nil {
		t.Fatal("expected the source error surfaced")
	}
}

func TestCacheFetchActive_NilClientBypasses(t *testing.T) {
	source := &countingSource{candidates: sampleCandidates()}
	cache := NewCache(source, nil, time.Minute, nil)

	for i := 0; i < 3; i++ {
		if _, err := cache.FetchActive(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if source.calls != 3 {
		t.Errorf("expected every fetch passed through, source called %d times", source.calls)
	}
}

func TestCacheInvalidate(t *testing.T) {
	source := &countingSource{candidates: sampleCandidates()}
	cache, mr := newCacheWithMiniredis(t, source, time.Minute)

	if _, err := cache.FetchActive(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists(activeKey) {
		t.Fatal("expected a cache entry before invalidation")
	}

	if err := cache.Invalidate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists(activeKey) {
		t.Error("expected the cache entry removed")
	}

	if _, err := cache.FetchActive(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expected a fresh fetch after invalidation, source called %d times", source.calls)
	}
}

func TestCacheInvalidate_NilClient(t *testing.T) {
	cache := NewCache(&countingSource{}, nil, time.Minute, nil)
	if err := cache.Invalidate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
