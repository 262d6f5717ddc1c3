package report

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

type payload struct {
	Value int `json:"value"`
}

func TestCacheFetchJSONPopulatesAndHits(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	key, err := c.BuildKey(ctx, "dashboard", "default")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}

	calls := 0
	loader := func(context.Context) (interface{}, string, error) {
		calls++
		return payload{Value: 7}, "2026-08", nil
	}

	var got payload
	if err := c.FetchJSON(ctx, key, "2026-08", &got, loader); err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	if got.Value != 7 || calls != 1 {
		t.Fatalf("first fetch: got %+v, calls %d", got, calls)
	}

	got = payload{}
	if err := c.FetchJSON(ctx, key, "2026-08", &got, loader); err != nil {
		t.Fatalf("FetchJSON hit: %v", err)
	}
	if got.Value != 7 || calls != 1 {
		t.Fatalf("expected a cache hit, calls = %d", calls)
	}
}

func TestCacheFetchJSONStalePeriodReloads(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	key, _ := c.BuildKey(ctx, "dashboard", "default")

	calls := 0
	period := "2026-07"
	loader := func(context.Context) (interface{}, string, error) {
		calls++
		return payload{Value: calls}, period, nil
	}

	var got payload
	if err := c.FetchJSON(ctx, key, "2026-07", &got, loader); err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	// A new month landed in the store: the entry's period no longer
	// matches, so the loader must run again.
	period = "2026-08"
	if err := c.FetchJSON(ctx, key, "2026-08", &got, loader); err != nil {
		t.Fatalf("FetchJSON stale: %v", err)
	}
	if calls != 2 || got.Value != 2 {
		t.Fatalf("stale entry should reload, calls = %d got %+v", calls, got)
	}
}

func TestCacheBumpChangesKeys(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	before, err := c.BuildKey(ctx, "summary", "default")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}
	if err := c.Bump(ctx); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	after, err := c.BuildKey(ctx, "summary", "default")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}
	if before == after {
		t.Fatalf("bump should rotate keys: %q == %q", before, after)
	}
}

func TestCacheNilClientPassThrough(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil, time.Minute)

	calls := 0
	loader := func(context.Context) (interface{}, string, error) {
		calls++
		return payload{Value: 3}, "2026-08", nil
	}
	var got payload
	for i := 0; i < 2; i++ {
		if err := c.FetchJSON(ctx, "ignored", "2026-08", &got, loader); err != nil {
			t.Fatalf("FetchJSON: %v", err)
		}
	}
	if calls != 2 || got.Value != 3 {
		t.Fatalf("nil client must always load, calls = %d", calls)
	}
	if err := c.Bump(ctx); err != nil {
		t.Fatalf("Bump on nil client: %v", err)
	}
}
