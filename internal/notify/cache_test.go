package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/nexusrtb/catalyst/pkg/redis"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client, err := redis.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	return mr, New(client, time.Minute)
}

func TestCacheGetIsDestructive(t *testing.T) {
	mr, c := setupTestCache(t)
	defer mr.Close()
	ctx := context.Background()

	urls := NoticeUrls{Burl: "https://bidder.example.com/win", Lurl: "https://bidder.example.com/loss"}
	if err := c.Cache(ctx, "evt1", urls); err != nil {
		t.Fatalf("Cache: %v", err)
	}

	got, ok, err := c.Get(ctx, "evt1")
	if err != nil || !ok {
		t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
	}
	if got.Burl != urls.Burl || got.Lurl != urls.Lurl {
		t.Fatalf("got %+v, want %+v", got, urls)
	}

	// Second read must miss: the first read consumed the entry.
	_, ok, err = c.Get(ctx, "evt1")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if ok {
		t.Fatal("expected second read of the same id to miss")
	}
}

func TestCacheGetMissingIdIsNotError(t *testing.T) {
	mr, c := setupTestCache(t)
	defer mr.Close()

	_, ok, err := c.Get(context.Background(), "never-cached")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a miss for an id that was never cached")
	}
}

func TestCacheEntryExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	client, err := redis.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	c := New(client, time.Second)

	ctx := context.Background()
	if err := c.Cache(ctx, "evt2", NoticeUrls{Burl: "https://b"}); err != nil {
		t.Fatalf("Cache: %v", err)
	}
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "evt2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected entry to have expired")
	}
}
