package usersync

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/nexusrtb/catalyst/pkg/redis"
)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client, err := redis.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis.New: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return mr, NewStore(client)
}

func TestStoreRecordAndLookup(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "rx1", "acme", "acme-uid-1"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	uid, ok, err := store.Lookup(ctx, "rx1", "acme")
	if err != nil || !ok || uid != "acme-uid-1" {
		t.Fatalf("Lookup = %q, %v, %v", uid, ok, err)
	}
}

func TestStoreLookupMissingIsNotFound(t *testing.T) {
	_, store := setupTestStore(t)
	_, ok, err := store.Lookup(context.Background(), "rx-missing", "acme")
	if err != nil || ok {
		t.Fatalf("expected not-found, got ok=%v err=%v", ok, err)
	}
}

func TestStoreLookupAllReturnsEveryBidder(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()
	store.Record(ctx, "rx2", "acme", "uid-a")
	store.Record(ctx, "rx2", "globex", "uid-g")

	all, err := store.LookupAll(ctx, "rx2")
	if err != nil {
		t.Fatalf("LookupAll: %v", err)
	}
	if all["acme"] != "uid-a" || all["globex"] != "uid-g" {
		t.Fatalf("unexpected mapping: %+v", all)
	}
}

func TestStoreForgetRemovesOneBidder(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()
	store.Record(ctx, "rx3", "acme", "uid-a")
	if err := store.Forget(ctx, "rx3", "acme"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	_, ok, _ := store.Lookup(ctx, "rx3", "acme")
	if ok {
		t.Fatal("expected mapping to be gone after Forget")
	}
}
