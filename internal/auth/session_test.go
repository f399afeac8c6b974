package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/adrian-cabangis/taskboard/internal/authz"
	dom "github.com/adrian-cabangis/taskboard/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Needs a running Redis. Set REDIS_ADDR (e.g. localhost:6379) to run.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestSessionRoundTrip(t *testing.T) {
	store := NewStore(testRedis(t), time.Minute)
	ctx := context.Background()

	want := authz.Identity{UserID: 42, Role: dom.RoleAdmin}
	id, err := store.Create(ctx, want)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}
	defer store.Delete(ctx, id)

	got, ok := store.Get(ctx, id)
	if !ok {
		t.Fatal("session not found")
	}
	if got != want {
		t.Errorf("identity = %+v, want %+v", got, want)
	}
}

func TestSessionDelete(t *testing.T) {
	store := NewStore(testRedis(t), time.Minute)
	ctx := context.Background()

	id, err := store.Create(ctx, authz.Identity{UserID: 7, Role: dom.RoleUser})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.Get(ctx, id); ok {
		t.Error("session still resolves after delete")
	}
}

func TestSessionUnknownID(t *testing.T) {
	store := NewStore(testRedis(t), time.Minute)
	if _, ok := store.Get(context.Background(), "deadbeef"); ok {
		t.Error("unknown session id resolved")
	}
}
