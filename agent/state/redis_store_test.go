package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T, opts ...StoreOption) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := NewRedisStoreFromClient(client, opts...)
	if err != nil {
		t.Fatalf("NewRedisStoreFromClient() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return mr, store
}

func TestRedisStoreSaveAndLoad(t *testing.T) {
	mr, store := setupMiniredis(t)
	ctx := context.Background()

	now := time.Date(2025, 8, 5, 9, 0, 0, 0, time.UTC)
	st := NewSessionState("thread-1", 1000082, now)
	if err := st.BeginTurn("book me with dr. sarah wilson", now); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if err := st.Terminate(now); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !mr.Exists("clinic:thread:thread-1") {
		t.Fatal("expected key to exist in redis")
	}
	if ttl := mr.TTL("clinic:thread:thread-1"); ttl != defaultStoreTTL {
		t.Fatalf("TTL = %v, want %v", ttl, defaultStoreTTL)
	}

	loaded, err := store.Load(ctx, "thread-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Identity != 1000082 {
		t.Fatalf("Identity = %d", loaded.Identity)
	}
	if loaded.Phase != PhaseTerminated || loaded.PendingRoute != RouteFinish {
		t.Fatalf("unexpected routing state: phase=%s route=%s", loaded.Phase, loaded.PendingRoute)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "book me with dr. sarah wilson" {
		t.Fatalf("unexpected messages: %#v", loaded.Messages)
	}
}

func TestRedisStoreLoadNotFound(t *testing.T) {
	_, store := setupMiniredis(t)

	_, err := store.Load(context.Background(), "nope")
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestRedisStoreLastWriterWins(t *testing.T) {
	_, store := setupMiniredis(t, WithTTL(0), WithKeyPrefix("t:"))
	ctx := context.Background()
	now := time.Now()

	first := NewSessionState("thread-9", 7, now)
	_ = first.BeginTurn("first", now)
	second := NewSessionState("thread-9", 7, now)
	_ = second.BeginTurn("second", now)

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save(first) error = %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save(second) error = %v", err)
	}

	loaded, err := store.Load(ctx, "thread-9")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.LastUserMessage() != "second" {
		t.Fatalf("LastUserMessage() = %q, want second", loaded.LastUserMessage())
	}
}

func TestRedisStoreDelete(t *testing.T) {
	mr, store := setupMiniredis(t)
	ctx := context.Background()

	if err := store.Save(ctx, NewSessionState("thread-2", 3, time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "thread-2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if mr.Exists("clinic:thread:thread-2") {
		t.Fatal("expected key to be deleted")
	}
}

func TestRedisStoreRejectsCorruptState(t *testing.T) {
	mr, store := setupMiniredis(t)

	if err := mr.Set("clinic:thread:bad", `{"thread_id":"bad","identity":0}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.Load(context.Background(), "bad")
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("Load() error = %v, want ErrInvalidIdentity", err)
	}
}
