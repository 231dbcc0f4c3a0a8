package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newUpstashTestStore(t *testing.T, handler http.HandlerFunc, opts ...StoreOption) *UpstashRedisStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]StoreOption{WithHTTPClient(server.Client())}, opts...)
	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, opts...)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func TestThreadKeyEmptyThread(t *testing.T) {
	t.Parallel()

	_, err := threadKey(defaultStoreKeyPrefix, "   ")
	if !errors.Is(err, ErrInvalidThread) {
		t.Fatalf("threadKey() error = %v, want ErrInvalidThread", err)
	}
}

func TestNewUpstashRedisStoreRejectsMissingConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashRedisStore(UpstashRedisConfig{Token: "token"}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "https://example.upstash.io"}); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: "https://example.upstash.io", Token: "token"},
		WithTTL(-time.Second),
	); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestUpstashRedisStoreSaveSendsSetWithTTL(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	var gotAuth string
	store := newUpstashTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}, WithTTL(90*time.Minute))

	st := NewSessionState("thread-1", 1000082, time.Now())
	if err := store.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if gotAuth != "Bearer token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(gotCommand) != 5 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" || gotCommand[1] != "clinic:thread:thread-1" {
		t.Fatalf("unexpected command head: %#v", gotCommand[:2])
	}
	if gotCommand[3] != "EX" || gotCommand[4] != float64(5400) {
		t.Fatalf("unexpected expiry: %#v", gotCommand[3:])
	}
}

func TestUpstashRedisStoreLoadDecodesState(t *testing.T) {
	t.Parallel()

	seed := NewSessionState("thread-2", 42, time.Date(2025, 8, 5, 9, 0, 0, 0, time.UTC))
	if err := seed.BeginTurn("is dr. john doe free tomorrow?", seed.CreatedAt); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	payload, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("marshal encoded seed: %v", err)
	}

	var gotCommand []any
	store := newUpstashTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	}, WithKeyPrefix("test:"))

	st, err := store.Load(context.Background(), "thread-2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Identity != 42 || len(st.Messages) != 1 || st.Phase != PhaseRouting {
		t.Fatalf("unexpected state: %#v", st)
	}
	if gotCommand[0] != "GET" || gotCommand[1] != "test:thread-2" {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
}

func TestUpstashRedisStoreLoadNotFound(t *testing.T) {
	t.Parallel()

	store := newUpstashTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	})

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestUpstashRedisStoreSurfacesRedisError(t *testing.T) {
	t.Parallel()

	store := newUpstashTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGPASS invalid token"}`)
	})

	err := store.Delete(context.Background(), "thread-3")
	if err == nil || err.Error() != "WRONGPASS invalid token" {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestTTLSecondsRoundsUp(t *testing.T) {
	t.Parallel()

	if got := ttlSeconds(1500 * time.Millisecond); got != 2 {
		t.Fatalf("ttlSeconds(1.5s) = %d, want 2", got)
	}
	if got := ttlSeconds(time.Millisecond); got != 1 {
		t.Fatalf("ttlSeconds(1ms) = %d, want 1", got)
	}
}
