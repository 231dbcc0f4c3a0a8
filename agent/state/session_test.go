package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 8, 5, 9, 30, 0, 0, time.UTC)

func TestSessionStateFullCycle(t *testing.T) {
	t.Parallel()

	st := NewSessionState("thread-1", 1000082, testNow)

	if err := st.BeginTurn("can I see dr. john doe on 08-08-2025?", testNow); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if st.Phase != PhaseRouting || st.Turns != 1 {
		t.Fatalf("unexpected phase=%s turns=%d", st.Phase, st.Turns)
	}

	if err := st.Dispatch("information_node", testNow); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if st.PendingRoute != "information_node" {
		t.Fatalf("PendingRoute = %q", st.PendingRoute)
	}

	if err := st.Append(RoleAssistant, "Dr. John Doe is free at 08:00", "information_node", testNow); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := st.CompleteStep("answered", false, testNow); err != nil {
		t.Fatalf("CompleteStep() error = %v", err)
	}
	if st.AwaitingFollowup {
		t.Fatal("latch must stay clear after a grounded answer")
	}

	if err := st.Terminate(testNow); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if !st.Yielded() || st.PendingRoute != RouteFinish {
		t.Fatalf("unexpected terminal state: %#v", st)
	}
	if err := st.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestSessionStateLatchIsOneShot(t *testing.T) {
	t.Parallel()

	st := NewSessionState("thread-2", 5, testNow)
	_ = st.BeginTurn("book an appointment", testNow)
	_ = st.Dispatch("booking_node", testNow)
	_ = st.Append(RoleAssistant, "Which doctor and time?", "booking_node", testNow)

	if err := st.CompleteStep("needs_clarification", true, testNow); err != nil {
		t.Fatalf("CompleteStep() error = %v", err)
	}
	if !st.AwaitingFollowup {
		t.Fatal("expected latch to be set")
	}

	if err := st.Suspend(testNow); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	if st.AwaitingFollowup {
		t.Fatal("Suspend must clear the latch")
	}
	if st.Phase != PhaseAwaiting {
		t.Fatalf("Phase = %s, want %s", st.Phase, PhaseAwaiting)
	}

	if err := st.BeginTurn("dr. jane smith at 10:00", testNow); err != nil {
		t.Fatalf("BeginTurn() after suspend error = %v", err)
	}
	if st.Turns != 2 || len(st.Messages) != 3 {
		t.Fatalf("unexpected turns=%d messages=%d", st.Turns, len(st.Messages))
	}
}

func TestSessionStateRejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	st := NewSessionState("thread-3", 5, testNow)

	cases := []struct {
		name string
		fn   func() error
	}{
		{"dispatch before turn", func() error { return st.Dispatch("booking_node", testNow) }},
		{"complete before dispatch", func() error { return st.CompleteStep("answered", false, testNow) }},
		{"suspend before turn", func() error { return st.Suspend(testNow) }},
		{"terminate before turn", func() error { return st.Terminate(testNow) }},
	}
	for _, tc := range cases {
		if err := tc.fn(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s: error = %v, want ErrInvalidTransition", tc.name, err)
		}
	}

	_ = st.BeginTurn("hello", testNow)
	if err := st.Suspend(testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("suspend without latch: error = %v", err)
	}
	if err := st.Dispatch(RouteFinish, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("dispatch to FINISH: error = %v", err)
	}
	if err := st.BeginTurn("again", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("begin turn while routing: error = %v", err)
	}
}

func TestSessionStateHistoryIsAppendOnly(t *testing.T) {
	t.Parallel()

	st := NewSessionState("thread-4", 5, testNow)
	_ = st.BeginTurn("first", testNow)
	before := st.Clone()

	if err := st.Append(RoleAssistant, "reply", "information_node", testNow); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := st.Append(RoleUser, "   ", "", testNow); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Append(empty) error = %v", err)
	}
	if err := st.Append(Role("robot"), "x", "", testNow); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("Append(bad role) error = %v", err)
	}

	if len(st.Messages) != len(before.Messages)+1 {
		t.Fatalf("expected exactly one new message, got %d", len(st.Messages))
	}
	for i, m := range before.Messages {
		if st.Messages[i] != m {
			t.Fatalf("message %d was rewritten", i)
		}
	}
	if got, ok := st.LastAssistantSince(1); !ok || got.Content != "reply" {
		t.Fatalf("LastAssistantSince(1) = %#v, %v", got, ok)
	}
	if _, ok := st.LastAssistantSince(2); ok {
		t.Fatal("LastAssistantSince(2) must not find anything")
	}
}

func TestSessionStateCheckIdentity(t *testing.T) {
	t.Parallel()

	st := NewSessionState("thread-5", 77, testNow)
	if err := st.CheckIdentity(77); err != nil {
		t.Fatalf("CheckIdentity(77) error = %v", err)
	}
	if err := st.CheckIdentity(78); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("CheckIdentity(78) error = %v", err)
	}
	if err := st.CheckIdentity(0); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("CheckIdentity(0) error = %v", err)
	}
}

func TestMemoryStoreCopiesState(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	st := NewSessionState("thread-6", 9, testNow)
	_ = st.BeginTurn("hi", testNow)

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	_ = st.Append(RoleAssistant, "mutated after save", "information_node", testNow)

	loaded, err := store.Load(ctx, "thread-6")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Messages) != 1 {
		t.Fatalf("stored state must not alias caller state, got %d messages", len(loaded.Messages))
	}

	if err := store.Delete(ctx, "thread-6"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "thread-6"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() after delete error = %v", err)
	}
}
