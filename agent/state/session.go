package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionState is the checkpointed context of one conversation thread.
// - Routing: Phase + PendingRoute + AwaitingFollowup
// - History: Messages (append-only)
type SessionState struct {
	// Identity
	ThreadID string `json:"thread_id"`
	Identity int64  `json:"identity"`

	Messages []Message `json:"messages"`

	// Routing
	Phase            Phase  `json:"phase"`
	PendingRoute     string `json:"pending_route,omitempty"`
	Query            string `json:"query,omitempty"`
	LastReasoning    string `json:"last_reasoning,omitempty"`
	AwaitingFollowup bool   `json:"awaiting_followup"`
	LastOutcome      string `json:"last_outcome,omitempty"`
	Turns            int    `json:"turns"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"` // step that authored an assistant message
	CreatedAt time.Time `json:"created_at"`
}

// Phase is the routing position of a thread between two external calls.
type Phase string

const (
	PhaseNew        Phase = ""
	PhaseRouting    Phase = "routing"
	PhaseAwaiting   Phase = "awaiting_user_input"
	PhaseDispatched Phase = "dispatched"
	PhaseTerminated Phase = "terminated"
)

// RouteFinish is stored in PendingRoute once the Router ends a run.
const RouteFinish = "FINISH"

var (
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrIdentityMismatch  = errors.New("identity does not match thread")
	ErrInvalidIdentity   = errors.New("identity must be positive")
	ErrEmptyMessage      = errors.New("message content is empty")
	ErrInvalidRole       = errors.New("invalid message role")
)

func NewSessionState(threadID string, identity int64, now time.Time) *SessionState {
	return &SessionState{
		ThreadID:  threadID,
		Identity:  identity,
		Messages:  make([]Message, 0, 8),
		Phase:     PhaseNew,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

/* ----------------------------- History ----------------------------- */

// Append adds a message at the end of the history. Prior entries are never rewritten.
func (s *SessionState) Append(role Role, content, name string, now time.Time) error {
	if s == nil {
		return errors.New("nil session state")
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Name:      name,
		CreatedAt: now.UTC(),
	})
	return nil
}

// LastUserMessage returns the content of the most recent user-authored message.
func (s *SessionState) LastUserMessage() string {
	if s == nil {
		return ""
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastAssistantSince returns the newest assistant message at index >= from.
func (s *SessionState) LastAssistantSince(from int) (Message, bool) {
	if s == nil {
		return Message{}, false
	}
	if from < 0 {
		from = 0
	}
	for i := len(s.Messages) - 1; i >= from; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	default:
		return false
	}
}

/* ----------------------------- Transitions ----------------------------- */

// CheckIdentity rejects a caller-supplied identity that differs from the one
// the thread was created with.
func (s *SessionState) CheckIdentity(identity int64) error {
	if identity <= 0 {
		return ErrInvalidIdentity
	}
	if s.Identity != identity {
		return fmt.Errorf("%w: thread=%s", ErrIdentityMismatch, s.ThreadID)
	}
	return nil
}

// BeginTurn opens a run for a new user message.
// new | awaiting_user_input | terminated -> routing
func (s *SessionState) BeginTurn(content string, now time.Time) error {
	switch s.Phase {
	case PhaseNew, PhaseAwaiting, PhaseTerminated:
	default:
		return fmt.Errorf("%w: begin turn from %q", ErrInvalidTransition, s.Phase)
	}
	if err := s.Append(RoleUser, content, "", now); err != nil {
		return err
	}
	s.Phase = PhaseRouting
	s.PendingRoute = ""
	s.Turns++
	s.Touch(now)
	return nil
}

// Dispatch hands the turn to a specialist step.
// routing -> dispatched
func (s *SessionState) Dispatch(step string, now time.Time) error {
	if s.Phase != PhaseRouting {
		return fmt.Errorf("%w: dispatch from %q", ErrInvalidTransition, s.Phase)
	}
	if strings.TrimSpace(step) == "" || step == RouteFinish {
		return fmt.Errorf("%w: dispatch needs a step name", ErrInvalidTransition)
	}
	s.Phase = PhaseDispatched
	s.PendingRoute = step
	s.Touch(now)
	return nil
}

// CompleteStep returns control to the Router after a specialist activation.
// dispatched -> routing; the follow-up latch is set iff the step needs clarification.
func (s *SessionState) CompleteStep(outcome string, needsFollowup bool, now time.Time) error {
	if s.Phase != PhaseDispatched {
		return fmt.Errorf("%w: complete step from %q", ErrInvalidTransition, s.Phase)
	}
	s.Phase = PhaseRouting
	s.AwaitingFollowup = needsFollowup
	s.LastOutcome = outcome
	s.Touch(now)
	return nil
}

// Suspend yields to the external caller while the latch is set, clearing it.
// routing -> awaiting_user_input
func (s *SessionState) Suspend(now time.Time) error {
	if s.Phase != PhaseRouting {
		return fmt.Errorf("%w: suspend from %q", ErrInvalidTransition, s.Phase)
	}
	if !s.AwaitingFollowup {
		return fmt.Errorf("%w: suspend without pending follow-up", ErrInvalidTransition)
	}
	s.AwaitingFollowup = false
	s.Phase = PhaseAwaiting
	s.PendingRoute = ""
	s.Touch(now)
	return nil
}

// Terminate ends the run.
// routing -> terminated
func (s *SessionState) Terminate(now time.Time) error {
	if s.Phase != PhaseRouting {
		return fmt.Errorf("%w: terminate from %q", ErrInvalidTransition, s.Phase)
	}
	s.Phase = PhaseTerminated
	s.PendingRoute = RouteFinish
	s.Touch(now)
	return nil
}

// Yielded reports whether the run has handed control back to the caller.
func (s *SessionState) Yielded() bool {
	return s.Phase == PhaseAwaiting || s.Phase == PhaseTerminated
}

func (s *SessionState) Validate() error {
	if strings.TrimSpace(s.ThreadID) == "" {
		return ErrInvalidThread
	}
	if s.Identity <= 0 {
		return ErrInvalidIdentity
	}
	switch s.Phase {
	case PhaseNew, PhaseRouting, PhaseAwaiting, PhaseDispatched, PhaseTerminated:
	default:
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, s.Phase)
	}
	for i, m := range s.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidRole, i, m.Role)
		}
	}
	if s.Phase == PhaseDispatched && strings.TrimSpace(s.PendingRoute) == "" {
		return fmt.Errorf("%w: dispatched without pending route", ErrInvalidTransition)
	}
	return nil
}

// Clone returns a deep copy suitable for handing to stores and callers.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	return &out
}
