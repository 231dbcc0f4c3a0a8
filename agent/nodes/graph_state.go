// Package nodes holds the steps of the per-message orchestration graph.
// Every node takes and returns the shared *GraphState.
package nodes

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidThread  = errors.New("thread id is empty")
	ErrUnknownStep    = errors.New("no specialist registered for step")
)

// Branch targets after the route node besides the step names.
const (
	NodeEnsureReply = "ensure_reply"
)

type GraphInput struct {
	ThreadID string
	Identity int64
	Text     string
}

type GraphOutput struct {
	ThreadID string
	Reply    string
	Phase    statex.Phase
	Messages []statex.Message
}

type GraphState struct {
	ThreadID string
	Identity int64
	Text     string
	Now      time.Time

	Session *statex.SessionState
	// RunStart is the index of this run's user message in Session.Messages.
	RunStart int
	Hops     int
	Blocked  bool
	// HopLimited is set when the router stopped the run on the hop budget.
	HopLimited bool

	Decision contractx.RouteDecision
	Next     string
	Response contractx.SpecialistResponse
}

// Hooks are optional observers of routing and specialist activity.
type Hooks struct {
	OnRoute      func(next string)
	OnSpecialist func(step contractx.StepName, outcome contractx.Outcome, elapsed time.Duration)
	OnGuard      func(allowed bool)
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		return nil, ErrInvalidThread
	}
	if in.Identity <= 0 {
		return nil, statex.ErrInvalidIdentity
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		ThreadID: threadID,
		Identity: in.Identity,
		Text:     text,
		Now:      nowFn().UTC(),
	}, nil
}
