package contract

import (
	"time"

	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

type AgentType string

const (
	AgentTypeRouter      AgentType = "router"
	AgentTypeInformation AgentType = "information"
	AgentTypeBooking     AgentType = "booking"
)

// StepName is the graph node name of a specialist step, as the classifier sees it.
type StepName string

const (
	StepInformation StepName = "information_node"
	StepBooking     StepName = "booking_node"
	RouteFinish     StepName = statex.RouteFinish
)

// Steps lists the dispatchable specialist steps in prompt order.
var Steps = []StepName{StepInformation, StepBooking}

func (s StepName) AgentType() AgentType {
	switch s {
	case StepInformation:
		return AgentTypeInformation
	case StepBooking:
		return AgentTypeBooking
	default:
		return AgentTypeRouter
	}
}

// ValidRoute reports whether next is a step name or the FINISH sentinel.
func ValidRoute(next StepName) bool {
	if next == RouteFinish {
		return true
	}
	for _, s := range Steps {
		if s == next {
			return true
		}
	}
	return false
}

type ClassifyRequest struct {
	Identity int64            `json:"identity"`
	Messages []statex.Message `json:"messages"`
	Now      time.Time        `json:"now"`
}

type RouteDecision struct {
	Next      StepName `json:"next"`
	Reasoning string   `json:"reasoning"`
}

type SpecialistRequest struct {
	Step     StepName         `json:"step"`
	Identity int64            `json:"identity"`
	Messages []statex.Message `json:"messages"`
	Now      time.Time        `json:"now"`
}

// Outcome tags what a specialist activation achieved.
type Outcome string

const (
	OutcomeAnswered           Outcome = "answered"
	OutcomeNeedsClarification Outcome = "needs_clarification"
	OutcomeActionFailed       Outcome = "action_failed"
)

type SpecialistResponse struct {
	Message   string       `json:"message"`
	Outcome   Outcome      `json:"outcome"`
	ToolCalls []ToolResult `json:"tool_calls,omitempty"`
}

// NeedsFollowup is true iff the activation invoked no tool.
func (r SpecialistResponse) NeedsFollowup() bool {
	return r.Outcome == OutcomeNeedsClarification
}

type ToolRequest struct {
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
}

type ToolStatus string

const (
	ToolOK       ToolStatus = "ok"
	ToolNegative ToolStatus = "negative" // business outcome such as "no slot"
	ToolError    ToolStatus = "error"
)

type ToolResult struct {
	Tool   string     `json:"tool"`
	Output string     `json:"output"`
	Status ToolStatus `json:"status"`
}

type GuardVerdict struct {
	Allowed    bool     `json:"allowed"`
	Categories []string `json:"categories,omitempty"`
}
