package nodes

import (
	"fmt"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

// EnsureReply guarantees the run hands back natural language: when nothing
// was said since the user's message, the supervisor closes the turn. A run
// stopped by the hop limit always ends with the supervisor's hop-limit notice.
func EnsureReply(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	msg := closingMessage
	if in.HopLimited {
		msg = hopLimitMessage
	} else if _, ok := in.Session.LastAssistantSince(in.RunStart); ok {
		return in, nil
	}
	if err := in.Session.Append(statex.RoleAssistant, msg, supervisorAuthor, in.Now); err != nil {
		return nil, err
	}
	return in, nil
}
