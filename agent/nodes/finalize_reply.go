package nodes

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Session == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	last, ok := in.Session.LastAssistantSince(in.RunStart)
	reply := strings.TrimSpace(last.Content)
	if !ok || reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: run produced no reply", contractx.ErrValidation)
	}
	return GraphOutput{
		ThreadID: in.ThreadID,
		Reply:    reply,
		Phase:    in.Session.Phase,
		Messages: in.Session.Clone().Messages,
	}, nil
}
