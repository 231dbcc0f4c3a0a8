package nodes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

const guardAuthor = "guardrail"

// GuardInput ends the run with refusal when the guard flags the message.
// Guard failures let the message through.
func GuardInput(ctx context.Context, in *GraphState, guard contractx.Guard, refusal string, hooks Hooks) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if guard == nil {
		return in, nil
	}

	verdict, err := guard.Check(ctx, in.Text)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", in.ThreadID).Msg("input guard failed, allowing message")
		return in, nil
	}
	if hooks.OnGuard != nil {
		hooks.OnGuard(verdict.Allowed)
	}
	if verdict.Allowed {
		return in, nil
	}

	log.Info().
		Str("thread_id", in.ThreadID).
		Strs("categories", verdict.Categories).
		Msg("input blocked by guard")

	if err := in.Session.Append(statex.RoleAssistant, refusal, guardAuthor, in.Now); err != nil {
		return nil, err
	}
	if err := in.Session.Terminate(in.Now); err != nil {
		return nil, err
	}
	in.Blocked = true
	return in, nil
}
