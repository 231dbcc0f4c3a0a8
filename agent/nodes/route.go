package nodes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

const tracerName = "github.com/tanpawarit/clinic-appointment-agent/agent/nodes"

// Route is the Router step. In order: a set follow-up latch suspends the run
// without consulting the classifier; an exhausted hop budget terminates it;
// otherwise the classifier picks a specialist or FINISH.
func Route(ctx context.Context, in *GraphState, classifier contractx.Classifier, maxHops int, hooks Hooks) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	st := in.Session

	ctx, span := otel.Tracer(tracerName).Start(ctx, "router.route", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("thread_id", in.ThreadID), attribute.Int("hops", in.Hops))

	switch {
	case st.AwaitingFollowup:
		if err := st.Suspend(in.Now); err != nil {
			return nil, err
		}
		in.Decision = contractx.RouteDecision{}
		in.Next = NodeEnsureReply
		log.Debug().Str("thread_id", in.ThreadID).Msg("awaiting user follow-up")

	case hopLimitReached(in.Hops, maxHops):
		if err := st.Terminate(in.Now); err != nil {
			return nil, err
		}
		in.Decision = contractx.RouteDecision{Next: contractx.RouteFinish, Reasoning: reasonHopLimit}
		in.HopLimited = true
		in.Next = NodeEnsureReply
		log.Warn().Str("thread_id", in.ThreadID).Int("hops", in.Hops).Msg("hop limit reached, finishing run")

	default:
		decision, err := classifier.Classify(ctx, contractx.ClassifyRequest{
			Identity: st.Identity,
			Messages: st.Messages,
			Now:      in.Now,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "classify failed")
			return nil, err
		}
		in.Decision = decision
		st.Query = st.LastUserMessage()
		st.LastReasoning = decision.Reasoning

		if decision.Next == contractx.RouteFinish {
			err = st.Terminate(in.Now)
		} else {
			err = st.Dispatch(string(decision.Next), in.Now)
		}
		if err != nil {
			return nil, err
		}
		in.Next = nextNode(st, decision)

		log.Info().
			Str("thread_id", in.ThreadID).
			Str("route", string(decision.Next)).
			Str("reasoning", decision.Reasoning).
			Msg("router decision")
	}

	span.SetAttributes(attribute.String("route", in.Next))
	if hooks.OnRoute != nil {
		hooks.OnRoute(in.Next)
	}
	return in, nil
}
