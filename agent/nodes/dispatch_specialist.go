package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

// DispatchSpecialist runs the step chosen by the Router and records its
// reply and outcome on the session.
func DispatchSpecialist(ctx context.Context, in *GraphState, step contractx.StepName, models contractx.Registry, hooks Hooks) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	st := in.Session

	specialist, ok := models.Specialist(step)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "specialist.run", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("thread_id", in.ThreadID), attribute.String("step", string(step)))

	start := time.Now()
	resp, err := specialist.Run(ctx, contractx.SpecialistRequest{
		Step:     step,
		Identity: st.Identity,
		Messages: st.Messages,
		Now:      in.Now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "specialist failed")
		return nil, err
	}

	if err := st.Append(statex.RoleAssistant, strings.TrimSpace(resp.Message), string(step), in.Now); err != nil {
		return nil, fmt.Errorf("%w: step=%s: %v", contractx.ErrSchemaViolation, step, err)
	}
	if err := st.CompleteStep(string(resp.Outcome), resp.NeedsFollowup(), in.Now); err != nil {
		return nil, err
	}
	in.Hops++
	in.Response = resp

	span.SetAttributes(attribute.String("outcome", string(resp.Outcome)), attribute.Int("tool_calls", len(resp.ToolCalls)))
	log.Info().
		Str("thread_id", in.ThreadID).
		Str("step", string(step)).
		Str("outcome", string(resp.Outcome)).
		Int("tool_calls", len(resp.ToolCalls)).
		Msg("specialist finished")
	if hooks.OnSpecialist != nil {
		hooks.OnSpecialist(step, resp.Outcome, time.Since(start))
	}
	return in, nil
}
