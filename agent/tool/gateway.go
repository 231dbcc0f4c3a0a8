// Package tool implements the appointment tools the specialist steps call.
// Every outcome, including store failures, is returned as text in a
// ToolResult so the model can relay it to the patient.
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/clinic-appointment-agent/agent/appointment"
	"github.com/tanpawarit/clinic-appointment-agent/agent/clinic"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

// Executor runs one tool call for identity.
type Executor func(ctx context.Context, identity int64, req contractx.ToolRequest) contractx.ToolResult

// Observer is told about every finished tool call.
type Observer func(tool string, status contractx.ToolStatus, elapsed time.Duration)

type Gateway struct {
	store    appointment.Store
	catalog  *clinic.Catalog
	notifier Notifier
	observe  Observer
	now      func() time.Time
}

type Option func(*Gateway)

func WithNotifier(n Notifier) Option {
	return func(g *Gateway) {
		if n != nil {
			g.notifier = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observe = o }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGateway(store appointment.Store, catalog *clinic.Catalog, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		catalog:  catalog,
		notifier: NopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ contractx.ToolGateway = (*Gateway)(nil)

// BuildForStep returns the tool schemas bound to step and an executor
// restricted to them.
func (g *Gateway) BuildForStep(step contractx.StepName) ([]*schema.ToolInfo, Executor) {
	return infosForStep(step, g.catalog), func(ctx context.Context, identity int64, req contractx.ToolRequest) contractx.ToolResult {
		return g.Execute(ctx, step, identity, req)
	}
}

func (g *Gateway) Execute(ctx context.Context, step contractx.StepName, identity int64, req contractx.ToolRequest) contractx.ToolResult {
	start := time.Now()
	res := g.execute(ctx, step, identity, req)

	evt := log.Debug()
	if res.Status == contractx.ToolError {
		evt = log.Warn()
	}
	evt.Str("step", string(step)).
		Str("tool", req.Tool).
		Str("status", string(res.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("tool executed")

	if g.observe != nil {
		g.observe(req.Tool, res.Status, time.Since(start))
	}
	return res
}

func (g *Gateway) execute(ctx context.Context, step contractx.StepName, identity int64, req contractx.ToolRequest) contractx.ToolResult {
	if !allowed(step, req.Tool) {
		return failed(req.Tool, fmt.Sprintf("tool=%s is unavailable for step=%s", req.Tool, step))
	}
	if identity <= 0 {
		return failed(req.Tool, "An error occurred: patient identification number is missing")
	}
	args := argReader(req.Args)

	switch req.Tool {
	case ToolCheckByDoctor:
		return g.checkByDoctor(ctx, args)
	case ToolCheckBySpecialization:
		return g.checkBySpecialization(ctx, args)
	case ToolSetAppointment:
		return g.setAppointment(ctx, identity, args)
	case ToolCancelAppointment:
		return g.cancelAppointment(ctx, identity, args)
	case ToolRescheduleAppointment:
		return g.rescheduleAppointment(ctx, identity, args)
	default:
		return failed(req.Tool, fmt.Sprintf("tool=%s is unavailable for step=%s", req.Tool, step))
	}
}

func ok(tool, out string) contractx.ToolResult {
	return contractx.ToolResult{Tool: tool, Output: out, Status: contractx.ToolOK}
}

func negative(tool, out string) contractx.ToolResult {
	return contractx.ToolResult{Tool: tool, Output: out, Status: contractx.ToolNegative}
}

func failed(tool, out string) contractx.ToolResult {
	return contractx.ToolResult{Tool: tool, Output: out, Status: contractx.ToolError}
}

func errorf(tool, while string, err error) contractx.ToolResult {
	return failed(tool, fmt.Sprintf("An error occurred while %s: %v", while, err))
}

type argReader map[string]any

func (a argReader) str(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (a argReader) required(key string) (string, error) {
	v := a.str(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}
