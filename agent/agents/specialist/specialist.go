package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/clinic-appointment-agent/agent/clinic"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	promptx "github.com/tanpawarit/clinic-appointment-agent/agent/prompt"
	toolx "github.com/tanpawarit/clinic-appointment-agent/agent/tool"
)

const defaultMaxToolRounds = 5

type specialistImpl struct {
	step         contractx.StepName
	template     einoprompt.ChatTemplate
	chatModel    einomodel.ToolCallingChatModel
	toolModel    einomodel.ToolCallingChatModel
	execute      toolx.Executor
	allowedTools map[string]struct{}
	catalog      *clinic.Catalog
	year         int
	runner       compose.Runnable[*loopState, *loopState]
}

type specialistOptions struct {
	MaxToolRounds int
	Year          int
	Catalog       *clinic.Catalog
}

func newSpecialist(
	ctx context.Context,
	step contractx.StepName,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	tools []*schema.ToolInfo,
	execute toolx.Executor,
	opts specialistOptions,
) (*specialistImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: step=%s", contractx.ErrPromptMissing, step)
	}
	if execute == nil {
		return nil, fmt.Errorf("%w: tool executor is required for step=%s", contractx.ErrValidation, step)
	}

	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for step=%s: %v", contractx.ErrModelInvoke, step, err)
	}

	allowedTools := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		allowedTools[t.Name] = struct{}{}
	}

	maxRounds := opts.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	spec := &specialistImpl{
		step:         step,
		template:     newChatTemplate(systemPrompt),
		chatModel:    chatModel,
		toolModel:    toolModel,
		execute:      execute,
		allowedTools: allowedTools,
		catalog:      opts.Catalog,
		year:         opts.Year,
	}

	runner, err := compileToolLoopGraph(ctx, spec.generate, spec.executeTools, spec.wrapUp, maxRounds, string(step)+".tool_loop_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile specialist graph: %v", contractx.ErrModelInvoke, err)
	}
	spec.runner = runner
	return spec, nil
}

func (s *specialistImpl) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	if req.Identity <= 0 {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: identity is required", contractx.ErrValidation)
	}

	vars := promptx.SpecialistVars(req.Identity, req.Now, s.year, s.catalog)
	vars["messages"] = toSchemaMessages(req.Messages)
	input, err := s.template.Format(ctx, vars)
	if err != nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: format prompt for step=%s: %v", contractx.ErrPromptMissing, s.step, err)
	}

	out, err := s.runner.Invoke(ctx, &loopState{Req: req, Messages: input})
	if err != nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: step=%s: %v", contractx.ErrModelInvoke, s.step, err)
	}
	return finalize(out)
}

func (s *specialistImpl) generate(ctx context.Context, st *loopState) (*loopState, error) {
	msg, err := s.toolModel.Generate(ctx, st.Messages)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}
	st.Messages = append(st.Messages, msg)
	st.Final = msg
	return st, nil
}

// wrapUp asks the unbound model for a closing reply once the tool budget is spent.
func (s *specialistImpl) wrapUp(ctx context.Context, st *loopState) (*loopState, error) {
	msg, err := s.chatModel.Generate(ctx, st.Messages)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}
	st.Messages = append(st.Messages, msg)
	st.Final = msg
	return st, nil
}

func (s *specialistImpl) executeTools(ctx context.Context, st *loopState) (*loopState, error) {
	last := st.last()
	if last == nil {
		return st, nil
	}
	for _, call := range last.ToolCalls {
		res := s.runCall(ctx, st.Req.Identity, call)
		st.Results = append(st.Results, res)
		st.Messages = append(st.Messages, schema.ToolMessage(res.Output, call.ID))
	}
	st.Rounds++
	return st, nil
}

// runCall never fails: bad calls come back to the model as tool output.
func (s *specialistImpl) runCall(ctx context.Context, identity int64, call schema.ToolCall) contractx.ToolResult {
	name := strings.TrimSpace(call.Function.Name)
	if _, ok := s.allowedTools[name]; !ok {
		return contractx.ToolResult{
			Tool:   name,
			Output: fmt.Sprintf("tool=%s is not allowed for step=%s", name, s.step),
			Status: contractx.ToolError,
		}
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return contractx.ToolResult{
				Tool:   name,
				Output: fmt.Sprintf("invalid arguments for %s: %v", name, err),
				Status: contractx.ToolError,
			}
		}
	}
	// Identity comes from the session; whatever the model put here is ignored.
	delete(args, "id_number")

	return s.execute(ctx, identity, contractx.ToolRequest{CallID: call.ID, Tool: name, Args: args})
}

func finalize(st *loopState) (contractx.SpecialistResponse, error) {
	if st == nil || st.Final == nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist produced no reply", contractx.ErrSchemaViolation)
	}

	message := strings.TrimSpace(st.Final.Content)
	if message == "" && len(st.Results) > 0 {
		// Wrap-up produced no text; the last tool output is the answer.
		message = st.Results[len(st.Results)-1].Output
		log.Warn().Str("step", string(st.Req.Step)).Int("rounds", st.Rounds).Msg("tool loop ended without a reply")
	}
	if message == "" {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist message is empty", contractx.ErrSchemaViolation)
	}

	return contractx.SpecialistResponse{
		Message:   message,
		Outcome:   outcomeOf(st.Results),
		ToolCalls: st.Results,
	}, nil
}

func outcomeOf(results []contractx.ToolResult) contractx.Outcome {
	if len(results) == 0 {
		return contractx.OutcomeNeedsClarification
	}
	for _, r := range results {
		if r.Status != contractx.ToolOK {
			return contractx.OutcomeActionFailed
		}
	}
	return contractx.OutcomeAnswered
}
