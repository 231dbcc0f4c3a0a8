package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	promptx "github.com/tanpawarit/clinic-appointment-agent/agent/prompt"
)

type classifierImpl struct {
	runner  compose.Runnable[map[string]any, classifierLLMOutput]
	maxHops int
}

type classifierLLMOutput struct {
	Next      string `json:"next"`
	Reasoning string `json:"reasoning"`
}

func newClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, maxHops int) (*classifierImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: supervisor prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileStructuredLLMGraph[classifierLLMOutput](ctx, chatModel, systemPrompt, "router.classifier_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	return &classifierImpl{runner: runner, maxHops: maxHops}, nil
}

func (c *classifierImpl) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.RouteDecision, error) {
	if req.Identity <= 0 {
		return contractx.RouteDecision{}, fmt.Errorf("%w: identity is required", contractx.ErrValidation)
	}
	if len(req.Messages) == 0 {
		return contractx.RouteDecision{}, fmt.Errorf("%w: conversation is empty", contractx.ErrValidation)
	}

	vars := promptx.SupervisorVars(req.Identity, req.Now, c.maxHops)
	vars["messages"] = toSchemaMessages(req.Messages)

	out, err := c.runner.Invoke(ctx, vars)
	if err != nil {
		return contractx.RouteDecision{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	next := contractx.StepName(strings.TrimSpace(out.Next))
	if !contractx.ValidRoute(next) {
		return contractx.RouteDecision{}, fmt.Errorf("%w: next=%q", contractx.ErrSchemaViolation, out.Next)
	}
	return contractx.RouteDecision{
		Next:      next,
		Reasoning: strings.TrimSpace(out.Reasoning),
	}, nil
}
