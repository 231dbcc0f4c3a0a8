package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/tanpawarit/clinic-appointment-agent/agent/clinic"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	llmx "github.com/tanpawarit/clinic-appointment-agent/agent/llm"
	promptx "github.com/tanpawarit/clinic-appointment-agent/agent/prompt"
	toolx "github.com/tanpawarit/clinic-appointment-agent/agent/tool"
)

type registryImpl struct {
	classifier  contractx.Classifier
	specialists map[contractx.StepName]contractx.Specialist
}

func (r *registryImpl) Classifier() contractx.Classifier {
	return r.classifier
}

func (r *registryImpl) Specialist(step contractx.StepName) (contractx.Specialist, bool) {
	s, ok := r.specialists[step]
	return s, ok
}

type Options struct {
	MaxHops       int
	MaxToolRounds int
	// Year overrides the current year given to specialists when positive.
	Year    int
	Catalog *clinic.Catalog
}

// ModelFactory returns the chat model of one agent.
type ModelFactory func(ctx context.Context, agentType contractx.AgentType) (einomodel.ToolCallingChatModel, error)

// OpenRouterModels builds every agent model from the OPENROUTER_* config.
func OpenRouterModels(cfg llmx.Config) ModelFactory {
	return func(ctx context.Context, agentType contractx.AgentType) (einomodel.ToolCallingChatModel, error) {
		modelCfg := cfg.OpenRouterFor(agentType)
		return modelCfg.New(ctx)
	}
}

func NewRegistry(ctx context.Context, cfg llmx.Config, gateway *toolx.Gateway, opts Options) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewRegistryWithModels(ctx, OpenRouterModels(cfg), gateway, opts)
}

func NewRegistryWithModels(ctx context.Context, models ModelFactory, gateway *toolx.Gateway, opts Options) (contractx.Registry, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: tool gateway is required", contractx.ErrValidation)
	}
	prompts := promptx.LoadPromptSet()

	routerModel, err := models(ctx, contractx.AgentTypeRouter)
	if err != nil {
		return nil, fmt.Errorf("%w: create router model: %v", contractx.ErrModelInvoke, err)
	}
	classifier, err := newClassifier(ctx, routerModel, prompts.Supervisor, opts.MaxHops)
	if err != nil {
		return nil, err
	}

	reg := &registryImpl{
		classifier:  classifier,
		specialists: make(map[contractx.StepName]contractx.Specialist, len(contractx.Steps)),
	}
	for _, step := range contractx.Steps {
		chatModel, err := models(ctx, step.AgentType())
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, step.AgentType(), err)
		}
		systemPrompt, err := prompts.ForStep(step)
		if err != nil {
			return nil, err
		}
		tools, execute := gateway.BuildForStep(step)
		spec, err := newSpecialist(ctx, step, chatModel, systemPrompt, tools, execute, specialistOptions{
			MaxToolRounds: opts.MaxToolRounds,
			Year:          opts.Year,
			Catalog:       opts.Catalog,
		})
		if err != nil {
			return nil, err
		}
		reg.specialists[step] = spec
	}
	return reg, nil
}
