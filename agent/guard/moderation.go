// Package guard screens patient input before it reaches the router.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	openrouterx "github.com/tanpawarit/clinic-appointment-agent/pkg/openrouter"
)

// Refusal is the reply given to flagged input.
const Refusal = "I'm sorry, I can't help with that. I can check doctor availability or book, cancel and reschedule appointments."

type Config struct {
	Enabled bool          `envconfig:"ENABLED" default:"false"`
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Model   string        `envconfig:"MODEL" default:"omni-moderation-latest"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// Moderation checks text with the OpenAI moderations endpoint.
type Moderation struct {
	client *openaisdk.Client
	model  string
}

var _ contractx.Guard = (*Moderation)(nil)

// New returns nil, nil when the guard is disabled.
func New(cfg Config) (*Moderation, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := openrouterx.NewClient(openrouterx.ClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
	if client == nil {
		return nil, fmt.Errorf("%w: guardrail api key is required", contractx.ErrValidation)
	}
	return &Moderation{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

func (m *Moderation) Check(ctx context.Context, text string) (contractx.GuardVerdict, error) {
	if strings.TrimSpace(text) == "" {
		return contractx.GuardVerdict{Allowed: true}, nil
	}

	resp, err := m.client.Moderations.New(ctx, openaisdk.ModerationNewParams{
		Input: openaisdk.ModerationNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.ModerationModel(m.model),
	})
	if err != nil {
		return contractx.GuardVerdict{}, fmt.Errorf("moderation request: %w", err)
	}
	if len(resp.Results) == 0 {
		return contractx.GuardVerdict{}, errors.New("moderation returned no results")
	}

	result := resp.Results[0]
	if !result.Flagged {
		return contractx.GuardVerdict{Allowed: true}, nil
	}
	return contractx.GuardVerdict{Allowed: false, Categories: flaggedCategories(result.Categories.RawJSON())}, nil
}

func flaggedCategories(raw string) []string {
	var cats map[string]bool
	if err := json.Unmarshal([]byte(raw), &cats); err != nil {
		return nil
	}
	out := make([]string, 0, len(cats))
	for name, hit := range cats {
		if hit {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
