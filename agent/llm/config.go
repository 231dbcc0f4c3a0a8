package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	openrouterx "github.com/tanpawarit/clinic-appointment-agent/pkg/openrouter"
)

// Config is the OPENROUTER_* section. Per-agent overrides fall back to the
// shared model and temperature; a negative temperature means unset.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	RouterModel            string  `envconfig:"ROUTER_MODEL" split_words:"true"`
	InformationModel       string  `envconfig:"INFORMATION_MODEL" split_words:"true"`
	BookingModel           string  `envconfig:"BOOKING_MODEL" split_words:"true"`
	RouterTemperature      float32 `envconfig:"ROUTER_TEMPERATURE" split_words:"true" default:"-1"`
	InformationTemperature float32 `envconfig:"INFORMATION_TEMPERATURE" split_words:"true" default:"-1"`
	BookingTemperature     float32 `envconfig:"BOOKING_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be positive", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}
	switch agentType {
	case contractx.AgentTypeRouter:
		override(c.RouterModel, c.RouterTemperature)
	case contractx.AgentTypeInformation:
		override(c.InformationModel, c.InformationTemperature)
	case contractx.AgentTypeBooking:
		override(c.BookingModel, c.BookingTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
		JSONResponse:       agentType == contractx.AgentTypeRouter,
	}
}
