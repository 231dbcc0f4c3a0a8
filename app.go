package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/clinic-appointment-agent/agent/agents/orchestrator"
	"github.com/tanpawarit/clinic-appointment-agent/agent/agents/specialist"
	"github.com/tanpawarit/clinic-appointment-agent/agent/appointment"
	"github.com/tanpawarit/clinic-appointment-agent/agent/clinic"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	"github.com/tanpawarit/clinic-appointment-agent/agent/guard"
	llmx "github.com/tanpawarit/clinic-appointment-agent/agent/llm"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
	toolx "github.com/tanpawarit/clinic-appointment-agent/agent/tool"
	configx "github.com/tanpawarit/clinic-appointment-agent/pkg/config"
	"github.com/tanpawarit/clinic-appointment-agent/pkg/metrics"
	qstashx "github.com/tanpawarit/clinic-appointment-agent/pkg/qstash"
	"github.com/tanpawarit/clinic-appointment-agent/pkg/tracing"
)

// AgentConfig is the AGENT_* section.
type AgentConfig struct {
	MaxHops       int `split_words:"true" default:"10"`
	MaxToolRounds int `split_words:"true" default:"5"`
	// Year overrides the current year shown to specialists.
	Year          int `split_words:"true" default:"0"`
}

// ClinicConfig is the CLINIC_* section.
type ClinicConfig struct {
	CatalogPath string `split_words:"true"`
}

// CheckpointConfig is the CHECKPOINT_* section.
type CheckpointConfig struct {
	Backend   string                    `split_words:"true" default:"memory"`
	KeyPrefix string                    `split_words:"true" default:"clinic:thread:"`
	TTL       time.Duration             `envconfig:"TTL" default:"24h"`
	Redis     statex.RedisConfig        `envconfig:"REDIS"`
	Upstash   statex.UpstashRedisConfig `envconfig:"UPSTASH"`
}

// AppointmentsConfig is the APPOINTMENTS_* section.
type AppointmentsConfig struct {
	Backend string `split_words:"true" default:"memory"`
	CSVPath string `envconfig:"CSV_PATH" default:"doctor_availability.csv"`
	DSN     string `envconfig:"DSN"`
	Migrate bool   `split_words:"true" default:"true"`
}

type app struct {
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Metrics
	closers      []io.Closer
	shutdown     []tracing.ShutdownFunc
}

func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close resource failed")
		}
	}
	for _, fn := range a.shutdown {
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}
}

// buildApp wires every component from the environment.
func buildApp(ctx context.Context) (*app, error) {
	a := &app{metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close(context.Background())
		}
	}()

	tracingCfg, err := configx.New[tracing.Config]("TRACING")
	if err != nil {
		return nil, err
	}
	shutdown, err := tracing.Init(ctx, *tracingCfg)
	if err != nil {
		return nil, err
	}
	a.shutdown = append(a.shutdown, shutdown)

	agentCfg, err := configx.New[AgentConfig]("AGENT")
	if err != nil {
		return nil, err
	}
	clinicCfg, err := configx.New[ClinicConfig]("CLINIC")
	if err != nil {
		return nil, err
	}
	catalog, err := clinic.Load(clinicCfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	store, err := a.openAppointments(ctx, catalog)
	if err != nil {
		return nil, err
	}

	gatewayOpts := []toolx.Option{toolx.WithObserver(a.metrics.ObserveTool)}
	qstashCfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, err
	}
	if qstashCfg.Enabled() {
		publisher, err := qstashx.NewClient(*qstashCfg)
		if err != nil {
			return nil, err
		}
		gatewayOpts = append(gatewayOpts, toolx.WithNotifier(publisher))
	}
	gateway := toolx.NewGateway(store, catalog, gatewayOpts...)

	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return nil, err
	}
	registry, err := specialist.NewRegistry(ctx, *llmCfg, gateway, specialist.Options{
		MaxHops:       agentCfg.MaxHops,
		MaxToolRounds: agentCfg.MaxToolRounds,
		Year:          agentCfg.Year,
		Catalog:       catalog,
	})
	if err != nil {
		return nil, err
	}

	checkpoints, err := a.openCheckpoints(ctx)
	if err != nil {
		return nil, err
	}

	guardCfg, err := configx.New[guard.Config]("GUARDRAIL")
	if err != nil {
		return nil, err
	}
	moderation, err := guard.New(*guardCfg)
	if err != nil {
		return nil, err
	}
	var inputGuard contractx.Guard
	if moderation != nil {
		inputGuard = moderation
	}

	a.orchestrator, err = orchestrator.New(checkpoints, registry, orchestrator.Config{
		MaxHops: agentCfg.MaxHops,
		Guard:   inputGuard,
		Refusal: guard.Refusal,
		Hooks:   a.metrics.Hooks(),
		OnRun:   a.metrics.ObserveRun,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *app) openCheckpoints(ctx context.Context) (statex.Store, error) {
	cfg, err := configx.New[CheckpointConfig]("CHECKPOINT")
	if err != nil {
		return nil, err
	}
	opts := []statex.StoreOption{statex.WithKeyPrefix(cfg.KeyPrefix), statex.WithTTL(cfg.TTL)}

	switch strings.ToLower(cfg.Backend) {
	case "memory":
		log.Info().Msg("checkpoints kept in memory")
		return statex.NewMemoryStore(), nil
	case "redis":
		store, err := statex.NewRedisStore(ctx, cfg.Redis, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	case "upstash":
		return statex.NewUpstashRedisStore(cfg.Upstash, opts...)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

func (a *app) openAppointments(ctx context.Context, catalog *clinic.Catalog) (appointment.Store, error) {
	cfg, err := configx.New[AppointmentsConfig]("APPOINTMENTS")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Backend) {
	case "memory":
		slots, err := catalog.GenerateSlots(time.Now())
		if err != nil {
			return nil, err
		}
		log.Info().Int("slots", len(slots)).Msg("appointment book generated from clinic schedule")
		return appointment.NewMemoryStore(slots...), nil
	case "csv":
		return appointment.NewCSVStore(cfg.CSVPath)
	case "postgres":
		store, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown appointments backend %q", cfg.Backend)
	}
}

func openPostgres(ctx context.Context, cfg *AppointmentsConfig) (*appointment.PostgresStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("APPOINTMENTS_DSN is required for the postgres backend")
	}
	store, err := appointment.NewPostgresStore(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}
