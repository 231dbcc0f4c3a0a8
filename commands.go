package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/clinic-appointment-agent/agent/appointment"
	"github.com/tanpawarit/clinic-appointment-agent/agent/clinic"
	nodex "github.com/tanpawarit/clinic-appointment-agent/agent/nodes"
	configx "github.com/tanpawarit/clinic-appointment-agent/pkg/config"
	"github.com/tanpawarit/clinic-appointment-agent/pkg/httpapi"
	logx "github.com/tanpawarit/clinic-appointment-agent/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "clinic",
		Short:         "Clinic appointment assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configx.SetEnvFile(envFile)
			logCfg, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			if cmd.Name() == "chat" {
				logx.InitWriter(os.Stderr, *logCfg)
			} else {
				logx.Init(*logCfg)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file")

	root.AddCommand(newServeCmd(), newChatCmd(), newSeedCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			httpCfg, err := configx.New[httpapi.Config]("HTTP")
			if err != nil {
				return err
			}
			server := httpapi.New(*httpCfg, a.orchestrator, httpapi.WithMetrics(a.metrics.Handler(), a.metrics))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx)
			})
			g.Go(func() error {
				return server.PruneClients(gctx)
			})
			return g.Wait()
		},
	}
}

func newChatCmd() *cobra.Command {
	var (
		identity int64
		threadID string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity <= 0 {
				return errors.New("--id must be a positive patient id")
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if threadID == "" {
				threadID = uuid.NewString()
			}
			return runREPL(ctx, a, identity, threadID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&identity, "id", 0, "patient identification number")
	cmd.Flags().StringVar(&threadID, "thread", "", "resume an existing thread")
	return cmd
}

func runREPL(ctx context.Context, a *app, identity int64, threadID string, out io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), ".clinic_chat_history")
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		f, err := os.Create(historyPath)
		if err != nil {
			return
		}
		_, _ = line.WriteHistory(f)
		_ = f.Close()
	}()

	fmt.Fprintf(out, "thread %s (/new starts a new thread, /quit exits)\n", threadID)
	for {
		input, err := line.Prompt("you> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "/quit", "/exit":
			return nil
		case "/new":
			threadID = uuid.NewString()
			fmt.Fprintf(out, "thread %s\n", threadID)
			continue
		}

		fmt.Fprintln(out, chatTurn(ctx, a.orchestrator, threadID, identity, input))
	}
}

type turnHandler interface {
	HandleMessage(ctx context.Context, threadID string, identity int64, text string) (nodex.GraphOutput, error)
}

// chatTurn runs one message and renders the line shown to the patient.
// Failures are logged; the patient only sees the public message.
func chatTurn(ctx context.Context, h turnHandler, threadID string, identity int64, input string) string {
	res, err := h.HandleMessage(ctx, threadID, identity, input)
	if err != nil {
		_, msg := httpapi.StatusFor(err)
		log.Error().Err(err).Str("thread_id", threadID).Msg("chat turn failed")
		return "error: " + msg
	}
	return "assistant> " + res.Reply
}

func newSeedCmd() *cobra.Command {
	var (
		csvPath string
		from    string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load appointment slots into postgres",
		Long: "Load appointment slots into postgres, either from a doctor_availability.csv " +
			"file or generated from the clinic schedule. Existing slots are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := configx.New[AppointmentsConfig]("APPOINTMENTS")
			if err != nil {
				return err
			}
			cfg.Migrate = true
			store, err := openPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			slots, err := seedSlots(csvPath, from)
			if err != nil {
				return err
			}
			inserted, err := store.Seed(ctx, slots)
			if err != nil {
				return err
			}
			log.Info().Int("slots", len(slots)).Int("inserted", inserted).Msg("appointment book seeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "seed from a doctor_availability.csv file")
	cmd.Flags().StringVar(&from, "from", "", "generate the schedule starting on this DD-MM-YYYY date (default now)")
	return cmd
}

func seedSlots(csvPath, from string) ([]appointment.Slot, error) {
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return appointment.ReadCSV(f)
	}

	clinicCfg, err := configx.New[ClinicConfig]("CLINIC")
	if err != nil {
		return nil, err
	}
	catalog, err := clinic.Load(clinicCfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if from != "" {
		if start, err = appointment.ParseDate(from); err != nil {
			return nil, fmt.Errorf("invalid --from: %w", err)
		}
	}
	return catalog.GenerateSlots(start)
}
