package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/app"
	"github.com/upb/ak-van-sync/config"
	"github.com/upb/ak-van-sync/internal/observability"
)

// errRegionFailures makes the process exit non-zero after a run in which a region failed
var errRegionFailures = errors.New("one or more regions failed")

var errNoSchedules = errors.New("no schedules configured: set IMPORT_SCHEDULE or EXPORT_SCHEDULE")

// bootstrap loads configuration and wires dependencies. Tests replace it.
var bootstrap = func(ctx context.Context) (*app.Dependencies, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		_ = logger.Sync()
		return nil, err
	}
	return deps, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "eventsync",
		Short: "Sync events between ActionKit and VAN",
		Long: `eventsync mirrors ActionKit events into VAN and copies VAN's event
catalog back into the warehouse.

Configuration comes from the environment (and .env), plus an optional YAML
file with per-region credentials and the event type mapping.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("SYNC_CONFIG_FILE", configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML file with regions and event_types (overrides SYNC_CONFIG_FILE)")

	root.AddCommand(
		newImportCmd(),
		newExportCmd(),
		newScheduleCmd(),
		newInitSchemaCmd(),
	)
	return root
}

// withDependencies runs fn against freshly wired dependencies and closes them afterwards
func withDependencies(cmd *cobra.Command, fn func(ctx context.Context, deps *app.Dependencies) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	return fn(ctx, deps)
}
