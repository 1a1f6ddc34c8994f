package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/app"
	"github.com/upb/ak-van-sync/routes"
	"github.com/upb/ak-van-sync/services/exporter"
	"github.com/upb/ak-van-sync/services/importer"
	"github.com/upb/ak-van-sync/services/report"
	"github.com/upb/ak-van-sync/services/scheduler"
)

func newImportCmd() *cobra.Command {
	var opts importer.Options

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create VAN events for new ActionKit events",
		Long: `Create a VAN event for every ActionKit event that starts today or later,
belongs to a mapped campaign and has no VAN counterpart yet, then record the
VAN event in the warehouse.

Use --dry-run to resolve and validate everything without writing to VAN or
the warehouse.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				rep, err := runImport(ctx, deps, opts)
				return finishOneShot(ctx, deps, rep, err)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate without creating VAN events or writing rows")
	cmd.Flags().StringSliceVar(&opts.Regions, "region", nil, "limit the run to these region codes (repeatable)")
	return cmd
}

func newExportCmd() *cobra.Command {
	var opts exporter.Options

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy VAN events into the warehouse",
		Long: `For each region with credentials, list VAN events of the mapped types that
start within the lookback window, stage them and merge them into the events
table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				rep, err := runExport(ctx, deps, opts)
				return finishOneShot(ctx, deps, rep, err)
			})
		},
	}
	cmd.Flags().StringSliceVar(&opts.Regions, "region", nil, "limit the run to these region codes (repeatable)")
	cmd.Flags().DurationVar(&opts.Lookback, "lookback", 0, "override EXPORT_LOOKBACK, e.g. 72h")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var (
		addr   string
		runNow bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run both pipelines on their cron schedules",
		Long: `Run import on IMPORT_SCHEDULE and export on EXPORT_SCHEDULE until
interrupted, serving /health, /health/ready, /runs/{pipeline}/last and
/metrics on HTTP_ADDR.

Use --run-now to run every scheduled pipeline once at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if addr == "" {
					addr = deps.Config.Scheduler.HTTPAddr
				}
				return runSchedule(ctx, deps, addr, runNow)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override HTTP_ADDR for the status server")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run each scheduled pipeline once before waiting for its schedule")
	return cmd
}

func newInitSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the events and events_stage tables when missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if deps.RepoFactory == nil {
					return errors.New("no warehouse connection")
				}
				if err := deps.RepoFactory.InitSchema(ctx); err != nil {
					return err
				}
				deps.Logger.Info("schema initialized", zap.String("schema", deps.Config.Schemas.VAN))
				return nil
			})
		},
	}
}

func runImport(ctx context.Context, deps *app.Dependencies, opts importer.Options) (*report.JobReport, error) {
	rep, err := deps.Importer().Run(ctx, opts)
	deps.Record(rep)
	return rep, err
}

func runExport(ctx context.Context, deps *app.Dependencies, opts exporter.Options) (*report.JobReport, error) {
	rep, err := deps.Exporter().Run(ctx, opts)
	deps.Record(rep)
	return rep, err
}

// finishOneShot pushes metrics when a gateway is configured and maps the
// run outcome onto the command error
func finishOneShot(ctx context.Context, deps *app.Dependencies, rep *report.JobReport, runErr error) error {
	if url := deps.Config.Observability.PushgatewayURL; url != "" && rep != nil {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := deps.Metrics.Push(pushCtx, url, "eventsync_"+rep.Pipeline); err != nil {
			deps.Logger.Warn("failed to push metrics", zap.Error(err))
		}
	}

	if runErr != nil {
		deps.Logger.Error("run failed", zap.Error(runErr))
		return runErr
	}
	if rep.HasFailures() {
		return errRegionFailures
	}
	return nil
}

// runSchedule blocks until ctx is cancelled
func runSchedule(ctx context.Context, deps *app.Dependencies, addr string, runNow bool) error {
	sched := scheduler.New(deps.Logger)

	jobs := []struct {
		name string
		spec string
		fn   scheduler.RunFunc
	}{
		{report.PipelineImport, deps.Config.Scheduler.ImportSchedule, func(ctx context.Context) error {
			rep, err := runImport(ctx, deps, importer.Options{})
			return scheduledResult(rep, err)
		}},
		{report.PipelineExport, deps.Config.Scheduler.ExportSchedule, func(ctx context.Context) error {
			rep, err := runExport(ctx, deps, exporter.Options{})
			return scheduledResult(rep, err)
		}},
	}
	for _, job := range jobs {
		if job.spec == "" {
			deps.Logger.Info("no schedule configured, job disabled", zap.String("job", job.name))
			continue
		}
		if err := sched.Add(job.name, job.spec, job.fn); err != nil {
			return err
		}
	}
	if len(sched.Jobs()) == 0 {
		return errNoSchedules
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           routes.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		deps.Logger.Info("status server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	if runNow {
		for _, name := range sched.Jobs() {
			if err := sched.Trigger(ctx, name); err != nil {
				deps.Logger.Error("startup run failed", zap.String("job", name), zap.Error(err))
			}
		}
	}

	var err error
	select {
	case <-ctx.Done():
		deps.Logger.Info("shutdown signal received")
	case err = <-serveErr:
		deps.Logger.Error("status server failed", zap.Error(err))
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func scheduledResult(rep *report.JobReport, err error) error {
	if err != nil {
		return err
	}
	if rep.HasFailures() {
		return errRegionFailures
	}
	return nil
}
