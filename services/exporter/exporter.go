// Package exporter copies VAN's event catalog into the warehouse through the
// staging table, one region at a time.
package exporter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/repositories"
	"github.com/upb/ak-van-sync/services"
	"github.com/upb/ak-van-sync/services/credentials"
	"github.com/upb/ak-van-sync/services/eventtype"
	"github.com/upb/ak-van-sync/services/report"
	"github.com/upb/ak-van-sync/services/van"
)

// DefaultLookback is how far back event start dates are fetched
const DefaultLookback = 24 * time.Hour

// Options adjust a single run
type Options struct {
	// Regions limits the run to these region codes; empty means all configured regions
	Regions []string
	// Lookback overrides the configured lookback when positive
	Lookback time.Duration
}

// Exporter runs the export pipeline
type Exporter struct {
	stage       repositories.EventStageRepository
	txMgr       repositories.TransactionManager
	credentials *credentials.Resolver
	eventTypes  *eventtype.Resolver
	newClient   van.Factory
	lookback    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// New creates an exporter
func New(
	repos *repositories.Repositories,
	txMgr repositories.TransactionManager,
	creds *credentials.Resolver,
	eventTypes *eventtype.Resolver,
	newClient van.Factory,
	lookback time.Duration,
	logger *zap.Logger,
) *Exporter {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Exporter{
		stage:       repos.EventStage,
		txMgr:       txMgr,
		credentials: creds,
		eventTypes:  eventTypes,
		newClient:   newClient,
		lookback:    lookback,
		logger:      logger.With(zap.String("pipeline", report.PipelineExport)),
		now:         time.Now,
	}
}

// Run exports every configured region in order. A region's failure is
// recorded in the report and does not stop the others.
func (e *Exporter) Run(ctx context.Context, opts Options) (*report.JobReport, error) {
	rep := report.New(report.PipelineExport)
	defer rep.Finish()
	logger := e.logger.With(zap.String("run_id", rep.RunID))

	lookback := e.lookback
	if opts.Lookback > 0 {
		lookback = opts.Lookback
	}
	since := e.now().UTC().Add(-lookback)

	regions := selectRegions(e.credentials.Regions(), opts.Regions)
	if len(regions) == 0 {
		return rep, services.NewDomainError(services.ErrorTypeConfiguration, "no regions with VAN credentials selected", nil)
	}

	logger.Info("export started",
		zap.Strings("regions", regions),
		zap.Time("starting_after", since))

	for _, code := range regions {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		result := rep.Region(code)
		regionLogger := logger.With(zap.String("region", code))
		if err := e.runRegion(ctx, regionLogger, result, since); err != nil {
			result.Fail(err)
			regionLogger.Error("region export failed", zap.Error(err))
		}
	}

	rep.Finish()
	rep.Log(logger)
	return rep, ctx.Err()
}

func (e *Exporter) runRegion(ctx context.Context, logger *zap.Logger, result *report.RegionResult, since time.Time) error {
	creds, ok := e.credentials.Resolve(result.Region)
	if !ok {
		result.Status = report.StatusSkipped
		return nil
	}
	api := e.newClient(creds)

	index, err := e.eventTypes.Resolve(ctx, api)
	if err != nil {
		return err
	}
	result.UnmappedTypes = index.Missing()

	records, fetched, err := e.fetch(ctx, api, index, result.Region, since)
	if err != nil {
		return err
	}
	result.Fetched = fetched
	logger.Info("events fetched", zap.Int("count", fetched), zap.Int("unique", len(records)))

	merge, err := services.WithTransactionResult(ctx, e.txMgr, func(ctx context.Context) (repositories.MergeResult, error) {
		if err := e.stage.Truncate(ctx); err != nil {
			return repositories.MergeResult{}, err
		}
		staged, err := e.stage.InsertBatch(ctx, records)
		if err != nil {
			return repositories.MergeResult{}, err
		}
		result.Staged = staged
		return e.stage.MergeIntoEvents(ctx)
	})
	if err != nil {
		result.Staged = 0
		return services.WrapInternal("failed to merge staged events", err)
	}

	result.Updated = merge.Updated
	result.Inserted = merge.Inserted
	return nil
}

// fetch lists the region's events for each mapped type, re-fetches each one
// with its location, and flattens them into warehouse rows
func (e *Exporter) fetch(ctx context.Context, api van.API, index *eventtype.Index, region string, since time.Time) ([]models.EventRecord, int, error) {
	var listed []models.RemoteEvent
	for _, typeID := range index.TypeIDs() {
		events, err := api.ListEvents(ctx, van.EventFilter{
			EventTypeIDs:  []int{typeID},
			StartingAfter: since,
		})
		if err != nil {
			return nil, 0, services.WrapExternal(fmt.Sprintf("failed to list events of type %d", typeID), err)
		}
		listed = append(listed, events...)
	}

	unique := dedupe(listed)
	records := make([]models.EventRecord, 0, len(unique))
	for _, ev := range unique {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		detail, err := api.GetEvent(ctx, ev.EventID, van.ExpandLocations)
		if err != nil {
			return nil, 0, services.WrapExternal(fmt.Sprintf("failed to fetch event %d", ev.EventID), err)
		}
		records = append(records, models.NewEventRecord(region, detail))
	}
	return records, len(listed), nil
}

// dedupe drops repeated event ids, keeping the first occurrence
func dedupe(events []models.RemoteEvent) []models.RemoteEvent {
	seen := make(map[int]bool, len(events))
	out := make([]models.RemoteEvent, 0, len(events))
	for _, ev := range events {
		if seen[ev.EventID] {
			continue
		}
		seen[ev.EventID] = true
		out = append(out, ev)
	}
	return out
}

// selectRegions keeps configured regions named in filter, or all of them when filter is empty
func selectRegions(configured, filter []string) []string {
	if len(filter) == 0 {
		return configured
	}
	wanted := make(map[string]bool, len(filter))
	for _, r := range filter {
		wanted[strings.ToUpper(strings.TrimSpace(r))] = true
	}
	out := make([]string, 0, len(filter))
	for _, code := range configured {
		if wanted[code] {
			out = append(out, code)
		}
	}
	return out
}
