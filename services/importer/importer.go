// Package importer creates VAN events for new AK events and records the
// VAN ids in the warehouse so each AK event is created at most once.
package importer

import (
	"context"
	"errors"
	"sort"
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
	"github.com/upb/ak-van-sync/utils"
)

// Options adjust a single run
type Options struct {
	// DryRun resolves and validates every event but makes no VAN writes and no warehouse writes
	DryRun bool
	// Regions limits the run to these region codes; empty means all
	Regions []string
}

// Importer runs the import pipeline
type Importer struct {
	sourceEvents repositories.SourceEventRepository
	events       repositories.EventRepository
	credentials  *credentials.Resolver
	eventTypes   *eventtype.Resolver
	newClient    van.Factory
	logger       *zap.Logger
	now          func() time.Time
}

// New creates an importer
func New(
	repos *repositories.Repositories,
	creds *credentials.Resolver,
	eventTypes *eventtype.Resolver,
	newClient van.Factory,
	logger *zap.Logger,
) *Importer {
	return &Importer{
		sourceEvents: repos.SourceEvents,
		events:       repos.Events,
		credentials:  creds,
		eventTypes:   eventTypes,
		newClient:    newClient,
		logger:       logger.With(zap.String("pipeline", report.PipelineImport)),
		now:          time.Now,
	}
}

// outcome is what happened to one event
type outcome int

const (
	outcomeFailed outcome = iota
	outcomeCreated
	outcomeRecovered
	outcomeDryRun
)

// Run imports every unmirrored AK event starting today or later.
// The returned error is non-nil only when the run could not start or was cancelled;
// region and event failures are recorded in the report.
func (i *Importer) Run(ctx context.Context, opts Options) (*report.JobReport, error) {
	rep := report.New(report.PipelineImport)
	rep.DryRun = opts.DryRun
	defer rep.Finish()
	logger := i.logger.With(zap.String("run_id", rep.RunID))

	campaignIDs := i.eventTypes.CampaignIDs()
	if len(campaignIDs) == 0 {
		return rep, services.NewDomainError(services.ErrorTypeConfiguration, "no event types are mapped to campaigns", nil)
	}

	today := i.now().UTC().Truncate(24 * time.Hour)
	pending, err := i.sourceEvents.ListUnmirrored(ctx, repositories.UnmirroredFilter{
		CampaignIDs:     campaignIDs,
		StartsOnOrAfter: today,
		Regions:         normalizeRegions(opts.Regions),
	})
	if err != nil {
		return rep, services.WrapInternal("failed to load unmirrored events", err)
	}

	groups := groupByRegion(pending)
	regions := make([]string, 0, len(groups))
	for code := range groups {
		regions = append(regions, code)
	}
	sort.Strings(regions)

	logger.Info("import started",
		zap.Int("events", len(pending)),
		zap.Int("regions", len(regions)),
		zap.Bool("dry_run", opts.DryRun))

	for _, code := range regions {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		i.runRegion(ctx, logger.With(zap.String("region", code)), rep.Region(code), groups[code], opts)
	}

	rep.Finish()
	rep.Log(logger)
	return rep, ctx.Err()
}

// runRegion processes one region's events; failures stay inside the region
func (i *Importer) runRegion(ctx context.Context, logger *zap.Logger, result *report.RegionResult, events []*models.LocalEvent, opts Options) {
	result.Found = len(events)

	creds, ok := i.credentials.Resolve(result.Region)
	if !ok {
		result.Status = report.StatusSkipped
		result.Skipped = len(events)
		logger.Info("no VAN credentials for region, skipping", zap.Int("events", len(events)))
		return
	}

	api := i.newClient(creds)
	index, err := i.eventTypes.Resolve(ctx, api)
	if err != nil {
		result.Fail(err)
		result.Failed = len(events)
		logger.Error("failed to resolve event types", zap.Error(err))
		return
	}
	result.UnmappedTypes = index.Missing()

	rc := &regionContext{
		region:   result.Region,
		api:      api,
		types:    index,
		existing: newExistingEvents(api, earliestStart(events), logger),
	}

	for _, ev := range events {
		if ctx.Err() != nil {
			result.Fail(ctx.Err())
			return
		}

		evLogger := logger.With(zap.Int64("ak_event_id", ev.AKEventID))
		out, err := i.importEvent(ctx, evLogger, rc, ev, opts.DryRun)
		switch out {
		case outcomeCreated:
			result.Created++
		case outcomeRecovered:
			result.Recovered++
		case outcomeDryRun:
			result.Skipped++
		default:
			result.Failed++
			logEventError(evLogger, err)
		}
	}
}

// regionContext is shared by every event of one region
type regionContext struct {
	region   string
	api      van.API
	types    *eventtype.Index
	existing *existingEvents
}

// existingEvents loads each event type's index of VAN events on first use
// and reuses it for the rest of the region. A failed load is remembered.
type existingEvents struct {
	api     van.API
	since   time.Time
	logger  *zap.Logger
	indexes map[int]*van.EventIndex
	errs    map[int]error
}

func newExistingEvents(api van.API, since time.Time, logger *zap.Logger) *existingEvents {
	return &existingEvents{
		api:     api,
		since:   since,
		logger:  logger,
		indexes: make(map[int]*van.EventIndex),
		errs:    make(map[int]error),
	}
}

func (e *existingEvents) find(ctx context.Context, eventTypeID int, ev *models.LocalEvent) (*models.RemoteEvent, error) {
	if err, ok := e.errs[eventTypeID]; ok {
		return nil, err
	}
	idx, ok := e.indexes[eventTypeID]
	if !ok {
		var err error
		idx, err = van.LoadEventIndex(ctx, e.api, eventTypeID, e.since)
		if err != nil {
			e.errs[eventTypeID] = err
			return nil, err
		}
		e.indexes[eventTypeID] = idx
		e.logger.Debug("indexed existing VAN events",
			zap.Int("event_type_id", eventTypeID),
			zap.Int("events", idx.Len()))
	}
	return idx.Find(ev.ShortName(), ev.StartTime()), nil
}

// earliestStart is the first start time among events
func earliestStart(events []*models.LocalEvent) time.Time {
	var first time.Time
	for _, ev := range events {
		if start := ev.StartTime(); first.IsZero() || start.Before(first) {
			first = start
		}
	}
	return first
}

// importEvent runs the per-event steps. Each returned error is a *services.DomainError.
func (i *Importer) importEvent(
	ctx context.Context,
	logger *zap.Logger,
	rc *regionContext,
	ev *models.LocalEvent,
	dryRun bool,
) (outcome, error) {
	api := rc.api
	eventType, ok := rc.types.ByCampaign(ev.CampaignID)
	if !ok {
		return outcomeFailed, services.NewDomainError(services.ErrorTypeMappingGap, "campaign has no VAN event type", nil).
			WithDetail("campaign_id", ev.CampaignID)
	}

	existing, err := rc.existing.find(ctx, eventType.EventTypeID, ev)
	if err != nil {
		return outcomeFailed, services.WrapExternal("failed to check for an existing VAN event", err)
	}
	if existing != nil {
		logger.Info("VAN event already exists, recording it", zap.Int("van_event_id", existing.EventID))
		if dryRun {
			return outcomeDryRun, nil
		}
		if err := i.mirror(ctx, api, rc.region, existing.EventID); err != nil {
			return outcomeFailed, err
		}
		return outcomeRecovered, nil
	}

	req := buildRequest(ev, eventType)

	if dryRun {
		if err := utils.ValidateStruct(req); err != nil {
			return outcomeFailed, services.NewDomainError(services.ErrorTypeValidation, "event payload is invalid", err)
		}
		logger.Info("dry run: would create VAN event",
			zap.String("name", req.Name),
			zap.Int("event_type_id", eventType.EventTypeID),
			zap.Time("start", req.StartDate),
			zap.Time("end", req.EndDate))
		return outcomeDryRun, nil
	}

	locationID, err := api.FindOrCreateLocation(ctx, buildLocation(ev))
	if err != nil {
		return outcomeFailed, services.WrapExternal("failed to find or create location", err)
	}
	if locationID > 0 {
		req.Locations = []models.LocationRef{{LocationID: locationID}}
	} else {
		logger.Warn("VAN returned no location id, creating event without a location")
	}

	if err := utils.ValidateStruct(req); err != nil {
		return outcomeFailed, services.NewDomainError(services.ErrorTypeValidation, "event payload is invalid", err)
	}

	result, err := api.CreateEvent(ctx, req)
	if err != nil {
		return outcomeFailed, services.WrapExternal("failed to create VAN event", err)
	}
	if !result.IsCreated() {
		return outcomeFailed, services.NewDomainError(services.ErrorTypeCreationFailed, result.Message(), nil).
			WithDetail("van_error_codes", result.Codes())
	}

	logger.Info("VAN event created", zap.Int("van_event_id", result.EventID))

	if err := i.mirror(ctx, api, rc.region, result.EventID); err != nil {
		return outcomeFailed, err
	}
	return outcomeCreated, nil
}

// mirror re-fetches a VAN event with its location and writes the events row
func (i *Importer) mirror(ctx context.Context, api van.API, region string, vanEventID int) error {
	remote, err := api.GetEvent(ctx, vanEventID, van.ExpandLocations)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeDuplicateRisk, "failed to re-fetch created event", err).
			WithDetail("van_event_id", vanEventID)
	}

	record := models.NewEventRecord(region, remote)
	if err := i.events.Insert(ctx, &record); err != nil {
		return services.NewDomainError(services.ErrorTypeDuplicateRisk, "failed to record created event", err).
			WithDetail("van_event_id", vanEventID)
	}
	return nil
}

// buildLocation maps the AK venue and address onto a VAN location
func buildLocation(ev *models.LocalEvent) models.Location {
	return models.Location{
		Name: utils.TruncateRunes(ev.Venue, models.MaxLocationNameLength),
		Address: &models.Address{
			AddressLine1:    ev.Address1,
			AddressLine2:    ev.Address2,
			City:            ev.City,
			StateOrProvince: ev.State,
			ZipOrPostalCode: ev.PostalCode(),
		},
	}
}

// buildRequest assembles the create payload: one shift spanning the event
// and only the Host and Participant roles of the event type.
func buildRequest(ev *models.LocalEvent, eventType models.EventType) *models.CreateEventRequest {
	start := ev.StartTime()
	end := ev.EndTime()

	return &models.CreateEventRequest{
		Name:                         ev.Title,
		ShortName:                    ev.ShortName(),
		StartDate:                    start,
		EndDate:                      end,
		EventType:                    models.EventTypeRef{EventTypeID: eventType.EventTypeID},
		IsOnlyEditableByCreatingUser: false,
		Roles:                        eventType.ImportRoles(),
		Shifts: []models.Shift{{
			Name:      models.SingleShiftName,
			StartTime: start,
			EndTime:   end,
		}},
	}
}

func groupByRegion(events []*models.LocalEvent) map[string][]*models.LocalEvent {
	groups := make(map[string][]*models.LocalEvent)
	for _, ev := range events {
		code := strings.ToUpper(strings.TrimSpace(ev.State))
		groups[code] = append(groups[code], ev)
	}
	return groups
}

func normalizeRegions(regions []string) []string {
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// logEventError logs expected data problems at warn and everything else at error
func logEventError(logger *zap.Logger, err error) {
	fields := []zap.Field{
		zap.String("error_type", string(services.GetErrorType(err))),
		zap.Error(err),
	}
	for k, v := range services.GetErrorDetails(err) {
		fields = append(fields, zap.Any(k, v))
	}

	switch {
	case services.IsMappingGap(err), services.IsCreationFailed(err), errors.Is(err, services.ErrValidation):
		logger.Warn("event not imported", fields...)
	case services.IsDuplicateRisk(err):
		logger.Error("event created in VAN but not recorded; reconcile before the next run", fields...)
	default:
		logger.Error("event import failed", fields...)
	}
}
