package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/config"
	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/repositories/memory"
	"github.com/upb/ak-van-sync/services"
	"github.com/upb/ak-van-sync/services/credentials"
	"github.com/upb/ak-van-sync/services/eventtype"
	"github.com/upb/ak-van-sync/services/report"
	"github.com/upb/ak-van-sync/services/van"
	"github.com/upb/ak-van-sync/services/van/vantest"
)

var (
	today    = time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)
	eventDay = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
)

var canvassType = models.EventType{
	EventTypeID: 7,
	Name:        "Canvass",
	Roles: []models.Role{
		{RoleID: 1, Name: models.RoleHost, IsEventLead: true},
		{RoleID: 2, Name: models.RoleParticipant},
		{RoleID: 3, Name: "Organizer"},
	},
}

type harness struct {
	warehouse *memory.Warehouse
	fakes     map[string]*vantest.Fake
	built     []string
	importer  *Importer
}

// newHarness maps Canvass to campaign 12 and gives NY (and any extra regions) credentials
func newHarness(t *testing.T, regions ...string) *harness {
	t.Helper()
	h := &harness{
		warehouse: memory.New(),
		fakes:     make(map[string]*vantest.Fake),
	}

	regionCfg := map[string]config.RegionConfig{"NY": {APIKey: "ny-key"}}
	for _, r := range regions {
		regionCfg[r] = config.RegionConfig{APIKey: r + "-key"}
	}

	factory := func(creds models.RegionCredentials) van.API {
		h.built = append(h.built, creds.Region)
		return h.fake(creds.Region)
	}

	h.importer = New(
		h.warehouse.Repositories(),
		credentials.NewResolver(regionCfg, "app"),
		eventtype.NewResolver(map[string]int{"Canvass": 12}, zap.NewNop()),
		factory,
		zap.NewNop(),
	)
	h.importer.now = func() time.Time { return today }
	return h
}

func (h *harness) fake(region string) *vantest.Fake {
	f, ok := h.fakes[region]
	if !ok {
		f = vantest.New(canvassType)
		h.fakes[region] = f
	}
	return f
}

// regionContext resolves the region's event types the way runRegion does
func (h *harness) regionContext(t *testing.T, region string) *regionContext {
	t.Helper()
	fake := h.fake(region)
	idx, err := h.importer.eventTypes.Resolve(context.Background(), fake)
	require.NoError(t, err)
	return &regionContext{
		region:   region,
		api:      fake,
		types:    idx,
		existing: newExistingEvents(fake, eventDay, zap.NewNop()),
	}
}

func akEvent(id int64, state string) models.LocalEvent {
	return models.LocalEvent{
		AKEventID:   id,
		Title:       "Neighborhood canvass",
		Venue:       "Albany Public Library Main Branch Community Room B East Wing",
		Address1:    "161 Washington Ave",
		City:        "Albany",
		State:       state,
		Zip:         "12210",
		Plus4:       "2304",
		Country:     "US",
		StartsAtUTC: eventDay,
		CampaignID:  12,
	}
}

func TestRun_CreatesEventAndMirrorRow(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(48213, "NY"))

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	fake := h.fake("NY")
	require.Len(t, fake.Created, 1)
	req := fake.Created[0]

	assert.Equal(t, "Neighborhood canvass", req.Name)
	assert.Equal(t, "48213", req.ShortName)
	assert.Equal(t, 7, req.EventType.EventTypeID)
	assert.False(t, req.IsOnlyEditableByCreatingUser)

	// missing end time falls back to start + 1h, with a single matching shift
	assert.Equal(t, time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC), req.EndDate)
	require.Len(t, req.Shifts, 1)
	assert.Equal(t, models.SingleShiftName, req.Shifts[0].Name)
	assert.Equal(t, req.StartDate, req.Shifts[0].StartTime)
	assert.Equal(t, req.EndDate, req.Shifts[0].EndTime)

	// only Host and Participant roles are kept
	require.Len(t, req.Roles, 2)
	assert.Equal(t, models.RoleHost, req.Roles[0].Name)
	assert.Equal(t, models.RoleParticipant, req.Roles[1].Name)

	// location name truncated, zip joined with plus4
	require.Len(t, fake.Locations, 1)
	loc := fake.Locations[0]
	assert.Equal(t, 50, len([]rune(loc.Name)))
	assert.Equal(t, "12210-2304", loc.Address.ZipOrPostalCode)
	assert.Equal(t, "NY", loc.Address.StateOrProvince)
	assert.Equal(t, []models.LocationRef{{LocationID: 100}}, req.Locations)

	rows := h.warehouse.EventsSnapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "48213", rows[0].AKEventID)
	assert.Equal(t, "NY", rows[0].State)
	assert.Equal(t, "12210-2304", rows[0].Zip)
	assert.Equal(t, eventDay, rows[0].StartsAtUTC)

	ny := rep.Region("NY")
	assert.Equal(t, 1, ny.Found)
	assert.Equal(t, 1, ny.Created)
	assert.Equal(t, 0, ny.Failed)
	assert.False(t, rep.HasFailures())
}

func TestRun_SecondRunCreatesNothing(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(1, "NY"))
	h.warehouse.AddSource(akEvent(2, "NY"))

	_, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, h.fake("NY").Created, 2)

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Len(t, h.fake("NY").Created, 2, "mirrored events must not be created again")
	assert.Len(t, h.warehouse.EventsSnapshot(), 2)
	assert.Empty(t, rep.Regions())
}

func TestRun_UsesSuppliedEndTime(t *testing.T) {
	h := newHarness(t)
	ev := akEvent(5, "NY")
	end := eventDay.Add(3 * time.Hour)
	ev.EndsAtUTC = &end
	h.warehouse.AddSource(ev)

	_, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	req := h.fake("NY").Created[0]
	assert.Equal(t, end, req.EndDate)
	assert.Equal(t, end, req.Shifts[0].EndTime)
}

func TestRun_SkipsRegionsWithoutCredentials(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(1, "TX"))
	h.warehouse.AddSource(akEvent(2, "TX"))
	h.warehouse.AddSource(akEvent(3, "NY"))

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"NY"}, h.built, "no VAN client for a region without credentials")
	tx := rep.Region("TX")
	assert.Equal(t, report.StatusSkipped, tx.Status)
	assert.Equal(t, 2, tx.Skipped)
	assert.False(t, rep.HasFailures())

	rows := h.warehouse.EventsSnapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "3", rows[0].AKEventID)
}

func TestRun_RejectedCreationWritesNoRow(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(1, "NY"))
	h.fake("NY").Reject = []van.ErrorDetail{{Code: "INVALID_PARAMETER", Text: "bad date"}}

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Empty(t, h.warehouse.EventsSnapshot())
	ny := rep.Region("NY")
	assert.Equal(t, 1, ny.Failed)
	assert.Equal(t, 0, ny.Created)
	assert.Equal(t, report.StatusOK, ny.Status)
	assert.False(t, rep.HasFailures(), "event failures do not fail the run")
}

func TestImportEvent_ErrorTypes(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	tests := []struct {
		name     string
		setup    func(f *vantest.Fake, h *harness)
		campaign int
		wantType services.ErrorType
	}{
		{
			name:     "unmapped campaign",
			campaign: 99,
			wantType: services.ErrorTypeMappingGap,
		},
		{
			name:     "rejected by VAN",
			campaign: 12,
			setup: func(f *vantest.Fake, h *harness) {
				f.Reject = []van.ErrorDetail{{Code: "X", Text: "no"}}
			},
			wantType: services.ErrorTypeCreationFailed,
		},
		{
			name:     "create transport failure",
			campaign: 12,
			setup: func(f *vantest.Fake, h *harness) {
				f.CreateErr = errors.New("connection reset")
			},
			wantType: services.ErrorTypeExternal,
		},
		{
			name:     "mirror insert failure after creation",
			campaign: 12,
			setup: func(f *vantest.Fake, h *harness) {
				h.warehouse.InsertErr = errors.New("disk full")
			},
			wantType: services.ErrorTypeDuplicateRisk,
		},
		{
			name:     "re-fetch failure after creation",
			campaign: 12,
			setup: func(f *vantest.Fake, h *harness) {
				f.GetErr = errors.New("timeout")
			},
			wantType: services.ErrorTypeDuplicateRisk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			fake := h.fake("NY")
			if tt.setup != nil {
				tt.setup(fake, h)
			}
			ev := akEvent(1, "NY")
			ev.CampaignID = tt.campaign
			out, err := h.importer.importEvent(ctx, logger, h.regionContext(t, "NY"), &ev, false)

			assert.Equal(t, outcomeFailed, out)
			assert.Equal(t, tt.wantType, services.GetErrorType(err))
		})
	}
}

func TestRun_DuplicateRiskCarriesVANID(t *testing.T) {
	h := newHarness(t)
	h.warehouse.InsertErr = errors.New("disk full")

	ev := akEvent(1, "NY")

	_, err := h.importer.importEvent(context.Background(), zap.NewNop(), h.regionContext(t, "NY"), &ev, false)
	require.True(t, services.IsDuplicateRisk(err))
	assert.Equal(t, 9001, services.GetErrorDetails(err)["van_event_id"])
}

func TestRun_FailureIsolatedToEvent(t *testing.T) {
	h := newHarness(t)
	bad := akEvent(1, "NY")
	bad.Title = ""
	h.warehouse.AddSource(bad)
	h.warehouse.AddSource(akEvent(2, "NY"))

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	ny := rep.Region("NY")
	assert.Equal(t, 1, ny.Failed)
	assert.Equal(t, 1, ny.Created)
	rows := h.warehouse.EventsSnapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].AKEventID)
}

func TestRun_RecoversEventCreatedEarlier(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(48213, "NY"))
	fake := h.fake("NY")
	id := fake.AddEvent(models.RemoteEvent{
		Name:      "Neighborhood canvass",
		ShortName: "48213",
		EventType: &models.EventTypeRef{EventTypeID: 7},
		StartDate: eventDay,
		EndDate:   eventDay.Add(time.Hour),
	})

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Empty(t, fake.Created)
	assert.Equal(t, 1, rep.Region("NY").Recovered)
	rows := h.warehouse.EventsSnapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].VANEventID)
	assert.Equal(t, "", rows[0].Venue, "missing location is normalized to empty columns")
}

func TestRun_MissingLocationID(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(1, "NY"))
	h.fake("NY").LocationID = 0

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	req := h.fake("NY").Created[0]
	assert.Empty(t, req.Locations)
	assert.Equal(t, 1, rep.Region("NY").Created)
}

func TestRun_EventTypeFailureFailsOnlyThatRegion(t *testing.T) {
	h := newHarness(t, "CA")
	h.warehouse.AddSource(akEvent(1, "CA"))
	h.warehouse.AddSource(akEvent(2, "NY"))
	h.fake("CA").EventTypesErr = errors.New("unauthorized")

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.True(t, rep.HasFailures())
	assert.Equal(t, report.StatusFailed, rep.Region("CA").Status)
	assert.Equal(t, 1, rep.Region("CA").Failed)
	assert.Equal(t, 1, rep.Region("NY").Created)
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(1, "NY"))

	rep, err := h.importer.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	fake := h.fake("NY")
	assert.Empty(t, fake.Created)
	assert.Empty(t, fake.Locations)
	assert.Empty(t, h.warehouse.EventsSnapshot())
	assert.True(t, rep.DryRun)
	assert.Equal(t, 1, rep.Region("NY").Skipped)
}

func TestRun_RegionFilterAndStartDate(t *testing.T) {
	h := newHarness(t, "CA")
	h.warehouse.AddSource(akEvent(1, "CA"))
	h.warehouse.AddSource(akEvent(2, "NY"))
	past := akEvent(3, "NY")
	past.StartsAtUTC = today.Add(-48 * time.Hour)
	h.warehouse.AddSource(past)
	earlierToday := akEvent(4, "NY")
	earlierToday.StartsAtUTC = time.Date(2024, 5, 20, 1, 0, 0, 0, time.UTC)
	h.warehouse.AddSource(earlierToday)

	rep, err := h.importer.Run(context.Background(), Options{Regions: []string{" ny "}})
	require.NoError(t, err)

	assert.Equal(t, []string{"NY"}, h.built)
	assert.Equal(t, 2, rep.Region("NY").Found, "events earlier today still count as today")
}

func TestRun_SourceQueryFailure(t *testing.T) {
	h := newHarness(t)
	h.warehouse.ListErr = errors.New("connection refused")

	_, err := h.importer.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, services.ErrorTypeInternal, services.GetErrorType(err))
}

func TestRun_NoMappedCampaigns(t *testing.T) {
	h := newHarness(t)
	h.importer.eventTypes = eventtype.NewResolver(map[string]int{}, zap.NewNop())

	_, err := h.importer.Run(context.Background(), Options{})
	assert.True(t, errors.Is(err, services.ErrConfiguration))
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(1, "NY"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.importer.Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.warehouse.EventsSnapshot())
}

func TestRun_RegionFilterMatchesLowerCaseState(t *testing.T) {
	for _, regions := range [][]string{nil, {"ny"}, {"NY"}} {
		h := newHarness(t)
		h.warehouse.AddSource(akEvent(1, "ny"))
		h.warehouse.AddSource(akEvent(2, " Ny "))

		rep, err := h.importer.Run(context.Background(), Options{Regions: regions})
		require.NoError(t, err)

		require.Len(t, rep.Regions(), 1, "regions %v", regions)
		ny := rep.Region("NY")
		assert.Equal(t, 2, ny.Found, "regions %v", regions)
		assert.Equal(t, 2, ny.Created, "regions %v", regions)
	}
}

func TestRun_ListsExistingEventsOncePerRegionAndType(t *testing.T) {
	h := newHarness(t)
	for id := int64(1); id <= 3; id++ {
		ev := akEvent(id, "NY")
		ev.StartsAtUTC = eventDay.AddDate(0, 0, int(id))
		h.warehouse.AddSource(ev)
	}
	fake := h.fake("NY")
	recovered := fake.AddEvent(models.RemoteEvent{
		Name:      "Neighborhood canvass",
		ShortName: "3",
		EventType: &models.EventTypeRef{EventTypeID: 7},
		StartDate: eventDay.AddDate(0, 0, 3),
	})

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, fake.ListFilters, 1)
	assert.Equal(t, eventDay.AddDate(0, 0, 1).Truncate(24*time.Hour).AddDate(0, 0, -1), fake.ListFilters[0].StartingAfter)
	assert.Equal(t, 2, rep.Region("NY").Created)
	assert.Equal(t, 1, rep.Region("NY").Recovered)

	var ids []int
	for _, row := range h.warehouse.EventsSnapshot() {
		ids = append(ids, row.VANEventID)
	}
	assert.Contains(t, ids, recovered)
}

func TestRun_ExistingEventListFailureFailsEachEvent(t *testing.T) {
	h := newHarness(t)
	h.warehouse.AddSource(akEvent(1, "NY"))
	h.warehouse.AddSource(akEvent(2, "NY"))
	fake := h.fake("NY")
	fake.ListErr = errors.New("503")

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Len(t, fake.ListFilters, 1, "a failed listing is not retried for every event")
	assert.Equal(t, 2, rep.Region("NY").Failed)
	assert.Empty(t, fake.Created)
}

func TestRun_ReportsUnmappedTypes(t *testing.T) {
	h := newHarness(t)
	h.importer.eventTypes = eventtype.NewResolver(map[string]int{"Canvass": 12, "Rally": 14}, zap.NewNop())
	h.warehouse.AddSource(akEvent(1, "NY"))

	rep, err := h.importer.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Rally"}, rep.Region("NY").UnmappedTypes)
	assert.Equal(t, 1, rep.Region("NY").Created)
}
