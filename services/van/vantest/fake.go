// Package vantest provides an in-memory VAN for pipeline tests.
package vantest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/services/van"
)

// Fake is an in-memory implementation of van.API.
// Error fields, when set, are returned by the matching call.
type Fake struct {
	mu sync.Mutex

	EventTypes []models.EventType
	Events     map[int]*models.RemoteEvent
	Locations  []models.Location

	// LocationID is returned by FindOrCreateLocation; zero simulates VAN returning no id
	LocationID int
	// Reject makes CreateEvent return a rejected result with these details
	Reject []van.ErrorDetail

	EventTypesErr error
	LocationErr   error
	CreateErr     error
	GetErr        error
	ListErr       error

	Created       []models.CreateEventRequest
	ListFilters   []van.EventFilter
	EventTypeHits int

	nextID int
}

var _ van.API = (*Fake)(nil)

// New returns a fake with the given event types and no events
func New(types ...models.EventType) *Fake {
	return &Fake{
		EventTypes: types,
		Events:     make(map[int]*models.RemoteEvent),
		LocationID: 100,
		nextID:     9000,
	}
}

// AddEvent stores an existing event and returns its id
func (f *Fake) AddEvent(ev models.RemoteEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.EventID == 0 {
		f.nextID++
		ev.EventID = f.nextID
	}
	f.Events[ev.EventID] = &ev
	return ev.EventID
}

// FindOrCreateLocation records the location and returns LocationID
func (f *Fake) FindOrCreateLocation(ctx context.Context, loc models.Location) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LocationErr != nil {
		return 0, f.LocationErr
	}
	f.Locations = append(f.Locations, loc)
	return f.LocationID, nil
}

// GetEventTypes returns EventTypes
func (f *Fake) GetEventTypes(ctx context.Context) ([]models.EventType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EventTypeHits++
	if f.EventTypesErr != nil {
		return nil, f.EventTypesErr
	}
	return f.EventTypes, nil
}

// CreateEvent stores the event unless Reject or CreateErr is set
func (f *Fake) CreateEvent(ctx context.Context, req *models.CreateEventRequest) (van.CreateEventResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return van.CreateEventResult{}, f.CreateErr
	}
	f.Created = append(f.Created, *req)
	if len(f.Reject) > 0 {
		return van.Rejected(f.Reject), nil
	}

	f.nextID++
	ev := &models.RemoteEvent{
		EventID:   f.nextID,
		Name:      req.Name,
		ShortName: req.ShortName,
		EventType: &models.EventTypeRef{EventTypeID: req.EventType.EventTypeID},
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Roles:     req.Roles,
		Shifts:    req.Shifts,
	}
	if len(req.Locations) > 0 && len(f.Locations) > 0 {
		loc := f.Locations[len(f.Locations)-1]
		loc.LocationID = req.Locations[0].LocationID
		ev.Locations = []models.Location{loc}
	}
	f.Events[ev.EventID] = ev
	return van.Created(ev.EventID), nil
}

// GetEvent returns a copy of a stored event
func (f *Fake) GetEvent(ctx context.Context, eventID int, expand ...string) (*models.RemoteEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	ev, ok := f.Events[eventID]
	if !ok {
		return nil, &van.APIError{Method: "GET", Path: "/events", StatusCode: 404}
	}
	cp := *ev
	return &cp, nil
}

// ListEvents returns stored events matching the type ids and start date, ordered by id.
// Listed events carry no locations, as VAN only returns them on GetEvent with $expand.
func (f *Fake) ListEvents(ctx context.Context, filter van.EventFilter) ([]models.RemoteEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListFilters = append(f.ListFilters, filter)
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	types := make(map[int]bool, len(filter.EventTypeIDs))
	for _, id := range filter.EventTypeIDs {
		types[id] = true
	}
	after := filter.StartingAfter.UTC().Truncate(24 * time.Hour)

	var out []models.RemoteEvent
	for _, ev := range f.Events {
		if len(types) > 0 && (ev.EventType == nil || !types[ev.EventType.EventTypeID]) {
			continue
		}
		if !filter.StartingAfter.IsZero() && ev.StartDate.Before(after) {
			continue
		}
		cp := *ev
		cp.Locations = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, nil
}
