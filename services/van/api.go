// Package van is the client for the VAN events API.
package van

import (
	"context"
	"strings"
	"time"

	"github.com/upb/ak-van-sync/models"
)

// API is the subset of VAN used by the import and export pipelines
type API interface {
	// FindOrCreateLocation returns the id of a location matching loc, creating it when needed
	FindOrCreateLocation(ctx context.Context, loc models.Location) (int, error)

	// GetEventTypes lists the event types visible to the API key
	GetEventTypes(ctx context.Context) ([]models.EventType, error)

	// CreateEvent submits a new event. A request VAN refuses is reported as a
	// rejected result, not an error.
	CreateEvent(ctx context.Context, req *models.CreateEventRequest) (CreateEventResult, error)

	// GetEvent fetches one event, expanding the named sub-resources
	GetEvent(ctx context.Context, eventID int, expand ...string) (*models.RemoteEvent, error)

	// ListEvents returns every event matching the filter, following pagination
	ListEvents(ctx context.Context, filter EventFilter) ([]models.RemoteEvent, error)
}

// Factory builds an API client for one region's credentials
type Factory func(creds models.RegionCredentials) API

// ExpandLocations asks VAN to inline event locations
const ExpandLocations = "locations"

// EventFilter narrows ListEvents
type EventFilter struct {
	EventTypeIDs  []int
	StartingAfter time.Time // date only; zero means no lower bound
	Expand        []string
}

// CreateEventResult is either Created (EventID set) or Rejected (Errors set)
type CreateEventResult struct {
	EventID int
	Errors  []ErrorDetail
}

// Created builds a successful result
func Created(eventID int) CreateEventResult {
	return CreateEventResult{EventID: eventID}
}

// Rejected builds a result for a request VAN refused
func Rejected(details []ErrorDetail) CreateEventResult {
	if len(details) == 0 {
		details = []ErrorDetail{{Text: "event was not created"}}
	}
	return CreateEventResult{Errors: details}
}

// IsCreated reports whether VAN returned a new event id
func (r CreateEventResult) IsCreated() bool {
	return len(r.Errors) == 0 && r.EventID > 0
}

// Codes returns the VAN error codes of a rejected result
func (r CreateEventResult) Codes() []string {
	return detailCodes(r.Errors)
}

// Message joins the error texts of a rejected result
func (r CreateEventResult) Message() string {
	texts := make([]string, 0, len(r.Errors))
	for _, d := range r.Errors {
		texts = append(texts, d.String())
	}
	return strings.Join(texts, "; ")
}
