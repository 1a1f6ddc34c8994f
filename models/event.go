package models

import (
	"strconv"
	"time"
)

// Warehouse table names. Downstream reporting depends on them.
const (
	SourceEventsTable = "events_event"
	EventsTable       = "events"
	EventsStageTable  = "events_stage"
)

// DefaultEventDuration is the length given to an event whose source row has no end time
const DefaultEventDuration = time.Hour

// MaxLocationNameLength is VAN's limit on location names
const MaxLocationNameLength = 50

// LocalEvent is an AK event row that has not been mirrored into VAN yet
type LocalEvent struct {
	AKEventID   int64      `json:"ak_event_id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Venue       string     `json:"venue" db:"venue"`
	Address1    string     `json:"address1" db:"address1"`
	Address2    string     `json:"address2" db:"address2"`
	City        string     `json:"city" db:"city"`
	State       string     `json:"state" db:"state"`
	Zip         string     `json:"zip" db:"zip"`
	Plus4       string     `json:"plus4,omitempty" db:"plus4"`
	Country     string     `json:"country" db:"country"`
	StartsAtUTC time.Time  `json:"starts_at_utc" db:"starts_at_utc"`
	EndsAtUTC   *time.Time `json:"ends_at_utc,omitempty" db:"ends_at_utc"`
	CampaignID  int        `json:"campaign_id" db:"campaign_id"`
	CreatorAKID int64      `json:"creator_ak_id" db:"creator_id"`
}

// ShortName is the key stored on the VAN event to tie it back to this row
func (e *LocalEvent) ShortName() string {
	return strconv.FormatInt(e.AKEventID, 10)
}

// PostalCode returns the zip code, with the +4 extension when present
func (e *LocalEvent) PostalCode() string {
	if e.Plus4 == "" || e.Zip == "" {
		return e.Zip
	}
	return e.Zip + "-" + e.Plus4
}

// StartTime returns the start in UTC
func (e *LocalEvent) StartTime() time.Time {
	return e.StartsAtUTC.UTC()
}

// EndTime returns the supplied end time, or start plus DefaultEventDuration when there is none
func (e *LocalEvent) EndTime() time.Time {
	if e.EndsAtUTC != nil && !e.EndsAtUTC.IsZero() {
		return e.EndsAtUTC.UTC()
	}
	return e.StartTime().Add(DefaultEventDuration)
}

// EventRecord is one row of the events table or the events_stage table
type EventRecord struct {
	VANEventID  int       `json:"van_event_id" db:"van_event_id"`
	Title       string    `json:"title" db:"title"`
	Venue       string    `json:"venue" db:"venue"`
	Address1    string    `json:"address1" db:"address1"`
	Address2    string    `json:"address2" db:"address2"`
	City        string    `json:"city" db:"city"`
	State       string    `json:"state" db:"state"`
	Zip         string    `json:"zip" db:"zip"`
	Country     string    `json:"country" db:"country"`
	StartsAtUTC time.Time `json:"starts_at_utc" db:"starts_at_utc"`
	EndsAtUTC   time.Time `json:"ends_at_utc" db:"ends_at_utc"`
	AKEventID   string    `json:"ak_event_id" db:"ak_event_id"`
}

// NewEventRecord flattens a VAN event into a warehouse row for the given region.
// The event is normalized first, so missing locations or addresses become empty columns.
func NewEventRecord(region string, ev *RemoteEvent) EventRecord {
	ev.Normalize()
	loc := ev.Locations[0]
	addr := loc.Address

	return EventRecord{
		VANEventID:  ev.EventID,
		Title:       ev.Name,
		Venue:       loc.Name,
		Address1:    addr.AddressLine1,
		Address2:    addr.AddressLine2,
		City:        addr.City,
		State:       region,
		Zip:         addr.ZipOrPostalCode,
		Country:     addr.CountryCode,
		StartsAtUTC: ev.StartDate.UTC().Truncate(time.Second),
		EndsAtUTC:   ev.EndDate.UTC().Truncate(time.Second),
		AKEventID:   ev.ShortName,
	}
}
