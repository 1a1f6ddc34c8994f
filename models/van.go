package models

import "time"

// Role names kept on imported events. Every other role template is dropped.
const (
	RoleHost        = "Host"
	RoleParticipant = "Participant"
)

// SingleShiftName is the name of the one shift every imported event carries
const SingleShiftName = "Single Shift"

// RemoteEvent is an event as VAN stores it
type RemoteEvent struct {
	EventID   int           `json:"eventId"`
	Name      string        `json:"name"`
	ShortName string        `json:"shortName"`
	EventType *EventTypeRef `json:"eventType,omitempty"`
	StartDate time.Time     `json:"startDate"`
	EndDate   time.Time     `json:"endDate"`
	Locations []Location    `json:"locations"`
	Roles     []Role        `json:"roles"`
	Shifts    []Shift       `json:"shifts"`
}

// Normalize replaces a missing location or address with empty values so the
// first location and its address can always be read.
func (e *RemoteEvent) Normalize() {
	if len(e.Locations) == 0 {
		e.Locations = []Location{{}}
	}
	if e.Locations[0].Address == nil {
		e.Locations[0].Address = &Address{}
	}
}

// Location is a VAN location. LocationID is zero for a location that has not been saved yet.
type Location struct {
	LocationID int      `json:"locationId,omitempty"`
	Name       string   `json:"name"`
	Address    *Address `json:"address"`
}

// Address is the structured address attached to a VAN location
type Address struct {
	AddressLine1    string `json:"addressLine1,omitempty"`
	AddressLine2    string `json:"addressLine2,omitempty"`
	City            string `json:"city,omitempty"`
	StateOrProvince string `json:"stateOrProvince,omitempty"`
	ZipOrPostalCode string `json:"zipOrPostalCode,omitempty"`
	CountryCode     string `json:"countryCode,omitempty"`
}

// EventType is a VAN event type together with its role templates
type EventType struct {
	EventTypeID int    `json:"eventTypeId"`
	Name        string `json:"name"`
	Roles       []Role `json:"roles"`
}

// ImportRoles returns the role templates an imported event is created with
func (t *EventType) ImportRoles() []Role {
	roles := make([]Role, 0, 2)
	for _, r := range t.Roles {
		if r.Name == RoleHost || r.Name == RoleParticipant {
			roles = append(roles, r)
		}
	}
	return roles
}

// EventTypeRef references an event type inside an event payload
type EventTypeRef struct {
	EventTypeID int    `json:"eventTypeId"`
	Name        string `json:"name,omitempty"`
}

// Role is a VAN event role template
type Role struct {
	RoleID      int    `json:"roleId"`
	Name        string `json:"name"`
	IsEventLead bool   `json:"isEventLead"`
}

// Shift is a time slice of an event
type Shift struct {
	EventShiftID int       `json:"eventShiftId,omitempty"`
	Name         string    `json:"name"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
}

// LocationRef points an event at an existing location
type LocationRef struct {
	LocationID int `json:"locationId"`
}

// CreateEventRequest is the payload submitted to VAN to create an event
type CreateEventRequest struct {
	Name                         string        `json:"name" validate:"required,max=500"`
	ShortName                    string        `json:"shortName" validate:"required,max=12"`
	StartDate                    time.Time     `json:"startDate" validate:"required"`
	EndDate                      time.Time     `json:"endDate" validate:"required,gtefield=StartDate"`
	EventType                    EventTypeRef  `json:"eventType"`
	IsOnlyEditableByCreatingUser bool          `json:"isOnlyEditableByCreatingUser"`
	Locations                    []LocationRef `json:"locations,omitempty"`
	Roles                        []Role        `json:"roles"`
	Shifts                       []Shift       `json:"shifts" validate:"len=1"`
}

// RegionCredentials are the VAN credentials used for one region's calls
type RegionCredentials struct {
	Region  string
	AppName string
	APIKey  string
}
