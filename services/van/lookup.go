package van

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/ak-van-sync/models"
)

// EventIndex finds existing events of one type by shortName and UTC start date
type EventIndex struct {
	byKey map[string]*models.RemoteEvent
}

// LoadEventIndex lists the type's events starting on or after the day before
// since, once, and indexes them. Paging is handled by ListEvents.
func LoadEventIndex(ctx context.Context, api API, eventTypeID int, since time.Time) (*EventIndex, error) {
	day := since.UTC().Truncate(24 * time.Hour)

	events, err := api.ListEvents(ctx, EventFilter{
		EventTypeIDs:  []int{eventTypeID},
		StartingAfter: day.AddDate(0, 0, -1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events of type %d: %w", eventTypeID, err)
	}

	idx := &EventIndex{byKey: make(map[string]*models.RemoteEvent, len(events))}
	for i := range events {
		ev := &events[i]
		key := indexKey(ev.ShortName, ev.StartDate)
		if _, ok := idx.byKey[key]; !ok {
			idx.byKey[key] = ev
		}
	}
	return idx, nil
}

// Find returns the event whose shortName matches and that starts on the same
// UTC date as startsAt, or nil
func (i *EventIndex) Find(shortName string, startsAt time.Time) *models.RemoteEvent {
	return i.byKey[indexKey(shortName, startsAt)]
}

// Len is the number of indexed events
func (i *EventIndex) Len() int {
	return len(i.byKey)
}

func indexKey(shortName string, startsAt time.Time) string {
	return shortName + "|" + startsAt.UTC().Format(time.DateOnly)
}
