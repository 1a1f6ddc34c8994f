package van_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/services/van"
	"github.com/upb/ak-van-sync/services/van/vantest"
)

func TestLoadEventIndex(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	fake := vantest.New()
	fake.AddEvent(models.RemoteEvent{EventID: 1, ShortName: "48213", EventType: &models.EventTypeRef{EventTypeID: 7}, StartDate: start.AddDate(0, 0, 7)})
	fake.AddEvent(models.RemoteEvent{EventID: 2, ShortName: "48213", EventType: &models.EventTypeRef{EventTypeID: 8}, StartDate: start})
	fake.AddEvent(models.RemoteEvent{EventID: 3, ShortName: "48213", EventType: &models.EventTypeRef{EventTypeID: 7}, StartDate: start.Add(-4 * time.Hour)})
	fake.AddEvent(models.RemoteEvent{EventID: 4, ShortName: "48213", EventType: &models.EventTypeRef{EventTypeID: 7}, StartDate: start.Add(time.Hour)})
	fake.AddEvent(models.RemoteEvent{EventID: 5, ShortName: "50001", EventType: &models.EventTypeRef{EventTypeID: 7}, StartDate: start.AddDate(0, 0, 3)})

	idx, err := van.LoadEventIndex(ctx, fake, 7, start)
	require.NoError(t, err)

	require.Len(t, fake.ListFilters, 1)
	assert.Equal(t, []int{7}, fake.ListFilters[0].EventTypeIDs)
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), fake.ListFilters[0].StartingAfter)

	t.Run("match on short name and day, first listed wins", func(t *testing.T) {
		ev := idx.Find("48213", start)
		require.NotNil(t, ev)
		assert.Equal(t, 3, ev.EventID)
	})

	t.Run("same short name on another day", func(t *testing.T) {
		ev := idx.Find("48213", start.AddDate(0, 0, 7))
		require.NotNil(t, ev)
		assert.Equal(t, 1, ev.EventID)
	})

	t.Run("later events of the region share the one listing", func(t *testing.T) {
		ev := idx.Find("50001", start.AddDate(0, 0, 3))
		require.NotNil(t, ev)
		assert.Equal(t, 5, ev.EventID)
		assert.Len(t, fake.ListFilters, 1)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, idx.Find("99999", start))
		assert.Nil(t, idx.Find("48213", start.AddDate(0, 0, 1)))
	})

	assert.Equal(t, 3, idx.Len())
}

func TestLoadEventIndex_ListFailure(t *testing.T) {
	failing := vantest.New()
	failing.ListErr = errors.New("boom")

	_, err := van.LoadEventIndex(context.Background(), failing, 7, time.Now())
	assert.ErrorContains(t, err, "type 7")
}
