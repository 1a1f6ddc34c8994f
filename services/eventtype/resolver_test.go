package eventtype

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/services/van/vantest"
)

func TestResolver_Resolve(t *testing.T) {
	fake := vantest.New(
		models.EventType{EventTypeID: 7, Name: "Canvass"},
		models.EventType{EventTypeID: 8, Name: "Phone Bank"},
		models.EventType{EventTypeID: 9, Name: "Training"},
	)
	r := NewResolver(map[string]int{"Canvass": 12, "Phone Bank": 13, "Rally": 14}, zap.NewNop())

	idx, err := r.Resolve(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.EventTypeHits)

	canvass, ok := idx.ByCampaign(12)
	require.True(t, ok)
	assert.Equal(t, 7, canvass.EventTypeID)

	_, ok = idx.ByCampaign(14)
	assert.False(t, ok, "unmatched mapping must be a gap")

	phone, ok := idx.ByCampaign(13)
	require.True(t, ok)
	assert.Equal(t, 8, phone.EventTypeID)

	assert.Equal(t, []int{7, 8}, idx.TypeIDs(), "unmapped VAN types stay out of the index")
	assert.Equal(t, []string{"Rally"}, idx.Missing())
}

func TestResolver_ResolveError(t *testing.T) {
	fake := vantest.New()
	fake.EventTypesErr = errors.New("unauthorized")
	r := NewResolver(map[string]int{"Canvass": 12}, zap.NewNop())

	_, err := r.Resolve(context.Background(), fake)
	assert.Error(t, err)
}

func TestResolver_CampaignIDs(t *testing.T) {
	r := NewResolver(map[string]int{"B": 13, "A": 12, "C": 2}, zap.NewNop())
	assert.Equal(t, []int{2, 12, 13}, r.CampaignIDs())
}
