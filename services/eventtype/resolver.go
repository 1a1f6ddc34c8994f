// Package eventtype resolves configured event-type names to VAN event types.
package eventtype

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/services/van"
)

// Resolver turns the name -> campaign mapping into per-region indexes
type Resolver struct {
	mapping map[string]int
	logger  *zap.Logger
}

// NewResolver creates a resolver for the given event-type name -> campaign id mapping
func NewResolver(mapping map[string]int, logger *zap.Logger) *Resolver {
	return &Resolver{mapping: mapping, logger: logger}
}

// CampaignIDs returns the mapped campaign ids in ascending order
func (r *Resolver) CampaignIDs() []int {
	ids := make([]int, 0, len(r.mapping))
	for _, id := range r.mapping {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Resolve fetches the region's event types once and indexes the mapped ones.
// Mapped names VAN does not know are logged and left out of the index.
func (r *Resolver) Resolve(ctx context.Context, api van.API) (*Index, error) {
	types, err := api.GetEventTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event types: %w", err)
	}

	byName := make(map[string]models.EventType, len(types))
	for _, t := range types {
		byName[t.Name] = t
	}

	idx := &Index{byCampaign: make(map[int]models.EventType, len(r.mapping))}
	for name, campaignID := range r.mapping {
		t, ok := byName[name]
		if !ok {
			r.logger.Warn("mapped event type not found in VAN",
				zap.String("event_type", name),
				zap.Int("campaign_id", campaignID))
			idx.missing = append(idx.missing, name)
			continue
		}
		idx.byCampaign[campaignID] = t
	}
	sort.Strings(idx.missing)

	return idx, nil
}

// Index is one region's view of the mapped event types
type Index struct {
	byCampaign map[int]models.EventType
	missing    []string
}

// ByCampaign returns the event type mapped to an AK campaign id
func (i *Index) ByCampaign(campaignID int) (models.EventType, bool) {
	t, ok := i.byCampaign[campaignID]
	return t, ok
}

// TypeIDs returns the VAN ids of every resolved type, ascending
func (i *Index) TypeIDs() []int {
	ids := make([]int, 0, len(i.byCampaign))
	seen := make(map[int]bool, len(i.byCampaign))
	for _, t := range i.byCampaign {
		if !seen[t.EventTypeID] {
			seen[t.EventTypeID] = true
			ids = append(ids, t.EventTypeID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Missing returns the mapped names VAN did not return, sorted
func (i *Index) Missing() []string {
	return i.missing
}
