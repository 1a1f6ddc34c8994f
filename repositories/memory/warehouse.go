// Package memory is an in-memory warehouse implementing the repository
// interfaces with the same semantics as the SQL implementations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/repositories"
)

// Source event status values
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// SourceRow is one AK events_event row
type SourceRow struct {
	Event         models.LocalEvent
	HostConfirmed bool
	Status        string
}

// Warehouse holds the three tables. Err fields, when set, are returned by the matching call.
type Warehouse struct {
	mu sync.Mutex

	Source []SourceRow
	Events []models.EventRecord
	Stage  []models.EventRecord

	ListErr     error
	InsertErr   error
	TruncateErr error
	StageErr    error
	MergeErr    error

	Commits   int
	Rollbacks int
}

// New returns an empty warehouse
func New() *Warehouse {
	return &Warehouse{}
}

// AddSource appends an active, host-confirmed AK event
func (w *Warehouse) AddSource(ev models.LocalEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Source = append(w.Source, SourceRow{Event: ev, HostConfirmed: true, Status: StatusActive})
}

// EventsSnapshot returns a copy of the events table ordered by VAN id
func (w *Warehouse) EventsSnapshot() []models.EventRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := append([]models.EventRecord(nil), w.Events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].VANEventID < out[j].VANEventID })
	return out
}

// Repositories returns repository views over the warehouse
func (w *Warehouse) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		SourceEvents: sourceRepo{w},
		Events:       eventRepo{w},
		EventStage:   stageRepo{w},
	}
}

// TransactionManager returns a manager whose rollback restores the events and stage tables
func (w *Warehouse) TransactionManager() repositories.TransactionManager {
	return txManager{w}
}

type sourceRepo struct{ w *Warehouse }

func (r sourceRepo) ListUnmirrored(ctx context.Context, filter repositories.UnmirroredFilter) ([]*models.LocalEvent, error) {
	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ListErr != nil {
		return nil, w.ListErr
	}
	if len(filter.CampaignIDs) == 0 {
		return nil, fmt.Errorf("at least one campaign id is required")
	}

	campaigns := make(map[int]bool, len(filter.CampaignIDs))
	for _, id := range filter.CampaignIDs {
		campaigns[id] = true
	}
	regions := make(map[string]bool, len(filter.Regions))
	for _, code := range filter.Regions {
		regions[strings.ToUpper(strings.TrimSpace(code))] = true
	}
	mirrored := make(map[string]bool, len(w.Events))
	for _, rec := range w.Events {
		mirrored[rec.AKEventID] = true
	}

	var out []*models.LocalEvent
	for _, row := range w.Source {
		ev := row.Event
		switch {
		case !campaigns[ev.CampaignID], !row.HostConfirmed, row.Status != StatusActive:
			continue
		case ev.StartsAtUTC.Before(filter.StartsOnOrAfter):
			continue
		case len(regions) > 0 && !regions[strings.ToUpper(strings.TrimSpace(ev.State))]:
			continue
		case mirrored[strconv.FormatInt(ev.AKEventID, 10)]:
			continue
		}
		cp := ev
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if !a.StartsAtUTC.Equal(b.StartsAtUTC) {
			return a.StartsAtUTC.Before(b.StartsAtUTC)
		}
		return a.AKEventID < b.AKEventID
	})
	return out, nil
}

type eventRepo struct{ w *Warehouse }

func (r eventRepo) Insert(ctx context.Context, record *models.EventRecord) error {
	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.InsertErr != nil {
		return w.InsertErr
	}
	w.Events = append(w.Events, *record)
	return nil
}

type stageRepo struct{ w *Warehouse }

func (r stageRepo) Truncate(ctx context.Context) error {
	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.TruncateErr != nil {
		return w.TruncateErr
	}
	w.Stage = nil
	return nil
}

func (r stageRepo) InsertBatch(ctx context.Context, records []models.EventRecord) (int, error) {
	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.StageErr != nil {
		return 0, w.StageErr
	}
	w.Stage = append(w.Stage, records...)
	return len(records), nil
}

func (r stageRepo) MergeIntoEvents(ctx context.Context) (repositories.MergeResult, error) {
	w := r.w
	w.mu.Lock()
	defer w.mu.Unlock()

	var result repositories.MergeResult
	if w.MergeErr != nil {
		return result, w.MergeErr
	}

	staged := make(map[int]models.EventRecord, len(w.Stage))
	for _, s := range w.Stage {
		staged[s.VANEventID] = s
	}

	existing := make(map[int]bool, len(w.Events))
	for i := range w.Events {
		id := w.Events[i].VANEventID
		existing[id] = true
		if s, ok := staged[id]; ok {
			w.Events[i] = s
			result.Updated++
		}
	}

	for _, s := range w.Stage {
		if !existing[s.VANEventID] {
			w.Events = append(w.Events, s)
			result.Inserted++
		}
	}
	return result, nil
}

type txManager struct{ w *Warehouse }

type tx struct {
	ctx context.Context
}

func (t *tx) Commit() error            { return nil }
func (t *tx) Rollback() error          { return nil }
func (t *tx) Context() context.Context { return t.ctx }

func (m txManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return &tx{ctx: ctx}, nil
}

func (m txManager) InTransaction(ctx context.Context, fn func(ctx context.Context, t repositories.Transaction) error) error {
	w := m.w
	w.mu.Lock()
	events := append([]models.EventRecord(nil), w.Events...)
	stage := append([]models.EventRecord(nil), w.Stage...)
	w.mu.Unlock()

	if err := fn(ctx, &tx{ctx: ctx}); err != nil {
		w.mu.Lock()
		w.Events = events
		w.Stage = stage
		w.Rollbacks++
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.Commits++
	w.mu.Unlock()
	return nil
}
