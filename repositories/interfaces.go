package repositories

import (
	"context"
	"time"

	"github.com/upb/ak-van-sync/models"
)

// TransactionManager manages warehouse transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Repositories called with the ctx passed to fn run inside the transaction.
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UnmirroredFilter selects the AK events the import pipeline should consider
type UnmirroredFilter struct {
	// CampaignIDs limits the query to campaigns with an event type mapping
	CampaignIDs []int

	// StartsOnOrAfter is compared against starts_at_utc; normally today's UTC date
	StartsOnOrAfter time.Time

	// Regions optionally limits the query to these region codes
	Regions []string
}

// SourceEventRepository reads AK events from the warehouse
type SourceEventRepository interface {
	// ListUnmirrored returns confirmed, active, upcoming AK events in the mapped
	// campaigns that have no row in the events table yet, ordered by region.
	ListUnmirrored(ctx context.Context, filter UnmirroredFilter) ([]*models.LocalEvent, error)
}

// EventRepository handles the permanent events table
type EventRepository interface {
	// Insert writes one mirror row
	Insert(ctx context.Context, record *models.EventRecord) error
}

// MergeResult reports the effect of merging the staging table into the events table
type MergeResult struct {
	Updated  int64
	Inserted int64
}

// EventStageRepository handles the events_stage table and the merge into events
type EventStageRepository interface {
	// Truncate empties the staging table
	Truncate(ctx context.Context) error

	// InsertBatch loads rows into the staging table and returns how many were written
	InsertBatch(ctx context.Context, records []models.EventRecord) (int, error)

	// MergeIntoEvents updates events rows that match a staged row and inserts
	// the staged rows that have no match. Nothing is deleted.
	MergeIntoEvents(ctx context.Context) (MergeResult, error)
}

// Repositories holds all repository instances
type Repositories struct {
	SourceEvents SourceEventRepository
	Events       EventRepository
	EventStage   EventStageRepository
}
