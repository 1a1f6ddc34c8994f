package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/repositories"
)

// eventColumns is the column list shared by events and events_stage
const eventColumns = "van_event_id, title, venue, address1, address2, city, state, zip, country, starts_at_utc, ends_at_utc, ak_event_id"

// eventColumnCount is the number of columns in eventColumns
const eventColumnCount = 12

// EventRepository implements the repositories.EventRepository interface
type EventRepository struct {
	db     *DB
	table  string
	logger *zap.Logger
}

// NewEventRepository creates a new events table repository
func NewEventRepository(db *DB, vanSchema string, logger *zap.Logger) repositories.EventRepository {
	return &EventRepository{
		db:     db,
		table:  qualify(vanSchema, models.EventsTable),
		logger: logger,
	}
}

// Insert writes one mirror row
func (r *EventRepository) Insert(ctx context.Context, record *models.EventRecord) error {
	query := `
		INSERT INTO ` + r.table + ` (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query, recordArgs(record)...)
	if err != nil {
		return fmt.Errorf("failed to insert event %d: %w", record.VANEventID, err)
	}

	r.logger.Debug("event mirrored",
		zap.Int("van_event_id", record.VANEventID),
		zap.String("ak_event_id", record.AKEventID))
	return nil
}

// recordArgs returns the statement arguments for a row in eventColumns order
func recordArgs(rec *models.EventRecord) []interface{} {
	return []interface{}{
		rec.VANEventID,
		rec.Title,
		rec.Venue,
		rec.Address1,
		rec.Address2,
		rec.City,
		rec.State,
		rec.Zip,
		rec.Country,
		rec.StartsAtUTC.UTC(),
		rec.EndsAtUTC.UTC(),
		rec.AKEventID,
	}
}
