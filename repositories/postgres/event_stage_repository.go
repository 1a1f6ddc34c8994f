package postgres

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/repositories"
)

// stageBatchSize bounds the rows per INSERT statement
const stageBatchSize = 500

// EventStageRepository implements the repositories.EventStageRepository interface
type EventStageRepository struct {
	db     *DB
	stage  string
	events string
	logger *zap.Logger
}

// NewEventStageRepository creates a new staging repository
func NewEventStageRepository(db *DB, vanSchema string, logger *zap.Logger) repositories.EventStageRepository {
	return &EventStageRepository{
		db:     db,
		stage:  qualify(vanSchema, models.EventsStageTable),
		events: qualify(vanSchema, models.EventsTable),
		logger: logger,
	}
}

// Truncate empties the staging table
func (r *EventStageRepository) Truncate(ctx context.Context) error {
	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, "TRUNCATE "+r.stage); err != nil {
		return fmt.Errorf("failed to truncate stage: %w", err)
	}
	return nil
}

// InsertBatch loads rows into the staging table in multi-row INSERT statements
func (r *EventStageRepository) InsertBatch(ctx context.Context, records []models.EventRecord) (int, error) {
	executor := GetExecutor(ctx, r.db)
	written := 0

	for start := 0; start < len(records); start += stageBatchSize {
		end := start + stageBatchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*eventColumnCount)
		for i := range chunk {
			placeholders := make([]string, eventColumnCount)
			for c := 0; c < eventColumnCount; c++ {
				placeholders[c] = fmt.Sprintf("$%d", len(args)+c+1)
			}
			values = append(values, "("+strings.Join(placeholders, ", ")+")")
			args = append(args, recordArgs(&chunk[i])...)
		}

		query := "INSERT INTO " + r.stage + " (" + eventColumns + ") VALUES " + strings.Join(values, ", ")
		if _, err := executor.ExecContext(ctx, query, args...); err != nil {
			return written, fmt.Errorf("failed to insert stage rows: %w", err)
		}
		written += len(chunk)
	}

	r.logger.Debug("stage rows inserted", zap.Int("count", written))
	return written, nil
}

// MergeIntoEvents updates matching events rows from the stage, then inserts
// staged rows with no match. Rows absent from the stage are left alone.
func (r *EventStageRepository) MergeIntoEvents(ctx context.Context) (repositories.MergeResult, error) {
	var result repositories.MergeResult
	executor := GetExecutor(ctx, r.db)

	updateQuery := `
		UPDATE ` + r.events + ` AS e
		SET title = s.title,
		    venue = s.venue,
		    address1 = s.address1,
		    address2 = s.address2,
		    city = s.city,
		    state = s.state,
		    zip = s.zip,
		    country = s.country,
		    starts_at_utc = s.starts_at_utc,
		    ends_at_utc = s.ends_at_utc,
		    ak_event_id = s.ak_event_id
		FROM ` + r.stage + ` s
		WHERE e.van_event_id = s.van_event_id
	`

	res, err := executor.ExecContext(ctx, updateQuery)
	if err != nil {
		return result, fmt.Errorf("failed to update events from stage: %w", err)
	}
	if result.Updated, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to read updated row count: %w", err)
	}

	insertQuery := `
		INSERT INTO ` + r.events + ` (` + eventColumns + `)
		SELECT s.van_event_id, s.title, s.venue, s.address1, s.address2, s.city,
		       s.state, s.zip, s.country, s.starts_at_utc, s.ends_at_utc, s.ak_event_id
		FROM ` + r.stage + ` s
		LEFT JOIN ` + r.events + ` e ON s.van_event_id = e.van_event_id
		WHERE e.van_event_id IS NULL
	`

	res, err = executor.ExecContext(ctx, insertQuery)
	if err != nil {
		return result, fmt.Errorf("failed to insert events from stage: %w", err)
	}
	if result.Inserted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to read inserted row count: %w", err)
	}

	r.logger.Debug("stage merged",
		zap.Int64("updated", result.Updated),
		zap.Int64("inserted", result.Inserted))
	return result, nil
}
