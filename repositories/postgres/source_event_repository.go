package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/config"
	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/repositories"
)

// SourceEventRepository implements the repositories.SourceEventRepository interface
type SourceEventRepository struct {
	db      *DB
	schemas config.SchemaConfig
	logger  *zap.Logger
}

// NewSourceEventRepository creates a new AK event repository
func NewSourceEventRepository(db *DB, schemas config.SchemaConfig, logger *zap.Logger) repositories.SourceEventRepository {
	return &SourceEventRepository{
		db:      db,
		schemas: schemas,
		logger:  logger,
	}
}

// ListUnmirrored returns AK events with no events row, using a left anti-join on ak_event_id
func (r *SourceEventRepository) ListUnmirrored(ctx context.Context, filter repositories.UnmirroredFilter) ([]*models.LocalEvent, error) {
	if len(filter.CampaignIDs) == 0 {
		return nil, fmt.Errorf("at least one campaign id is required")
	}

	args := make([]interface{}, 0, len(filter.CampaignIDs)+len(filter.Regions)+1)
	args = append(args, filter.StartsOnOrAfter.UTC())

	campaigns := make([]string, 0, len(filter.CampaignIDs))
	for _, id := range filter.CampaignIDs {
		args = append(args, id)
		campaigns = append(campaigns, fmt.Sprintf("$%d", len(args)))
	}

	regionClause := ""
	if len(filter.Regions) > 0 {
		regions := make([]string, 0, len(filter.Regions))
		for _, code := range filter.Regions {
			args = append(args, strings.ToUpper(strings.TrimSpace(code)))
			regions = append(regions, fmt.Sprintf("$%d", len(args)))
		}
		regionClause = "\n\t\tAND UPPER(TRIM(e.state)) IN (" + strings.Join(regions, ", ") + ")"
	}

	query := `
		SELECT e.id, e.title,
		       COALESCE(e.venue, ''), COALESCE(e.address1, ''), COALESCE(e.address2, ''),
		       COALESCE(e.city, ''), COALESCE(e.state, ''), COALESCE(e.zip, ''),
		       COALESCE(e.plus4, ''), COALESCE(e.country, ''),
		       e.starts_at_utc, e.ends_at_utc, e.campaign_id, COALESCE(e.creator_id, 0)
		FROM ` + qualify(r.schemas.AK, models.SourceEventsTable) + ` e
		LEFT JOIN ` + qualify(r.schemas.VAN, models.EventsTable) + ` van ON van.ak_event_id = CAST(e.id AS VARCHAR)
		WHERE e.campaign_id IN (` + strings.Join(campaigns, ", ") + `)
		AND e.host_is_confirmed = 1
		AND e.status = 'active'
		AND e.starts_at_utc >= $1
		AND van.ak_event_id IS NULL` + regionClause + `
		ORDER BY e.state, e.starts_at_utc, e.id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmirrored events: %w", err)
	}
	defer rows.Close()

	var events []*models.LocalEvent
	for rows.Next() {
		ev := &models.LocalEvent{}
		var endsAt sql.NullTime
		if err := rows.Scan(
			&ev.AKEventID,
			&ev.Title,
			&ev.Venue,
			&ev.Address1,
			&ev.Address2,
			&ev.City,
			&ev.State,
			&ev.Zip,
			&ev.Plus4,
			&ev.Country,
			&ev.StartsAtUTC,
			&endsAt,
			&ev.CampaignID,
			&ev.CreatorAKID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if endsAt.Valid {
			end := endsAt.Time.UTC()
			ev.EndsAtUTC = &end
		}
		ev.StartsAtUTC = ev.StartsAtUTC.UTC()
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	r.logger.Debug("unmirrored events loaded", zap.Int("count", len(events)))
	return events, nil
}
