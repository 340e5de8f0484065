package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/regabilling/retarget/internal/domain"
)

// EventRepo appends engagement events. Rows are never updated or deleted.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e *domain.EngagementEvent) error {
	// Unsubscribe events carry no campaign; an empty id must become NULL,
	// not an empty uuid literal.
	campaignID := sql.NullString{String: e.CampaignID, Valid: e.CampaignID != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engagement_events (
			id, campaign_id, prospect_id, event_type, occurred_at, metadata, cost
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, campaignID, e.ProspectID, e.Kind, e.OccurredAt, e.Metadata, e.Cost)
	if err != nil {
		return fmt.Errorf("append engagement event: %w", err)
	}
	return nil
}
