package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/regabilling/retarget/internal/domain"
	"github.com/regabilling/retarget/internal/service/retarget"
)

// TemplateRepo implements retarget.TemplateRepository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) FindActive(ctx context.Context, ch domain.Channel, week int) (*domain.Template, error) {
	t := &domain.Template{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, channel, campaign_week, COALESCE(subject_line,''), body, active, created_at
		FROM templates
		WHERE channel = $1 AND campaign_week = $2 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`, ch, week).Scan(
		&t.ID, &t.Channel, &t.CampaignWeek, &t.SubjectLine, &t.Body, &t.Active, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, retarget.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active template: %w", err)
	}
	return t, nil
}
