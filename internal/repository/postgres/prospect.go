package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/regabilling/retarget/internal/domain"
	"github.com/regabilling/retarget/internal/service/retarget"
)

// ProspectRepo implements retarget.ProspectRepository against PostgreSQL.
type ProspectRepo struct{ db *sql.DB }

// NewProspectRepo creates a Postgres-backed prospect repository.
func NewProspectRepo(db *sql.DB) *ProspectRepo { return &ProspectRepo{db: db} }

const prospectCols = `id, name, email, COALESCE(phone,''), marketing_consent, status,
	       retargeting_week, unsubscribed_at, last_retargeting_sent, created_at`

func scanProspect(row interface{ Scan(...interface{}) error }) (*domain.Prospect, error) {
	p := &domain.Prospect{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.MarketingConsent, &p.Status,
		&p.RetargetingWeek, &p.UnsubscribedAt, &p.LastRetargetingSent, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProspectRepo) Get(ctx context.Context, id string) (*domain.Prospect, error) {
	p, err := scanProspect(r.db.QueryRowContext(ctx, `
		SELECT `+prospectCols+`
		FROM prospects
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, retarget.ErrProspectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prospect: %w", err)
	}
	return p, nil
}

func (r *ProspectRepo) FindEligible(ctx context.Context, cutoff time.Time) ([]domain.Prospect, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prospectCols+`
		FROM prospects
		WHERE status = $1
		  AND marketing_consent = TRUE
		  AND unsubscribed_at IS NULL
		  AND retargeting_week < $2
		  AND created_at <= $3
		ORDER BY created_at ASC
	`, domain.ProspectPending, domain.MaxRetargetingWeek, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find eligible prospects: %w", err)
	}
	defer rows.Close()

	var out []domain.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prospect: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *ProspectRepo) Update(ctx context.Context, p *domain.Prospect) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE prospects
		SET status = $2, retargeting_week = $3, last_retargeting_sent = $4
		WHERE id = $1
	`, p.ID, p.Status, p.RetargetingWeek, p.LastRetargetingSent)
	if err != nil {
		return fmt.Errorf("update prospect: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return retarget.ErrProspectNotFound
	}
	return nil
}

func (r *ProspectRepo) MarkUnsubscribed(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE prospects
		SET status = $2, unsubscribed_at = $3
		WHERE id = $1
	`, id, domain.ProspectUnsubscribed, at)
	if err != nil {
		return fmt.Errorf("mark prospect unsubscribed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return retarget.ErrProspectNotFound
	}
	return nil
}
