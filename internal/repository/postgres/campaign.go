package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/regabilling/retarget/internal/domain"
	"github.com/regabilling/retarget/internal/service/dispatch"
	"github.com/regabilling/retarget/internal/service/retarget"
)

// CampaignRepo implements retarget.CampaignRepository and
// dispatch.CampaignStore against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignCols = `id, prospect_id, channel, status, COALESCE(subject,''), body,
	       scheduled_at, sent_at, opened_at, clicked_at,
	       COALESCE(external_message_id,''), COALESCE(delivery_status,''),
	       COALESCE(error_message,''), retry_count, cost_incurred, campaign_week,
	       created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }, c *domain.Campaign) error {
	return row.Scan(
		&c.ID, &c.ProspectID, &c.Channel, &c.Status, &c.Subject, &c.Body,
		&c.ScheduledAt, &c.SentAt, &c.OpenedAt, &c.ClickedAt,
		&c.ExternalMessageID, &c.DeliveryStatus,
		&c.ErrorMessage, &c.RetryCount, &c.CostIncurred, &c.CampaignWeek,
		&c.CreatedAt, &c.UpdatedAt,
	)
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignCols+`
		FROM campaigns
		WHERE id = $1
	`, id), c)
	if err == sql.ErrNoRows {
		return nil, retarget.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (
			id, prospect_id, channel, status, subject, body,
			scheduled_at, retry_count, cost_incurred, campaign_week,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, NOW(), NOW())
	`, c.ID, c.ProspectID, c.Channel, c.Status, c.Subject, c.Body,
		c.ScheduledAt, c.CostIncurred, c.CampaignWeek)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) CountByProspectAndWeek(ctx context.Context, prospectID string, week int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaigns
		WHERE prospect_id = $1 AND campaign_week = $2
	`, prospectID, week).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

func (r *CampaignRepo) SpendSince(ctx context.Context, since time.Time) (float64, error) {
	var spend float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_incurred), 0) FROM campaigns
		WHERE created_at >= $1
	`, since).Scan(&spend)
	if err != nil {
		return 0, fmt.Errorf("weekly spend: %w", err)
	}
	return spend, nil
}

func (r *CampaignRepo) MarkOpened(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, opened_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, domain.CampaignOpened, at)
	if err != nil {
		return fmt.Errorf("mark campaign opened: %w", err)
	}
	return nil
}

func (r *CampaignRepo) MarkClicked(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, clicked_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, domain.CampaignClicked, at)
	if err != nil {
		return fmt.Errorf("mark campaign clicked: %w", err)
	}
	return nil
}

// ClaimDue atomically moves due scheduled campaigns into sending status and
// returns them joined with prospect contact info. SKIP LOCKED keeps
// concurrent passes from claiming the same rows.
func (r *CampaignRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]dispatch.DueCampaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE campaigns
			SET status = $1, updated_at = NOW()
			WHERE id IN (
				SELECT c.id FROM campaigns c
				WHERE c.status = $2
				  AND c.scheduled_at <= $3
				ORDER BY c.scheduled_at ASC
				LIMIT $4
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, prospect_id, channel, status, subject, body,
			          scheduled_at, retry_count, cost_incurred, campaign_week
		)
		SELECT
			c.id, c.prospect_id, c.channel, c.status,
			COALESCE(c.subject, ''), c.body,
			c.scheduled_at, c.retry_count, c.cost_incurred, c.campaign_week,
			p.name, p.email, COALESCE(p.phone, '')
		FROM claimed c
		JOIN prospects p ON p.id = c.prospect_id
	`, domain.CampaignSending, domain.CampaignScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due campaigns: %w", err)
	}
	defer rows.Close()

	var out []dispatch.DueCampaign
	for rows.Next() {
		var d dispatch.DueCampaign
		if err := rows.Scan(
			&d.ID, &d.ProspectID, &d.Channel, &d.Status, &d.Subject, &d.Body,
			&d.ScheduledAt, &d.RetryCount, &d.CostIncurred, &d.CampaignWeek,
			&d.ProspectName, &d.ProspectEmail, &d.ProspectPhone,
		); err != nil {
			return nil, fmt.Errorf("scan claimed campaign: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) MarkSent(ctx context.Context, id, messageID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, sent_at = $3, external_message_id = $4,
		    delivery_status = 'SENT', error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, domain.CampaignSent, at, messageID)
	if err != nil {
		return fmt.Errorf("mark campaign sent: %w", err)
	}
	return nil
}

func (r *CampaignRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, delivery_status = 'FAILED', error_message = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, domain.CampaignFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark campaign failed: %w", err)
	}
	return nil
}

// RecoverStuck reclaims campaigns left in sending status by a crashed or
// timed-out pass. Two passes: requeue those under the retry limit, terminally
// fail the rest.
func (r *CampaignRepo) RecoverStuck(ctx context.Context, before time.Time) (int, int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $1, retry_count = retry_count + 1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3 AND retry_count < $4
	`, domain.CampaignScheduled, domain.CampaignSending, before, domain.MaxRetryCount)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue stuck campaigns: %w", err)
	}
	requeued, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("requeue stuck campaigns: %w", err)
	}

	res, err = r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $1, delivery_status = 'FAILED',
		    error_message = COALESCE(error_message, 'delivery interrupted'),
		    updated_at = NOW()
		WHERE status = $2 AND updated_at < $3 AND retry_count >= $4
	`, domain.CampaignFailed, domain.CampaignSending, before, domain.MaxRetryCount)
	if err != nil {
		return int(requeued), 0, fmt.Errorf("fail stuck campaigns: %w", err)
	}
	exhausted, err := res.RowsAffected()
	if err != nil {
		return int(requeued), 0, fmt.Errorf("fail stuck campaigns: %w", err)
	}
	return int(requeued), int(exhausted), nil
}

func (r *CampaignRepo) FindFailedForRetry(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignCols+`
		FROM campaigns
		WHERE status = $1 AND retry_count < $2
		ORDER BY updated_at ASC
	`, domain.CampaignFailed, domain.MaxRetryCount)
	if err != nil {
		return nil, fmt.Errorf("find failed campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := scanCampaign(rows, &c); err != nil {
			return nil, fmt.Errorf("scan failed campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ScheduleRetry conditionally requeues a failed campaign. The WHERE clause
// repeats the eligibility check so a concurrent requeue is a no-op.
func (r *CampaignRepo) ScheduleRetry(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, scheduled_at = $3, retry_count = retry_count + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status = $4 AND retry_count < $5
	`, id, domain.CampaignScheduled, at, domain.CampaignFailed, domain.MaxRetryCount)
	if err != nil {
		return false, fmt.Errorf("schedule campaign retry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("schedule campaign retry: %w", err)
	}
	return n > 0, nil
}
