package retarget

import (
	"context"
	"time"

	"github.com/regabilling/retarget/internal/domain"
)

// ProspectRepository defines the data access contract for prospects.
// Implementations must be safe for concurrent use.
type ProspectRepository interface {
	// Get returns a single prospect. Returns ErrProspectNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.Prospect, error)

	// FindEligible returns prospects eligible for retargeting: status
	// pending, marketing consent, not unsubscribed, retargeting week below
	// the maximum, created at or before cutoff. Ordered by created_at.
	FindEligible(ctx context.Context, cutoff time.Time) ([]domain.Prospect, error)

	// Update persists mutable prospect fields (status, retargeting week,
	// last_retargeting_sent).
	Update(ctx context.Context, p *domain.Prospect) error

	// MarkUnsubscribed sets unsubscribed status and timestamp. The
	// transition is permanent.
	MarkUnsubscribed(ctx context.Context, id string, at time.Time) error
}

// CampaignRepository defines the scheduler- and tracker-facing data access
// contract for campaigns.
type CampaignRepository interface {
	// Get returns a single campaign. Returns ErrCampaignNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// Create inserts a new campaign in scheduled status.
	Create(ctx context.Context, c *domain.Campaign) error

	// CountByProspectAndWeek counts campaigns already created for the given
	// prospect and drip week (idempotence guard, any channel).
	CountByProspectAndWeek(ctx context.Context, prospectID string, week int) (int, error)

	// SpendSince sums cost_incurred of campaigns created at or after the
	// given instant. Returns 0 when none exist.
	SpendSince(ctx context.Context, since time.Time) (float64, error)

	// MarkOpened transitions the campaign to opened and stamps opened_at.
	MarkOpened(ctx context.Context, id string, at time.Time) error

	// MarkClicked transitions the campaign to clicked and stamps clicked_at.
	MarkClicked(ctx context.Context, id string, at time.Time) error
}

// EventRepository appends engagement events. The log is append-only.
type EventRepository interface {
	Append(ctx context.Context, e *domain.EngagementEvent) error
}

// TemplateRepository resolves active message templates.
type TemplateRepository interface {
	// FindActive returns the unique active template for (channel, week).
	// Returns ErrTemplateNotFound when none is active; callers treat that
	// as a soft skip, not a failure.
	FindActive(ctx context.Context, ch domain.Channel, week int) (*domain.Template, error)
}
