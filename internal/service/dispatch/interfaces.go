package dispatch

import (
	"context"
	"time"

	"github.com/regabilling/retarget/internal/domain"
)

// EmailSender delivers one email and returns the provider message id.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody, recipientName string) (string, error)
}

// SMSSender delivers one SMS and returns the provider message id.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// DueCampaign is a claimed campaign joined with the prospect's contact info,
// everything a send task needs without further lookups.
type DueCampaign struct {
	domain.Campaign

	ProspectName  string
	ProspectEmail string
	ProspectPhone string
}

// CampaignStore is the dispatcher-facing data access contract.
// Implementations must make ClaimDue atomic: a campaign claimed by one pass
// must not be visible to a concurrent pass.
type CampaignStore interface {
	// ClaimDue atomically transitions up to limit scheduled campaigns with
	// scheduled_at <= now into sending status and returns them with prospect
	// contact info, ordered by scheduled_at ascending.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]DueCampaign, error)

	// MarkSent records a successful delivery: status sent, sent_at,
	// delivery status, provider message id.
	MarkSent(ctx context.Context, id, messageID string, at time.Time) error

	// MarkFailed records a delivery failure: status failed plus error text.
	MarkFailed(ctx context.Context, id, errMsg string) error

	// FindFailedForRetry returns failed campaigns with retry budget left.
	FindFailedForRetry(ctx context.Context) ([]domain.Campaign, error)

	// RecoverStuck sweeps campaigns stranded in sending status since before
	// the cutoff (claimed by a pass that crashed or timed out). Campaigns
	// with retry budget left go back to scheduled with retry_count bumped;
	// the rest are marked failed terminally. Returns both counts.
	RecoverStuck(ctx context.Context, before time.Time) (requeued, exhausted int, err error)

	// ScheduleRetry conditionally requeues a failed campaign: increments
	// retry_count, resets status to scheduled, and moves scheduled_at to the
	// given time. Returns false when the campaign no longer qualifies
	// (already requeued, or retries exhausted).
	ScheduleRetry(ctx context.Context, id string, at time.Time) (bool, error)
}

// EventStore appends engagement events from the dispatch side.
type EventStore interface {
	Append(ctx context.Context, e *domain.EngagementEvent) error
}
