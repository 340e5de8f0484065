package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/domain"
	"github.com/regabilling/retarget/internal/pkg/logger"
)

// DispatchSummary is the explicit result of one dispatch pass.
type DispatchSummary struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Dispatcher delivers due campaigns through the channel senders. Each claimed
// campaign becomes an independent unit of work on a bounded worker pool; there
// is no ordering guarantee between campaigns in the same pass.
type Dispatcher struct {
	store  CampaignStore
	events EventStore
	email  EmailSender
	sms    SMSSender

	emailPolicy RetryPolicy
	smsPolicy   RetryPolicy

	workers   int
	batchSize int

	trackingBaseURL string

	now func() time.Time
}

// NewDispatcher wires a dispatcher from its senders and the retargeting
// config.
func NewDispatcher(store CampaignStore, events EventStore, email EmailSender, sms SMSSender, cfg config.RetargetingConfig, tracking config.TrackingConfig) *Dispatcher {
	workers := cfg.DispatchWorkers
	if workers <= 0 {
		workers = 10
	}
	batch := cfg.DispatchBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Dispatcher{
		store:           store,
		events:          events,
		email:           email,
		sms:             sms,
		emailPolicy:     DefaultEmailRetryPolicy(),
		smsPolicy:       DefaultSMSRetryPolicy(),
		workers:         workers,
		batchSize:       batch,
		trackingBaseURL: tracking.BaseURL,
		now:             time.Now,
	}
}

// SetRetryPolicies overrides the per-channel retry schedules.
func (d *Dispatcher) SetRetryPolicies(email, sms RetryPolicy) {
	d.emailPolicy = email
	d.smsPolicy = sms
}

// DispatchDue claims all currently due campaigns and sends them concurrently.
// The pass blocks until every send task has finished (including in-task retry
// backoff) and returns the aggregate summary.
func (d *Dispatcher) DispatchDue(ctx context.Context) (*DispatchSummary, error) {
	sum := &DispatchSummary{}

	claimed, err := d.store.ClaimDue(ctx, d.now(), d.batchSize)
	if err != nil {
		return sum, fmt.Errorf("claim due campaigns: %w", err)
	}
	if len(claimed) == 0 {
		return sum, nil
	}
	sum.Claimed = len(claimed)
	log.Printf("[Dispatcher] executing %d due campaigns", len(claimed))

	var sent, failed int64
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup

	for i := range claimed {
		c := claimed[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := d.send(ctx, c); err != nil {
				atomic.AddInt64(&failed, 1)
				return
			}
			atomic.AddInt64(&sent, 1)
		}()
	}
	wg.Wait()

	sum.Sent = int(atomic.LoadInt64(&sent))
	sum.Failed = int(atomic.LoadInt64(&failed))
	log.Printf("[Dispatcher] pass complete: claimed=%d sent=%d failed=%d", sum.Claimed, sum.Sent, sum.Failed)
	return sum, nil
}

// send delivers one campaign with the channel's retry policy. Every failed
// attempt is recorded (status failed + event) before backing off, so a crash
// mid-retry leaves the campaign in a reconcilable state; a later successful
// attempt overwrites the failure.
//
// Status writes use a detached context: once a campaign is claimed, the
// outcome must land even if the pass deadline fires mid-send, or the claim
// would be stranded in sending status.
func (d *Dispatcher) send(ctx context.Context, c DueCampaign) error {
	policy := d.emailPolicy
	if c.Channel == domain.ChannelSMS {
		policy = d.smsPolicy
	}
	writeCtx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(policy.Delay(attempt - 1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		messageID, err := d.attempt(ctx, c)
		if err == nil {
			now := d.now()
			if err := d.store.MarkSent(writeCtx, c.ID, messageID, now); err != nil {
				log.Printf("[Dispatcher] error marking campaign %s sent: %v", c.ID, err)
			}
			d.recordEvent(writeCtx, &c.Campaign, domain.SentEvent(c.Channel), messageID)
			logger.Info("campaign delivered", "campaign_id", c.ID, "channel", string(c.Channel), "email", c.ProspectEmail)
			return nil
		}

		lastErr = err
		log.Printf("[Dispatcher] %s delivery failed for campaign %s (attempt %d/%d): %v",
			c.Channel, c.ID, attempt, policy.MaxAttempts, err)
		if err := d.store.MarkFailed(writeCtx, c.ID, err.Error()); err != nil {
			log.Printf("[Dispatcher] error marking campaign %s failed: %v", c.ID, err)
		}
		d.recordEvent(writeCtx, &c.Campaign, domain.FailedEvent(c.Channel), err.Error())
	}

	// Attempts exhausted; the campaign stays failed for the reconciler.
	return lastErr
}

func (d *Dispatcher) attempt(ctx context.Context, c DueCampaign) (string, error) {
	switch c.Channel {
	case domain.ChannelSMS:
		if d.sms == nil {
			return "", fmt.Errorf("no sms sender configured")
		}
		return d.sms.SendSMS(ctx, c.ProspectPhone, c.Body)
	default:
		if d.email == nil {
			return "", fmt.Errorf("no email sender configured")
		}
		body := d.enrichEmailBody(c.Body, c.ID, c.ProspectID)
		return d.email.SendEmail(ctx, c.ProspectEmail, c.Subject, body, c.ProspectName)
	}
}

// enrichEmailBody appends the open-tracking pixel and the unsubscribe footer
// to an outgoing email body.
func (d *Dispatcher) enrichEmailBody(body, campaignID, prospectID string) string {
	pixel := fmt.Sprintf(
		`<img src="%s/track/open/%s" width="1" height="1" style="display:none;" alt="" />`,
		d.trackingBaseURL, campaignID,
	)
	unsubscribe := fmt.Sprintf(
		`<br><br><center><p style="font-size:12px;color:#666;"><a href="%s/unsubscribe/%s" style="color:#666;">Unsubscribe</a></p></center>`,
		d.trackingBaseURL, prospectID,
	)
	return body + pixel + unsubscribe
}

func (d *Dispatcher) recordEvent(ctx context.Context, c *domain.Campaign, kind domain.EventKind, metadata string) {
	e := &domain.EngagementEvent{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		ProspectID: c.ProspectID,
		Kind:       kind,
		OccurredAt: d.now(),
		Metadata:   metadata,
		Cost:       c.CostIncurred,
	}
	if err := d.events.Append(ctx, e); err != nil {
		log.Printf("[Dispatcher] error recording %s event for campaign %s: %v", kind, c.ID, err)
	}
}
