package retarget

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/regabilling/retarget/internal/domain"
)

// Tracker records engagement events (opens, clicks, unsubscribes) and updates
// campaign and prospect state accordingly.
//
// Open and click recording is best-effort: an unknown campaign id is a silent
// no-op so the public tracking endpoints never leak whether an id exists.
type Tracker struct {
	campaigns CampaignRepository
	prospects ProspectRepository
	events    EventRepository
	now       func() time.Time
}

// NewTracker creates an engagement tracker.
func NewTracker(campaigns CampaignRepository, prospects ProspectRepository, events EventRepository) *Tracker {
	return &Tracker{campaigns: campaigns, prospects: prospects, events: events, now: time.Now}
}

// RecordOpen marks a campaign opened and logs the event with the caller's
// user agent and IP. Repeated opens overwrite status and timestamp; the event
// log keeps every occurrence.
func (t *Tracker) RecordOpen(ctx context.Context, campaignID, userAgent, ip string) error {
	c, err := t.campaigns.Get(ctx, campaignID)
	if errors.Is(err, ErrCampaignNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}

	now := t.now()
	if err := t.campaigns.MarkOpened(ctx, c.ID, now); err != nil {
		return fmt.Errorf("mark opened: %w", err)
	}

	t.append(ctx, c, domain.EventEmailOpened, fmt.Sprintf("user_agent=%s,ip=%s", userAgent, ip))
	log.Printf("[Tracker] open recorded for campaign %s", campaignID)
	return nil
}

// RecordClick marks a campaign clicked and logs the clicked URL.
func (t *Tracker) RecordClick(ctx context.Context, campaignID, url string) error {
	c, err := t.campaigns.Get(ctx, campaignID)
	if errors.Is(err, ErrCampaignNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}

	now := t.now()
	if err := t.campaigns.MarkClicked(ctx, c.ID, now); err != nil {
		return fmt.Errorf("mark clicked: %w", err)
	}

	t.append(ctx, c, domain.EventEmailClicked, fmt.Sprintf("clicked_url=%s", url))
	log.Printf("[Tracker] click recorded for campaign %s", campaignID)
	return nil
}

// Unsubscribe permanently opts a prospect out of all future retargeting.
// Returns ErrProspectNotFound for unknown ids so the confirm endpoint can
// reject invalid links.
func (t *Tracker) Unsubscribe(ctx context.Context, prospectID string) error {
	p, err := t.prospects.Get(ctx, prospectID)
	if err != nil {
		return err
	}
	if p.IsUnsubscribed() {
		return nil
	}

	now := t.now()
	if err := t.prospects.MarkUnsubscribed(ctx, p.ID, now); err != nil {
		return fmt.Errorf("mark unsubscribed: %w", err)
	}

	e := &domain.EngagementEvent{
		ID:         uuid.New().String(),
		ProspectID: p.ID,
		Kind:       domain.EventUnsubscribed,
		OccurredAt: now,
	}
	if err := t.events.Append(ctx, e); err != nil {
		log.Printf("[Tracker] error recording unsubscribe event for prospect %s: %v", p.ID, err)
	}

	log.Printf("[Tracker] prospect %s unsubscribed", prospectID)
	return nil
}

func (t *Tracker) append(ctx context.Context, c *domain.Campaign, kind domain.EventKind, metadata string) {
	e := &domain.EngagementEvent{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		ProspectID: c.ProspectID,
		Kind:       kind,
		OccurredAt: t.now(),
		Metadata:   metadata,
		Cost:       c.CostIncurred,
	}
	if err := t.events.Append(ctx, e); err != nil {
		log.Printf("[Tracker] error recording %s event for campaign %s: %v", kind, c.ID, err)
	}
}
