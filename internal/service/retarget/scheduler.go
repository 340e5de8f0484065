package retarget

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/domain"
	"github.com/regabilling/retarget/internal/pkg/logger"
)

// PassSummary is the explicit result of one scheduling pass. Soft skips
// (budget, missing template, already-scheduled week) are counted, per-prospect
// failures are collected, and neither aborts the batch.
type PassSummary struct {
	Eligible         int      `json:"eligible"`
	Scheduled        int      `json:"scheduled"`
	CampaignsCreated int      `json:"campaigns_created"`
	Skipped          int      `json:"skipped"`
	Abandoned        int      `json:"abandoned"`
	BudgetExhausted  bool     `json:"budget_exhausted"`
	Errors           []string `json:"errors,omitempty"`
}

// Scheduler selects eligible prospects and creates their next drip week's
// campaigns. Safe for concurrent use if the repositories are.
type Scheduler struct {
	prospects ProspectRepository
	campaigns CampaignRepository
	templates TemplateRepository
	events    EventRepository
	budget    *Budget
	cadence   Cadence

	emailCost float64
	smsCost   float64
	cutoff    time.Duration

	now func() time.Time
}

// NewScheduler wires a scheduler from its collaborators and the retargeting
// policy config.
func NewScheduler(
	prospects ProspectRepository,
	campaigns CampaignRepository,
	templates TemplateRepository,
	events EventRepository,
	budget *Budget,
	cadence Cadence,
	cfg config.RetargetingConfig,
) *Scheduler {
	return &Scheduler{
		prospects: prospects,
		campaigns: campaigns,
		templates: templates,
		events:    events,
		budget:    budget,
		cadence:   cadence,
		emailCost: cfg.EmailCost,
		smsCost:   cfg.SMSCost,
		cutoff:    cfg.EligibilityCutoff(),
		now:       time.Now,
	}
}

// SchedulePass runs one scheduling pass over all eligible prospects. The
// returned summary always reflects the work committed so far, even when the
// pass stops early on budget exhaustion.
func (s *Scheduler) SchedulePass(ctx context.Context) (*PassSummary, error) {
	sum := &PassSummary{}

	ok, err := s.budget.Available(ctx)
	if err != nil {
		return sum, fmt.Errorf("budget check: %w", err)
	}
	if !ok {
		log.Printf("[Scheduler] weekly budget exhausted, skipping scheduling pass")
		sum.BudgetExhausted = true
		return sum, nil
	}

	cutoff := s.now().Add(-s.cutoff)
	prospects, err := s.prospects.FindEligible(ctx, cutoff)
	if err != nil {
		return sum, fmt.Errorf("find eligible prospects: %w", err)
	}
	sum.Eligible = len(prospects)
	log.Printf("[Scheduler] %d prospects eligible for retargeting", len(prospects))

	for i := range prospects {
		p := &prospects[i]

		created, err := s.scheduleProspect(ctx, p, sum)
		if err != nil {
			// Per-prospect failures never abort the batch.
			logger.Error("prospect scheduling failed", "prospect_id", p.ID, "email", p.Email, "err", err.Error())
			sum.Errors = append(sum.Errors, fmt.Sprintf("prospect %s: %v", p.ID, err))
			continue
		}
		if created > 0 {
			sum.Scheduled++
			sum.CampaignsCreated += created
		}

		ok, err := s.budget.Available(ctx)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("budget check: %v", err))
			continue
		}
		if !ok {
			log.Printf("[Scheduler] budget limit reached after %d prospects", sum.Scheduled)
			sum.BudgetExhausted = true
			break
		}
	}

	log.Printf("[Scheduler] pass complete: scheduled=%d campaigns=%d skipped=%d abandoned=%d errors=%d",
		sum.Scheduled, sum.CampaignsCreated, sum.Skipped, sum.Abandoned, len(sum.Errors))
	return sum, nil
}

// scheduleProspect advances one prospect to its next drip week. Returns the
// number of campaigns created (0 on any soft skip).
func (s *Scheduler) scheduleProspect(ctx context.Context, p *domain.Prospect, sum *PassSummary) (int, error) {
	nextWeek := p.RetargetingWeek + 1

	if nextWeek > domain.MaxRetargetingWeek {
		// Terminal transition, not a failure: the drip sequence is over.
		p.Status = domain.ProspectAbandoned
		if err := s.prospects.Update(ctx, p); err != nil {
			return 0, fmt.Errorf("mark abandoned: %w", err)
		}
		sum.Abandoned++
		return 0, nil
	}

	existing, err := s.campaigns.CountByProspectAndWeek(ctx, p.ID, nextWeek)
	if err != nil {
		return 0, fmt.Errorf("count existing campaigns: %w", err)
	}
	if existing > 0 {
		sum.Skipped++
		return 0, nil
	}

	sendAt := s.cadence.NextSendTime(nextWeek, s.now())

	created := 0
	if ok, err := s.scheduleChannel(ctx, p, domain.ChannelEmail, nextWeek, sendAt); err != nil {
		return created, err
	} else if ok {
		created++
	}

	// SMS rides along on weeks 2 and 4, five minutes after the email.
	if nextWeek == 2 || nextWeek == 4 {
		if ok, err := s.scheduleChannel(ctx, p, domain.ChannelSMS, nextWeek, sendAt.Add(5*time.Minute)); err != nil {
			return created, err
		} else if ok {
			created++
		}
	}

	if created > 0 {
		now := s.now()
		p.RetargetingWeek = nextWeek
		p.LastRetargetingSent = &now
		if err := s.prospects.Update(ctx, p); err != nil {
			return created, fmt.Errorf("advance retargeting week: %w", err)
		}
		logger.Info("campaigns scheduled", "prospect_id", p.ID, "email", p.Email, "week", nextWeek)
	}

	return created, nil
}

// scheduleChannel creates one campaign for the channel if an active template
// exists. A missing template is a logged soft skip, not an error.
func (s *Scheduler) scheduleChannel(ctx context.Context, p *domain.Prospect, ch domain.Channel, week int, sendAt time.Time) (bool, error) {
	tmpl, err := s.templates.FindActive(ctx, ch, week)
	if err == ErrTemplateNotFound {
		log.Printf("[Scheduler] no active %s template for week %d", ch, week)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find %s template: %w", ch, err)
	}

	now := s.now()
	c := &domain.Campaign{
		ID:           uuid.New().String(),
		ProspectID:   p.ID,
		Channel:      ch,
		Status:       domain.CampaignScheduled,
		Body:         Personalize(tmpl.Body, p, now),
		ScheduledAt:  sendAt,
		CostIncurred: s.channelCost(ch),
		CampaignWeek: week,
		CreatedAt:    now,
	}
	if ch == domain.ChannelEmail {
		c.Subject = Personalize(tmpl.SubjectLine, p, now)
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		return false, fmt.Errorf("create %s campaign: %w", ch, err)
	}

	s.recordEvent(ctx, c, domain.ScheduledEvent(ch), "")
	return true, nil
}

func (s *Scheduler) channelCost(ch domain.Channel) float64 {
	if ch == domain.ChannelSMS {
		return s.smsCost
	}
	return s.emailCost
}

// recordEvent appends an engagement event. Event log failures are logged and
// swallowed: the audit trail must never fail the scheduling work itself.
func (s *Scheduler) recordEvent(ctx context.Context, c *domain.Campaign, kind domain.EventKind, metadata string) {
	e := &domain.EngagementEvent{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		ProspectID: c.ProspectID,
		Kind:       kind,
		OccurredAt: s.now(),
		Metadata:   metadata,
		Cost:       c.CostIncurred,
	}
	if err := s.events.Append(ctx, e); err != nil {
		log.Printf("[Scheduler] error recording %s event for campaign %s: %v", kind, c.ID, err)
	}
}
