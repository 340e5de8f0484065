package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/domain"
)

// =============================================================================
// TEST FAKES
// =============================================================================

type fakeStore struct {
	mu            sync.Mutex
	due           []DueCampaign
	sent          map[string]string // campaign id -> message id
	failed        map[string]string // campaign id -> last error
	retries       map[string]time.Time
	noRetry       map[string]bool
	failQ         []domain.Campaign
	stuck         []domain.Campaign
	recoverBefore time.Time
}

func newFakeStore(due ...DueCampaign) *fakeStore {
	return &fakeStore{
		due:     due,
		sent:    make(map[string]string),
		failed:  make(map[string]string),
		retries: make(map[string]time.Time),
		noRetry: make(map[string]bool),
	}
}

func (f *fakeStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]DueCampaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claimed := f.due
	if len(claimed) > limit {
		claimed = claimed[:limit]
	}
	f.due = f.due[len(claimed):]
	return claimed, nil
}

func (f *fakeStore) MarkSent(ctx context.Context, id, messageID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = messageID
	delete(f.failed, id)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	return nil
}

func (f *fakeStore) FindFailedForRetry(ctx context.Context) ([]domain.Campaign, error) {
	return f.failQ, nil
}

func (f *fakeStore) RecoverStuck(ctx context.Context, before time.Time) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recoverBefore = before
	requeued, exhausted := 0, 0
	for i := range f.stuck {
		if f.stuck[i].RetryCount < domain.MaxRetryCount {
			f.stuck[i].Status = domain.CampaignScheduled
			f.stuck[i].RetryCount++
			requeued++
		} else {
			f.stuck[i].Status = domain.CampaignFailed
			exhausted++
		}
	}
	return requeued, exhausted, nil
}

func (f *fakeStore) ScheduleRetry(ctx context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noRetry[id] {
		return false, nil
	}
	f.retries[id] = at
	return true, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*domain.EngagementEvent
}

func (f *fakeEvents) Append(ctx context.Context, e *domain.EngagementEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEvents) count(kind domain.EventKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type fakeEmailSender struct {
	mu       sync.Mutex
	failures int // fail this many leading attempts
	calls    int
	bodies   []string
	subjects []string
}

func (f *fakeEmailSender) SendEmail(ctx context.Context, to, subject, htmlBody, recipientName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.bodies = append(f.bodies, htmlBody)
	f.subjects = append(f.subjects, subject)
	if f.calls <= f.failures {
		return "", fmt.Errorf("smtp 421 try again")
	}
	return fmt.Sprintf("msg-%d", f.calls), nil
}

type fakeSMSSender struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSMSSender) SendSMS(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "sms-1", nil
}

// =============================================================================
// FIXTURE
// =============================================================================

func dueEmail(id, prospectID string) DueCampaign {
	return DueCampaign{
		Campaign: domain.Campaign{
			ID:           id,
			ProspectID:   prospectID,
			Channel:      domain.ChannelEmail,
			Status:       domain.CampaignSending,
			Subject:      "Come back",
			Body:         "<p>Hi Ann</p>",
			CostIncurred: 0.50,
			CampaignWeek: 1,
		},
		ProspectName:  "Ann Example",
		ProspectEmail: "ann@example.com",
	}
}

func dueSMS(id, prospectID string) DueCampaign {
	return DueCampaign{
		Campaign: domain.Campaign{
			ID:           id,
			ProspectID:   prospectID,
			Channel:      domain.ChannelSMS,
			Status:       domain.CampaignSending,
			Body:         "Finish your registration",
			CostIncurred: 3.00,
			CampaignWeek: 2,
		},
		ProspectName:  "Ann Example",
		ProspectPhone: "+919876543210",
	}
}

func newTestDispatcher(store *fakeStore, events *fakeEvents, email EmailSender, sms SMSSender) *Dispatcher {
	d := NewDispatcher(store, events, email, sms,
		config.RetargetingConfig{DispatchWorkers: 4, DispatchBatchSize: 100},
		config.TrackingConfig{BaseURL: "https://regabilling.com/api"})
	// Immediate retries keep tests fast.
	d.SetRetryPolicies(
		RetryPolicy{MaxAttempts: 3, Delays: []time.Duration{0, 0}},
		RetryPolicy{MaxAttempts: 3, Delays: []time.Duration{0, 0}},
	)
	return d
}

// =============================================================================
// TESTS
// =============================================================================

func TestDispatchDueSendsEmail(t *testing.T) {
	store := newFakeStore(dueEmail("c-1", "p-1"))
	events := &fakeEvents{}
	email := &fakeEmailSender{}

	d := newTestDispatcher(store, events, email, &fakeSMSSender{})
	sum, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Claimed != 1 || sum.Sent != 1 || sum.Failed != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if store.sent["c-1"] != "msg-1" {
		t.Errorf("expected campaign marked sent with message id, got %q", store.sent["c-1"])
	}
	if events.count(domain.EventEmailSent) != 1 {
		t.Errorf("expected one sent event, got %d", events.count(domain.EventEmailSent))
	}
}

func TestDispatchEnrichesEmailBody(t *testing.T) {
	store := newFakeStore(dueEmail("c-1", "p-1"))
	email := &fakeEmailSender{}

	d := newTestDispatcher(store, &fakeEvents{}, email, &fakeSMSSender{})
	if _, err := d.DispatchDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := email.bodies[0]
	if !strings.Contains(body, `<img src="https://regabilling.com/api/track/open/c-1"`) {
		t.Errorf("expected tracking pixel in body, got %q", body)
	}
	if !strings.Contains(body, "https://regabilling.com/api/unsubscribe/p-1") {
		t.Errorf("expected unsubscribe link in body, got %q", body)
	}
	if !strings.HasPrefix(body, "<p>Hi Ann</p>") {
		t.Errorf("expected original body preserved, got %q", body)
	}
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	store := newFakeStore(dueEmail("c-1", "p-1"))
	events := &fakeEvents{}
	email := &fakeEmailSender{failures: 2}

	d := newTestDispatcher(store, events, email, &fakeSMSSender{})
	sum, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Sent != 1 || sum.Failed != 0 {
		t.Errorf("expected eventual success, got %+v", sum)
	}
	if email.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", email.calls)
	}
	// Both failed attempts were recorded before the success overwrote them.
	if events.count(domain.EventEmailFailed) != 2 {
		t.Errorf("expected 2 failed events, got %d", events.count(domain.EventEmailFailed))
	}
	if _, stillFailed := store.failed["c-1"]; stillFailed {
		t.Error("success must clear the failed state")
	}
	if store.sent["c-1"] == "" {
		t.Error("expected campaign marked sent")
	}
}

func TestDispatchExhaustsAttempts(t *testing.T) {
	store := newFakeStore(dueEmail("c-1", "p-1"))
	events := &fakeEvents{}
	email := &fakeEmailSender{failures: 99}

	d := newTestDispatcher(store, events, email, &fakeSMSSender{})
	sum, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Failed != 1 || sum.Sent != 0 {
		t.Errorf("expected failure after exhausted attempts, got %+v", sum)
	}
	if email.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", email.calls)
	}
	if store.failed["c-1"] == "" {
		t.Error("expected campaign left in failed state for the reconciler")
	}
	if events.count(domain.EventEmailFailed) != 3 {
		t.Errorf("expected 3 failed events, got %d", events.count(domain.EventEmailFailed))
	}
}

func TestDispatchRoutesSMS(t *testing.T) {
	store := newFakeStore(dueSMS("c-2", "p-1"))
	events := &fakeEvents{}
	sms := &fakeSMSSender{}

	d := newTestDispatcher(store, events, &fakeEmailSender{}, sms)
	sum, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Sent != 1 {
		t.Errorf("expected sms sent, got %+v", sum)
	}
	if sms.calls != 1 {
		t.Errorf("expected 1 sms call, got %d", sms.calls)
	}
	if events.count(domain.EventSMSSent) != 1 {
		t.Errorf("expected sms sent event, got %d", events.count(domain.EventSMSSent))
	}
}

func TestDispatchConcurrentBatch(t *testing.T) {
	var due []DueCampaign
	for i := 0; i < 25; i++ {
		due = append(due, dueEmail(fmt.Sprintf("c-%d", i), fmt.Sprintf("p-%d", i)))
	}
	store := newFakeStore(due...)
	email := &fakeEmailSender{}

	d := newTestDispatcher(store, &fakeEvents{}, email, &fakeSMSSender{})
	sum, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Claimed != 25 || sum.Sent != 25 {
		t.Errorf("expected all 25 delivered, got %+v", sum)
	}
	if len(store.sent) != 25 {
		t.Errorf("expected 25 campaigns marked sent, got %d", len(store.sent))
	}
}

// ctxSender fails whenever the pass context is already dead, the way a real
// provider call does once its deadline fires.
type ctxSender struct{}

func (ctxSender) SendEmail(ctx context.Context, to, subject, htmlBody, recipientName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "msg-1", nil
}

func TestDispatchDeadContextStillRecordsFailure(t *testing.T) {
	store := newFakeStore(dueEmail("c-1", "p-1"))
	events := &fakeEvents{}

	d := newTestDispatcher(store, events, ctxSender{}, &fakeSMSSender{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := d.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Failed != 1 {
		t.Errorf("expected claimed campaign counted failed, got %+v", sum)
	}
	// The claim must not be stranded in sending: the failure write goes
	// through even though the pass context is dead.
	if store.failed["c-1"] == "" {
		t.Error("expected campaign marked failed despite dead pass context")
	}
	if events.count(domain.EventEmailFailed) == 0 {
		t.Error("expected failed event recorded despite dead pass context")
	}
}

func TestDispatchEmptyPass(t *testing.T) {
	store := newFakeStore()

	d := newTestDispatcher(store, &fakeEvents{}, &fakeEmailSender{}, &fakeSMSSender{})
	sum, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Claimed != 0 || sum.Sent != 0 || sum.Failed != 0 {
		t.Errorf("expected empty summary, got %+v", sum)
	}
}
