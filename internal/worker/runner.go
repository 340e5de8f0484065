// Package worker runs the periodic retargeting triggers: the weekly
// scheduling pass, the dispatch ticker, the reconciliation sweep, and the
// daily health probe. Every trigger is plain config data; the loops only
// read intervals and fire times from the retargeting config.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/regabilling/retarget/internal/api"
	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/pkg/distlock"
	"github.com/regabilling/retarget/internal/service/dispatch"
	"github.com/regabilling/retarget/internal/service/retarget"
)

// SchedulerService runs one scheduling pass.
type SchedulerService interface {
	SchedulePass(ctx context.Context) (*retarget.PassSummary, error)
}

// DispatcherService runs one delivery pass.
type DispatcherService interface {
	DispatchDue(ctx context.Context) (*dispatch.DispatchSummary, error)
}

// ReconcilerService runs one failed-campaign sweep.
type ReconcilerService interface {
	ReprocessFailed(ctx context.Context) (*dispatch.ReconcileSummary, error)
}

// Runner owns the trigger loops. Passes are guarded by distributed locks so
// multiple runner instances never double-run the same pass.
type Runner struct {
	db          *sql.DB
	redisClient *redis.Client
	workerID    string

	scheduler  SchedulerService
	dispatcher DispatcherService
	reconciler ReconcilerService

	cfg             config.RetargetingConfig
	loc             *time.Location
	scheduleWeekday time.Weekday

	// Stats
	schedulePasses   int64
	dispatchPasses   int64
	reconcilePasses  int64
	campaignsCreated int64
	messagesSent     int64
	messagesFailed   int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewRunner creates a trigger runner. The redis client is optional; without
// it pass locks fall back to Postgres advisory locks.
func NewRunner(db *sql.DB, scheduler SchedulerService, dispatcher DispatcherService, reconciler ReconcilerService, cfg config.RetargetingConfig) *Runner {
	hostname, _ := os.Hostname()
	loc, err := cfg.Location()
	if err != nil {
		log.Printf("[Runner] %v, falling back to UTC", err)
		loc = time.UTC
	}
	return &Runner{
		db:              db,
		workerID:        fmt.Sprintf("retarget-%s-%d", hostname, time.Now().UnixNano()%10000),
		scheduler:       scheduler,
		dispatcher:      dispatcher,
		reconciler:      reconciler,
		cfg:             cfg,
		loc:             loc,
		scheduleWeekday: retarget.ParseWeekday(cfg.ScheduleWeekday),
	}
}

// SetRedisClient switches pass locking to Redis.
func (r *Runner) SetRedisClient(client *redis.Client) {
	r.redisClient = client
}

// Start launches the trigger loops.
func (r *Runner) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	if !r.cfg.Enabled {
		log.Printf("[Runner] retargeting disabled, trigger loops not started")
		return nil
	}

	log.Printf("[Runner] %s starting: weekly=%s %02d:%02d dispatch=%v reconcile=%v health=%02d:00",
		r.workerID, r.cfg.ScheduleWeekday, r.cfg.ScheduleHour, r.cfg.ScheduleMinute,
		r.cfg.DispatchInterval(), r.cfg.ReconcileInterval(), r.cfg.HealthCheckHour)

	r.wg.Add(4)
	go r.weeklyLoop()
	go r.dispatchLoop()
	go r.reconcileLoop()
	go r.healthLoop()

	return nil
}

// Stop shuts the loops down and waits for in-flight passes.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	log.Printf("[Runner] stopping...")
	r.cancel()
	r.wg.Wait()
	log.Printf("[Runner] stopped. schedule_passes=%d dispatch_passes=%d reconcile_passes=%d campaigns_created=%d sent=%d failed=%d",
		atomic.LoadInt64(&r.schedulePasses), atomic.LoadInt64(&r.dispatchPasses),
		atomic.LoadInt64(&r.reconcilePasses), atomic.LoadInt64(&r.campaignsCreated),
		atomic.LoadInt64(&r.messagesSent), atomic.LoadInt64(&r.messagesFailed))
}

// weeklyLoop fires the scheduling pass at the configured weekday and time.
// A timer is recomputed after every firing instead of a fixed ticker so DST
// shifts in the campaign timezone stay aligned.
func (r *Runner) weeklyLoop() {
	defer r.wg.Done()

	for {
		next := nextWeeklyRun(time.Now(), r.scheduleWeekday, r.cfg.ScheduleHour, r.cfg.ScheduleMinute, r.loc)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.runSchedulePass()
		}
	}
}

func (r *Runner) dispatchLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.DispatchInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runDispatchPass()
		}
	}
}

func (r *Runner) reconcileLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ReconcileInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runReconcilePass()
		}
	}
}

// healthLoop logs a daily liveness line with DB status and counters.
func (r *Runner) healthLoop() {
	defer r.wg.Done()

	for {
		next := nextDailyRun(time.Now(), r.cfg.HealthCheckHour, r.loc)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.runHealthProbe()
		}
	}
}

func (r *Runner) runSchedulePass() {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Minute)
	defer cancel()

	lock := distlock.NewLock(r.redisClient, r.db, "retargeting:schedule", 10*time.Minute)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Runner] error acquiring schedule lock: %v", err)
		return
	}
	if !ok {
		log.Printf("[Runner] schedule pass already running elsewhere, skipping")
		return
	}
	defer lock.Release(ctx)

	summary, err := r.scheduler.SchedulePass(ctx)
	if err != nil {
		log.Printf("[Runner] schedule pass failed: %v", err)
		return
	}
	atomic.AddInt64(&r.schedulePasses, 1)
	atomic.AddInt64(&r.campaignsCreated, int64(summary.CampaignsCreated))
	api.RecordCampaignsScheduled(summary.CampaignsCreated)
	log.Printf("[Runner] schedule pass: eligible=%d scheduled=%d created=%d skipped=%d abandoned=%d budget_exhausted=%v errors=%d",
		summary.Eligible, summary.Scheduled, summary.CampaignsCreated,
		summary.Skipped, summary.Abandoned, summary.BudgetExhausted, len(summary.Errors))
}

func (r *Runner) runDispatchPass() {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.DispatchInterval())
	defer cancel()

	lock := distlock.NewLock(r.redisClient, r.db, "retargeting:dispatch", r.cfg.DispatchInterval())
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Runner] error acquiring dispatch lock: %v", err)
		return
	}
	if !ok {
		return
	}
	defer lock.Release(ctx)

	summary, err := r.dispatcher.DispatchDue(ctx)
	if err != nil {
		log.Printf("[Runner] dispatch pass failed: %v", err)
		return
	}
	atomic.AddInt64(&r.dispatchPasses, 1)
	atomic.AddInt64(&r.messagesSent, int64(summary.Sent))
	atomic.AddInt64(&r.messagesFailed, int64(summary.Failed))
	api.RecordMessagesSent(summary.Sent)
	api.RecordMessagesFailed(summary.Failed)
	if summary.Claimed > 0 {
		log.Printf("[Runner] dispatch pass: claimed=%d sent=%d failed=%d",
			summary.Claimed, summary.Sent, summary.Failed)
	}
}

func (r *Runner) runReconcilePass() {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Minute)
	defer cancel()

	lock := distlock.NewLock(r.redisClient, r.db, "retargeting:reconcile", 5*time.Minute)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Runner] error acquiring reconcile lock: %v", err)
		return
	}
	if !ok {
		return
	}
	defer lock.Release(ctx)

	summary, err := r.reconciler.ReprocessFailed(ctx)
	if err != nil {
		log.Printf("[Runner] reconcile pass failed: %v", err)
		return
	}
	atomic.AddInt64(&r.reconcilePasses, 1)
	api.RecordCampaignsRescheduled(summary.Rescheduled)
	if summary.Recovered > 0 || summary.Examined > 0 {
		log.Printf("[Runner] reconcile pass: recovered=%d examined=%d rescheduled=%d exhausted=%d",
			summary.Recovered, summary.Examined, summary.Rescheduled, summary.Exhausted)
	}
}

func (r *Runner) runHealthProbe() {
	ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
	defer cancel()

	dbStatus := "ok"
	if err := r.db.PingContext(ctx); err != nil {
		dbStatus = fmt.Sprintf("unreachable: %v", err)
	}

	log.Printf("[Runner] daily health: db=%s schedule_passes=%d dispatch_passes=%d reconcile_passes=%d campaigns_created=%d sent=%d failed=%d",
		dbStatus,
		atomic.LoadInt64(&r.schedulePasses), atomic.LoadInt64(&r.dispatchPasses),
		atomic.LoadInt64(&r.reconcilePasses), atomic.LoadInt64(&r.campaignsCreated),
		atomic.LoadInt64(&r.messagesSent), atomic.LoadInt64(&r.messagesFailed))
}

// nextWeeklyRun returns the next scheduling-pass fire time after from, in the
// campaign timezone.
func nextWeeklyRun(from time.Time, weekday time.Weekday, hour, minute int, loc *time.Location) time.Time {
	local := from.In(loc)

	daysAhead := (int(weekday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+daysAhead,
		hour, minute, 0, 0, loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// nextDailyRun returns the next health-probe fire time after from.
func nextDailyRun(from time.Time, hour int, loc *time.Location) time.Time {
	local := from.In(loc)

	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
