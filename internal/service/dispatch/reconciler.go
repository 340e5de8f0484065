package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/regabilling/retarget/internal/config"
)

// ReconcileSummary is the explicit result of one reconciliation pass.
type ReconcileSummary struct {
	Recovered   int `json:"recovered"`
	Examined    int `json:"examined"`
	Rescheduled int `json:"rescheduled"`
	Exhausted   int `json:"exhausted"`
}

// Reconciler sweeps failed campaigns back into the scheduled state so the
// next dispatch pass retries them, and reclaims campaigns a crashed pass
// left stranded in sending status. Campaigns that have used up their retry
// budget are left failed.
type Reconciler struct {
	store      CampaignStore
	retryDelay time.Duration
	stuckAge   time.Duration
	now        func() time.Time
}

func NewReconciler(store CampaignStore, cfg config.RetargetingConfig) *Reconciler {
	// A healthy pass can hold claims for a full dispatch interval of
	// in-task backoff; twice that means the claiming pass is gone.
	stuckAge := 2 * cfg.DispatchInterval()
	if stuckAge <= 0 {
		stuckAge = 30 * time.Minute
	}
	return &Reconciler{
		store:      store,
		retryDelay: cfg.RetryDelay(),
		stuckAge:   stuckAge,
		now:        time.Now,
	}
}

// ReprocessFailed first reclaims stuck sending campaigns, then reschedules
// every retryable failed campaign for retryDelay from now. The reschedule is
// conditional on the campaign still being failed with retries remaining, so
// a concurrent pass cannot double-count.
func (r *Reconciler) ReprocessFailed(ctx context.Context) (*ReconcileSummary, error) {
	sum := &ReconcileSummary{}

	requeued, stuckDead, err := r.store.RecoverStuck(ctx, r.now().Add(-r.stuckAge))
	if err != nil {
		return sum, fmt.Errorf("recover stuck campaigns: %w", err)
	}
	sum.Recovered = requeued
	sum.Exhausted += stuckDead
	if requeued > 0 || stuckDead > 0 {
		log.Printf("[Reconciler] recovered %d stuck campaigns (%d exhausted)", requeued, stuckDead)
	}

	failed, err := r.store.FindFailedForRetry(ctx)
	if err != nil {
		return sum, fmt.Errorf("find failed campaigns: %w", err)
	}
	if len(failed) == 0 {
		return sum, nil
	}
	sum.Examined = len(failed)
	log.Printf("[Reconciler] reprocessing %d failed campaigns", len(failed))

	retryAt := r.now().Add(r.retryDelay)
	for _, c := range failed {
		ok, err := r.store.ScheduleRetry(ctx, c.ID, retryAt)
		if err != nil {
			log.Printf("[Reconciler] error rescheduling campaign %s: %v", c.ID, err)
			continue
		}
		if ok {
			sum.Rescheduled++
		} else {
			sum.Exhausted++
		}
	}

	log.Printf("[Reconciler] pass complete: recovered=%d examined=%d rescheduled=%d exhausted=%d",
		sum.Recovered, sum.Examined, sum.Rescheduled, sum.Exhausted)
	return sum, nil
}
