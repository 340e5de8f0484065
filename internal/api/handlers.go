// Package api exposes the operational HTTP surface: manual pass triggers,
// health, and Prometheus metrics.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/regabilling/retarget/internal/pkg/httputil"
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

// Handlers carries the service dependencies for the API routes.
type Handlers struct {
	db         *sql.DB
	scheduler  SchedulerService
	dispatcher DispatcherService
	reconciler ReconcilerService
}

func NewHandlers(db *sql.DB, scheduler SchedulerService, dispatcher DispatcherService, reconciler ReconcilerService) *Handlers {
	return &Handlers{
		db:         db,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		reconciler: reconciler,
	}
}

// HealthCheck reports process and database health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			dbStatus = "unreachable"
		}
	}

	httputil.OK(w, map[string]string{
		"status":   "ok",
		"database": dbStatus,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

// TriggerSchedule runs a scheduling pass on demand and returns its summary.
func (h *Handlers) TriggerSchedule(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.SchedulePass(r.Context())
	if err != nil {
		log.Printf("[API] scheduling pass failed: %v", err)
		httputil.InternalError(w, errors.New("scheduling pass failed"))
		return
	}
	RecordCampaignsScheduled(summary.CampaignsCreated)
	httputil.OK(w, summary)
}

// TriggerExecuteDue runs a delivery pass on demand and returns its summary.
func (h *Handlers) TriggerExecuteDue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dispatcher.DispatchDue(r.Context())
	if err != nil {
		log.Printf("[API] delivery pass failed: %v", err)
		httputil.InternalError(w, errors.New("delivery pass failed"))
		return
	}
	RecordMessagesSent(summary.Sent)
	RecordMessagesFailed(summary.Failed)
	httputil.OK(w, summary)
}

// TriggerReprocessFailed runs a reconciliation sweep on demand and returns
// its summary.
func (h *Handlers) TriggerReprocessFailed(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reconciler.ReprocessFailed(r.Context())
	if err != nil {
		log.Printf("[API] reconciliation pass failed: %v", err)
		httputil.InternalError(w, errors.New("reconciliation pass failed"))
		return
	}
	RecordCampaignsRescheduled(summary.Rescheduled)
	httputil.OK(w, summary)
}
