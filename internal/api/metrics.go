package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	campaignsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retargeting_campaigns_scheduled_total",
			Help: "Total number of campaigns created by scheduling passes",
		},
	)

	messagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retargeting_messages_sent_total",
			Help: "Total number of messages delivered",
		},
	)

	messagesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retargeting_messages_failed_total",
			Help: "Total number of messages that exhausted their send attempts",
		},
	)

	campaignsRescheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retargeting_campaigns_rescheduled_total",
			Help: "Total number of failed campaigns requeued by reconciliation",
		},
	)

	unsubscribes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retargeting_unsubscribes_total",
			Help: "Total number of prospects unsubscribed",
		},
	)
)

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Metrics records request counts and latencies for every route.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.statusCode)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

func RecordCampaignsScheduled(n int) {
	campaignsScheduled.Add(float64(n))
}

func RecordMessagesSent(n int) {
	messagesSent.Add(float64(n))
}

func RecordMessagesFailed(n int) {
	messagesFailed.Add(float64(n))
}

func RecordCampaignsRescheduled(n int) {
	campaignsRescheduled.Add(float64(n))
}

func RecordUnsubscribe() {
	unsubscribes.Inc()
}
