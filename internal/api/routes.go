package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures the operational API. The tracking routes (pixel,
// click, unsubscribe) are mounted separately because they are public and
// must never require auth headers.
func SetupRoutes(h *Handlers, tracking chi.Router) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(Metrics)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://regabilling.com"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/retargeting", func(r chi.Router) {
			r.Post("/schedule", h.TriggerSchedule)
			r.Post("/execute-due", h.TriggerExecuteDue)
			r.Post("/reprocess-failed", h.TriggerReprocessFailed)
		})
		if tracking != nil {
			r.Mount("/", tracking)
		}
	})

	return r
}
