package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/regabilling/retarget/internal/api"
	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/repository/postgres"
	"github.com/regabilling/retarget/internal/sender"
	"github.com/regabilling/retarget/internal/service/dispatch"
	"github.com/regabilling/retarget/internal/service/retarget"
	"github.com/regabilling/retarget/internal/tracking"
)

func main() {
	log.Println("Starting retargeting server...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	loc, err := cfg.Retargeting.Location()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Repositories
	prospects := postgres.NewProspectRepo(db)
	campaigns := postgres.NewCampaignRepo(db)
	templates := postgres.NewTemplateRepo(db)
	events := postgres.NewEventRepo(db)

	// Services
	cadence := retarget.NewCadence(cfg.Retargeting.Cadence, loc)
	budget := retarget.NewBudget(campaigns, cfg.Retargeting.MaxWeeklySpend, cadence)
	scheduler := retarget.NewScheduler(prospects, campaigns, templates, events, budget, cadence, cfg.Retargeting)
	tracker := retarget.NewTracker(campaigns, prospects, events)

	emailSender, err := buildEmailSender(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize email sender: %v", err)
	}
	smsSender := sender.NewSMSSender(cfg.SMS)

	dispatcher := dispatch.NewDispatcher(campaigns, events, emailSender, smsSender, cfg.Retargeting, cfg.Tracking)
	reconciler := dispatch.NewReconciler(campaigns, cfg.Retargeting)

	// HTTP surface
	handlers := api.NewHandlers(db, scheduler, dispatcher, reconciler)
	trackingHandler := tracking.NewHandler(tracker, prospects, cfg.Tracking)
	router := api.SetupRoutes(handlers, trackingHandler.Routes())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func buildEmailSender(cfg *config.Config) (dispatch.EmailSender, error) {
	switch cfg.Email.Provider {
	case "ses":
		return sender.NewSESSender(context.Background(), cfg.Email)
	default:
		return sender.NewSMTPSender(cfg.Email), nil
	}
}
