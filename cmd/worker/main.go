package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/repository/postgres"
	"github.com/regabilling/retarget/internal/sender"
	"github.com/regabilling/retarget/internal/service/dispatch"
	"github.com/regabilling/retarget/internal/service/retarget"
	"github.com/regabilling/retarget/internal/worker"
)

func main() {
	log.Println("Starting retargeting worker...")

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

	prospects := postgres.NewProspectRepo(db)
	campaigns := postgres.NewCampaignRepo(db)
	templates := postgres.NewTemplateRepo(db)
	events := postgres.NewEventRepo(db)

	cadence := retarget.NewCadence(cfg.Retargeting.Cadence, loc)
	budget := retarget.NewBudget(campaigns, cfg.Retargeting.MaxWeeklySpend, cadence)
	scheduler := retarget.NewScheduler(prospects, campaigns, templates, events, budget, cadence, cfg.Retargeting)

	emailSender, err := buildEmailSender(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize email sender: %v", err)
	}
	smsSender := sender.NewSMSSender(cfg.SMS)

	dispatcher := dispatch.NewDispatcher(campaigns, events, emailSender, smsSender, cfg.Retargeting, cfg.Tracking)
	reconciler := dispatch.NewReconciler(campaigns, cfg.Retargeting)

	runner := worker.NewRunner(db, scheduler, dispatcher, reconciler, cfg.Retargeting)
	if redisClient := connectRedis(cfg.Redis.URL); redisClient != nil {
		defer redisClient.Close()
		runner.SetRedisClient(redisClient)
		log.Println("Redis connected (distributed locking enabled)")
	} else {
		log.Println("Redis not configured, using PG advisory locks")
	}

	if err := runner.Start(); err != nil {
		log.Fatalf("Failed to start runner: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	runner.Stop()
	log.Println("Worker stopped")
}

func buildEmailSender(cfg *config.Config) (dispatch.EmailSender, error) {
	switch cfg.Email.Provider {
	case "ses":
		return sender.NewSESSender(context.Background(), cfg.Email)
	default:
		return sender.NewSMTPSender(cfg.Email), nil
	}
}

// connectRedis parses the configured Redis URL, falling back to treating it
// as a bare address. Returns nil when Redis is unreachable so the runner
// degrades to advisory locks.
func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}

	opts, err := redis.ParseURL(url)
	var client *redis.Client
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed (%s): %v", url, err)
		client.Close()
		return nil
	}
	return client
}
