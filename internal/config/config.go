package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine. It is assembled once at
// startup and passed explicitly to each component; nothing mutates it after
// Load returns.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Retargeting RetargetingConfig `yaml:"retargeting"`
	Email       EmailConfig       `yaml:"email"`
	SMS         SMSConfig         `yaml:"sms"`
	Tracking    TrackingConfig    `yaml:"tracking"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection for distributed locking.
// When URL is empty the engine falls back to PostgreSQL advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// CadenceRule describes when a given drip week's messages go out. Trigger
// definitions are data, not code: the scheduler resolves the next occurrence
// of the rule's weekday/hour in the business time zone.
type CadenceRule struct {
	Week    int    `yaml:"week"`
	Weekday string `yaml:"weekday"`
	Hour    int    `yaml:"hour"`
}

// RetargetingConfig holds the campaign scheduling policy: budget cap,
// per-channel costs, cadence rules, and trigger intervals.
type RetargetingConfig struct {
	Enabled bool `yaml:"enabled"`

	MaxWeeklySpend float64 `yaml:"max_weekly_spend"`
	EmailCost      float64 `yaml:"email_cost"`
	SMSCost        float64 `yaml:"sms_cost"`

	// TimeZone is the business operating zone used for cadence math and the
	// Monday-00:00 budget window.
	TimeZone string `yaml:"time_zone"`

	Cadence []CadenceRule `yaml:"cadence"`

	// Weekly scheduling trigger (local time in TimeZone).
	ScheduleWeekday string `yaml:"schedule_weekday"`
	ScheduleHour    int    `yaml:"schedule_hour"`
	ScheduleMinute  int    `yaml:"schedule_minute"`

	DispatchIntervalSeconds  int `yaml:"dispatch_interval_seconds"`
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	HealthCheckHour          int `yaml:"health_check_hour"`

	// Dispatch pool sizing and retry delay for reconciled campaigns.
	DispatchWorkers        int `yaml:"dispatch_workers"`
	DispatchBatchSize      int `yaml:"dispatch_batch_size"`
	RetryDelayMinutes      int `yaml:"retry_delay_minutes"`
	EligibilityCutoffHours int `yaml:"eligibility_cutoff_hours"`
}

// DispatchInterval returns the dispatch trigger interval as a duration.
func (c RetargetingConfig) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalSeconds) * time.Second
}

// ReconcileInterval returns the reconciliation trigger interval as a duration.
func (c RetargetingConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// RetryDelay returns how far in the future a reconciled campaign is
// rescheduled.
func (c RetargetingConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMinutes) * time.Minute
}

// EligibilityCutoff returns the minimum prospect age for retargeting.
func (c RetargetingConfig) EligibilityCutoff() time.Duration {
	return time.Duration(c.EligibilityCutoffHours) * time.Hour
}

// Location resolves the configured business time zone.
func (c RetargetingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid retargeting time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// EmailConfig holds email delivery settings. Provider selects the sender
// implementation: "smtp" (default) or "ses".
type EmailConfig struct {
	Provider  string `yaml:"provider"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`

	SESRegion string `yaml:"ses_region"`
}

// SMSConfig holds the SMS provider API settings.
type SMSConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	From           string `yaml:"from"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the SMS client timeout as a duration.
func (c SMSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TrackingConfig holds the public URLs embedded into outgoing email bodies.
type TrackingConfig struct {
	BaseURL            string `yaml:"base_url"`
	DefaultRedirectURL string `yaml:"default_redirect_url"`
}

// Load reads and parses the configuration file. Defaults are populated
// before unmarshalling, so the file only overrides the keys it actually
// sets and explicit zero values (like a midnight trigger hour) survive.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Retargeting: RetargetingConfig{
			MaxWeeklySpend: 5000.0,
			EmailCost:      0.50,
			SMSCost:        3.00,
			TimeZone:       "Asia/Kolkata",
			Cadence: []CadenceRule{
				{Week: 1, Weekday: "Monday", Hour: 11},
				{Week: 2, Weekday: "Tuesday", Hour: 11},
				{Week: 3, Weekday: "Tuesday", Hour: 10},
				{Week: 4, Weekday: "Tuesday", Hour: 10},
			},
			ScheduleWeekday:          "Monday",
			ScheduleHour:             10,
			ScheduleMinute:           30,
			DispatchIntervalSeconds:  600,
			ReconcileIntervalSeconds: 7200,
			HealthCheckHour:          9,
			DispatchWorkers:          10,
			DispatchBatchSize:        100,
			RetryDelayMinutes:        30,
			EligibilityCutoffHours:   7 * 24,
		},
		Email: EmailConfig{
			Provider:  "smtp",
			SMTPPort:  587,
			SESRegion: "us-east-1",
		},
		SMS: SMSConfig{
			TimeoutSeconds: 30,
		},
		Tracking: TrackingConfig{
			BaseURL:            "https://regabilling.com/api",
			DefaultRedirectURL: "https://regabilling.com",
		},
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		// Missing config file is fine: run on defaults + env.
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = defaultConfig()
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RETARGETING_ENABLED"); v != "" {
		cfg.Retargeting.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MAX_WEEKLY_SPEND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retargeting.MaxWeeklySpend = f
		}
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.SMTPPassword = v
	}
	if v := os.Getenv("SMS_API_KEY"); v != "" {
		cfg.SMS.APIKey = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}

	return cfg, nil
}
