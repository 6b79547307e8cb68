package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solarmine-planner/internal/projection/application"
)

// Config is the planner service configuration.
type Config struct {
	HTTPAddr       string          `yaml:"http_addr"`
	DatabaseURL    string          `yaml:"database_url"`
	SQLitePath     string          `yaml:"sqlite_path"`
	JWTSecret      string          `yaml:"-"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	Engine         EngineConfig    `yaml:"engine"`
	Schedule       ScheduleConfig  `yaml:"schedule"`
	Collector      CollectorConfig `yaml:"collector"`
	Notify         NotifyConfig    `yaml:"notify"`
}

// EngineConfig tunes the projection orchestrator.
type EngineConfig struct {
	ChunkDays   int           `yaml:"chunk_days"`
	DateTimeout time.Duration `yaml:"date_timeout"`
	Workers     int           `yaml:"workers"`
}

// ScheduleConfig lists jobs recomputed once a day.
type ScheduleConfig struct {
	DailyAt string                     `yaml:"daily_at"`
	Jobs    []application.ScheduledJob `yaml:"jobs"`
}

// CollectorConfig configures the market data collector.
type CollectorConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"base_url"`
	Interval       time.Duration `yaml:"interval"`
	RequestsPerMin int           `yaml:"requests_per_minute"`
}

// NotifyConfig configures run notifications.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	FailedOnly bool   `yaml:"failed_only"`
}

// Options returns orchestrator options.
func (e EngineConfig) Options() application.Options {
	return application.Options{ChunkDays: e.ChunkDays, DateTimeout: e.DateTimeout}
}

// Load reads .env (when present), environment variables and the optional YAML
// file named by PLANNER_CONFIG. YAML values override environment defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:    getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		SQLitePath:     getenvDefault("SQLITE_PATH", ""),
		JWTSecret:      getenvDefault("AUTH_JWT_SECRET", ""),
		AllowedOrigins: splitCSV(getenvDefault("CORS_ALLOWED_ORIGINS", "*")),
		Engine: EngineConfig{
			ChunkDays:   getenvIntDefault("PROJECTION_CHUNK_DAYS", 31),
			DateTimeout: getenvDuration("PROJECTION_DATE_TIMEOUT", 10*time.Second),
			Workers:     getenvIntDefault("PROJECTION_WORKERS", 4),
		},
		Schedule: ScheduleConfig{
			DailyAt: getenvDefault("PROJECTION_DAILY_AT", "03:00"),
		},
		Collector: CollectorConfig{
			Enabled:        getenvBoolDefault("MARKET_COLLECTOR_ENABLED", false),
			BaseURL:        getenvDefault("MEMPOOL_BASE_URL", "https://mempool.space/api"),
			Interval:       getenvDuration("MARKET_COLLECT_INTERVAL", time.Hour),
			RequestsPerMin: getenvIntDefault("MEMPOOL_REQUESTS_PER_MINUTE", 30),
		},
		Notify: NotifyConfig{
			WebhookURL: getenvDefault("PROJECTION_WEBHOOK_URL", ""),
			Template:   getenvDefault("PROJECTION_NOTIFY_TEMPLATE", ""),
			FailedOnly: getenvBoolDefault("PROJECTION_NOTIFY_FAILED_ONLY", false),
		},
	}

	if path := os.Getenv("PLANNER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges that would make the engine misbehave.
func (c Config) Validate() error {
	if c.Engine.ChunkDays <= 0 {
		return errors.New("config: engine.chunk_days must be positive")
	}
	if c.Engine.DateTimeout <= 0 {
		return errors.New("config: engine.date_timeout must be positive")
	}
	if c.Engine.Workers <= 0 {
		return errors.New("config: engine.workers must be positive")
	}
	if c.Collector.Enabled {
		if c.Collector.Interval <= 0 {
			return errors.New("config: collector.interval must be positive")
		}
		if c.Collector.BaseURL == "" {
			return errors.New("config: collector.base_url required")
		}
	}
	for i, job := range c.Schedule.Jobs {
		if job.SystemConfigID == "" || job.ScenarioID == "" {
			return fmt.Errorf("config: schedule.jobs[%d] needs system_config_id and scenario_id", i)
		}
		if job.Granularity != "" && !job.Granularity.IsValid() {
			return fmt.Errorf("config: schedule.jobs[%d] granularity %q", i, job.Granularity)
		}
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
