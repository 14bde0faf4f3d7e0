/**
 * @description
 * Configuration loader for the Kyotei pipeline.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Fails fast if DATABASE_URL is missing.
 * - Clock values (OPERATING_OPEN etc.) are "HH:MM" in JST.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Import    ImportConfig
	Scraper   ScraperConfig
	Scheduler SchedulerConfig
	Archive   ArchiveConfig
	Notify    NotifyConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port        string
	MetricsPort string // worker /metrics listener, empty disables it
	Env         string // "development", "staging" or "production"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings. An unreachable Redis is replaced by an in-process instance.
type RedisConfig struct {
	URL string
}

// ImportConfig drives the daily archive import and the month backfill.
type ImportConfig struct {
	DataDir         string
	ArchiveBaseURL  string
	MaxMonthsPerRun int
	ParallelWorkers int
	BackfillFrom    string // YYYY-MM, empty means 24 months back
}

// ScraperConfig holds the live site client settings
type ScraperConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	RPS       float64
	UserAgent string
}

// SchedulerConfig holds windows and cadences. Clock values are minutes after JST midnight.
type SchedulerConfig struct {
	OperatingOpen      ClockTime
	OperatingClose     ClockTime
	RegistrationOpen   ClockTime
	RegistrationClose  ClockTime
	DailyBatchAt       ClockTime
	RegularInterval    time.Duration
	HighFreqInterval   time.Duration
	HighFreqThreshold  time.Duration
	BettingInterval    time.Duration
	SettlementInterval time.Duration
	DecisionWindow     time.Duration
	ExpiryGrace        time.Duration
	OddsMaxAge         time.Duration
	JobTimeout         time.Duration
}

// ArchiveConfig configures the optional S3 mirror of downloaded archives
type ArchiveConfig struct {
	S3Bucket        string
	S3Prefix        string
	S3Endpoint      string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NotifyConfig configures the optional Telegram notifier
type NotifyConfig struct {
	TelegramToken  string
	TelegramChatID int64
}

// LogConfig controls the process logger
type LogConfig struct {
	Level string
	File  string
}

// ClockTime is a wall-clock time of day expressed in minutes after midnight.
type ClockTime int

// Hour returns the hour component.
func (c ClockTime) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(value string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return ClockTime(h*60 + m), nil
}

// minimum lead time the decision worker needs before a deadline
const minDecisionWindow = 2 * time.Minute

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (cron hosts inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			MetricsPort: getEnv("WORKER_METRICS_PORT", "9090"),
			Env:         getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Import: ImportConfig{
			DataDir:         getEnv("DATA_DIR", "./data"),
			ArchiveBaseURL:  strings.TrimRight(getEnv("ARCHIVE_BASE_URL", "https://www1.mbrace.or.jp/od2"), "/"),
			MaxMonthsPerRun: getEnvAsInt("MAX_MONTHS_PER_RUN", 100),
			ParallelWorkers: getEnvAsInt("PARALLEL_WORKERS", 5),
			BackfillFrom:    getEnv("BACKFILL_FROM", ""),
		},
		Scraper: ScraperConfig{
			BaseURL:   strings.TrimRight(getEnv("BOATRACE_BASE_URL", "https://www.boatrace.jp/owpc/pc/race"), "/"),
			Timeout:   getEnvAsDuration("SCRAPER_TIMEOUT", 15*time.Second),
			Retries:   getEnvAsInt("SCRAPER_RETRIES", 2),
			RPS:       getEnvAsFloat("SCRAPER_RPS", 2),
			UserAgent: getEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
		},
		Scheduler: SchedulerConfig{
			RegularInterval:    getEnvAsDuration("ODDS_REGULAR_INTERVAL", 10*time.Minute),
			HighFreqInterval:   getEnvAsDuration("ODDS_HIGH_FREQ_INTERVAL", 60*time.Second),
			HighFreqThreshold:  getEnvAsDuration("ODDS_HIGH_FREQ_THRESHOLD", 60*time.Second),
			BettingInterval:    getEnvAsDuration("BETTING_INTERVAL", time.Minute),
			SettlementInterval: getEnvAsDuration("SETTLEMENT_INTERVAL", 5*time.Minute),
			DecisionWindow:     getEnvAsDuration("DECISION_WINDOW", minDecisionWindow),
			ExpiryGrace:        getEnvAsDuration("EXPIRY_GRACE", 30*time.Second),
			OddsMaxAge:         getEnvAsDuration("ODDS_MAX_AGE", 3*time.Minute),
			JobTimeout:         getEnvAsDuration("JOB_TIMEOUT", 10*time.Minute),
		},
		Archive: ArchiveConfig{
			S3Bucket:        getEnv("ARCHIVE_S3_BUCKET", ""),
			S3Prefix:        getEnv("ARCHIVE_S3_PREFIX", "mbrace"),
			S3Endpoint:      getEnv("ARCHIVE_S3_ENDPOINT", ""),
			Region:          getEnv("AWS_REGION", "ap-northeast-1"),
			AccessKeyID:     sanitizeCredential(getEnv("AWS_ACCESS_KEY_ID", "")),
			SecretAccessKey: sanitizeCredential(getEnv("AWS_SECRET_ACCESS_KEY", "")),
		},
		Notify: NotifyConfig{
			TelegramToken:  sanitizeCredential(getEnv("TELEGRAM_BOT_TOKEN", "")),
			TelegramChatID: getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	var err error
	clocks := []struct {
		dst      *ClockTime
		key, def string
	}{
		{&cfg.Scheduler.OperatingOpen, "OPERATING_OPEN", "08:00"},
		{&cfg.Scheduler.OperatingClose, "OPERATING_CLOSE", "21:30"},
		{&cfg.Scheduler.RegistrationOpen, "REGISTRATION_OPEN", "06:00"},
		{&cfg.Scheduler.RegistrationClose, "REGISTRATION_CLOSE", "08:30"},
		{&cfg.Scheduler.DailyBatchAt, "DAILY_BATCH_AT", "06:30"},
	}
	for _, c := range clocks {
		if *c.dst, err = ParseClockTime(getEnv(c.key, c.def)); err != nil {
			return nil, fmt.Errorf("%s: %w", c.key, err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables and clamps tunables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Import.BackfillFrom != "" {
		if _, err := time.Parse("2006-01", cfg.Import.BackfillFrom); err != nil {
			return fmt.Errorf("BACKFILL_FROM must be YYYY-MM: %w", err)
		}
	}
	if cfg.Scheduler.OperatingOpen >= cfg.Scheduler.OperatingClose {
		return fmt.Errorf("OPERATING_OPEN must be before OPERATING_CLOSE")
	}
	if cfg.Scheduler.DecisionWindow < minDecisionWindow {
		cfg.Scheduler.DecisionWindow = minDecisionWindow
	}
	if cfg.Import.ParallelWorkers < 1 {
		cfg.Import.ParallelWorkers = 1
	}
	if cfg.Import.MaxMonthsPerRun < 0 {
		cfg.Import.MaxMonthsPerRun = 0
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

// Helper to get env var as duration ("90s", "10m"); bare integers are seconds
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
