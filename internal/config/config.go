package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	Gateway   GatewayConfig
	Scheduler SchedulerConfig
	Warmup    WarmupConfig
	Auth      AuthConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig selects the SQL driver and connection string.
type DatabaseConfig struct {
	Driver string
	URL    string
}

// LLMConfig selects the plan-generation provider.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// GatewayConfig describes the remote Telegram RPC gateway.
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// SchedulerConfig controls the background loops.
type SchedulerConfig struct {
	Enabled            bool
	Interval           time.Duration
	Concurrency        int
	RetentionInterval  time.Duration
	StatusSyncInterval time.Duration
}

// WarmupConfig holds the warmup thresholds. None of these are protocol
// constants; they only need to stay in the same order of magnitude.
type WarmupConfig struct {
	DueFactor                float64
	MaxStage                 int
	HistoryWindow            int
	MinRelevantChats         int
	DiscoveryLimit           int
	DelayMin                 time.Duration
	DelayMax                 time.Duration
	ExtendedPauseProbability float64
	ExtendedPauseMin         time.Duration
	ExtendedPauseMax         time.Duration
	ReadMin                  time.Duration
	ReadMax                  time.Duration
	IdleMin                  time.Duration
	IdleMax                  time.Duration
	RetentionDays            int
}

// AuthConfig configures the control API login.
type AuthConfig struct {
	JWTSecret     string
	AdminPassword string
	TokenDuration time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 300 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultDBDriver  = "sqlite3"
	defaultSQLiteURL = "file:tgwarmup.db?_foreign_keys=on&_busy_timeout=5000"

	defaultLLMProvider     = "openai"
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultAnthropicModel  = "claude-sonnet-4-20250514"
	defaultLLMTemperature  = 0.8
	defaultLLMMaxTokens    = 2048
	defaultLLMTimeout      = 60 * time.Second
	defaultGatewayBaseURL  = "http://localhost:8000"
	defaultGatewayRate     = 5.0
	defaultGatewayBurst    = 5
	defaultGatewayTimeout  = 30 * time.Second
	defaultGatewayRetries  = 2
	defaultGatewayBackoff  = time.Second
	defaultSchedulerTick   = 30 * time.Minute
	defaultConcurrency     = 10
	defaultRetentionTick   = 24 * time.Hour
	defaultRetentionDays   = 30
	defaultJWTSecret       = "change-this-secret"
	defaultAdminPassword   = "admin"
	defaultTokenDuration   = 24 * time.Hour
	defaultHistoryWindow   = 20
	defaultMaxStage        = 15
	defaultDueFactor       = 0.8
	defaultMinRelevant     = 5
	defaultDiscoveryLimit  = 15
	defaultExtendedPauseP  = 0.1
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. A .env file in the working directory is loaded
// first if present; variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", defaultDBDriver),
			URL:    os.Getenv("DATABASE_URL"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", defaultLLMProvider)),
			Model:       os.Getenv("LLM_MODEL"),
			BaseURL:     os.Getenv("LLM_BASE_URL"),
			Temperature: defaultLLMTemperature,
			MaxTokens:   defaultLLMMaxTokens,
			Timeout:     defaultLLMTimeout,
		},
		Gateway: GatewayConfig{
			BaseURL:       strings.TrimRight(getEnv("TELEGRAM_API_BASE_URL", defaultGatewayBaseURL), "/"),
			APIKey:        os.Getenv("TELEGRAM_API_KEY"),
			RatePerSecond: defaultGatewayRate,
			Burst:         defaultGatewayBurst,
			Timeout:       defaultGatewayTimeout,
			MaxRetries:    defaultGatewayRetries,
			RetryBackoff:  defaultGatewayBackoff,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			Interval:          defaultSchedulerTick,
			Concurrency:       defaultConcurrency,
			RetentionInterval: defaultRetentionTick,
		},
		Warmup: WarmupConfig{
			DueFactor:                defaultDueFactor,
			MaxStage:                 defaultMaxStage,
			HistoryWindow:            defaultHistoryWindow,
			MinRelevantChats:         defaultMinRelevant,
			DiscoveryLimit:           defaultDiscoveryLimit,
			DelayMin:                 3 * time.Second,
			DelayMax:                 10 * time.Second,
			ExtendedPauseProbability: defaultExtendedPauseP,
			ExtendedPauseMin:         5 * time.Second,
			ExtendedPauseMax:         10 * time.Second,
			ReadMin:                  3 * time.Second,
			ReadMax:                  20 * time.Second,
			IdleMin:                  3 * time.Second,
			IdleMax:                  45 * time.Second,
			RetentionDays:            defaultRetentionDays,
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("ADMIN_JWT_SECRET", defaultJWTSecret),
			AdminPassword: getEnv("ADMIN_PASSWORD", defaultAdminPassword),
			TokenDuration: defaultTokenDuration,
		},
	}

	secondsVars := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout},
		{"LLM_TIMEOUT_SECONDS", &cfg.LLM.Timeout},
		{"GATEWAY_TIMEOUT_SECONDS", &cfg.Gateway.Timeout},
		{"GATEWAY_RETRY_BACKOFF_SECONDS", &cfg.Gateway.RetryBackoff},
		{"WARMUP_DELAY_MIN_SECONDS", &cfg.Warmup.DelayMin},
		{"WARMUP_DELAY_MAX_SECONDS", &cfg.Warmup.DelayMax},
		{"WARMUP_EXTENDED_PAUSE_MIN_SECONDS", &cfg.Warmup.ExtendedPauseMin},
		{"WARMUP_EXTENDED_PAUSE_MAX_SECONDS", &cfg.Warmup.ExtendedPauseMax},
		{"WARMUP_READ_MIN_SECONDS", &cfg.Warmup.ReadMin},
		{"WARMUP_READ_MAX_SECONDS", &cfg.Warmup.ReadMax},
		{"WARMUP_IDLE_MIN_SECONDS", &cfg.Warmup.IdleMin},
		{"WARMUP_IDLE_MAX_SECONDS", &cfg.Warmup.IdleMax},
	}
	for _, sv := range secondsVars {
		if v := os.Getenv(sv.key); v != "" {
			d, err := parseSeconds(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", sv.key, err)
			}
			*sv.dst = d
		}
	}

	minuteVars := []struct {
		key string
		dst *time.Duration
	}{
		{"SCHEDULER_INTERVAL_MINUTES", &cfg.Scheduler.Interval},
		{"STATUS_SYNC_INTERVAL_MINUTES", &cfg.Scheduler.StatusSyncInterval},
	}
	for _, mv := range minuteVars {
		if v := os.Getenv(mv.key); v != "" {
			d, err := parseMinutes(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", mv.key, err)
			}
			*mv.dst = d
		}
	}
	if cfg.Scheduler.Interval == 0 {
		return Config{}, fmt.Errorf("invalid SCHEDULER_INTERVAL_MINUTES: must be positive")
	}

	intVars := []struct {
		key string
		dst *int
		min int
	}{
		{"LLM_MAX_TOKENS", &cfg.LLM.MaxTokens, 1},
		{"GATEWAY_BURST", &cfg.Gateway.Burst, 1},
		{"GATEWAY_MAX_RETRIES", &cfg.Gateway.MaxRetries, 0},
		{"SCHEDULER_CONCURRENCY", &cfg.Scheduler.Concurrency, 1},
		{"WARMUP_MAX_STAGE", &cfg.Warmup.MaxStage, 1},
		{"WARMUP_HISTORY_WINDOW", &cfg.Warmup.HistoryWindow, 1},
		{"WARMUP_MIN_RELEVANT_CHATS", &cfg.Warmup.MinRelevantChats, 0},
		{"WARMUP_DISCOVERY_LIMIT", &cfg.Warmup.DiscoveryLimit, 1},
		{"HISTORY_RETENTION_DAYS", &cfg.Warmup.RetentionDays, 1},
	}
	for _, iv := range intVars {
		if v := os.Getenv(iv.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < iv.min {
				return Config{}, fmt.Errorf("invalid %s: must be an integer >= %d", iv.key, iv.min)
			}
			*iv.dst = n
		}
	}

	if v := os.Getenv("ADMIN_TOKEN_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return Config{}, fmt.Errorf("invalid ADMIN_TOKEN_HOURS: must be a positive integer")
		}
		cfg.Auth.TokenDuration = time.Duration(hours) * time.Hour
	}
	if v := os.Getenv("RETENTION_INTERVAL_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 0 {
			return Config{}, fmt.Errorf("invalid RETENTION_INTERVAL_HOURS: must be an integer >= 0")
		}
		cfg.Scheduler.RetentionInterval = time.Duration(hours) * time.Hour
	}

	floatVars := []struct {
		key      string
		dst      *float64
		min, max float64
	}{
		{"LLM_TEMPERATURE", &cfg.LLM.Temperature, 0, 2},
		{"GATEWAY_RATE_PER_SECOND", &cfg.Gateway.RatePerSecond, 0.01, 1000},
		{"WARMUP_DUE_FACTOR", &cfg.Warmup.DueFactor, 0.1, 2},
		{"WARMUP_EXTENDED_PAUSE_PROBABILITY", &cfg.Warmup.ExtendedPauseProbability, 0, 1},
	}
	for _, fv := range floatVars {
		if v := os.Getenv(fv.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < fv.min || f > fv.max {
				return Config{}, fmt.Errorf("invalid %s: must be a number between %g and %g", fv.key, fv.min, fv.max)
			}
			*fv.dst = f
		}
	}

	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SCHEDULER_ENABLED: %w", err)
		}
		cfg.Scheduler.Enabled = enabled
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	switch cfg.Database.Driver {
	case "sqlite3":
		if cfg.Database.URL == "" {
			cfg.Database.URL = defaultSQLiteURL
		}
	case "postgres":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER: must be 'sqlite3' or 'postgres'")
	}

	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = defaultOpenAIModel
		}
	case "anthropic":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = defaultAnthropicModel
		}
	default:
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER: must be 'openai' or 'anthropic'")
	}

	if err := cfg.Warmup.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (w WarmupConfig) validate() error {
	pairs := []struct {
		name     string
		min, max time.Duration
	}{
		{"WARMUP_DELAY", w.DelayMin, w.DelayMax},
		{"WARMUP_EXTENDED_PAUSE", w.ExtendedPauseMin, w.ExtendedPauseMax},
		{"WARMUP_READ", w.ReadMin, w.ReadMax},
		{"WARMUP_IDLE", w.IdleMin, w.IdleMax},
	}
	for _, p := range pairs {
		if p.min > p.max {
			return fmt.Errorf("invalid %s range: min %v exceeds max %v", p.name, p.min, p.max)
		}
	}
	return nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseMinutes(raw string) (time.Duration, error) {
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(minutes) * time.Minute, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
