package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Graph    GraphConfig
	Scraper  ScraperConfig
	Poller   PollerConfig
	Sync     SyncConfig
	Welcome  WelcomeConfig
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

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL           string
	MigrationsDir string
}

// GraphConfig holds the follower-count API endpoints. The prober tries
// the primary host first and falls back to the secondary on failure.
type GraphConfig struct {
	PrimaryHost  string
	FallbackHost string
	Timeout      time.Duration
}

// ScraperConfig holds follower-list scraping parameters. The session
// cookie drives the direct fetch path; the vendor token drives the paid
// dataset-API fallback.
type ScraperConfig struct {
	BaseURL       string
	SessionCookie string
	VendorHost    string
	VendorToken   string
	Timeout       time.Duration
}

// PollerConfig holds polling orchestrator defaults.
type PollerConfig struct {
	DefaultThreshold int
	SeedLimit        int
	ReconcileBatch   int
	CheckInterval    time.Duration
}

// SyncConfig holds sync queue parameters. Inter-item delay is randomized
// between MinDelay and MaxDelay.
type SyncConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// WelcomeConfig holds welcome-message composer parameters.
type WelcomeConfig struct {
	OpenAIKey   string
	OpenAIModel string
	Enabled     bool
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultGraphPrimaryHost  = "graph.mro.social"
	defaultGraphFallbackHost = "graph-fallback.mro.social"
	defaultVendorHost        = "api.brightdata.com"
	defaultScraperBaseURL    = "https://www.instagram.com"

	defaultThreshold      = 5
	defaultSeedLimit      = 50
	defaultReconcileBatch = 30
	defaultCheckInterval  = 60 * time.Second

	defaultSyncMinDelay = 2 * time.Second
	defaultSyncMaxDelay = 5 * time.Second
)

// Load reads configuration from environment variables, applying defaults
// when values are not provided or invalid.
func Load() (Config, error) {
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
			URL:           os.Getenv("DATABASE_URL"),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Graph: GraphConfig{
			PrimaryHost:  getEnv("GRAPH_PRIMARY_HOST", defaultGraphPrimaryHost),
			FallbackHost: getEnv("GRAPH_FALLBACK_HOST", defaultGraphFallbackHost),
			Timeout:      15 * time.Second,
		},
		Scraper: ScraperConfig{
			BaseURL:       getEnv("SCRAPER_BASE_URL", defaultScraperBaseURL),
			SessionCookie: os.Getenv("SCRAPER_SESSION_COOKIE"),
			VendorHost:    getEnv("SCRAPER_VENDOR_HOST", defaultVendorHost),
			VendorToken:   os.Getenv("SCRAPER_VENDOR_TOKEN"),
			Timeout:       60 * time.Second,
		},
		Poller: PollerConfig{
			DefaultThreshold: defaultThreshold,
			SeedLimit:        defaultSeedLimit,
			ReconcileBatch:   defaultReconcileBatch,
			CheckInterval:    defaultCheckInterval,
		},
		Sync: SyncConfig{
			MinDelay: defaultSyncMinDelay,
			MaxDelay: defaultSyncMaxDelay,
		},
		Welcome: WelcomeConfig{
			OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
			OpenAIModel: getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
	}
	cfg.Welcome.Enabled = cfg.Welcome.OpenAIKey != ""

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
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

	if v := os.Getenv("POLL_THRESHOLD"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POLL_THRESHOLD: %w", err)
		}
		cfg.Poller.DefaultThreshold = n
	}

	if v := os.Getenv("POLL_SEED_LIMIT"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POLL_SEED_LIMIT: %w", err)
		}
		cfg.Poller.SeedLimit = n
	}

	if v := os.Getenv("POLL_RECONCILE_BATCH"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POLL_RECONCILE_BATCH: %w", err)
		}
		cfg.Poller.ReconcileBatch = n
	}

	if v := os.Getenv("POLL_CHECK_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POLL_CHECK_INTERVAL_SECONDS: %w", err)
		}
		cfg.Poller.CheckInterval = d
	}

	if v := os.Getenv("SYNC_MIN_DELAY_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SYNC_MIN_DELAY_SECONDS: %w", err)
		}
		cfg.Sync.MinDelay = d
	}

	if v := os.Getenv("SYNC_MAX_DELAY_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SYNC_MAX_DELAY_SECONDS: %w", err)
		}
		cfg.Sync.MaxDelay = d
	}

	if cfg.Sync.MaxDelay < cfg.Sync.MinDelay {
		return Config{}, fmt.Errorf("SYNC_MAX_DELAY_SECONDS must be >= SYNC_MIN_DELAY_SECONDS")
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
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
