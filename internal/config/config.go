// Package config loads daemon settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xhit/go-str2duration/v2"
)

// Renderer backends.
const (
	RendererVirtual  = "virtual"
	RendererCDP      = "cdp"
	RendererHeadless = "headless"
)

// Config holds everything the overlay daemon reads at startup.
type Config struct {
	BindAddr string
	LogLevel string
	LogFile  string

	// Renderer backend and browser settings
	Renderer     string
	CDPAddress   string
	CDPPort      int
	TabURLFilter string
	ChartURL     string
	EvalTimeout  time.Duration

	// Chart behavior
	PollInterval        time.Duration
	FrameInterval       time.Duration
	MaxHistory          int
	HitPadding          float64
	PendingApplyTimeout time.Duration
	DefaultSymbol       string
	PricePrecision      int
	SnapToBars          bool

	// Persistence
	DBPath      string
	RemoteURL   string
	RemoteToken string
	StylesFile  string
	JournalDir  string
}

// Load reads configuration from environment variables and an optional .env
// file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:            getEnvOrDefault("OVERLAY_BIND_ADDR", "127.0.0.1:8190"),
		LogLevel:            strings.ToLower(getEnvOrDefault("OVERLAY_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("OVERLAY_LOG_FILE", "logs/overlayd.log"),
		Renderer:            strings.ToLower(getEnvOrDefault("OVERLAY_RENDERER", RendererVirtual)),
		CDPAddress:          getEnvOrDefault("OVERLAY_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:             getEnvIntOrDefault("OVERLAY_CDP_PORT", 9222),
		TabURLFilter:        getEnvOrDefault("OVERLAY_TAB_URL_FILTER", ""),
		ChartURL:            getEnvOrDefault("OVERLAY_CHART_URL", ""),
		EvalTimeout:         time.Duration(getEnvIntOrDefault("OVERLAY_EVAL_TIMEOUT_MS", 5000)) * time.Millisecond,
		PollInterval:        getEnvDurationOrDefault("OVERLAY_POLL_INTERVAL", 100*time.Millisecond),
		FrameInterval:       getEnvDurationOrDefault("OVERLAY_FRAME_INTERVAL", 16*time.Millisecond),
		MaxHistory:          getEnvIntOrDefault("OVERLAY_MAX_HISTORY", 50),
		HitPadding:          float64(getEnvIntOrDefault("OVERLAY_HIT_PADDING", 36)),
		PendingApplyTimeout: getEnvDurationOrDefault("OVERLAY_PENDING_APPLY_TIMEOUT", 5*time.Second),
		DefaultSymbol:       getEnvOrDefault("OVERLAY_DEFAULT_SYMBOL", ""),
		PricePrecision:      getEnvIntOrDefault("OVERLAY_PRICE_PRECISION", 0),
		SnapToBars:          getEnvBoolOrDefault("OVERLAY_SNAP_TO_BARS", false),
		DBPath:              getEnvOrDefault("OVERLAY_DB_PATH", "./data/overlay.db"),
		RemoteURL:           getEnvOrDefault("OVERLAY_REMOTE_URL", ""),
		RemoteToken:         getEnvOrDefault("OVERLAY_REMOTE_TOKEN", ""),
		StylesFile:          getEnvOrDefault("OVERLAY_STYLES_FILE", ""),
		JournalDir:          getEnvOrDefault("OVERLAY_JOURNAL_DIR", ""),
	}
	if cfg.EvalTimeout < time.Second {
		cfg.EvalTimeout = time.Second
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 16 * time.Millisecond
	}
	switch cfg.Renderer {
	case RendererVirtual, RendererCDP, RendererHeadless:
	default:
		return nil, fmt.Errorf("OVERLAY_RENDERER must be virtual, cdp or headless, got %q", cfg.Renderer)
	}
	if cfg.MaxHistory < 1 {
		return nil, fmt.Errorf("OVERLAY_MAX_HISTORY must be at least 1, got %d", cfg.MaxHistory)
	}
	return cfg, nil
}

// CDPURL returns the DevTools HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDurationOrDefault accepts Go durations plus day and week units
// ("1d", "2w").
func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := str2duration.ParseDuration(val); err == nil {
			return d
		}
		slog.Warn("ignoring malformed duration env value", "key", key, "value", val)
	}
	return defaultVal
}
