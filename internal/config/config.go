// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration.
type Config struct {
	// Capture processing
	BodyCacheMaxItems int // BODY_CACHE_MAX_ITEMS, default 512
	MinCorrelationLen int // MIN_CORRELATION_VALUE_LEN, default 4

	// Replay
	RequestTimeout  time.Duration // REQUEST_TIMEOUT_MS, default 30000ms (30s)
	MaxBodyBytes    int           // MAX_BODY_BYTES, default 2_000_000
	ChainWorkers    int           // CHAIN_WORKERS, default 4
	RateLimitPerSec float64       // RATE_LIMIT_RPS, default 5
	RateBurst       int           // RATE_BURST, default 10

	// Transports
	BrowserControlURL string // BROWSER_CONTROL_URL, default "" (launch headless)
	ImpersonateCmd    string // IMPERSONATE_CMD, default "" (disabled)
	DisableBrowser    bool   // DISABLE_BROWSER, default false

	// Credential refresh
	RefreshInterval time.Duration // REFRESH_INTERVAL_MS, default 300000ms (5m)
	RefreshBuffer   time.Duration // REFRESH_BUFFER_MS, default 600000ms (10m)
	DiagnosticMode  bool          // DIAGNOSTIC_MODE, default false (noop scheduler)
	CredStorePath   string        // CRED_STORE_PATH, default "" (in-memory)

	// Logging configuration
	LogLevel      string // LOG_LEVEL, default "info"
	LogFile       string // LOG_FILE, default "" (stderr only)
	LogMaxSizeMB  int    // LOG_MAX_SIZE_MB, default 10
	LogMaxBackups int    // LOG_MAX_BACKUPS, default 3
	LogMaxAgeDays int    // LOG_MAX_AGE_DAYS, default 28
	LogCompress   bool   // LOG_COMPRESS, default true
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BodyCacheMaxItems: getEnvInt("BODY_CACHE_MAX_ITEMS", 512),
		MinCorrelationLen: getEnvInt("MIN_CORRELATION_VALUE_LEN", 4),

		RequestTimeout:  getEnvDurationMs("REQUEST_TIMEOUT_MS", 30000),
		MaxBodyBytes:    getEnvInt("MAX_BODY_BYTES", 2_000_000),
		ChainWorkers:    getEnvInt("CHAIN_WORKERS", 4),
		RateLimitPerSec: getEnvFloat("RATE_LIMIT_RPS", 5),
		RateBurst:       getEnvInt("RATE_BURST", 10),

		BrowserControlURL: getEnvString("BROWSER_CONTROL_URL", ""),
		ImpersonateCmd:    getEnvString("IMPERSONATE_CMD", ""),
		DisableBrowser:    getEnvBool("DISABLE_BROWSER", false),

		RefreshInterval: getEnvDurationMs("REFRESH_INTERVAL_MS", 300000),
		RefreshBuffer:   getEnvDurationMs("REFRESH_BUFFER_MS", 600000),
		DiagnosticMode:  getEnvBool("DIAGNOSTIC_MODE", false),
		CredStorePath:   getEnvString("CRED_STORE_PATH", ""),

		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogFile:       getEnvString("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDurationMs(key string, defaultMs int) time.Duration {
	ms := getEnvInt(key, defaultMs)
	return time.Duration(ms) * time.Millisecond
}
