// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/waiter"
)

// File download modes.
const (
	FileDownloadHTTPGet = "HTTPGET"
	FileDownloadProxy   = "PROXY"
	FileDownloadFolder  = "FOLDER"
)

// Configuration bounds to prevent resource exhaustion.
const (
	MaxTimeout          = 10 * time.Minute
	maxMaxSessions      = 1000
	maxDownloadBytes    = 2 << 30 // 2GB
	maxRecordedResponse = 100000
	minAPIKeyLength     = 16
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Control API
	Host string
	Port int

	// Proxy settings
	ProxyEnabled  bool
	ProxyHost     string
	ProxyPort     int // 0 picks a free port per session
	ProxyMITM     bool
	ProxyCACert   string
	ProxyCAKey    string
	UpstreamProxy string

	// Navigation
	BaseURL      string
	Remote       string
	FileDownload string

	// Waiting
	Timeout              time.Duration
	PollingInterval      time.Duration
	StabilizationTimeout time.Duration

	// Download capture
	DownloadsFolder      string
	MaxDownloadBytes     int64
	MaxRecordedResponses int
	ClassifyPath         string
	ClassifyHotReload    bool

	// Browser
	Headless    bool
	BrowserPath string
	Stealth     bool

	// Sessions
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration
	MaxSessions            int

	// API key authentication for the control API
	APIKeyEnabled bool
	APIKey        string

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Metrics
	MetricsEnabled bool
	MetricsPort    int
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment take precedence.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	return &Config{
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8192),

		ProxyEnabled:  getEnvBool("PROXY_ENABLED", true),
		ProxyHost:     getEnvString("PROXY_HOST", "127.0.0.1"),
		ProxyPort:     getEnvInt("PROXY_PORT", 0),
		ProxyMITM:     getEnvBool("PROXY_MITM", true),
		ProxyCACert:   getEnvString("PROXY_CA_CERT", ""),
		ProxyCAKey:    getEnvString("PROXY_CA_KEY", ""),
		UpstreamProxy: getEnvString("UPSTREAM_PROXY", ""),

		BaseURL:      getEnvString("BASE_URL", "http://localhost:8080"),
		Remote:       getEnvString("REMOTE", ""),
		FileDownload: strings.ToUpper(getEnvString("FILE_DOWNLOAD", FileDownloadProxy)),

		Timeout:              getEnvDuration("TIMEOUT", 4*time.Second),
		PollingInterval:      getEnvDuration("POLLING_INTERVAL", 200*time.Millisecond),
		StabilizationTimeout: getEnvDuration("STABILIZATION_TIMEOUT", 5*time.Second),

		DownloadsFolder:      getEnvString("DOWNLOADS_FOLDER", "build/downloads"),
		MaxDownloadBytes:     int64(getEnvInt("MAX_DOWNLOAD_BYTES", 256<<20)),
		MaxRecordedResponses: getEnvInt("MAX_RECORDED_RESPONSES", 1000),
		ClassifyPath:         getEnvString("CLASSIFY_PATH", ""),
		ClassifyHotReload:    getEnvBool("CLASSIFY_HOT_RELOAD", false),

		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),
		Stealth:     getEnvBool("STEALTH", false),

		SessionTTL:             getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Minute),
		MaxSessions:            getEnvInt("MAX_SESSIONS", 10),

		APIKeyEnabled: getEnvBool("API_KEY_ENABLED", false),
		APIKey:        getEnvString("API_KEY", ""),

		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogFile:       getEnvString("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 25),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 14),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsPort:    getEnvInt("METRICS_PORT", 9192),
	}
}

// Default returns a configuration with built-in defaults, ignoring the environment.
func Default() *Config {
	return &Config{
		Host:                   "127.0.0.1",
		Port:                   8192,
		ProxyEnabled:           true,
		ProxyHost:              "127.0.0.1",
		ProxyMITM:              true,
		BaseURL:                "http://localhost:8080",
		FileDownload:           FileDownloadProxy,
		Timeout:                4 * time.Second,
		PollingInterval:        200 * time.Millisecond,
		StabilizationTimeout:   5 * time.Second,
		DownloadsFolder:        "build/downloads",
		MaxDownloadBytes:       256 << 20,
		MaxRecordedResponses:   1000,
		Headless:               true,
		SessionTTL:             30 * time.Minute,
		SessionCleanupInterval: time.Minute,
		MaxSessions:            10,
		LogLevel:               "info",
		LogMaxSizeMB:           25,
		LogMaxBackups:          10,
		LogMaxAgeDays:          14,
		MetricsPort:            9192,
	}
}

// RequiresProxy reports whether the file download mode depends on the proxy.
func (c *Config) RequiresProxy() bool {
	return c.FileDownload == FileDownloadProxy
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8192")
		c.Port = 8192
	}
	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		log.Warn().Int("port", c.ProxyPort).Msg("Invalid proxy port, using a free port")
		c.ProxyPort = 0
	}

	switch c.FileDownload {
	case FileDownloadHTTPGet, FileDownloadProxy, FileDownloadFolder:
	default:
		log.Warn().Str("mode", c.FileDownload).Msg("Invalid FILE_DOWNLOAD, using PROXY")
		c.FileDownload = FileDownloadProxy
	}

	if !c.ProxyEnabled && c.FileDownload == FileDownloadProxy {
		log.Warn().Msg("PROXY_ENABLED is false but FILE_DOWNLOAD is PROXY - navigation will fail until proxy is enabled")
	}

	if !strings.Contains(c.BaseURL, "://") {
		log.Warn().Str("base_url", c.BaseURL).Msg("BASE_URL has no scheme, relative URLs may not resolve")
	}

	if c.Timeout <= 0 {
		log.Warn().Dur("timeout", c.Timeout).Msg("Timeout must be positive, using 4s")
		c.Timeout = 4 * time.Second
	} else if c.Timeout > MaxTimeout {
		log.Warn().
			Dur("timeout", c.Timeout).
			Dur("max", MaxTimeout).
			Msg("Timeout too high, capping to maximum")
		c.Timeout = MaxTimeout
	}

	if c.PollingInterval < waiter.MinInterval {
		log.Warn().
			Dur("interval", c.PollingInterval).
			Dur("min", waiter.MinInterval).
			Msg("Polling interval too short, using minimum")
		c.PollingInterval = waiter.MinInterval
	}

	if c.StabilizationTimeout <= 0 {
		log.Warn().Dur("timeout", c.StabilizationTimeout).Msg("Stabilization timeout must be positive, using timeout")
		c.StabilizationTimeout = c.Timeout
	} else if c.StabilizationTimeout > MaxTimeout {
		c.StabilizationTimeout = MaxTimeout
	}

	if c.DownloadsFolder == "" {
		log.Warn().Msg("DOWNLOADS_FOLDER is empty, using build/downloads")
		c.DownloadsFolder = "build/downloads"
	} else if strings.Contains(c.DownloadsFolder, "..") {
		log.Error().
			Str("path", c.DownloadsFolder).
			Msg("DownloadsFolder contains path traversal sequence (..), using build/downloads")
		c.DownloadsFolder = "build/downloads"
	}

	if c.MaxDownloadBytes <= 0 {
		log.Warn().Int64("bytes", c.MaxDownloadBytes).Msg("Invalid max download size, using 256MB")
		c.MaxDownloadBytes = 256 << 20
	} else if c.MaxDownloadBytes > maxDownloadBytes {
		log.Warn().
			Int64("bytes", c.MaxDownloadBytes).
			Int64("max", maxDownloadBytes).
			Msg("Max download size too high, capping to maximum")
		c.MaxDownloadBytes = maxDownloadBytes
	}

	if c.MaxRecordedResponses < 0 {
		c.MaxRecordedResponses = 0
	} else if c.MaxRecordedResponses > maxRecordedResponse {
		c.MaxRecordedResponses = maxRecordedResponse
	}

	if c.ClassifyHotReload && c.ClassifyPath == "" {
		log.Warn().Msg("CLASSIFY_HOT_RELOAD enabled but CLASSIFY_PATH not set - hot-reload disabled")
		c.ClassifyHotReload = false
	}

	if (c.ProxyCACert == "") != (c.ProxyCAKey == "") {
		log.Error().Msg("PROXY_CA_CERT and PROXY_CA_KEY must be set together, using built-in CA")
		c.ProxyCACert = ""
		c.ProxyCAKey = ""
	}

	if c.MaxSessions < 1 {
		log.Warn().Int("max", c.MaxSessions).Msg("Invalid max sessions, using 10")
		c.MaxSessions = 10
	} else if c.MaxSessions > maxMaxSessions {
		log.Warn().
			Int("sessions", c.MaxSessions).
			Int("max", maxMaxSessions).
			Msg("Max sessions too high, capping to maximum")
		c.MaxSessions = maxMaxSessions
	}
	if c.ProxyEnabled && c.ProxyPort != 0 && c.MaxSessions > 1 {
		log.Warn().
			Int("proxy_port", c.ProxyPort).
			Msg("Fixed PROXY_PORT allows a single session, limiting MAX_SESSIONS to 1")
		c.MaxSessions = 1
	}

	const minSessionTTL = 1 * time.Minute
	const maxSessionTTL = 24 * time.Hour
	if c.SessionTTL < minSessionTTL {
		log.Warn().Dur("ttl", c.SessionTTL).Dur("min", minSessionTTL).Msg("Session TTL too short, using minimum")
		c.SessionTTL = minSessionTTL
	} else if c.SessionTTL > maxSessionTTL {
		log.Warn().Dur("ttl", c.SessionTTL).Dur("max", maxSessionTTL).Msg("Session TTL too long, using maximum")
		c.SessionTTL = maxSessionTTL
	}

	const minCleanupInterval = 10 * time.Second
	if c.SessionCleanupInterval < minCleanupInterval {
		log.Warn().
			Dur("interval", c.SessionCleanupInterval).
			Dur("min", minCleanupInterval).
			Msg("Session cleanup interval too short, using minimum")
		c.SessionCleanupInterval = minCleanupInterval
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	if c.MetricsEnabled && c.MetricsPort == c.Port {
		log.Error().Int("port", c.MetricsPort).Msg("METRICS_PORT conflicts with PORT, disabling metrics")
		c.MetricsEnabled = false
	}

	if c.APIKeyEnabled {
		switch {
		case c.APIKey == "":
			log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
		case len(c.APIKey) < minAPIKeyLength:
			log.Error().
				Int("length", len(c.APIKey)).
				Int("min_required", minAPIKeyLength).
				Msg("API_KEY is too short for secure authentication")
		}
	}
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}
