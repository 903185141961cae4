package config

import (
	"os"
	"testing"
	"time"

	"github.com/Rorqualx/proxydl/internal/waiter"
)

var configEnvVars = []string{
	"HOST", "PORT",
	"PROXY_ENABLED", "PROXY_HOST", "PROXY_PORT", "PROXY_MITM", "PROXY_CA_CERT", "PROXY_CA_KEY", "UPSTREAM_PROXY",
	"BASE_URL", "REMOTE", "FILE_DOWNLOAD",
	"TIMEOUT", "POLLING_INTERVAL", "STABILIZATION_TIMEOUT",
	"DOWNLOADS_FOLDER", "MAX_DOWNLOAD_BYTES", "MAX_RECORDED_RESPONSES", "CLASSIFY_PATH", "CLASSIFY_HOT_RELOAD",
	"HEADLESS", "BROWSER_PATH", "STEALTH",
	"SESSION_TTL", "SESSION_CLEANUP_INTERVAL", "MAX_SESSIONS",
	"API_KEY_ENABLED", "API_KEY",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
	"METRICS_ENABLED", "METRICS_PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range configEnvVars {
		if v, ok := os.LookupEnv(env); ok {
			os.Unsetenv(env)
			t.Cleanup(func() { os.Setenv(env, v) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8192 {
		t.Errorf("Expected default port 8192, got %d", cfg.Port)
	}
	if !cfg.ProxyEnabled {
		t.Error("Expected ProxyEnabled to be true by default")
	}
	if cfg.ProxyPort != 0 {
		t.Errorf("Expected default proxy port 0, got %d", cfg.ProxyPort)
	}
	if cfg.FileDownload != FileDownloadProxy {
		t.Errorf("Expected default file download PROXY, got %q", cfg.FileDownload)
	}
	if cfg.Timeout != 4*time.Second {
		t.Errorf("Expected default timeout 4s, got %v", cfg.Timeout)
	}
	if cfg.PollingInterval != 200*time.Millisecond {
		t.Errorf("Expected default polling interval 200ms, got %v", cfg.PollingInterval)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("Expected default base URL, got %q", cfg.BaseURL)
	}
	if cfg.Remote != "" {
		t.Errorf("Expected empty remote by default, got %q", cfg.Remote)
	}
	if !cfg.Headless {
		t.Error("Expected Headless to be true by default")
	}
	if cfg.MaxSessions != 10 {
		t.Errorf("Expected default max sessions 10, got %d", cfg.MaxSessions)
	}
	if cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to be false by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "9999")
	t.Setenv("PROXY_ENABLED", "false")
	t.Setenv("PROXY_PORT", "18080")
	t.Setenv("FILE_DOWNLOAD", "httpget")
	t.Setenv("BASE_URL", "https://example.com")
	t.Setenv("REMOTE", "http://grid:4444")
	t.Setenv("TIMEOUT", "10s")
	t.Setenv("POLLING_INTERVAL", "100ms")
	t.Setenv("DOWNLOADS_FOLDER", "/tmp/dl")
	t.Setenv("MAX_DOWNLOAD_BYTES", "1048576")
	t.Setenv("HEADLESS", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ENABLED", "true")

	cfg := Load()

	if cfg.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Port)
	}
	if cfg.ProxyEnabled {
		t.Error("Expected ProxyEnabled to be false")
	}
	if cfg.ProxyPort != 18080 {
		t.Errorf("Expected proxy port 18080, got %d", cfg.ProxyPort)
	}
	if cfg.FileDownload != FileDownloadHTTPGet {
		t.Errorf("Expected file download HTTPGET, got %q", cfg.FileDownload)
	}
	if cfg.BaseURL != "https://example.com" {
		t.Errorf("Expected base URL override, got %q", cfg.BaseURL)
	}
	if cfg.Remote != "http://grid:4444" {
		t.Errorf("Expected remote override, got %q", cfg.Remote)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", cfg.Timeout)
	}
	if cfg.PollingInterval != 100*time.Millisecond {
		t.Errorf("Expected polling interval 100ms, got %v", cfg.PollingInterval)
	}
	if cfg.DownloadsFolder != "/tmp/dl" {
		t.Errorf("Expected downloads folder override, got %q", cfg.DownloadsFolder)
	}
	if cfg.MaxDownloadBytes != 1<<20 {
		t.Errorf("Expected max download bytes 1MB, got %d", cfg.MaxDownloadBytes)
	}
	if cfg.Headless {
		t.Error("Expected Headless to be false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.LogLevel)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to be true")
	}
}

func TestInvalidEnvValues(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "not_a_number")
	t.Setenv("HEADLESS", "not_a_bool")
	t.Setenv("TIMEOUT", "not_a_duration")
	t.Setenv("POLLING_INTERVAL", "-5s")

	cfg := Load()

	if cfg.Port != 8192 {
		t.Errorf("Expected default port 8192 for invalid value, got %d", cfg.Port)
	}
	if !cfg.Headless {
		t.Error("Expected default Headless (true) for invalid value")
	}
	if cfg.Timeout != 4*time.Second {
		t.Errorf("Expected default timeout for invalid value, got %v", cfg.Timeout)
	}
	if cfg.PollingInterval != 200*time.Millisecond {
		t.Errorf("Expected default polling interval for negative value, got %v", cfg.PollingInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*testing.T, *Config)
	}{
		{
			name:   "unknown file download mode",
			mutate: func(c *Config) { c.FileDownload = "FTP" },
			check: func(t *testing.T, c *Config) {
				if c.FileDownload != FileDownloadProxy {
					t.Errorf("FileDownload = %q, want PROXY", c.FileDownload)
				}
			},
		},
		{
			name:   "polling interval below minimum",
			mutate: func(c *Config) { c.PollingInterval = time.Millisecond },
			check: func(t *testing.T, c *Config) {
				if c.PollingInterval != waiter.MinInterval {
					t.Errorf("PollingInterval = %v, want %v", c.PollingInterval, waiter.MinInterval)
				}
			},
		},
		{
			name:   "timeout above maximum",
			mutate: func(c *Config) { c.Timeout = time.Hour },
			check: func(t *testing.T, c *Config) {
				if c.Timeout != MaxTimeout {
					t.Errorf("Timeout = %v, want %v", c.Timeout, MaxTimeout)
				}
			},
		},
		{
			name:   "fixed proxy port limits sessions",
			mutate: func(c *Config) { c.ProxyPort = 18080; c.MaxSessions = 5 },
			check: func(t *testing.T, c *Config) {
				if c.MaxSessions != 1 {
					t.Errorf("MaxSessions = %d, want 1", c.MaxSessions)
				}
			},
		},
		{
			name:   "downloads folder traversal",
			mutate: func(c *Config) { c.DownloadsFolder = "../../etc" },
			check: func(t *testing.T, c *Config) {
				if c.DownloadsFolder != "build/downloads" {
					t.Errorf("DownloadsFolder = %q, want build/downloads", c.DownloadsFolder)
				}
			},
		},
		{
			name:   "half configured CA",
			mutate: func(c *Config) { c.ProxyCACert = "ca.pem" },
			check: func(t *testing.T, c *Config) {
				if c.ProxyCACert != "" || c.ProxyCAKey != "" {
					t.Error("Expected CA settings to be cleared")
				}
			},
		},
		{
			name:   "hot reload without path",
			mutate: func(c *Config) { c.ClassifyHotReload = true },
			check: func(t *testing.T, c *Config) {
				if c.ClassifyHotReload {
					t.Error("Expected hot reload to be disabled")
				}
			},
		},
		{
			name:   "metrics port conflict",
			mutate: func(c *Config) { c.MetricsEnabled = true; c.MetricsPort = c.Port },
			check: func(t *testing.T, c *Config) {
				if c.MetricsEnabled {
					t.Error("Expected metrics to be disabled on port conflict")
				}
			},
		},
		{
			name:   "too many sessions",
			mutate: func(c *Config) { c.MaxSessions = 5000 },
			check: func(t *testing.T, c *Config) {
				if c.MaxSessions != maxMaxSessions {
					t.Errorf("MaxSessions = %d, want %d", c.MaxSessions, maxMaxSessions)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			cfg.Validate()
			tt.check(t, cfg)
		})
	}
}

func TestRequiresProxy(t *testing.T) {
	cfg := Default()
	if !cfg.RequiresProxy() {
		t.Error("Expected default config to require proxy")
	}
	cfg.FileDownload = FileDownloadHTTPGet
	if cfg.RequiresProxy() {
		t.Error("Expected HTTPGET mode not to require proxy")
	}
}
