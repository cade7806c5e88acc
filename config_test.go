package goAuthClient

import (
	"os"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "base url https valid",
			mutate: func(c *Config) {
				c.Backend.BaseURL = "https://api.example.com"
			},
			wantValid: true,
		},
		{
			name: "base url without scheme invalid",
			mutate: func(c *Config) {
				c.Backend.BaseURL = "api.example.com"
			},
			wantValid: false,
		},
		{
			name: "negative backend timeout invalid",
			mutate: func(c *Config) {
				c.Backend.Timeout = -time.Second
			},
			wantValid: false,
		},
		{
			name: "blank storage key invalid",
			mutate: func(c *Config) {
				c.Session.StorageKey = "  "
			},
			wantValid: false,
		},
		{
			name: "file storage without dir invalid",
			mutate: func(c *Config) {
				c.Session.Storage = StorageFile
			},
			wantValid: false,
		},
		{
			name: "file storage with dir valid",
			mutate: func(c *Config) {
				c.Session.Storage = StorageFile
				c.Session.FileDir = "/tmp/goauth"
			},
			wantValid: true,
		},
		{
			name: "unknown storage invalid",
			mutate: func(c *Config) {
				c.Session.Storage = "cookie"
			},
			wantValid: false,
		},
		{
			name: "zero check interval invalid",
			mutate: func(c *Config) {
				c.Refresh.CheckInterval = 0
			},
			wantValid: false,
		},
		{
			name: "zero refresh window invalid",
			mutate: func(c *Config) {
				c.Refresh.RefreshWindow = 0
			},
			wantValid: false,
		},
		{
			name: "zero throttle invalid",
			mutate: func(c *Config) {
				c.Refresh.ActivityThrottle = 0
			},
			wantValid: false,
		},
		{
			name: "zero expiry cooldown invalid",
			mutate: func(c *Config) {
				c.Refresh.ExpiryCooldown = 0
			},
			wantValid: false,
		},
		{
			name: "zero settle delay valid",
			mutate: func(c *Config) {
				c.Auth.LoginSettleDelay = 0
			},
			wantValid: true,
		},
		{
			name: "negative settle delay invalid",
			mutate: func(c *Config) {
				c.Auth.LoginSettleDelay = -time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "broadcast without channel invalid",
			mutate: func(c *Config) {
				c.Broadcast.Enabled = true
				c.Broadcast.Channel = ""
			},
			wantValid: false,
		},
		{
			name: "audit enabled zero buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit disabled zero buffer valid",
			mutate: func(c *Config) {
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	cfg, err := loadConfigFromEnv(map[string]string{
		"GOAUTHCLIENT_BACKEND_BASE_URL":           "http://localhost:8080",
		"GOAUTHCLIENT_SESSION_STORAGE":            "redis",
		"GOAUTHCLIENT_SESSION_REDIS_PREFIX":       "tenant-a",
		"GOAUTHCLIENT_REFRESH_WINDOW":             "2m",
		"GOAUTHCLIENT_AUTH_LOGIN_SETTLE_DELAY":    "0s",
		"GOAUTHCLIENT_AUTH_SPEED_MODE":            "true",
		"GOAUTHCLIENT_BROADCAST_ENABLED":          "true",
		"GOAUTHCLIENT_METRICS_LATENCY_HISTOGRAMS": "true",
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected base url %q", cfg.Backend.BaseURL)
	}
	if cfg.Session.Storage != StorageRedis || cfg.Session.RedisPrefix != "tenant-a" {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.Refresh.RefreshWindow != 2*time.Minute {
		t.Fatalf("unexpected refresh window %v", cfg.Refresh.RefreshWindow)
	}
	if cfg.Refresh.ActivityThrottle != 30*time.Second {
		t.Fatalf("defaults must survive, got throttle %v", cfg.Refresh.ActivityThrottle)
	}
	if cfg.Auth.LoginSettleDelay != 0 || !cfg.Auth.SpeedMode {
		t.Fatalf("unexpected auth config %+v", cfg.Auth)
	}
	if !cfg.Broadcast.Enabled || cfg.Broadcast.Channel != "goauth.sync" {
		t.Fatalf("unexpected broadcast config %+v", cfg.Broadcast)
	}
	if !cfg.Metrics.EnableLatencyHistograms {
		t.Fatalf("expected latency histograms enabled")
	}
}

func TestLoadConfigFromEnvRejectsInvalid(t *testing.T) {
	if _, err := loadConfigFromEnv(map[string]string{
		"GOAUTHCLIENT_REFRESH_WINDOW": "soon",
	}); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := loadConfigFromEnv(map[string]string{
		"GOAUTHCLIENT_SESSION_STORAGE": "file",
	}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadConfigFileLayersEnvOverYAML(t *testing.T) {
	path := t.TempDir() + "/goauthclient.yaml"
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "https://auth.example.com"
	cfg.Refresh.RefreshWindow = 90 * time.Second
	cfg.Session.Storage = StorageFile
	cfg.Session.FileDir = "/var/lib/goauthclient"
	if err := WriteConfigFile(path, cfg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := loadConfigFile(path, map[string]string{
		"GOAUTHCLIENT_BACKEND_BASE_URL": "http://localhost:9000",
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Backend.BaseURL != "http://localhost:9000" {
		t.Fatalf("env must override file, got %q", got.Backend.BaseURL)
	}
	if got.Refresh.RefreshWindow != 90*time.Second {
		t.Fatalf("file value lost, got %v", got.Refresh.RefreshWindow)
	}
	if got.Session.Storage != StorageFile || got.Session.FileDir != "/var/lib/goauthclient" {
		t.Fatalf("unexpected session config %+v", got.Session)
	}
}

func TestLoadConfigFileMissingUsesDefaults(t *testing.T) {
	got, err := loadConfigFile(t.TempDir()+"/absent.yaml", map[string]string{})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Refresh.CheckInterval != DefaultConfig().Refresh.CheckInterval {
		t.Fatalf("expected defaults, got %+v", got.Refresh)
	}
}

func TestLoadConfigFileRejectsMalformedYAML(t *testing.T) {
	path := t.TempDir() + "/bad.yaml"
	if err := os.WriteFile(path, []byte("refresh: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfigFile(path, map[string]string{}); err == nil {
		t.Fatalf("expected parse error")
	}
}
