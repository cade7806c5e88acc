package goAuthClient

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every variable read by [LoadConfigFromEnv].
const EnvPrefix = "GOAUTHCLIENT_"

// Config is the full client configuration. Start from [DefaultConfig] and
// override what you need; Builder clones it on input.
type Config struct {
	Backend   BackendConfig   `yaml:"backend" envPrefix:"BACKEND_"`
	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	Refresh   RefreshConfig   `yaml:"refresh" envPrefix:"REFRESH_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Broadcast BroadcastConfig `yaml:"broadcast" envPrefix:"BROADCAST_"`
	Audit     AuditConfig     `yaml:"audit" envPrefix:"AUDIT_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig locates the auth REST service.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// PermissionTimeout bounds one permission fetch.
	PermissionTimeout time.Duration `yaml:"permission_timeout" env:"PERMISSION_TIMEOUT"`
	HealthPath        string        `yaml:"health_path" env:"HEALTH_PATH"`
	SignInPath        string        `yaml:"sign_in_path" env:"SIGN_IN_PATH"`
	SignUpPath        string        `yaml:"sign_up_path" env:"SIGN_UP_PATH"`
	SignOutPath       string        `yaml:"sign_out_path" env:"SIGN_OUT_PATH"`
	RevokePath        string        `yaml:"revoke_path" env:"REVOKE_PATH"`
	RefreshPath       string        `yaml:"refresh_path" env:"REFRESH_PATH"`
	PermissionsPath   string        `yaml:"permissions_path" env:"PERMISSIONS_PATH"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// StorageKind selects the session persistence backend.
type StorageKind string

const (
	StorageMemory StorageKind = "memory"
	StorageFile   StorageKind = "file"
	StorageRedis  StorageKind = "redis"
)

// SessionConfig controls where the session record lives.
type SessionConfig struct {
	StorageKey  string      `yaml:"storage_key" env:"STORAGE_KEY"`
	Storage     StorageKind `yaml:"storage" env:"STORAGE"`
	FileDir     string      `yaml:"file_dir" env:"FILE_DIR"`
	RedisPrefix string      `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig tunes the sliding refresh engine and the expiry guard.
type RefreshConfig struct {
	CheckInterval    time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"`
	RefreshWindow    time.Duration `yaml:"refresh_window" env:"WINDOW"`
	ActivityThrottle time.Duration `yaml:"activity_throttle" env:"ACTIVITY_THROTTLE"`
	RefreshTimeout   time.Duration `yaml:"refresh_timeout" env:"TIMEOUT"`
	ExpiryCooldown   time.Duration `yaml:"expiry_cooldown" env:"EXPIRY_COOLDOWN"`
}

/*
====================================
AUTH CONFIG
====================================
*/

// AuthConfig controls login behavior.
type AuthConfig struct {
	// LoginSettleDelay defers auth:login-success so subscribers see the
	// persisted state. Zero emits synchronously.
	LoginSettleDelay time.Duration `yaml:"login_settle_delay" env:"LOGIN_SETTLE_DELAY"`
	// SpeedMode skips the backend entirely and acts as a signed-in admin.
	// Development only.
	SpeedMode bool `yaml:"speed_mode" env:"SPEED_MODE"`
}

/*
====================================
BROADCAST CONFIG
====================================
*/

// BroadcastConfig controls cross-process session sync.
type BroadcastConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Channel string `yaml:"channel" env:"CHANNEL"`
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"BUFFER_SIZE"`
	DropIfFull bool `yaml:"drop_if_full" env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"ENABLED"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" env:"LATENCY_HISTOGRAMS"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			Timeout:           10 * time.Second,
			PermissionTimeout: 15 * time.Second,
		},
		Session: SessionConfig{
			StorageKey:  "goauth.session",
			Storage:     StorageMemory,
			RedisPrefix: "gac",
		},
		Refresh: RefreshConfig{
			CheckInterval:    30 * time.Second,
			RefreshWindow:    5 * time.Minute,
			ActivityThrottle: 30 * time.Second,
			RefreshTimeout:   15 * time.Second,
			ExpiryCooldown:   300 * time.Millisecond,
		},
		Auth: AuthConfig{
			LoginSettleDelay: 100 * time.Millisecond,
		},
		Broadcast: BroadcastConfig{
			Channel: "goauth.sync",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// LoadConfigFromEnv overlays GOAUTHCLIENT_* variables on the defaults,
// e.g. GOAUTHCLIENT_BACKEND_BASE_URL or GOAUTHCLIENT_REFRESH_WINDOW=2m.
func LoadConfigFromEnv() (Config, error) {
	return loadConfigFromEnv(nil)
}

func loadConfigFromEnv(environment map[string]string) (Config, error) {
	cfg := defaultConfig()
	if err := applyEnv(&cfg, environment); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config file over [DefaultConfig], then applies
// GOAUTHCLIENT_* environment overrides and validates the result. A missing
// file is not an error.
func LoadConfigFile(path string) (Config, error) {
	return loadConfigFile(path, nil)
}

func loadConfigFile(path string, environment map[string]string) (Config, error) {
	cfg := defaultConfig()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := applyEnv(&cfg, environment); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteConfigFile stores cfg as YAML at path with owner-only permissions.
func WriteConfigFile(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, environment map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Backend.BaseURL != "" &&
		!strings.HasPrefix(c.Backend.BaseURL, "http://") &&
		!strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return errors.New("Backend BaseURL must start with http:// or https://")
	}
	if c.Backend.Timeout < 0 || c.Backend.PermissionTimeout < 0 {
		return errors.New("Backend timeouts must be >= 0")
	}

	if strings.TrimSpace(c.Session.StorageKey) == "" {
		return errors.New("Session StorageKey must not be empty")
	}
	switch c.Session.Storage {
	case StorageMemory, StorageRedis:
	case StorageFile:
		if strings.TrimSpace(c.Session.FileDir) == "" {
			return errors.New("Session FileDir is required for file storage")
		}
	default:
		return errors.New("Session Storage must be 'memory', 'file' or 'redis'")
	}

	if c.Refresh.CheckInterval <= 0 {
		return errors.New("Refresh CheckInterval must be > 0")
	}
	if c.Refresh.RefreshWindow <= 0 {
		return errors.New("Refresh RefreshWindow must be > 0")
	}
	if c.Refresh.ActivityThrottle <= 0 {
		return errors.New("Refresh ActivityThrottle must be > 0")
	}
	if c.Refresh.RefreshTimeout <= 0 {
		return errors.New("Refresh RefreshTimeout must be > 0")
	}
	if c.Refresh.ExpiryCooldown <= 0 {
		return errors.New("Refresh ExpiryCooldown must be > 0")
	}

	if c.Auth.LoginSettleDelay < 0 {
		return errors.New("Auth LoginSettleDelay must be >= 0")
	}

	if c.Broadcast.Enabled && strings.TrimSpace(c.Broadcast.Channel) == "" {
		return errors.New("Broadcast Channel is required when broadcast is enabled")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
