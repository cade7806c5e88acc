package goAuthClient

import (
	"errors"
	"fmt"
	"log/slog"

	internalaudit "github.com/MrEthical07/goAuthClient/internal/audit"
	"github.com/MrEthical07/goAuthClient/internal/flows"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/broadcast"
	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/refresh"
	"github.com/MrEthical07/goAuthClient/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Manager].
//
// Builder instances are intended to be configured during initialization and
// are single use: Build may be called once.
type Builder struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock
	redis  redis.UniversalClient

	storage     session.Storage
	api         backend.API
	bus         *events.Bus
	broadcaster broadcast.Broadcaster
	auditSink   AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLogger sets the structured logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the wall clock, typically with clock.Fake in tests.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithRedis supplies the client used by redis session storage and by the
// Redis broadcaster.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStorage injects session storage, overriding Session.Storage.
func (b *Builder) WithStorage(storage session.Storage) *Builder {
	b.storage = storage
	return b
}

// WithBackend injects the auth service implementation. Without it Build
// creates a backend.Client from Config.Backend.
func (b *Builder) WithBackend(api backend.API) *Builder {
	b.api = api
	return b
}

// WithBus shares an existing event bus instead of creating one.
func (b *Builder) WithBus(bus *events.Bus) *Builder {
	b.bus = bus
	return b
}

// WithBroadcaster injects the cross-process broadcaster. The Manager
// subscribes to it but does not close it.
func (b *Builder) WithBroadcaster(br broadcast.Broadcaster) *Builder {
	b.broadcaster = br
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Manager. No I/O happens
// until [Manager.Start].
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := b.clock
	if clk == nil {
		clk = clock.New()
	}

	// -------- SESSION STORE --------
	storage, err := b.buildStorage(cfg)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(storage,
		session.WithKey(cfg.Session.StorageKey),
		session.WithNow(clk.Now),
		session.WithLogger(logger),
	)

	// -------- BACKEND --------
	api := b.api
	if api == nil && !cfg.Auth.SpeedMode {
		if cfg.Backend.BaseURL == "" {
			return nil, errors.New("Backend BaseURL is required unless a backend is injected or speed mode is on")
		}
		client, err := backend.NewClient(backend.Config{
			BaseURL: cfg.Backend.BaseURL,
			Timeout: cfg.Backend.Timeout,
			Paths: backend.Paths{
				Health:       cfg.Backend.HealthPath,
				SignIn:       cfg.Backend.SignInPath,
				SignUp:       cfg.Backend.SignUpPath,
				SignOut:      cfg.Backend.SignOutPath,
				Revoke:       cfg.Backend.RevokePath,
				RefreshToken: cfg.Backend.RefreshPath,
				Permissions:  cfg.Backend.PermissionsPath,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("backend client: %w", err)
		}
		api = client
	}

	bus := b.bus
	if bus == nil {
		bus = events.NewBus(logger)
	}

	m := &Manager{
		cfg:         cfg,
		logger:      logger,
		clock:       clk,
		bus:         bus,
		store:       store,
		guard:       refresh.NewExpiryGuard(clk, cfg.Refresh.ExpiryCooldown),
		metrics:     NewMetrics(cfg.Metrics),
		redis:       b.redis,
		broadcaster: b.broadcaster,
		visible:     true,
	}
	m.flows = flows.New(flows.Deps{
		API:      api,
		Sessions: store,
		Now:      clk.Now,
	})
	m.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, clk.Now)

	// -------- PERMISSION GATE --------
	gate, err := m.newGate()
	if err != nil {
		m.audit.Close()
		return nil, err
	}
	m.gate = gate

	m.wire()
	b.built = true

	return m, nil
}

func (b *Builder) buildStorage(cfg Config) (session.Storage, error) {
	if b.storage != nil {
		return b.storage, nil
	}
	switch cfg.Session.Storage {
	case StorageFile:
		return session.NewFileStorage(cfg.Session.FileDir)
	case StorageRedis:
		if b.redis == nil {
			return nil, errors.New("redis session storage requires a redis client")
		}
		return session.NewRedisStorage(b.redis, cfg.Session.RedisPrefix), nil
	default:
		return session.NewMemoryStorage(), nil
	}
}
