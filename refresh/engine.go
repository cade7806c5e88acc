package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/session"
	"golang.org/x/time/rate"
)

// State is the engine's lifecycle position.
type State uint8

const (
	StateIdle State = iota
	StateScheduled
	StateRefreshing
	StateExpired
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Expiry reasons passed to the expired callback.
const (
	ReasonExpiredAtStart = "expired_at_start"
	ReasonTimer          = "timer"
	ReasonPeriodicCheck  = "periodic_check"
	ReasonActivity       = "activity"
	ReasonRefreshFailed  = "refresh_failed"
)

var errNilSession = errors.New("refresher returned nil session")

// SessionStore is the persistence the engine reads and writes.
// *session.Store satisfies it.
type SessionStore interface {
	Read(ctx context.Context) *session.Session
	Save(ctx context.Context, sess *session.Session) error
}

// Refresher exchanges the current session for a new one. It performs the
// network call only; the engine persists the result.
type Refresher func(ctx context.Context, current *session.Session) (*session.Session, error)

// Hooks observe engine transitions. Every field is optional. Hooks run
// without the engine lock held.
type Hooks struct {
	OnExpired        func(reason string)
	OnRefreshed      func(sess *session.Session)
	OnRefreshFailed  func(err error)
	OnThrottled      func(activity Activity)
	OnRefreshLatency func(d time.Duration)
}

// Config tunes the engine.
type Config struct {
	// CheckInterval is the period of the timer re-arm.
	CheckInterval time.Duration
	// RefreshWindow is how close to expiry activity must be to refresh.
	RefreshWindow time.Duration
	// ActivityThrottle is the minimum spacing of activity-triggered checks.
	ActivityThrottle time.Duration
	// RefreshTimeout bounds a single refresh call.
	RefreshTimeout time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		CheckInterval:    30 * time.Second,
		RefreshWindow:    5 * time.Minute,
		ActivityThrottle: 30 * time.Second,
		RefreshTimeout:   15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.RefreshWindow <= 0 {
		c.RefreshWindow = def.RefreshWindow
	}
	if c.ActivityThrottle <= 0 {
		c.ActivityThrottle = def.ActivityThrottle
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = def.RefreshTimeout
	}
	return c
}

// Engine schedules expiry checks and sliding refreshes for one login.
type Engine struct {
	cfg     Config
	store   SessionStore
	refresh Refresher
	hooks   Hooks
	clock   clock.Clock
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	visible  bool
	limiter  *rate.Limiter
	expiry   clock.Timer
	periodic clock.Timer
	gen      uint64
	expired  bool

	wg sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// NewEngine builds an idle engine. Call Start to begin scheduling.
func NewEngine(cfg Config, store SessionStore, refresher Refresher, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		store:   store,
		refresh: refresher,
		clock:   clock.New(),
		logger:  slog.Default(),
		state:   StateIdle,
		visible: true,
		limiter: rate.NewLimiter(rate.Every(cfg.ActivityThrottle), 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start inspects the stored session. With no session the engine stays idle;
// an already expired session goes straight to Expired; otherwise timers are
// armed. Start is a no-op outside the Idle state.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return
	}

	sess := e.store.Read(context.Background())
	if sess == nil {
		e.mu.Unlock()
		return
	}

	now := e.clock.Now()
	if !sess.Valid(now) {
		e.mu.Unlock()
		e.expire(ReasonExpiredAtStart)
		return
	}

	e.state = StateScheduled
	e.armExpiryLocked(sess, now)
	e.armPeriodicLocked()
	e.mu.Unlock()

	e.logger.Debug("refresh_engine_started", slog.Time("expires_at", sess.Expiry()))
}

// Stop cancels timers and discards any refresh still in flight. It does not
// wait for that refresh; use Wait. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return
	}
	e.stopTimersLocked()
	e.gen++
	e.state = StateStopped
}

// Wait blocks until in-flight refresh goroutines have returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// SetVisible records page visibility. Becoming visible counts as a
// visibility-change activity.
func (e *Engine) SetVisible(visible bool) {
	e.mu.Lock()
	becameVisible := visible && !e.visible
	e.visible = visible
	e.mu.Unlock()

	if becameVisible {
		e.NotifyActivity(ActivityVisibilityChange)
	}
}

// NotifyActivity handles a user interaction and reports whether it started a
// refresh.
func (e *Engine) NotifyActivity(activity Activity) bool {
	if !activity.Qualifies() {
		return false
	}

	e.mu.Lock()
	if e.state != StateScheduled || !e.visible {
		e.mu.Unlock()
		return false
	}

	now := e.clock.Now()
	if !e.limiter.AllowN(now, 1) {
		e.mu.Unlock()
		if e.hooks.OnThrottled != nil {
			e.hooks.OnThrottled(activity)
		}
		return false
	}

	sess := e.store.Read(context.Background())
	if !sess.Valid(now) {
		e.mu.Unlock()
		e.expire(ReasonActivity)
		return false
	}
	if sess.Remaining(now) > e.cfg.RefreshWindow {
		e.mu.Unlock()
		return false
	}

	e.state = StateRefreshing
	gen := e.gen
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Debug("refresh_started", slog.String("activity", activity.String()))
	go e.runRefresh(gen, sess.Clone())
	return true
}

func (e *Engine) runRefresh(gen uint64, current *session.Session) {
	defer e.wg.Done()

	start := e.clock.Now()
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RefreshTimeout)
	next, err := e.refresh(ctx, current)
	cancel()
	if err == nil && next == nil {
		err = errNilSession
	}

	e.mu.Lock()
	if e.gen != gen || e.state != StateRefreshing {
		e.mu.Unlock()
		e.logger.Debug("refresh_result_discarded")
		return
	}
	if err == nil {
		err = e.store.Save(context.Background(), next)
	}
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn("refresh_failed", slog.Any("error", err))
		if e.hooks.OnRefreshFailed != nil {
			e.hooks.OnRefreshFailed(err)
		}
		e.expire(ReasonRefreshFailed)
		return
	}

	now := e.clock.Now()
	e.state = StateScheduled
	e.armExpiryLocked(next, now)
	e.armPeriodicLocked()
	e.mu.Unlock()

	if e.hooks.OnRefreshLatency != nil {
		e.hooks.OnRefreshLatency(now.Sub(start))
	}
	if e.hooks.OnRefreshed != nil {
		e.hooks.OnRefreshed(next)
	}
}

// armExpiryLocked replaces the one-shot timer with one firing at sess expiry.
func (e *Engine) armExpiryLocked(sess *session.Session, now time.Time) {
	if e.expiry != nil {
		e.expiry.Stop()
	}
	delay := sess.Remaining(now)
	if delay < 0 {
		delay = 0
	}
	gen := e.gen
	e.expiry = e.clock.AfterFunc(delay, func() { e.onExpiryTimer(gen) })
}

func (e *Engine) armPeriodicLocked() {
	if e.periodic != nil {
		e.periodic.Stop()
	}
	gen := e.gen
	e.periodic = e.clock.AfterFunc(e.cfg.CheckInterval, func() { e.onPeriodic(gen) })
}

func (e *Engine) onExpiryTimer(gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.state != StateScheduled {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	sess := e.store.Read(context.Background())
	if sess.Valid(now) {
		e.armExpiryLocked(sess, now)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.expire(ReasonTimer)
}

func (e *Engine) onPeriodic(gen uint64) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	switch e.state {
	case StateScheduled:
	case StateRefreshing:
		e.armPeriodicLocked()
		e.mu.Unlock()
		return
	default:
		e.mu.Unlock()
		return
	}

	now := e.clock.Now()
	sess := e.store.Read(context.Background())
	if !sess.Valid(now) {
		e.mu.Unlock()
		e.expire(ReasonPeriodicCheck)
		return
	}
	e.armExpiryLocked(sess, now)
	e.armPeriodicLocked()
	e.mu.Unlock()
}

// expire moves to Expired and invokes OnExpired once per engine.
func (e *Engine) expire(reason string) {
	e.mu.Lock()
	if e.expired || e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	e.expired = true
	e.state = StateExpired
	e.stopTimersLocked()
	e.gen++
	e.mu.Unlock()

	e.logger.Info("session_expired", slog.String("reason", reason))
	if e.hooks.OnExpired != nil {
		e.hooks.OnExpired(reason)
	}
}

func (e *Engine) stopTimersLocked() {
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
	if e.periodic != nil {
		e.periodic.Stop()
		e.periodic = nil
	}
}
