package goAuthClient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/goAuthClient/internal/audit"
	"github.com/MrEthical07/goAuthClient/internal/flows"

	"github.com/MrEthical07/goAuthClient/broadcast"
	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/permission"
	"github.com/MrEthical07/goAuthClient/refresh"
	"github.com/MrEthical07/goAuthClient/session"
	"github.com/redis/go-redis/v9"
)

var errRefreshDiscarded = errors.New("refresh result discarded")

// Manager owns the authentication lifecycle of one client: the persisted
// session, the refresh engine for the current login, the permission gate
// and the event bus.
//
// Manager instances are built by [Builder.Build] and are safe for
// concurrent use.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	clock   clock.Clock
	bus     *events.Bus
	store   *session.Store
	flows   flows.Service
	gate    *permission.Gate
	guard   *refresh.ExpiryGuard
	audit   *internalaudit.Dispatcher
	metrics *Metrics

	redis           redis.UniversalClient
	broadcaster     broadcast.Broadcaster
	ownsBroadcaster bool

	serviceUnavailable atomic.Bool

	// refreshMu serializes refresh token rotation. Refresh tokens are single
	// use, so two concurrent exchanges would reject the session.
	refreshMu sync.Mutex

	mu         sync.Mutex
	started    bool
	closed     bool
	state      AuthState
	user       *User
	sess       *session.Session
	sessionGen uint64
	engine     *refresh.Engine
	settle     clock.Timer
	visible    bool
	unsub      []func()

	wg sync.WaitGroup
}

// wire registers the manager's own bus handlers. They are registered before
// anything else so they run first for every emission.
func (m *Manager) wire() {
	m.unsub = append(m.unsub,
		events.On(m.bus, events.AuthSessionExpired, func(events.SessionExpired) {
			m.clearLocal()
		}),
		events.On(m.bus, events.AuthzPermissionsReady, m.onPermissions),
		events.On(m.bus, events.AuthzPermissionsUpdated, m.onPermissions),
	)
	m.gate.Attach()
	if m.audit != nil {
		m.unsub = append(m.unsub, m.wireAudit()...)
	}
}

// Start restores a stored session, starts its refresh engine and loads
// permissions for it. With broadcast enabled it also joins the sync
// channel. Start is a no-op after the first call.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.startBroadcast(ctx); err != nil {
		return err
	}

	if m.cfg.Auth.SpeedMode {
		m.enterSpeedMode(ctx)
		return nil
	}

	sess := m.store.Read(ctx)
	if sess == nil {
		m.logger.Debug("no_stored_session")
		return nil
	}

	user := m.userFromToken(sess.AccessToken)
	gen, err := m.establish(sess, user)
	if err != nil {
		return err
	}

	m.mu.Lock()
	current := gen == m.sessionGen
	m.mu.Unlock()
	if !current {
		// The stored session had already expired.
		return nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.gate.Load(context.Background(), user)
	}()
	m.logger.Info("session_restored", slog.String("user_id", user.ID))
	return nil
}

func (m *Manager) enterSpeedMode(ctx context.Context) {
	user := speedModeUser
	m.mu.Lock()
	m.state = StateSpeedMode
	m.user = &user
	m.mu.Unlock()

	_ = m.gate.Load(ctx, user)
	events.Emit(m.bus, events.AuthLoginSuccess, events.LoginSuccess{User: user})
	m.logger.Warn("speed_mode_enabled")
}

// userFromToken derives the user from the access token claims without
// verifying the signature. The permission fetch replaces it.
func (m *Manager) userFromToken(token string) User {
	claims, err := jwt.ParseUnverified(token)
	if err != nil {
		m.logger.Warn("access_token_claims_unreadable", slog.Any("error", err))
		return User{}
	}
	id := claims.Identity()
	return User{
		ID:        id.UserID,
		Email:     id.Email,
		Role:      id.Role,
		TenantID:  id.TenantID,
		AvatarURL: id.AvatarURL,
	}
}

// establish installs sess as the current login and starts a fresh refresh
// engine for it. It returns the session generation of the new login.
// establish makes sess the current login and starts its refresh engine. It
// fails with ErrManagerClosed once Close has run, leaving no timers behind.
func (m *Manager) establish(sess *session.Session, user User) (uint64, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrManagerClosed
	}
	m.mu.Unlock()

	m.gate.Reset()
	m.guard.Reset()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrManagerClosed
	}
	old := m.engine
	m.stopSettleLocked()
	m.sessionGen++
	gen := m.sessionGen
	m.state = StateSignedIn
	m.user = &user
	m.sess = sess.Clone()
	eng := m.newEngine(gen)
	m.engine = eng
	visible := m.visible
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	eng.SetVisible(visible)
	eng.Start()
	return gen, nil
}

func (m *Manager) newEngine(gen uint64) *refresh.Engine {
	cfg := refresh.Config{
		CheckInterval:    m.cfg.Refresh.CheckInterval,
		RefreshWindow:    m.cfg.Refresh.RefreshWindow,
		ActivityThrottle: m.cfg.Refresh.ActivityThrottle,
		RefreshTimeout:   m.cfg.Refresh.RefreshTimeout,
	}
	hooks := refresh.Hooks{
		OnExpired: func(reason string) {
			if m.isCurrent(gen) {
				m.HandleSessionExpired(reason)
			}
		},
		OnRefreshed: func(sess *session.Session) {
			m.onRefreshed(gen, sess)
		},
		OnRefreshFailed: func(error) {
			m.metrics.Inc(MetricRefreshFailure)
		},
		OnThrottled: func(refresh.Activity) {
			m.metrics.Inc(MetricActivityThrottled)
		},
		OnRefreshLatency: func(d time.Duration) {
			m.metrics.Observe(MetricRefreshLatency, d)
		},
	}
	refresher := func(ctx context.Context, _ *session.Session) (*session.Session, error) {
		res := m.rotate(ctx, gen)
		if res.Failure != flows.RefreshFailureNone {
			return nil, res.Err
		}
		return res.Session, nil
	}
	return refresh.NewEngine(cfg, engineStore{m.store}, refresher,
		refresh.WithClock(m.clock),
		refresh.WithLogger(m.logger),
		refresh.WithHooks(hooks),
	)
}

// engineStore gives the engine read access to the persisted session. rotate
// persists every refresh result, so Save is a no-op.
type engineStore struct {
	store *session.Store
}

func (s engineStore) Read(ctx context.Context) *session.Session {
	return s.store.Read(ctx)
}

func (engineStore) Save(context.Context, *session.Session) error {
	return nil
}

// rotate exchanges the refresh token of the login gen and persists the
// result. A result for a login that has since ended is discarded.
func (m *Manager) rotate(ctx context.Context, gen uint64) flows.RefreshResult {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	if gen != m.sessionGen {
		m.mu.Unlock()
		return flows.RefreshResult{Failure: flows.RefreshFailureNoSession, Err: errRefreshDiscarded}
	}
	current := m.sess.Clone()
	m.mu.Unlock()
	if current == nil {
		return flows.RefreshResult{Failure: flows.RefreshFailureNoSession, Err: ErrNotAuthenticated}
	}

	res := m.flows.Exchange(ctx, current)
	if res.Failure != flows.RefreshFailureNone {
		return res
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.sessionGen {
		m.logger.Debug("refresh_result_discarded")
		return flows.RefreshResult{Failure: flows.RefreshFailureNoSession, Err: errRefreshDiscarded}
	}
	if err := m.store.Save(ctx, res.Session); err != nil {
		return flows.RefreshResult{Failure: flows.RefreshFailurePersist, Err: fmt.Errorf("%w: %v", ErrSessionPersist, err)}
	}
	m.sess = res.Session.Clone()
	return res
}

func (m *Manager) onRefreshed(gen uint64, sess *session.Session) {
	if !m.isCurrent(gen) {
		return
	}
	m.metrics.Inc(MetricRefreshSuccess)
	events.Emit(m.bus, events.AuthTokenRefreshed, events.TokenRefreshed{ExpiresAt: sess.Expiry()})
}

func (m *Manager) onPermissions(p events.Permissions) {
	if p.User.ID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSignedIn {
		return
	}
	u := p.User
	m.user = &u
}

// clearLocal drops the in-memory login. It does not touch storage.
func (m *Manager) clearLocal() {
	m.mu.Lock()
	eng := m.engine
	m.engine = nil
	m.stopSettleLocked()
	m.sessionGen++
	if m.state == StateSignedIn {
		m.state = StateSignedOut
	}
	if m.state != StateSpeedMode {
		m.user = nil
	}
	m.sess = nil
	m.mu.Unlock()

	if eng != nil {
		eng.Stop()
	}
	if !m.cfg.Auth.SpeedMode {
		m.gate.Reset()
	}
}

func (m *Manager) stopSettleLocked() {
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.sessionGen && !m.closed
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// NotifyActivity forwards a user interaction to the refresh engine and
// reports whether it started a refresh.
func (m *Manager) NotifyActivity(a Activity) bool {
	m.mu.Lock()
	eng := m.engine
	m.mu.Unlock()
	if eng == nil {
		return false
	}
	return eng.NotifyActivity(a)
}

// SetVisible records whether the client is in the foreground. Activity
// while hidden never refreshes.
func (m *Manager) SetVisible(visible bool) {
	m.mu.Lock()
	m.visible = visible
	eng := m.engine
	m.mu.Unlock()
	if eng != nil {
		eng.SetVisible(visible)
	}
}

// IsAuthenticated reports whether a login (or speed mode) is active.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateSignedOut
}

// State returns the coarse lifecycle state.
func (m *Manager) State() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns the current user.
func (m *Manager) User() (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return User{}, false
	}
	return *m.user, true
}

// AccessToken returns the current access token, or "" when signed out or
// once the token has expired.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || !m.sess.Valid(m.clock.Now()) {
		return ""
	}
	return m.sess.AccessToken
}

// ServiceUnavailable reports the sticky flag set when the auth service
// preflight fails. It clears on the next successful preflight or through
// [Manager.ClearServiceUnavailable].
func (m *Manager) ServiceUnavailable() bool {
	return m.serviceUnavailable.Load()
}

func (m *Manager) ClearServiceUnavailable() {
	m.serviceUnavailable.Store(false)
}

func (m *Manager) markUnavailable(err error) {
	m.serviceUnavailable.Store(true)
	m.metrics.Inc(MetricServiceUnavailable)
	m.logger.Warn("auth_service_unavailable", slog.Any("error", err))
	events.Emit(m.bus, events.AuthServiceUnavailable, events.ServiceUnavailable{Err: err})
}

// Status returns a snapshot for diagnostics.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{State: m.state}
	if m.user != nil {
		u := *m.user
		st.User = &u
	}
	if m.sess != nil {
		st.ExpiresAt = m.sess.ExpiresAt
	}
	eng := m.engine
	m.mu.Unlock()

	if eng != nil {
		st.RefreshState = eng.State().String()
	}
	st.PermissionsReady = m.gate.IsReady()
	st.Permissions = m.gate.Permissions()
	st.ServiceUnavailable = m.ServiceUnavailable()
	return st
}

func (m *Manager) Bus() *events.Bus {
	return m.bus
}

func (m *Manager) Gate() *permission.Gate {
	return m.gate
}

func (m *Manager) Store() *session.Store {
	return m.store
}

func (m *Manager) Config() Config {
	return cloneConfig(m.cfg)
}

// MetricsSnapshot returns the current counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.metrics.Snapshot()
}

// AuditDropped returns the number of audit records dropped because the
// buffer was full.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}

// Close stops timers, unsubscribes handlers, leaves the sync channel and
// flushes audit records. The stored session is kept so the next Start can
// restore it.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	eng := m.engine
	m.engine = nil
	m.stopSettleLocked()
	m.sessionGen++
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()

	if eng != nil {
		eng.Stop()
		eng.Wait()
	}
	for _, fn := range unsub {
		fn()
	}
	m.gate.Close()
	m.wg.Wait()

	var err error
	if m.broadcaster != nil && m.ownsBroadcaster {
		err = m.broadcaster.Close()
	}
	m.audit.Close()
	return err
}
