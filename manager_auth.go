package goAuthClient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/broadcast"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/internal/flows"
)

// Login checks that the auth service is reachable, signs in and persists
// the issued session.
//
// An unreachable service fails with ErrAuthServiceUnavailable and sets the
// sticky [Manager.ServiceUnavailable] flag. Rejected credentials fail with
// ErrInvalidCredentials. On success a new refresh engine starts and
// auth:login-success is emitted after the configured settle delay.
func (m *Manager) Login(ctx context.Context, email, password string, opts LoginOptions) (*User, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	if m.cfg.Auth.SpeedMode {
		u := speedModeUser
		return &u, nil
	}

	res, gen, err := m.signIn(func() flows.AuthResult {
		return m.flows.Login(ctx, backend.SignInRequest{Email: email, Password: password})
	})
	if err != nil {
		return nil, err
	}
	if res.Failure != flows.AuthFailureNone {
		m.metrics.Inc(MetricLoginFailure)
		return nil, m.authFailed(ctx, auditEventLogin, res)
	}
	m.serviceUnavailable.Store(false)
	m.metrics.Inc(MetricLoginSuccess)

	m.logger.Info("login_succeeded", slog.String("user_id", res.User.ID))
	m.emitLoginSuccess(gen, events.LoginSuccess{User: res.User, ExpiresAt: res.Session.Expiry()}, opts.SkipSettleDelay)

	u := res.User
	return &u, nil
}

// Register creates an account and signs it in. It emits
// auth:register-success immediately and auth:login-success after the settle
// delay, which drives the permission fetch.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	if m.cfg.Auth.SpeedMode {
		u := speedModeUser
		return &u, nil
	}

	res, gen, err := m.signIn(func() flows.AuthResult {
		return m.flows.Register(ctx, backend.SignUpRequest{
			Email:             req.Email,
			Password:          req.Password,
			InviteCode:        req.InviteCode,
			WithNewInvitation: req.WithNewInvitation,
		})
	})
	if err != nil {
		return nil, err
	}
	if res.Failure != flows.AuthFailureNone {
		m.metrics.Inc(MetricRegisterFailure)
		return nil, m.authFailed(ctx, auditEventRegister, res)
	}
	m.serviceUnavailable.Store(false)
	m.metrics.Inc(MetricRegisterSuccess)

	m.logger.Info("register_succeeded", slog.String("user_id", res.User.ID))
	events.Emit(m.bus, events.AuthRegisterSuccess, events.RegisterSuccess{User: res.User})
	m.emitLoginSuccess(gen, events.LoginSuccess{User: res.User, ExpiresAt: res.Session.Expiry()}, false)

	u := res.User
	return &u, nil
}

// signIn runs an auth flow that persists a new session and establishes it.
// It holds refreshMu so an in-flight rotation of the previous login cannot
// overwrite the stored session in between.
// A result that arrives after Close is discarded with ErrManagerClosed.
func (m *Manager) signIn(flow func() flows.AuthResult) (flows.AuthResult, uint64, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	res := flow()
	if res.Failure != flows.AuthFailureNone {
		return res, 0, nil
	}
	gen, err := m.establish(res.Session, res.User)
	if err != nil {
		m.logger.Debug("auth_result_discarded", slog.Any("error", err))
		return res, 0, err
	}
	return res, gen, nil
}

func (m *Manager) authFailed(ctx context.Context, op string, res flows.AuthResult) error {
	switch res.Failure {
	case flows.AuthFailureUnavailable:
		m.markUnavailable(res.Err)
	case flows.AuthFailureInput:
	default:
		// The preflight succeeded.
		m.serviceUnavailable.Store(false)
	}

	m.logger.Warn(op+"_failed",
		slog.String("failure", res.Failure.String()),
		slog.Any("error", res.Err),
	)
	m.emitAudit(ctx, AuditEvent{
		EventType: op,
		Success:   false,
		Reason:    res.Failure.String(),
		Error:     errString(res.Err),
	})

	if res.Failure == flows.AuthFailurePersist {
		return fmt.Errorf("%w: %v", ErrSessionPersist, res.Err)
	}
	return res.Err
}

// emitLoginSuccess emits ev now or after the settle delay. A delayed emit
// is dropped when the login it belongs to is no longer current.
func (m *Manager) emitLoginSuccess(gen uint64, ev events.LoginSuccess, immediate bool) {
	delay := m.cfg.Auth.LoginSettleDelay
	if immediate || delay <= 0 {
		if m.isCurrent(gen) {
			events.Emit(m.bus, events.AuthLoginSuccess, ev)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.sessionGen || m.closed {
		return
	}
	m.settle = m.clock.AfterFunc(delay, func() {
		m.mu.Lock()
		current := gen == m.sessionGen && !m.closed
		if current {
			m.settle = nil
		}
		m.mu.Unlock()
		if !current {
			m.logger.Debug("login_success_dropped")
			return
		}
		events.Emit(m.bus, events.AuthLoginSuccess, ev)
	})
}

// Logout signs out of the backend unless opts.Silent is set. The local
// session is cleared and auth:logout is emitted regardless of the backend
// outcome; a backend failure is returned afterwards. A backend answer that
// the session was already invalid counts as success.
func (m *Manager) Logout(ctx context.Context, opts LogoutOptions) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if m.cfg.Auth.SpeedMode {
		return nil
	}
	mode := flows.LogoutSignOut
	if opts.Silent {
		mode = flows.LogoutLocal
	}
	return m.signOut(ctx, mode, events.LogoutUser, opts.Silent, MetricLogout)
}

// Revoke revokes the session on the backend, clears it locally and emits
// auth:logout with the revoked reason. Like Logout it returns the backend
// failure after local cleanup.
func (m *Manager) Revoke(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if m.cfg.Auth.SpeedMode {
		return nil
	}
	return m.signOut(ctx, flows.LogoutRevoke, events.LogoutRevoked, false, MetricRevoke)
}

func (m *Manager) signOut(ctx context.Context, mode flows.LogoutMode, reason events.LogoutReason, silent bool, metric MetricID) error {
	m.mu.Lock()
	var token string
	if m.sess != nil {
		token = m.sess.AccessToken
	}
	m.mu.Unlock()

	res := m.flows.Logout(ctx, token, mode)
	m.clearLocal()
	m.metrics.Inc(metric)

	if res.LocalErr != nil {
		m.logger.Warn("session_remove_failed", slog.Any("error", res.LocalErr))
	}
	m.logger.Info("logged_out", slog.String("reason", string(reason)), slog.Bool("silent", silent))

	events.Emit(m.bus, events.AuthLogout, events.Logout{Reason: reason, Silent: silent})
	m.publish(ctx, broadcast.Message{Kind: broadcast.KindLogout, Reason: string(reason)})

	if res.RemoteErr != nil && !res.RemoteRejectedSession() {
		m.logger.Warn("backend_sign_out_failed", slog.Any("error", res.RemoteErr))
		if mode == flows.LogoutRevoke {
			return fmt.Errorf("revoke: %w", res.RemoteErr)
		}
		return fmt.Errorf("sign out: %w", res.RemoteErr)
	}
	return nil
}

// HandleSessionExpired runs the expiry sequence at most once per cooldown:
// the stored session is removed, auth:session-expired is emitted and the
// manager drops its in-memory login. It reports whether this call ran the
// sequence.
func (m *Manager) HandleSessionExpired(reason string) bool {
	return m.handleExpired(reason, false)
}

func (m *Manager) handleExpired(reason string, remote bool) bool {
	if m.cfg.Auth.SpeedMode || m.isClosed() {
		return false
	}
	ran := m.guard.Trigger(func() {
		ctx := context.Background()
		if remote {
			m.forgetStored(ctx, m.heldSession())
		} else if err := m.store.Remove(ctx); err != nil {
			m.logger.Warn("session_remove_failed", slog.Any("error", err))
		}
		m.metrics.Inc(MetricSessionExpired)
		m.logger.Info("session_expired_handled", slog.String("reason", reason), slog.Bool("remote", remote))
		events.Emit(m.bus, events.AuthSessionExpired, events.SessionExpired{Reason: reason})
		if !remote {
			m.publish(ctx, broadcast.Message{Kind: broadcast.KindSessionExpired, Reason: reason})
		}
	})
	if !ran {
		m.metrics.Inc(MetricExpiryDeduped)
		m.logger.Debug("session_expired_deduped", slog.String("reason", reason))
	}
	return ran
}

// Refresh exchanges the refresh token now, outside the activity window.
// A rejected refresh token runs the expiry sequence.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if m.cfg.Auth.SpeedMode {
		return nil
	}

	m.mu.Lock()
	gen := m.sessionGen
	signedIn := m.sess != nil
	m.mu.Unlock()
	if !signedIn {
		return ErrNotAuthenticated
	}

	start := m.clock.Now()
	res := m.rotate(ctx, gen)
	switch {
	case res.Failure == flows.RefreshFailureNone:
	case errors.Is(res.Err, errRefreshDiscarded):
		return nil
	default:
		m.metrics.Inc(MetricRefreshFailure)
		m.logger.Warn("refresh_failed", slog.Any("error", res.Err))
		if res.Failure == flows.RefreshFailureRejected && backend.IsSessionRejected(res.Err) {
			m.HandleSessionExpired("refresh_rejected")
		}
		return res.Err
	}

	m.metrics.Observe(MetricRefreshLatency, m.clock.Now().Sub(start))
	m.metrics.Inc(MetricRefreshSuccess)
	events.Emit(m.bus, events.AuthTokenRefreshed, events.TokenRefreshed{ExpiresAt: res.Session.Expiry()})
	return nil
}

// HandleUnauthorized is for API-call layers that receive a 401. Errors
// that mean the session is no longer accepted run the expiry sequence.
func (m *Manager) HandleUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	if !backend.IsSessionRejected(err) && !errors.Is(err, ErrNotAuthenticated) {
		return false
	}
	return m.HandleSessionExpired("unauthorized")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
