package goAuthClient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/broadcast"
	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/session"
)

var testStart = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

type fakeAPI struct {
	mu  sync.Mutex
	now func() time.Time

	ttl        time.Duration
	healthErr  error
	signInErr  error
	signOutErr error
	revokeErr  error
	refreshErr error
	permErr    error
	perms      []string
	routes     []string
	// permRelease, when set, blocks Permissions until closed.
	permRelease chan struct{}
	// signInEntered and signInRelease, when set, make SignIn report entry
	// and block until released.
	signInEntered chan struct{}
	signInRelease chan struct{}

	// singleUse rejects a refresh token presented twice.
	singleUse bool
	spent     map[string]bool

	issuedCount  int
	refreshCalls int
	calls        []string
}

func newFakeAPI(now func() time.Time) *fakeAPI {
	return &fakeAPI{
		now:    now,
		ttl:    time.Hour,
		perms:  []string{"kb:create", "kb:read"},
		routes: []string{"/kb/*"},
	}
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) issue() *backend.AuthResponse {
	f.issuedCount++
	return &backend.AuthResponse{
		Session: session.Session{
			AccessToken:  "access-" + string(rune('0'+f.issuedCount)),
			RefreshToken: "refresh-" + string(rune('0'+f.issuedCount)),
			ExpiresAt:    f.now().Add(f.ttl).Unix(),
		},
		User: events.User{ID: "u1", Email: "alice@example.com", Role: "member"},
	}
}

func (f *fakeAPI) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("health")
	return f.healthErr
}

func (f *fakeAPI) SignIn(context.Context, backend.SignInRequest) (*backend.AuthResponse, error) {
	f.mu.Lock()
	entered, release := f.signInEntered, f.signInRelease
	f.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("sign-in")
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.issue(), nil
}

func (f *fakeAPI) SignUp(context.Context, backend.SignUpRequest) (*backend.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("sign-up")
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.issue(), nil
}

func (f *fakeAPI) SignOut(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("sign-out")
	return f.signOutErr
}

func (f *fakeAPI) Revoke(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("revoke")
	return f.revokeErr
}

func (f *fakeAPI) RefreshToken(_ context.Context, token string) (*backend.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.singleUse {
		if f.spent[token] {
			return nil, backend.ErrUnauthorized
		}
		if f.spent == nil {
			f.spent = make(map[string]bool)
		}
		f.spent[token] = true
	}
	return f.issue(), nil
}

func (f *fakeAPI) Permissions(ctx context.Context, _ string) (*backend.PermissionsResponse, error) {
	f.mu.Lock()
	release := f.permRelease
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.permErr != nil {
		return nil, f.permErr
	}
	return &backend.PermissionsResponse{
		Permissions:      append([]string(nil), f.perms...),
		AccessibleRoutes: append([]string(nil), f.routes...),
	}, nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

// recorder collects bus payloads from any goroutine.
type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func record[T any](t *testing.T, bus *events.Bus, key events.Key[T]) *recorder[T] {
	t.Helper()
	r := &recorder[T]{}
	t.Cleanup(events.On(bus, key, func(v T) {
		r.mu.Lock()
		r.items = append(r.items, v)
		r.mu.Unlock()
	}))
	return r
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

func (r *recorder[T]) len() int {
	return len(r.all())
}

type harness struct {
	m     *Manager
	api   *fakeAPI
	clock *clock.Fake
	store *session.Store
}

func newHarness(t *testing.T, mutate func(*Config, *Builder)) *harness {
	t.Helper()
	clk := clock.NewFake(testStart)
	api := newFakeAPI(clk.Now)

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	b := New().WithClock(clk).WithBackend(api)
	if mutate != nil {
		mutate(&cfg, b)
	}
	m, err := b.WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return &harness{m: m, api: api, clock: clk, store: m.Store()}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.m.Login(context.Background(), "alice@example.com", "pw", LoginOptions{SkipSettleDelay: true})
	require.NoError(t, err)
}

func TestLoginEmitsAfterSettleDelay(t *testing.T) {
	h := newHarness(t, nil)
	logins := record(t, h.m.Bus(), events.AuthLoginSuccess)

	user, err := h.m.Login(context.Background(), " alice@example.com ", "pw", LoginOptions{})
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.True(t, h.m.IsAuthenticated())
	require.Equal(t, StateSignedIn, h.m.State())
	require.True(t, h.store.IsValid(context.Background()))
	require.Zero(t, logins.len())

	h.clock.Advance(99 * time.Millisecond)
	require.Zero(t, logins.len())

	h.clock.Advance(time.Millisecond)
	require.Equal(t, 1, logins.len())
	require.Equal(t, "u1", logins.all()[0].User.ID)
}

func TestLoginSettleDroppedWhenSessionChanges(t *testing.T) {
	h := newHarness(t, nil)
	logins := record(t, h.m.Bus(), events.AuthLoginSuccess)

	_, err := h.m.Login(context.Background(), "alice@example.com", "pw", LoginOptions{})
	require.NoError(t, err)
	require.NoError(t, h.m.Logout(context.Background(), LogoutOptions{Silent: true}))

	h.clock.Advance(time.Second)
	require.Zero(t, logins.len())
}

func TestLoginZeroSettleDelayIsSynchronous(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Builder) {
		cfg.Auth.LoginSettleDelay = 0
	})
	logins := record(t, h.m.Bus(), events.AuthLoginSuccess)

	_, err := h.m.Login(context.Background(), "alice@example.com", "pw", LoginOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, logins.len())
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, nil)
	h.api.set(func(f *fakeAPI) { f.signInErr = backend.ErrInvalidCredentials })

	_, err := h.m.Login(context.Background(), "alice@example.com", "bad", LoginOptions{})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.False(t, h.m.IsAuthenticated())
	require.False(t, h.m.ServiceUnavailable())
	require.Nil(t, h.store.Read(context.Background()))
	require.Equal(t, uint64(1), h.m.MetricsSnapshot().Counters[MetricLoginFailure])
}

func TestLoginMapsBackend401ToInvalidCredentials(t *testing.T) {
	bodies := map[string]string{
		"coded": `{"code":1001,"message":"invalid email or password"}`,
		"bare":  ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == backend.DefaultPaths().Health {
					w.WriteHeader(http.StatusOK)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(body))
			}))
			t.Cleanup(srv.Close)

			cfg := DefaultConfig()
			cfg.Backend.BaseURL = srv.URL
			m, err := New().WithConfig(cfg).Build()
			require.NoError(t, err)
			t.Cleanup(func() { _ = m.Close() })

			_, err = m.Login(context.Background(), "alice@example.com", "wrong", LoginOptions{})
			require.ErrorIs(t, err, ErrInvalidCredentials)
			var be *backend.Error
			require.ErrorAs(t, err, &be)
			require.Equal(t, http.StatusUnauthorized, be.Status)
			require.False(t, m.IsAuthenticated())
			require.False(t, m.ServiceUnavailable())
		})
	}
}

func TestLoginServiceUnavailableIsSticky(t *testing.T) {
	h := newHarness(t, nil)
	unavailable := record(t, h.m.Bus(), events.AuthServiceUnavailable)
	h.api.set(func(f *fakeAPI) { f.healthErr = backend.ErrAuthServiceUnavailable })

	_, err := h.m.Login(context.Background(), "alice@example.com", "pw", LoginOptions{})
	require.ErrorIs(t, err, ErrAuthServiceUnavailable)
	require.True(t, h.m.ServiceUnavailable())
	require.Equal(t, 1, unavailable.len())

	_, err = h.m.Login(context.Background(), "", "", LoginOptions{})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.True(t, h.m.ServiceUnavailable(), "input errors never reach the preflight")

	h.api.set(func(f *fakeAPI) { f.healthErr = nil })
	h.login(t)
	require.False(t, h.m.ServiceUnavailable())
}

func TestRegisterEmitsRegisterThenLogin(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Builder) {
		cfg.Auth.LoginSettleDelay = 0
	})
	var order []string
	events.On(h.m.Bus(), events.AuthRegisterSuccess, func(events.RegisterSuccess) { order = append(order, "register") })
	events.On(h.m.Bus(), events.AuthLoginSuccess, func(events.LoginSuccess) { order = append(order, "login") })

	user, err := h.m.Register(context.Background(), RegisterRequest{
		Email:      "alice@example.com",
		Password:   "pw",
		InviteCode: "INV-1",
	})
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.Equal(t, []string{"register", "login"}, order)
}

func TestCanIsFalseUntilPermissionsSettle(t *testing.T) {
	h := newHarness(t, nil)
	release := make(chan struct{})
	h.api.set(func(f *fakeAPI) { f.permRelease = release })
	ready := record(t, h.m.Bus(), events.AuthzPermissionsReady)

	h.login(t)
	require.False(t, h.m.Can("kb:create"))
	require.False(t, h.m.Gate().IsReady())

	close(release)
	require.Eventually(t, func() bool { return h.m.Can("kb:create") }, time.Second, 5*time.Millisecond)
	require.False(t, h.m.Can("kb:delete"))
	require.True(t, h.m.CanAccessRoute("/kb/articles"))
	require.Equal(t, 1, ready.len())
}

func TestPermissionFetchUnauthorizedExpiresSession(t *testing.T) {
	h := newHarness(t, nil)
	h.api.set(func(f *fakeAPI) { f.permErr = backend.ErrUnauthorized })
	expired := record(t, h.m.Bus(), events.AuthSessionExpired)

	h.login(t)
	require.Eventually(t, func() bool { return expired.len() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "permissions_unauthorized", expired.all()[0].Reason)
	require.False(t, h.m.IsAuthenticated())
	require.Nil(t, h.store.Read(context.Background()))
}

func TestLogoutWithFailingBackendClearsStore(t *testing.T) {
	h := newHarness(t, nil)
	logouts := record(t, h.m.Bus(), events.AuthLogout)
	boom := errors.New("network down")
	h.login(t)
	h.api.set(func(f *fakeAPI) { f.signOutErr = boom })

	err := h.m.Logout(context.Background(), LogoutOptions{})
	require.ErrorIs(t, err, boom)
	require.Nil(t, h.store.Read(context.Background()))
	require.False(t, h.m.IsAuthenticated())
	require.Empty(t, h.m.AccessToken())
	require.False(t, h.m.Can("kb:create"))
	require.Equal(t, []events.Logout{{Reason: events.LogoutUser}}, logouts.all())
}

func TestLogoutTreatsRejectedSessionAsSuccess(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.api.set(func(f *fakeAPI) { f.signOutErr = backend.ErrUnauthorized })

	require.NoError(t, h.m.Logout(context.Background(), LogoutOptions{}))
}

func TestSilentLogoutSkipsBackend(t *testing.T) {
	h := newHarness(t, nil)
	logouts := record(t, h.m.Bus(), events.AuthLogout)
	h.login(t)

	require.NoError(t, h.m.Logout(context.Background(), LogoutOptions{Silent: true}))
	require.NotContains(t, h.api.calls, "sign-out")
	require.Equal(t, []events.Logout{{Reason: events.LogoutUser, Silent: true}}, logouts.all())
}

func TestRevokeClearsAndReportsBackendError(t *testing.T) {
	h := newHarness(t, nil)
	logouts := record(t, h.m.Bus(), events.AuthLogout)
	h.login(t)
	h.api.set(func(f *fakeAPI) { f.revokeErr = backend.ErrServerError })

	err := h.m.Revoke(context.Background())
	require.ErrorIs(t, err, ErrServerError)
	require.Nil(t, h.store.Read(context.Background()))
	require.Equal(t, events.LogoutRevoked, logouts.all()[0].Reason)
	require.Equal(t, uint64(1), h.m.MetricsSnapshot().Counters[MetricRevoke])
}

func TestTwoRapidLogoutsRunHandlersTwiceInOrder(t *testing.T) {
	h := newHarness(t, nil)
	var got []string
	events.On(h.m.Bus(), events.AuthLogout, func(events.Logout) { got = append(got, "first") })
	events.On(h.m.Bus(), events.AuthLogout, func(events.Logout) { got = append(got, "second") })
	h.login(t)

	require.NoError(t, h.m.Logout(context.Background(), LogoutOptions{Silent: true}))
	require.NoError(t, h.m.Logout(context.Background(), LogoutOptions{Silent: true}))
	require.Equal(t, []string{"first", "second", "first", "second"}, got)
}

func TestHandleSessionExpiredRunsOncePerCooldown(t *testing.T) {
	h := newHarness(t, nil)
	expired := record(t, h.m.Bus(), events.AuthSessionExpired)
	h.login(t)

	require.True(t, h.m.HandleSessionExpired("timer"))
	require.False(t, h.m.HandleSessionExpired("activity"))
	require.Equal(t, 1, expired.len())
	require.Nil(t, h.store.Read(context.Background()))
	require.False(t, h.m.IsAuthenticated())

	snap := h.m.MetricsSnapshot()
	require.Equal(t, uint64(1), snap.Counters[MetricSessionExpired])
	require.Equal(t, uint64(1), snap.Counters[MetricExpiryDeduped])

	h.clock.Advance(300 * time.Millisecond)
	require.True(t, h.m.HandleSessionExpired("timer"))
	require.Equal(t, 2, expired.len())
}

func TestSessionExpiresOnTimer(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Builder) {
		cfg.Refresh.CheckInterval = time.Hour
	})
	h.api.set(func(f *fakeAPI) { f.ttl = 10 * time.Second })
	expired := record(t, h.m.Bus(), events.AuthSessionExpired)
	h.login(t)

	h.clock.Advance(9 * time.Second)
	require.Zero(t, expired.len())
	require.NotEmpty(t, h.m.AccessToken())

	h.clock.Advance(time.Second)
	require.Equal(t, []events.SessionExpired{{Reason: "timer"}}, expired.all())
	require.False(t, h.m.IsAuthenticated())
}

// Session expires at +5s, window 3s, throttle 2s: activity at +1s is
// outside the window, activity at +4.5s refreshes once.
func TestActivityRefreshSlidesSession(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Builder) {
		cfg.Refresh.CheckInterval = time.Minute
		cfg.Refresh.RefreshWindow = 3 * time.Second
		cfg.Refresh.ActivityThrottle = 2 * time.Second
	})
	h.api.set(func(f *fakeAPI) { f.ttl = 5 * time.Second })
	refreshed := record(t, h.m.Bus(), events.AuthTokenRefreshed)
	h.login(t)
	before := h.m.AccessToken()

	h.clock.Advance(time.Second)
	require.False(t, h.m.NotifyActivity(ParseActivity("click")))

	h.clock.Advance(3500 * time.Millisecond)
	require.True(t, h.m.NotifyActivity(ParseActivity("mousemove")))
	require.False(t, h.m.NotifyActivity(ParseActivity("keydown")))

	require.Eventually(t, func() bool { return refreshed.len() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, h.api.refreshCount())
	require.NotEqual(t, before, h.m.AccessToken())
	require.Equal(t, h.m.AccessToken(), h.store.Read(context.Background()).AccessToken)
}

func TestActivityIgnoredWhileHidden(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Builder) {
		cfg.Refresh.RefreshWindow = time.Hour
	})
	h.login(t)
	h.m.SetVisible(false)

	require.False(t, h.m.NotifyActivity(ParseActivity("click")))
	require.Zero(t, h.api.refreshCount())
}

func TestManualRefresh(t *testing.T) {
	h := newHarness(t, nil)
	refreshed := record(t, h.m.Bus(), events.AuthTokenRefreshed)
	require.ErrorIs(t, h.m.Refresh(context.Background()), ErrNotAuthenticated)

	h.login(t)
	before := h.m.AccessToken()
	require.NoError(t, h.m.Refresh(context.Background()))
	require.NotEqual(t, before, h.m.AccessToken())
	require.Equal(t, 1, refreshed.len())
}

func TestConcurrentRefreshesRotateInOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.api.set(func(f *fakeAPI) { f.singleUse = true })
	h.login(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.m.Refresh(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.True(t, h.m.IsAuthenticated())
	stored := h.m.Store().Read(context.Background())
	require.NotNil(t, stored)
	require.Equal(t, h.m.AccessToken(), stored.AccessToken)
}

func TestManualRefreshRejectedExpiresSession(t *testing.T) {
	h := newHarness(t, nil)
	expired := record(t, h.m.Bus(), events.AuthSessionExpired)
	h.login(t)
	h.api.set(func(f *fakeAPI) { f.refreshErr = backend.ErrTokenExpired })

	err := h.m.Refresh(context.Background())
	require.ErrorIs(t, err, ErrTokenExpired)
	require.Equal(t, []events.SessionExpired{{Reason: "refresh_rejected"}}, expired.all())
	require.False(t, h.m.IsAuthenticated())
}

func signedToken(t *testing.T, now func() time.Time) string {
	t.Helper()
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("test-secret"),
		Now:           now,
	})
	require.NoError(t, err)
	token, _, err := jm.CreateAccess(jwt.Identity{UserID: "u7", Email: "eve@example.com", Role: "admin", TenantID: "t1"}, "sid-1")
	require.NoError(t, err)
	return token
}

func TestStartRestoresStoredSession(t *testing.T) {
	clk := clock.NewFake(testStart)
	storage := session.NewMemoryStorage()
	seed := session.NewStore(storage, session.WithKey(DefaultConfig().Session.StorageKey))
	require.NoError(t, seed.Save(context.Background(), &session.Session{
		AccessToken:  signedToken(t, clk.Now),
		RefreshToken: "r1",
		ExpiresAt:    testStart.Add(time.Hour).Unix(),
	}))

	api := newFakeAPI(clk.Now)
	m, err := New().WithClock(clk).WithBackend(api).WithStorage(storage).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.Start(context.Background()))
	user, ok := m.User()
	require.True(t, ok)
	require.Equal(t, "u7", user.ID)
	require.Equal(t, "t1", user.TenantID)
	require.Eventually(t, func() bool { return m.Can("kb:read") }, time.Second, 5*time.Millisecond)
	require.Equal(t, "scheduled", m.Status().RefreshState)
}

func TestStartWithExpiredSessionHandlesExpiry(t *testing.T) {
	clk := clock.NewFake(testStart)
	storage := session.NewMemoryStorage()
	seed := session.NewStore(storage, session.WithKey(DefaultConfig().Session.StorageKey))
	require.NoError(t, seed.Save(context.Background(), &session.Session{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    testStart.Add(-time.Second).Unix(),
	}))

	m, err := New().WithClock(clk).WithBackend(newFakeAPI(clk.Now)).WithStorage(storage).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	expired := record(t, m.Bus(), events.AuthSessionExpired)

	require.NoError(t, m.Start(context.Background()))
	require.Equal(t, []events.SessionExpired{{Reason: "expired_at_start"}}, expired.all())
	require.False(t, m.IsAuthenticated())
	require.Nil(t, seed.Read(context.Background()))
}

func TestSpeedModeBypassesBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.SpeedMode = true
	m, err := New().WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	logins := record(t, m.Bus(), events.AuthLoginSuccess)

	require.NoError(t, m.Start(context.Background()))
	require.Equal(t, StateSpeedMode, m.State())
	require.True(t, m.Gate().IsReady())
	require.True(t, m.Can("anything:at-all"))
	require.True(t, m.CanAccessRoute("/admin"))
	require.Equal(t, 1, logins.len())

	user, err := m.Login(context.Background(), "x", "y", LoginOptions{})
	require.NoError(t, err)
	require.Equal(t, "admin", user.Role)

	require.NoError(t, m.Logout(context.Background(), LogoutOptions{}))
	require.True(t, m.IsAuthenticated())
	require.False(t, m.HandleSessionExpired("timer"))
}

func TestRemoteLogoutClearsSibling(t *testing.T) {
	hub := broadcast.NewHub(nil)
	a := hub.Join(8)
	b := hub.Join(8)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	left := newHarness(t, func(_ *Config, bl *Builder) { bl.WithBroadcaster(a) })
	right := newHarness(t, func(_ *Config, bl *Builder) { bl.WithBroadcaster(b) })
	require.NoError(t, left.m.Start(context.Background()))
	require.NoError(t, right.m.Start(context.Background()))
	left.login(t)
	right.login(t)
	remote := record(t, right.m.Bus(), events.AuthLogout)

	require.NoError(t, left.m.Logout(context.Background(), LogoutOptions{}))
	require.Eventually(t, func() bool { return !right.m.IsAuthenticated() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return remote.len() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, events.Logout{Reason: events.LogoutRemote, Silent: true}, remote.all()[0])
	require.Eventually(t, func() bool { return right.store.Read(context.Background()) == nil }, time.Second, 5*time.Millisecond,
		"separate storage must not keep the ended session")
}

func TestRemoteExpiryRemovesOnlyHeldSession(t *testing.T) {
	hub := broadcast.NewHub(nil)
	a := hub.Join(8)
	b := hub.Join(8)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	left := newHarness(t, func(_ *Config, bl *Builder) { bl.WithBroadcaster(a) })
	right := newHarness(t, func(_ *Config, bl *Builder) { bl.WithBroadcaster(b) })
	require.NoError(t, left.m.Start(context.Background()))
	require.NoError(t, right.m.Start(context.Background()))
	left.login(t)
	right.login(t)

	require.True(t, left.m.HandleSessionExpired("timer"))
	require.Eventually(t, func() bool { return !right.m.IsAuthenticated() }, time.Second, 5*time.Millisecond)
	require.Nil(t, right.store.Read(context.Background()))

	// A session stored after the message was sent is not the one held.
	right.login(t)
	newer := right.store.Read(context.Background())
	require.NotNil(t, newer)
	right.m.mu.Lock()
	right.m.sess.RefreshToken = "superseded"
	right.m.mu.Unlock()
	right.m.forgetStored(context.Background(), right.m.heldSession())
	require.Equal(t, newer, right.store.Read(context.Background()))
}

func TestPublishDataUpdatedReachesSibling(t *testing.T) {
	hub := broadcast.NewHub(nil)
	a := hub.Join(8)
	b := hub.Join(8)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	left := newHarness(t, func(_ *Config, bl *Builder) { bl.WithBroadcaster(a) })
	right := newHarness(t, func(_ *Config, bl *Builder) { bl.WithBroadcaster(b) })
	require.NoError(t, left.m.Start(context.Background()))
	require.NoError(t, right.m.Start(context.Background()))
	local := record(t, left.m.Bus(), events.SyncDataUpdated)
	remote := record(t, right.m.Bus(), events.SyncDataUpdated)

	require.NoError(t, left.m.PublishDataUpdated(context.Background(), "agents"))
	require.Equal(t, 1, local.len())
	require.False(t, local.all()[0].Remote)
	require.Eventually(t, func() bool { return remote.len() == 1 }, time.Second, 5*time.Millisecond)
	got := remote.all()[0]
	require.Equal(t, "agents", got.Topic)
	require.Equal(t, a.ID(), got.Origin)
	require.True(t, got.Remote)
}

func TestClosedManagerRejectsOperations(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	require.NoError(t, h.m.Close())
	require.NoError(t, h.m.Close())

	_, err := h.m.Login(context.Background(), "a", "b", LoginOptions{})
	require.ErrorIs(t, err, ErrManagerClosed)
	require.ErrorIs(t, h.m.Logout(context.Background(), LogoutOptions{}), ErrManagerClosed)
	require.ErrorIs(t, h.m.Start(context.Background()), ErrManagerClosed)
	require.True(t, h.store.IsValid(context.Background()), "close keeps the stored session")
}

func TestLoginCompletingAfterCloseIsDiscarded(t *testing.T) {
	h := newHarness(t, nil)
	entered, release := make(chan struct{}), make(chan struct{})
	h.api.set(func(f *fakeAPI) {
		f.signInEntered = entered
		f.signInRelease = release
	})
	logins := record(t, h.m.Bus(), events.AuthLoginSuccess)

	done := make(chan error, 1)
	go func() {
		_, err := h.m.Login(context.Background(), "alice@example.com", "pw", LoginOptions{SkipSettleDelay: true})
		done <- err
	}()
	<-entered

	require.NoError(t, h.m.Close())
	pending := h.clock.Pending()
	close(release)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrManagerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("login did not return")
	}
	require.False(t, h.m.IsAuthenticated())
	require.Equal(t, StateSignedOut, h.m.State())
	require.Equal(t, pending, h.clock.Pending())
	require.Zero(t, logins.len())

	h.clock.Advance(10 * time.Minute)
	require.Equal(t, pending, h.clock.Pending())
	require.Zero(t, h.api.refreshCount())
	require.Empty(t, h.m.Status().RefreshState)
}

func TestBuildRequiresBackendOutsideSpeedMode(t *testing.T) {
	_, err := New().Build()
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "http://127.0.0.1:1"
	m, err := New().WithConfig(cfg).Build()
	require.NoError(t, err)
	require.NoError(t, m.Close())

	b := New().WithConfig(cfg)
	_, err = b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	require.Error(t, err)

	cfg.Session.Storage = StorageRedis
	_, err = New().WithConfig(cfg).Build()
	require.Error(t, err)
}
