package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/internal/devserver"
)

func newManager(t *testing.T) *goAuthClient.Manager {
	t.Helper()
	srv, err := devserver.New(devserver.Config{Secret: []byte("middleware-secret")})
	require.NoError(t, err)
	_, err = srv.AddUser("alice@example.com", "correct-horse", "member")
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := goAuthClient.DefaultConfig()
	cfg.Backend.BaseURL = ts.URL
	cfg.Auth.LoginSettleDelay = 0

	m, err := goAuthClient.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Start(context.Background()))
	return m
}

func login(t *testing.T, m *goAuthClient.Manager) {
	t.Helper()
	_, err := m.Login(context.Background(), "alice@example.com", "correct-horse", goAuthClient.LoginOptions{})
	require.NoError(t, err)
	require.Eventually(t, m.Gate().IsReady, 2*time.Second, 5*time.Millisecond)
}

func serve(h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestRequireAuthenticated(t *testing.T) {
	m := newManager(t)

	var seen goAuthClient.User
	h := RequireAuthenticated(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = u
	}))

	require.Equal(t, http.StatusUnauthorized, serve(h, "/"))

	login(t, m)
	require.Equal(t, http.StatusOK, serve(h, "/"))
	require.Equal(t, "alice@example.com", seen.Email)
}

func TestRequirePermission(t *testing.T) {
	m := newManager(t)
	ok := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	require.Equal(t, http.StatusUnauthorized, serve(RequirePermission(m, "kb:read")(ok), "/"))

	login(t, m)
	require.Equal(t, http.StatusOK, serve(RequirePermission(m, "kb:read")(ok), "/"))
	require.Equal(t, http.StatusOK, serve(RequirePermission(m, "kb:read", "agent:run")(ok), "/"))
	require.Equal(t, http.StatusForbidden, serve(RequirePermission(m, "kb:delete")(ok), "/"))
	require.Equal(t, http.StatusForbidden, serve(RequirePermission(m, "kb:read", "kb:delete")(ok), "/"))
}

func TestRequireRoute(t *testing.T) {
	m := newManager(t)
	h := RequireRoute(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	login(t, m)
	require.Equal(t, http.StatusOK, serve(h, "/kb/articles/7"))
	require.Equal(t, http.StatusOK, serve(h, "/settings/profile"))
	require.Equal(t, http.StatusForbidden, serve(h, "/settings/billing"))
	require.Equal(t, http.StatusForbidden, serve(h, "/admin"))
}

func TestTransportAttachesBearer(t *testing.T) {
	m := newManager(t)

	var got string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	t.Cleanup(api.Close)
	client := NewClient(m)

	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, got, "signed out requests carry no token")

	login(t, m)
	resp, err = client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "Bearer "+m.AccessToken(), got)
}

func TestTransportExpiresSessionOn401(t *testing.T) {
	m := newManager(t)
	login(t, m)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(api.Close)

	resp, err := NewClient(m).Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.False(t, m.IsAuthenticated())
	require.Empty(t, m.AccessToken())
}

func TestTransportKeepsExplicitAuthorization(t *testing.T) {
	m := newManager(t)
	login(t, m)

	var got string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(api.Close)

	req, err := http.NewRequest(http.MethodGet, api.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	resp, err := NewClient(m).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Basic Zm9vOmJhcg==", got)
	require.True(t, m.IsAuthenticated(), "401 on a foreign credential must not end the session")
}
