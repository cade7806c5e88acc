package goAuthClient

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/permission"
)

// newGate builds the permission gate for m. In speed mode the gate
// bypasses every check.
func (m *Manager) newGate() (*permission.Gate, error) {
	cfg := permission.GateConfig{
		Bypass:         m.cfg.Auth.SpeedMode,
		FetchTimeout:   m.cfg.Backend.PermissionTimeout,
		IsUnauthorized: backend.IsSessionRejected,
		OnUnauthorized: func() {
			m.HandleSessionExpired("permissions_unauthorized")
		},
		Hooks: permission.GateHooks{
			OnFetch: func(err error) {
				if err != nil {
					m.metrics.Inc(MetricPermissionFetchFailure)
					return
				}
				m.metrics.Inc(MetricPermissionFetchSuccess)
			},
			OnDenied: func(perms []string, route string) {
				m.metrics.Inc(MetricPermissionDenied)
			},
		},
	}
	var fetch permission.Fetcher
	if !m.cfg.Auth.SpeedMode {
		fetch = m.fetchPermissions
	}
	return permission.NewGate(m.bus, fetch, cfg, m.logger)
}

func (m *Manager) fetchPermissions(ctx context.Context) (permission.Snapshot, error) {
	token := m.AccessToken()
	if token == "" {
		return permission.Snapshot{}, ErrNotAuthenticated
	}
	resp, err := m.flows.Permissions(ctx, token)
	if err != nil {
		return permission.Snapshot{}, err
	}
	m.logger.Debug("permissions_fetched", slog.Int("count", len(resp.Permissions)))
	return permission.Snapshot{
		User:             resp.User,
		Permissions:      resp.Permissions,
		AccessibleRoutes: resp.AccessibleRoutes,
	}, nil
}

// Can reports whether the current user holds perm. It is false until the
// permission fetch for the current login has settled.
func (m *Manager) Can(perm string) bool {
	return m.gate.Can(perm)
}

func (m *Manager) CanAny(perms ...string) bool {
	return m.gate.CanAny(perms...)
}

func (m *Manager) CanAll(perms ...string) bool {
	return m.gate.CanAll(perms...)
}

func (m *Manager) CanAccessRoute(path string) bool {
	return m.gate.CanAccessRoute(path)
}

// InvalidatePermissions refetches the permission snapshot, for example
// after a role change. Checks deny until the refetch settles.
func (m *Manager) InvalidatePermissions(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	return m.gate.Invalidate(ctx)
}
