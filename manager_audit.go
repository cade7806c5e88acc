package goAuthClient

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goAuthClient/events"
)

// wireAudit maps lifecycle events onto audit records.
func (m *Manager) wireAudit() []func() {
	return []func(){
		events.On(m.bus, events.AuthLoginSuccess, func(e events.LoginSuccess) {
			m.emitAudit(context.Background(), AuditEvent{
				EventType: auditEventLogin,
				UserID:    e.User.ID,
				TenantID:  e.User.TenantID,
				Success:   true,
			})
		}),
		events.On(m.bus, events.AuthRegisterSuccess, func(e events.RegisterSuccess) {
			m.emitAudit(context.Background(), AuditEvent{
				EventType: auditEventRegister,
				UserID:    e.User.ID,
				TenantID:  e.User.TenantID,
				Success:   true,
			})
		}),
		events.On(m.bus, events.AuthLogout, func(e events.Logout) {
			ev := AuditEvent{
				EventType: auditEventLogout,
				Reason:    string(e.Reason),
				Success:   true,
			}
			if e.Silent {
				ev.Metadata = map[string]string{"silent": "true"}
			}
			m.emitAudit(context.Background(), ev)
		}),
		events.On(m.bus, events.AuthSessionExpired, func(e events.SessionExpired) {
			m.emitAudit(context.Background(), AuditEvent{
				EventType: auditEventSessionExpired,
				Reason:    e.Reason,
				Success:   true,
			})
		}),
		events.On(m.bus, events.AuthTokenRefreshed, func(e events.TokenRefreshed) {
			m.emitAudit(context.Background(), AuditEvent{
				EventType: auditEventTokenRefreshed,
				Success:   true,
				Metadata:  map[string]string{"expires_at": e.ExpiresAt.UTC().Format(time.RFC3339)},
			})
		}),
		events.On(m.bus, events.AuthServiceUnavailable, func(e events.ServiceUnavailable) {
			m.emitAudit(context.Background(), AuditEvent{
				EventType: auditEventServiceUnavailable,
				Success:   false,
				Error:     errString(e.Err),
			})
		}),
		events.On(m.bus, events.AuthzPermissionDenied, func(e events.PermissionDenied) {
			ev := AuditEvent{
				EventType: auditEventPermissionDenied,
				Success:   false,
				Metadata:  map[string]string{},
			}
			if len(e.Permissions) > 0 {
				ev.Metadata["permissions"] = strings.Join(e.Permissions, ",")
			}
			if e.Route != "" {
				ev.Metadata["route"] = e.Route
			}
			m.emitAudit(context.Background(), ev)
		}),
		events.On(m.bus, events.AuthzPermissionsReady, m.auditPermissions),
		events.On(m.bus, events.AuthzPermissionsUpdated, m.auditPermissions),
	}
}

func (m *Manager) auditPermissions(p events.Permissions) {
	m.emitAudit(context.Background(), AuditEvent{
		EventType: auditEventPermissionsLoaded,
		UserID:    p.User.ID,
		TenantID:  p.User.TenantID,
		Success:   true,
	})
}

// emitAudit fills the current user when the record has none.
func (m *Manager) emitAudit(ctx context.Context, ev AuditEvent) {
	if m.audit == nil {
		return
	}
	if ev.UserID == "" {
		if u, ok := m.User(); ok {
			ev.UserID = u.ID
			ev.TenantID = u.TenantID
		}
	}
	m.audit.Emit(ctx, ev)
}
