package goAuthClient

import (
	"io"

	internalaudit "github.com/MrEthical07/goAuthClient/internal/audit"
)

// AuditEvent is one audit record produced from a lifecycle event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit records from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

const (
	auditEventLogin              = "login"
	auditEventRegister           = "register"
	auditEventLogout             = "logout"
	auditEventSessionExpired     = "session_expired"
	auditEventTokenRefreshed     = "token_refreshed"
	auditEventServiceUnavailable = "service_unavailable"
	auditEventPermissionDenied   = "permission_denied"
	auditEventPermissionsLoaded  = "permissions_loaded"
)
