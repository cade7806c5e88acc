package events

import "time"

// User is the identity carried by auth and authz payloads.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TenantID  string `json:"tenantId,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// LoginSuccess is emitted after a login (or a registration, which implies a
// login) has been persisted.
type LoginSuccess struct {
	User      User
	ExpiresAt time.Time
}

// RegisterSuccess is emitted once per successful registration, before the
// accompanying LoginSuccess.
type RegisterSuccess struct {
	User User
}

// LogoutReason tells subscribers why the user was signed out.
type LogoutReason string

const (
	LogoutUser    LogoutReason = "user"
	LogoutRevoked LogoutReason = "revoked"
	LogoutRemote  LogoutReason = "remote"
)

type Logout struct {
	Reason LogoutReason
	Silent bool
}

// SessionExpired is emitted once per expiry handling sequence.
type SessionExpired struct {
	Reason string
}

type TokenRefreshed struct {
	ExpiresAt time.Time
}

// ServiceUnavailable is emitted when the auth service preflight fails. The
// manager also keeps a sticky flag until the next successful preflight.
type ServiceUnavailable struct {
	Err error
}

var (
	AuthLoginSuccess       = NewKey[LoginSuccess]("auth:login-success")
	AuthRegisterSuccess    = NewKey[RegisterSuccess]("auth:register-success")
	AuthLogout             = NewKey[Logout]("auth:logout")
	AuthSessionExpired     = NewKey[SessionExpired]("auth:session-expired")
	AuthTokenRefreshed     = NewKey[TokenRefreshed]("auth:token-refreshed")
	AuthServiceUnavailable = NewKey[ServiceUnavailable]("auth:service-unavailable")
)
