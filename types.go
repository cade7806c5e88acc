package goAuthClient

import (
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/refresh"
)

// User is the identity of the signed-in user.
type User = events.User

// AuthState is the coarse lifecycle state of a [Manager].
type AuthState uint8

const (
	StateSignedOut AuthState = iota
	StateSignedIn
	// StateSpeedMode means the manager is signed in as the synthetic
	// development user and never talks to the backend.
	StateSpeedMode
)

func (s AuthState) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateSignedIn:
		return "signed_in"
	case StateSpeedMode:
		return "speed_mode"
	default:
		return "unknown"
	}
}

// LoginOptions tunes [Manager.Login].
type LoginOptions struct {
	// SkipSettleDelay emits auth:login-success before Login returns.
	SkipSettleDelay bool
}

// RegisterRequest carries sign-up input. InviteCode joins an existing
// tenant; WithNewInvitation asks the backend to provision a new one.
type RegisterRequest struct {
	Email             string
	Password          string
	InviteCode        string
	WithNewInvitation bool
}

// LogoutOptions tunes [Manager.Logout].
type LogoutOptions struct {
	// Silent skips the backend sign-out call and marks the emitted event so
	// subscribers can suppress user-facing notices.
	Silent bool
}

// Activity is a user interaction that may slide the session forward.
type Activity = refresh.Activity

// ParseActivity maps an interaction name such as "click" or "keydown" to
// an Activity.
func ParseActivity(name string) Activity {
	return refresh.ParseActivity(name)
}

// Status is a point-in-time view of the manager, suitable for CLIs and
// health pages.
type Status struct {
	State              AuthState
	User               *User
	ExpiresAt          int64
	RefreshState       string
	PermissionsReady   bool
	Permissions        []string
	ServiceUnavailable bool
}

// speedModeUser is the synthetic identity used while speed mode is on.
var speedModeUser = User{
	ID:    "speed-mode",
	Email: "speed@localhost",
	Role:  "admin",
}
