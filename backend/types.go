package backend

import (
	"context"

	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/session"
)

// API is the auth service surface used by the client.
type API interface {
	Health(ctx context.Context) error
	SignIn(ctx context.Context, req SignInRequest) (*AuthResponse, error)
	SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
	Revoke(ctx context.Context, accessToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Permissions(ctx context.Context, accessToken string) (*PermissionsResponse, error)
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"inviteCode,omitempty"`
	// WithNewInvitation asks the backend to mint a fresh invitation for
	// the new account's tenant.
	WithNewInvitation bool `json:"withNewInvitation,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is returned by sign-in, sign-up and refresh.
type AuthResponse struct {
	Session session.Session `json:"session"`
	User    events.User     `json:"user"`
}

// PermissionsResponse is the authorization snapshot for the bearer.
type PermissionsResponse struct {
	User             *events.User `json:"user,omitempty"`
	Permissions      []string     `json:"permissions"`
	AccessibleRoutes []string     `json:"accessibleRoutes"`
}
