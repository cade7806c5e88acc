package flows

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/session"
)

// AuthFailureKind classifies login and registration failures for
// root-level mapping.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureInput
	AuthFailureUnavailable
	AuthFailureRejected
	AuthFailureInvalidResponse
	AuthFailurePersist
)

func (k AuthFailureKind) String() string {
	switch k {
	case AuthFailureNone:
		return "none"
	case AuthFailureInput:
		return "input"
	case AuthFailureUnavailable:
		return "unavailable"
	case AuthFailureRejected:
		return "rejected"
	case AuthFailureInvalidResponse:
		return "invalid_response"
	case AuthFailurePersist:
		return "persist"
	default:
		return "unknown"
	}
}

// AuthResult carries either the persisted session and user or failure
// metadata.
type AuthResult struct {
	Failure AuthFailureKind
	Err     error
	Session *session.Session
	User    events.User
}

// RunLogin checks service health, signs in and persists the issued session.
func RunLogin(ctx context.Context, req backend.SignInRequest, deps Deps) AuthResult {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return AuthResult{
			Failure: AuthFailureInput,
			Err:     fmt.Errorf("%w: email and password are required", backend.ErrInvalidInput),
		}
	}
	if err := deps.API.Health(ctx); err != nil {
		return AuthResult{Failure: AuthFailureUnavailable, Err: err}
	}

	resp, err := deps.API.SignIn(ctx, req)
	return finishAuth(ctx, resp, credentialsRejected(err), deps)
}

// RunRegister checks service health, creates the account and persists the
// issued session. Registration implies a login.
func RunRegister(ctx context.Context, req backend.SignUpRequest, deps Deps) AuthResult {
	req.Email = strings.TrimSpace(req.Email)
	req.InviteCode = strings.TrimSpace(req.InviteCode)
	if req.Email == "" || req.Password == "" {
		return AuthResult{
			Failure: AuthFailureInput,
			Err:     fmt.Errorf("%w: email and password are required", backend.ErrInvalidInput),
		}
	}
	if err := deps.API.Health(ctx); err != nil {
		return AuthResult{Failure: AuthFailureUnavailable, Err: err}
	}

	resp, err := deps.API.SignUp(ctx, req)
	return finishAuth(ctx, resp, credentialsRejected(err), deps)
}

// credentialsRejected maps a 401 answer to a sign-in or sign-up request to
// ErrInvalidCredentials. No session was presented, so unauthorized there
// means the email and password were refused. The backend error stays in the
// chain.
func credentialsRejected(err error) error {
	if err == nil || errors.Is(err, backend.ErrInvalidCredentials) {
		return err
	}
	var be *backend.Error
	if backend.IsSessionRejected(err) || (errors.As(err, &be) && be.Status == http.StatusUnauthorized) {
		return fmt.Errorf("%w: %w", backend.ErrInvalidCredentials, err)
	}
	return err
}

func finishAuth(ctx context.Context, resp *backend.AuthResponse, err error, deps Deps) AuthResult {
	if err != nil {
		kind := AuthFailureRejected
		if isUnavailable(err) {
			kind = AuthFailureUnavailable
		}
		return AuthResult{Failure: kind, Err: err}
	}
	if resp == nil {
		return AuthResult{Failure: AuthFailureInvalidResponse, Err: fmt.Errorf("%w: %v", backend.ErrServerError, errMissingTokens)}
	}

	issued := resp.Session.Clone()
	if err := validateIssued(issued, nowOf(deps)); err != nil {
		return AuthResult{Failure: AuthFailureInvalidResponse, Err: fmt.Errorf("%w: %v", backend.ErrServerError, err)}
	}
	if err := deps.Sessions.Save(ctx, issued); err != nil {
		return AuthResult{Failure: AuthFailurePersist, Err: err}
	}

	return AuthResult{Session: issued, User: resp.User}
}
