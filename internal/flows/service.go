package flows

import (
	"context"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/session"
)

// Service is the flow runner built once by the Manager.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired.
func (s Service) Initialized() bool {
	return s.deps.API != nil && s.deps.Sessions != nil
}

func (s Service) Login(ctx context.Context, req backend.SignInRequest) AuthResult {
	return RunLogin(ctx, req, s.deps)
}

func (s Service) Register(ctx context.Context, req backend.SignUpRequest) AuthResult {
	return RunRegister(ctx, req, s.deps)
}

func (s Service) Logout(ctx context.Context, accessToken string, mode LogoutMode) LogoutResult {
	return RunLogout(ctx, accessToken, mode, s.deps)
}

func (s Service) Exchange(ctx context.Context, current *session.Session) RefreshResult {
	return RunExchange(ctx, current, s.deps)
}

func (s Service) Permissions(ctx context.Context, accessToken string) (*backend.PermissionsResponse, error) {
	return s.deps.API.Permissions(ctx, accessToken)
}
