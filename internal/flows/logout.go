package flows

import (
	"context"

	"github.com/MrEthical07/goAuthClient/backend"
)

// LogoutMode selects the backend call made before local cleanup.
type LogoutMode int

const (
	// LogoutSignOut ends the current session on the backend.
	LogoutSignOut LogoutMode = iota
	// LogoutRevoke revokes every session of the user on the backend.
	LogoutRevoke
	// LogoutLocal skips the backend.
	LogoutLocal
)

// LogoutResult reports the backend and local outcomes separately. Local
// cleanup runs whatever the backend answered.
type LogoutResult struct {
	RemoteErr error
	LocalErr  error
	// Remote is true when a backend call was attempted.
	Remote bool
}

// RunLogout calls the backend according to mode and always removes the
// stored session.
func RunLogout(ctx context.Context, accessToken string, mode LogoutMode, deps Deps) LogoutResult {
	var res LogoutResult
	if accessToken != "" && mode != LogoutLocal {
		res.Remote = true
		switch mode {
		case LogoutRevoke:
			res.RemoteErr = deps.API.Revoke(ctx, accessToken)
		default:
			res.RemoteErr = deps.API.SignOut(ctx, accessToken)
		}
	}
	res.LocalErr = deps.Sessions.Remove(ctx)
	return res
}

// RemoteRejectedSession reports whether the backend no longer knew the
// session. Callers treat that as a successful logout.
func (r LogoutResult) RemoteRejectedSession() bool {
	return r.RemoteErr != nil && backend.IsSessionRejected(r.RemoteErr)
}
