package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level
// mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNoSession
	RefreshFailureRejected
	RefreshFailureUnavailable
	RefreshFailureInvalidResponse
	RefreshFailurePersist
)

var errNoRefreshToken = errors.New("no refresh token")

// RefreshResult carries either the new session or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	Session *session.Session
	// User is set when the backend returned one with the new session.
	User *events.User
}

// RunExchange trades the refresh token of current for a new session. It
// does not persist: the caller decides whether the result is still wanted.
func RunExchange(ctx context.Context, current *session.Session, deps Deps) RefreshResult {
	if current == nil || current.RefreshToken == "" {
		return RefreshResult{Failure: RefreshFailureNoSession, Err: errNoRefreshToken}
	}

	resp, err := deps.API.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		kind := RefreshFailureRejected
		if isUnavailable(err) {
			kind = RefreshFailureUnavailable
		}
		return RefreshResult{Failure: kind, Err: err}
	}
	if resp == nil {
		return RefreshResult{Failure: RefreshFailureInvalidResponse, Err: fmt.Errorf("%w: %v", backend.ErrServerError, errMissingTokens)}
	}

	next := resp.Session.Clone()
	if err := validateIssued(next, nowOf(deps)); err != nil {
		return RefreshResult{Failure: RefreshFailureInvalidResponse, Err: fmt.Errorf("%w: %v", backend.ErrServerError, err)}
	}
	res := RefreshResult{Session: next}
	if resp.User.ID != "" {
		u := resp.User
		res.User = &u
	}
	return res
}

func isUnavailable(err error) bool {
	return errors.Is(err, backend.ErrAuthServiceUnavailable)
}
