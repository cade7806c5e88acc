package flows

import (
	"errors"
	"time"

	"github.com/MrEthical07/goAuthClient/session"
)

var (
	errMissingTokens  = errors.New("response session is missing tokens")
	errAlreadyExpired = errors.New("response session is already expired")
)

// validateIssued checks a session returned by the backend before it is
// persisted.
func validateIssued(s *session.Session, now time.Time) error {
	if s == nil || s.AccessToken == "" || s.RefreshToken == "" {
		return errMissingTokens
	}
	if !s.Valid(now) {
		return errAlreadyExpired
	}
	return nil
}

func nowOf(deps Deps) time.Time {
	if deps.Now != nil {
		return deps.Now()
	}
	return time.Now()
}
