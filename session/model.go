package session

import "time"

// Session is the access/refresh token pair plus expiry that represents an
// authenticated user on this client.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresAt is the access token expiry in epoch seconds.
	ExpiresAt int64 `json:"expires_at"`
}

// Valid reports whether s is present, carries both tokens and has not expired
// at now. Comparison happens in milliseconds.
func (s *Session) Valid(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.AccessToken == "" || s.RefreshToken == "" {
		return false
	}
	return s.ExpiresAt*1000 > now.UnixMilli()
}

// Remaining returns the time left until expiry at now. It is negative once
// the session has expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return time.Duration(s.ExpiresAt*1000-now.UnixMilli()) * time.Millisecond
}

// Expiry returns ExpiresAt as a time.Time.
func (s *Session) Expiry() time.Time {
	if s == nil {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
