package devserver

import (
	"strings"
	"sync"

	"github.com/MrEthical07/goAuthClient/events"
)

type account struct {
	user events.User
	hash string
}

type devSession struct {
	id           string
	userID       string
	refreshToken string
}

// state is the in-memory account and session table.
type state struct {
	mu sync.Mutex

	accounts    map[string]*account // by lower-cased email
	byID        map[string]*account
	sessions    map[string]*devSession // by session id
	refresh     map[string]string      // refresh token -> session id
	invitations map[string]string      // code -> tenant id
}

func newState() *state {
	return &state{
		accounts:    make(map[string]*account),
		byID:        make(map[string]*account),
		sessions:    make(map[string]*devSession),
		refresh:     make(map[string]string),
		invitations: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *state) accountByEmail(email string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[emailKey(email)]
	return a, ok
}

func (s *state) accountByID(id string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	return a, ok
}

// addAccount returns false when the email is taken.
func (s *state) addAccount(a *account) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := emailKey(a.user.Email)
	if _, exists := s.accounts[key]; exists {
		return false
	}
	s.accounts[key] = a
	s.byID[a.user.ID] = a
	return true
}

func (s *state) putSession(sess *devSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
	s.refresh[sess.refreshToken] = sess.id
}

func (s *state) session(id string) (*devSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// rotate swaps a refresh token for next. Each refresh token is single use.
func (s *state) rotate(token, next string) (*devSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refresh[token]
	if !ok {
		return nil, false
	}
	delete(s.refresh, token)
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.refreshToken = next
	s.refresh[next] = id
	cp := *sess
	return &cp, true
}

func (s *state) deleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSessionLocked(id)
}

func (s *state) deleteSessionLocked(id string) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.refresh, sess.refreshToken)
	delete(s.sessions, id)
}

// deleteUserSessions removes every session of userID and returns how many
// were removed.
func (s *state) deleteUserSessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.userID == userID {
			s.deleteSessionLocked(id)
			n++
		}
	}
	return n
}

func (s *state) addInvitation(code, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invitations[code] = tenantID
}

// takeInvitation consumes code.
func (s *state) takeInvitation(code string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.invitations[code]
	if ok {
		delete(s.invitations, code)
	}
	return tenant, ok
}

func (s *state) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
