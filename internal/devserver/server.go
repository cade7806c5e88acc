package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/permission"
	"github.com/MrEthical07/goAuthClient/session"
)

const maxRequestBytes = 64 << 10

// Role is the authorization policy attached to a role name.
type Role struct {
	Permissions []string `yaml:"permissions" json:"permissions"`
	Routes      []string `yaml:"routes" json:"routes"`
}

// Config configures a [Server].
type Config struct {
	// Secret is the HS256 signing key. Required.
	Secret []byte
	// AccessTTL is the access token lifetime. Zero means 15m.
	AccessTTL time.Duration
	Issuer    string

	// Roles maps role names to policies. Nil means DefaultRoles().
	Roles map[string]Role
	// OwnerRole is given to accounts that open a new tenant. Default "admin".
	OwnerRole string
	// MemberRole is given to accounts joining through an invitation.
	// Default "member".
	MemberRole string

	// Redis enables sign-in throttling when set.
	Redis             redis.UniversalClient
	RedisPrefix       string
	MaxSignInAttempts int
	SignInWindow      time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultRoles returns the built-in admin and member policies.
func DefaultRoles() map[string]Role {
	return map[string]Role{
		"admin": {
			Permissions: []string{permission.RootPermission},
			Routes:      []string{"/*"},
		},
		"member": {
			Permissions: []string{"kb:read", "agent:read", "agent:run"},
			Routes:      []string{"/kb/*", "/agents/*", "/settings/profile"},
		},
	}
}

// Server implements the auth endpoints consumed by backend.Client.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	signer  *jwt.Manager
	hasher  hasher
	limiter *signInLimiter
	state   *state
	healthy atomic.Bool
	router  chi.Router
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("devserver: secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.Roles == nil {
		cfg.Roles = DefaultRoles()
	}
	if cfg.OwnerRole == "" {
		cfg.OwnerRole = "admin"
	}
	if cfg.MemberRole == "" {
		cfg.MemberRole = "member"
	}
	for _, name := range []string{cfg.OwnerRole, cfg.MemberRole} {
		if _, ok := cfg.Roles[name]; !ok {
			return nil, fmt.Errorf("devserver: role %q is not defined", name)
		}
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = "devserver"
	}
	if cfg.SignInWindow <= 0 {
		cfg.SignInWindow = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	signer, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.Secret,
		Issuer:        cfg.Issuer,
		Now:           cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("devserver: signer: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		signer:  signer,
		hasher:  hasher{config: defaultHasherConfig()},
		limiter: newSignInLimiter(cfg.Redis, cfg.RedisPrefix, cfg.MaxSignInAttempts, cfg.SignInWindow),
		state:   newState(),
	}
	s.healthy.Store(true)
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	paths := backend.DefaultPaths()
	r.Get(paths.Health, s.health)
	r.Post(paths.SignIn, s.signIn)
	r.Post(paths.SignUp, s.signUp)
	r.Post(paths.SignOut, s.signOut)
	r.Post(paths.Revoke, s.revoke)
	r.Post(paths.RefreshToken, s.refreshToken)
	r.Get(paths.Permissions, s.permissions)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetHealthy toggles the health endpoint between 200 and 503. While
// unhealthy every endpoint answers 503.
func (s *Server) SetHealthy(ok bool) {
	s.healthy.Store(ok)
}

// AddUser creates an account directly, bypassing sign-up.
func (s *Server) AddUser(email, password, role string) (events.User, error) {
	if _, ok := s.cfg.Roles[role]; !ok {
		return events.User{}, fmt.Errorf("%w: unknown role %q", backend.ErrInvalidInput, role)
	}
	return s.createAccount(email, password, role, uuid.NewString())
}

// CreateInvitation mints a single-use code that joins tenantID.
func (s *Server) CreateInvitation(tenantID string) string {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	s.state.addInvitation(code, tenantID)
	return code
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	return s.state.sessionCount()
}

func (s *Server) createAccount(email, password, role, tenantID string) (events.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return events.User{}, fmt.Errorf("%w: email is required", backend.ErrInvalidInput)
	}
	hash, err := s.hasher.hash(password)
	if err != nil {
		return events.User{}, fmt.Errorf("%w: %v", backend.ErrInvalidInput, err)
	}
	user := events.User{
		ID:       uuid.NewString(),
		Email:    email,
		Role:     role,
		TenantID: tenantID,
	}
	if !s.state.addAccount(&account{user: user, hash: hash}) {
		return events.User{}, fmt.Errorf("%w: email already registered", backend.ErrInvalidInput)
	}
	return user, nil
}

/* ==== HANDLERS ==== */

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if !s.healthy.Load() {
		writeError(w, backend.ErrAuthServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	var in backend.SignInRequest
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		writeError(w, fmt.Errorf("%w: email and password are required", backend.ErrInvalidInput))
		return
	}

	ctx := r.Context()
	if err := s.limiter.check(ctx, in.Email); err != nil {
		s.writeLimiterError(w, err)
		return
	}

	acct, ok := s.state.accountByEmail(in.Email)
	if ok {
		match, err := s.hasher.verify(in.Password, acct.hash)
		if err != nil {
			s.logger.Error("devserver: corrupt password hash", "user_id", acct.user.ID, "error", err)
			writeError(w, backend.ErrServerError)
			return
		}
		ok = match
	}
	if !ok {
		if err := s.limiter.fail(ctx, in.Email); err != nil {
			s.logger.Warn("devserver: sign-in counter unavailable", "error", err)
		}
		writeError(w, backend.ErrInvalidCredentials)
		return
	}

	if err := s.limiter.reset(ctx, in.Email); err != nil {
		s.logger.Warn("devserver: sign-in counter unavailable", "error", err)
	}
	s.issue(w, acct.user)
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	var in backend.SignUpRequest
	if !decode(w, r, &in) {
		return
	}

	role, tenantID := s.cfg.OwnerRole, uuid.NewString()
	if in.InviteCode != "" {
		tenant, ok := s.state.takeInvitation(in.InviteCode)
		if !ok {
			writeError(w, fmt.Errorf("%w: unknown invitation", backend.ErrInvalidInput))
			return
		}
		role, tenantID = s.cfg.MemberRole, tenant
	}

	user, err := s.createAccount(in.Email, in.Password, role, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if in.WithNewInvitation {
		code := s.CreateInvitation(tenantID)
		s.logger.Info("devserver: invitation created", "tenant_id", tenantID, "code", code)
	}
	s.issue(w, user)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	claims, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.state.deleteSession(claims.SID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	claims, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n := s.state.deleteUserSessions(claims.UID)
	s.logger.Info("devserver: sessions revoked", "user_id", claims.UID, "count", n)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	var in backend.RefreshRequest
	if !decode(w, r, &in) {
		return
	}
	if in.RefreshToken == "" {
		writeError(w, fmt.Errorf("%w: refresh_token is required", backend.ErrInvalidInput))
		return
	}

	sess, ok := s.state.rotate(in.RefreshToken, uuid.NewString())
	if !ok {
		writeError(w, backend.ErrUnauthorized)
		return
	}
	acct, ok := s.state.accountByID(sess.userID)
	if !ok {
		s.state.deleteSession(sess.id)
		writeError(w, backend.ErrUnauthorized)
		return
	}
	s.respondSession(w, acct.user, sess)
}

func (s *Server) permissions(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	claims, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	acct, ok := s.state.accountByID(claims.UID)
	if !ok {
		writeError(w, backend.ErrUnauthorized)
		return
	}
	policy := s.cfg.Roles[acct.user.Role]
	user := acct.user
	writeJSON(w, http.StatusOK, backend.PermissionsResponse{
		User:             &user,
		Permissions:      append([]string{}, policy.Permissions...),
		AccessibleRoutes: append([]string{}, policy.Routes...),
	})
}

/* ==== HELPERS ==== */

func (s *Server) available(w http.ResponseWriter) bool {
	if s.healthy.Load() {
		return true
	}
	writeError(w, backend.ErrAuthServiceUnavailable)
	return false
}

// authenticate verifies the bearer token and that its session is live.
func (s *Server) authenticate(r *http.Request) (*jwt.AccessClaims, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, backend.ErrUnauthorized
	}
	claims, err := s.signer.ParseAccess(token)
	if err != nil {
		if jwt.IsExpired(err) {
			return nil, backend.ErrTokenExpired
		}
		return nil, backend.ErrUnauthorized
	}
	if _, ok := s.state.session(claims.SID); !ok {
		return nil, backend.ErrUnauthorized
	}
	return claims, nil
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *Server) issue(w http.ResponseWriter, user events.User) {
	sess := &devSession{
		id:           uuid.NewString(),
		userID:       user.ID,
		refreshToken: uuid.NewString(),
	}
	s.state.putSession(sess)
	s.respondSession(w, user, sess)
}

func (s *Server) respondSession(w http.ResponseWriter, user events.User, sess *devSession) {
	token, exp, err := s.signer.CreateAccess(jwt.Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TenantID:  user.TenantID,
		AvatarURL: user.AvatarURL,
	}, sess.id)
	if err != nil {
		s.logger.Error("devserver: sign access token", "error", err)
		writeError(w, backend.ErrServerError)
		return
	}
	writeJSON(w, http.StatusOK, backend.AuthResponse{
		Session: session.Session{
			AccessToken:  token,
			RefreshToken: sess.refreshToken,
			ExpiresAt:    exp.Unix(),
		},
		User: user,
	})
}

func (s *Server) writeLimiterError(w http.ResponseWriter, err error) {
	if errors.Is(err, errRateLimited) {
		writeJSON(w, http.StatusTooManyRequests, backend.ErrorBody{
			Code:    backend.CodeInvalidInput,
			Message: err.Error(),
		})
		return
	}
	s.logger.Error("devserver: sign-in limiter", "error", err)
	writeError(w, backend.ErrAuthServiceUnavailable)
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(out); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", backend.ErrInvalidInput))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	if backend.CodeOf(err) == backend.CodeServerError {
		msg = "internal error"
	}
	writeJSON(w, backend.StatusOf(err), backend.ErrorBody{
		Code:    backend.CodeOf(err),
		Message: msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves s on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
