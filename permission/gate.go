package permission

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goAuthClient/events"
)

// ErrPermissionDenied is returned by [Gate.Require] when a check fails.
var ErrPermissionDenied = errors.New("permission denied")

// Snapshot is the authorization data for one user as returned by the
// backend.
type Snapshot struct {
	User             *events.User
	Permissions      []string
	AccessibleRoutes []string
}

// Fetcher loads the current user's snapshot. It is called from a background
// goroutine with a context bounded by [GateConfig.FetchTimeout].
type Fetcher func(ctx context.Context) (Snapshot, error)

// GateHooks observe fetch outcomes and denials. All fields are optional.
type GateHooks struct {
	OnFetch  func(err error)
	OnDenied func(perms []string, route string)
}

// GateConfig configures a [Gate].
type GateConfig struct {
	// Bypass turns every check into an allow. Used by speed mode.
	Bypass bool
	// FetchTimeout bounds a single permission fetch. Zero means 15s.
	FetchTimeout time.Duration
	// MaxBits sizes the registry. Zero means 512.
	MaxBits int
	// IsUnauthorized classifies fetch errors that mean the session is no
	// longer accepted. Matching errors call OnUnauthorized.
	IsUnauthorized func(error) bool
	OnUnauthorized func()
	Hooks          GateHooks
}

// Gate caches the authorization snapshot for the signed-in user and answers
// capability checks. Every check denies until the fetch for the current
// login has settled.
//
// Permission names are interned into a registry of MaxBits bits that is
// emptied on [Gate.Reset], so the limit applies per login: a login whose
// fetches name more than MaxBits-1 distinct permissions gets the excess
// denied and listed by [Gate.Dropped].
type Gate struct {
	bus      *events.Bus
	fetch    Fetcher
	cfg      GateConfig
	logger   *slog.Logger
	registry *Registry

	mu            sync.RWMutex
	gen           uint64
	authenticated bool
	user          events.User
	ready         bool
	everReady     bool
	inFlight      bool
	mask          Mask
	perms         []string
	routes        []string
	dropped       []string

	wg    sync.WaitGroup
	unsub []func()
}

// NewGate creates a Gate. bus may be nil when no events are wanted.
func NewGate(bus *events.Bus, fetch Fetcher, cfg GateConfig, logger *slog.Logger) (*Gate, error) {
	if fetch == nil && !cfg.Bypass {
		return nil, errors.New("permission fetcher is required")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.MaxBits == 0 {
		cfg.MaxBits = MaxMaskBits
	}
	registry, err := NewRegistry(cfg.MaxBits)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		bus:      bus,
		fetch:    fetch,
		cfg:      cfg,
		logger:   logger,
		registry: registry,
	}, nil
}

// Attach subscribes the gate to login and registration success so a fetch
// starts without the caller's involvement. Detach with [Gate.Close].
func (g *Gate) Attach() {
	if g.bus == nil {
		return
	}
	onUser := func(u events.User) {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			_ = g.Load(context.Background(), u)
		}()
	}
	g.mu.Lock()
	g.unsub = append(g.unsub,
		events.On(g.bus, events.AuthLoginSuccess, func(e events.LoginSuccess) { onUser(e.User) }),
		events.On(g.bus, events.AuthRegisterSuccess, func(e events.RegisterSuccess) { onUser(e.User) }),
	)
	g.mu.Unlock()
}

// Load fetches permissions for user unless a fetch for the current login is
// already in flight or has settled. It blocks until the fetch completes.
func (g *Gate) Load(ctx context.Context, user events.User) error {
	g.mu.Lock()
	if g.authenticated && (g.inFlight || g.ready) {
		g.mu.Unlock()
		return nil
	}
	g.authenticated = true
	g.user = user
	if g.cfg.Bypass {
		g.ready = true
		first := !g.everReady
		g.everReady = true
		g.perms = []string{RootPermission}
		g.routes = []string{"/*"}
		payload := g.payloadLocked()
		g.mu.Unlock()
		g.emitSettled(first, payload)
		return nil
	}
	g.inFlight = true
	gen := g.gen
	g.mu.Unlock()

	return g.run(ctx, gen)
}

// Invalidate drops the cached snapshot and refetches it. Checks deny until
// the refetch settles. A no-op while signed out.
func (g *Gate) Invalidate(ctx context.Context) error {
	g.mu.Lock()
	if !g.authenticated || g.cfg.Bypass {
		g.mu.Unlock()
		return nil
	}
	g.ready = false
	g.mask = Mask{}
	if g.inFlight {
		g.mu.Unlock()
		return nil
	}
	g.inFlight = true
	gen := g.gen
	g.mu.Unlock()

	return g.run(ctx, gen)
}

func (g *Gate) run(ctx context.Context, gen uint64) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout)
	snap, err := g.fetch(ctx)
	cancel()

	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		g.logger.Debug("permission_fetch_stale")
		return nil
	}
	g.inFlight = false
	if err != nil {
		g.mu.Unlock()
		g.logger.Warn("permission_fetch_failed", "error", err)
		if g.cfg.Hooks.OnFetch != nil {
			g.cfg.Hooks.OnFetch(err)
		}
		if g.cfg.IsUnauthorized != nil && g.cfg.IsUnauthorized(err) && g.cfg.OnUnauthorized != nil {
			g.cfg.OnUnauthorized()
		}
		return err
	}

	var mask Mask
	var dropped []string
	for _, name := range snap.Permissions {
		bit, ierr := g.registry.Intern(name)
		if ierr != nil {
			dropped = append(dropped, name)
			continue
		}
		mask.Set(bit)
	}
	if snap.User != nil {
		g.user = *snap.User
	}
	g.mask = mask
	g.perms = append([]string(nil), snap.Permissions...)
	g.routes = append([]string(nil), snap.AccessibleRoutes...)
	g.dropped = dropped
	g.ready = true
	first := !g.everReady
	g.everReady = true
	payload := g.payloadLocked()
	g.mu.Unlock()

	if len(dropped) > 0 {
		g.logger.Warn("permission_registry_full", "dropped", dropped)
	}
	if g.cfg.Hooks.OnFetch != nil {
		g.cfg.Hooks.OnFetch(nil)
	}
	g.emitSettled(first, payload)
	return nil
}

func (g *Gate) payloadLocked() events.Permissions {
	return events.Permissions{
		User:             g.user,
		Permissions:      append([]string(nil), g.perms...),
		AccessibleRoutes: append([]string(nil), g.routes...),
	}
}

func (g *Gate) emitSettled(first bool, payload events.Permissions) {
	if g.bus == nil {
		return
	}
	if first {
		events.Emit(g.bus, events.AuthzPermissionsReady, payload)
		return
	}
	events.Emit(g.bus, events.AuthzPermissionsUpdated, payload)
}

// Reset forgets the user and the snapshot. Fetches started before Reset are
// discarded when they return.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.authenticated = false
	g.user = events.User{}
	g.ready = false
	g.everReady = false
	g.inFlight = false
	g.mask = Mask{}
	g.perms = nil
	g.routes = nil
	g.dropped = nil
	g.registry.Reset()
}

// IsReady reports whether checks reflect a settled snapshot.
func (g *Gate) IsReady() bool {
	if g.cfg.Bypass {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

// Can reports whether the current user holds perm.
func (g *Gate) Can(perm string) bool {
	if g.cfg.Bypass {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.canLocked(perm)
}

// CanAny reports whether the current user holds at least one of perms.
func (g *Gate) CanAny(perms ...string) bool {
	if g.cfg.Bypass {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range perms {
		if g.canLocked(p) {
			return true
		}
	}
	return false
}

// CanAll reports whether the current user holds every perm. An empty list
// is allowed once the snapshot is ready.
func (g *Gate) CanAll(perms ...string) bool {
	if g.cfg.Bypass {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.ready {
		return false
	}
	for _, p := range perms {
		if !g.canLocked(p) {
			return false
		}
	}
	return true
}

func (g *Gate) canLocked(perm string) bool {
	if !g.ready || !g.authenticated {
		return false
	}
	bit, ok := g.registry.Bit(perm)
	if !ok {
		bit = -1
	}
	return g.mask.Has(bit, g.registry.RootBit())
}

// CanAccessRoute reports whether path is listed in the accessible routes,
// either exactly or under a "prefix/*" entry.
func (g *Gate) CanAccessRoute(path string) bool {
	if g.cfg.Bypass {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.ready || !g.authenticated {
		return false
	}
	for _, r := range g.routes {
		if routeMatches(r, path) {
			return true
		}
	}
	return false
}

func routeMatches(pattern, path string) bool {
	if pattern == path {
		return true
	}
	prefix, ok := strings.CutSuffix(pattern, "/*")
	if !ok {
		return false
	}
	if prefix == "" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Require returns nil if the user holds every perm. Otherwise it emits
// authz:permission-denied and returns [ErrPermissionDenied].
func (g *Gate) Require(perms ...string) error {
	if g.CanAll(perms...) {
		return nil
	}
	g.denied(perms, "")
	return ErrPermissionDenied
}

// RequireRoute is the route form of [Gate.Require].
func (g *Gate) RequireRoute(path string) error {
	if g.CanAccessRoute(path) {
		return nil
	}
	g.denied(nil, path)
	return ErrPermissionDenied
}

func (g *Gate) denied(perms []string, route string) {
	if g.cfg.Hooks.OnDenied != nil {
		g.cfg.Hooks.OnDenied(perms, route)
	}
	if g.bus != nil {
		events.Emit(g.bus, events.AuthzPermissionDenied, events.PermissionDenied{
			Permissions: append([]string(nil), perms...),
			Route:       route,
		})
	}
}

// User returns the user the snapshot belongs to.
func (g *Gate) User() (events.User, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.user, g.authenticated
}

// Permissions returns a copy of the cached permission names.
func (g *Gate) Permissions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.perms...)
}

// AccessibleRoutes returns a copy of the cached route list.
func (g *Gate) AccessibleRoutes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.routes...)
}

// Dropped returns permission names that did not fit into the registry and
// are therefore denied.
func (g *Gate) Dropped() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dropped...)
}

// Wait blocks until background fetches started by Attach have returned.
func (g *Gate) Wait() {
	g.wg.Wait()
}

// Close unsubscribes from the bus and waits for background fetches.
func (g *Gate) Close() {
	g.mu.Lock()
	unsub := g.unsub
	g.unsub = nil
	g.mu.Unlock()
	for _, fn := range unsub {
		fn()
	}
	g.wg.Wait()
}
