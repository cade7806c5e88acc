package refresh

import (
	"sync"
	"time"

	"github.com/MrEthical07/goAuthClient/clock"
)

// DefaultExpiryCooldown is how long the guard stays closed after a handling
// sequence starts.
const DefaultExpiryCooldown = 300 * time.Millisecond

// ExpiryGuard admits at most one expiry handling sequence per cooldown.
type ExpiryGuard struct {
	clock    clock.Clock
	cooldown time.Duration

	mu     sync.Mutex
	active bool
	timer  clock.Timer
}

// NewExpiryGuard returns an open guard. A non-positive cooldown selects
// DefaultExpiryCooldown.
func NewExpiryGuard(c clock.Clock, cooldown time.Duration) *ExpiryGuard {
	if c == nil {
		c = clock.New()
	}
	if cooldown <= 0 {
		cooldown = DefaultExpiryCooldown
	}
	return &ExpiryGuard{clock: c, cooldown: cooldown}
}

// Trigger runs fn unless a sequence is already active, and reports whether
// it ran. The guard reopens cooldown after fn returns.
func (g *ExpiryGuard) Trigger(fn func()) bool {
	g.mu.Lock()
	if g.active {
		g.mu.Unlock()
		return false
	}
	g.active = true
	g.mu.Unlock()

	fn()

	g.mu.Lock()
	g.timer = g.clock.AfterFunc(g.cooldown, g.reopen)
	g.mu.Unlock()
	return true
}

// Active reports whether the guard is currently closed.
func (g *ExpiryGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Reset reopens the guard immediately and cancels the pending cooldown.
func (g *ExpiryGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.active = false
}

func (g *ExpiryGuard) reopen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	g.timer = nil
}
