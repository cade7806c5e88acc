// Package refresh keeps a stored session alive while the user is active and
// detects its expiry when they are not.
//
// # State machine
//
// An [Engine] moves Idle → Scheduled on [Engine.Start] when a session is
// stored, arming a one-shot timer at the session's expiry and a periodic
// re-arm (default every 30s) that picks up expiries extended elsewhere.
// Qualifying user activity inside the refresh window moves Scheduled →
// Refreshing; success returns to Scheduled with timers re-armed, failure
// moves to Expired. Expired and Stopped are terminal for an instance; the
// owner builds a new Engine after the next login.
//
// Activity-triggered checks are throttled with a token bucket
// (golang.org/x/time/rate) evaluated on the injected clock.
//
// # Expiry guard
//
// [ExpiryGuard] lets several code paths (timer, activity, 401 responses)
// report expiry while only the first within a cooldown runs the handling
// sequence.
//
// # What this package must NOT do
//
//   - Talk to the auth backend directly; refreshes go through a [Refresher].
//   - Emit bus events; callers observe transitions through [Hooks].
//   - Retry a failed refresh.
package refresh
