// Package permission holds the client's authorization snapshot and answers
// capability checks against it.
//
// # Model
//
// Permission names fetched from the backend are interned into a [Registry]
// that assigns each a bit, and the current user's set is kept as a [Mask].
// The name "*" maps to the reserved root bit, which satisfies every check.
//
// # Fail-closed
//
// The [Gate] denies every check until a fetch for the current login has
// settled, and again after [Gate.Reset]. Speed mode (Bypass) is the only
// path that permits without data.
//
// # What this package must NOT do
//
//   - Talk to the backend directly; fetching goes through a [Fetcher].
//   - Import goAuthClient, session or refresh.
//   - Permit while a fetch is pending.
package permission
