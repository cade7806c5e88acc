// Package events is the typed publish/subscribe bus that carries auth and
// authz lifecycle signals between otherwise unrelated parts of a client.
//
// # Dispatch guarantees
//
// [Emit] calls every handler registered for a key synchronously, in
// registration order, on the emitting goroutine, before it returns. Emissions
// are never queued or deduplicated. A handler that panics is recovered and
// logged; later handlers still run.
//
// # Typed keys
//
// A [Key] binds an event name to its payload type, so [On] and [Emit] are
// checked at compile time. The auth and authz families are declared in
// auth.go and authz.go.
//
// # What this package must NOT do
//
//   - Hold its lock while a handler runs.
//   - Import goAuthClient, session, refresh or permission.
package events
