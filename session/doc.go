// Package session provides durable persistence for the client's token pair and
// the validity rules every consumer applies to it.
//
// # Storage model
//
// Exactly one [Session] is stored, as JSON, under a single fixed key. The
// [Store] performs no validation on save and never deletes an expired record
// on its own; expiry is a read-side concern answered by [Session.Valid].
//
// # Architecture boundaries
//
// This package owns the [Session] model, its JSON encoding and the [Storage]
// backends (memory, file, Redis). It does NOT talk to the auth backend,
// schedule refreshes, or emit lifecycle events.
//
// # What this package must NOT do
//
//   - Import goAuthClient, events, refresh or permission (no upward imports).
//   - Treat a corrupt record as an error on [Store.Read].
//   - Auto-delete a session because it expired.
package session
