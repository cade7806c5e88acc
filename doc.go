// Package goAuthClient manages the authentication and authorization
// lifecycle of a client of a JWT-based auth service.
//
// A [Manager] owns the persisted session, the sliding refresh engine, the
// permission gate and the event bus. Callers build one with [Builder],
// call [Manager.Start] to restore a stored session, and then drive it with
// Login, Register, Logout, Revoke and activity notifications. Every state
// change is announced on the bus (see package events).
//
// # Architecture boundaries
//
// goAuthClient is the public surface. Session persistence lives in package
// session, timers in package refresh, authorization in package permission
// and the HTTP contract in package backend. Flow orchestration and audit
// dispatch live under internal/ and are never exported.
//
// # Concurrency
//
// Manager methods are safe to call from multiple goroutines. Event
// handlers run synchronously on the emitting goroutine, in registration
// order, and must not block.
package goAuthClient
