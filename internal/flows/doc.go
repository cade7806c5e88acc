// Package flows contains the orchestration for every Manager operation that
// talks to the backend.
//
// Each flow function (RunLogin, RunRegister, RunLogout, RunExchange) accepts
// a typed dependency struct and returns a result carrying either the
// outcome or a classified failure. The Manager maps failures to its public
// errors, events and metrics.
//
// # Architecture boundaries
//
// Flows coordinate the backend API and session persistence. They do NOT own
// either; ownership stays with the Manager.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goAuthClient (to avoid import cycles).
//   - Emit events. That is the Manager's job once it has applied the result.
package flows
