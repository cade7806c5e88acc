// Package backend talks to the auth REST service the client consumes.
//
// [API] is the narrow surface the rest of the module depends on; [Client]
// is its HTTP implementation. Failures are returned as [*Error] values that
// unwrap to one of the package sentinels, so callers branch with errors.Is.
//
// # What this package must NOT do
//
//   - Persist sessions or emit events.
//   - Retry. Retry policy belongs to the caller.
package backend
