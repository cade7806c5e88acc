// Package middleware adapts a goAuthClient.Manager to net/http.
//
// # Outbound
//
//   - [Transport] attaches the current access token to API calls and runs
//     the expiry sequence when the backend answers 401.
//
// # Inbound guards
//
//   - [RequireAuthenticated] rejects requests while signed out (401).
//   - [RequirePermission] rejects requests lacking a permission (403).
//   - [RequireRoute] rejects paths outside the accessible routes (403).
//
// Guards are fail-closed: until the permission snapshot for the current
// login has settled every permission and route check is denied.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Manager calls. It does NOT
// decide anything itself; all decisions are delegated to the Manager and its
// permission gate.
package middleware
