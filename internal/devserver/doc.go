// Package devserver is a self-contained auth backend for local development
// and integration tests.
//
// It serves the endpoint layout of backend.DefaultPaths with in-memory
// accounts, HS256 access tokens and rotating refresh tokens. Sign-in
// attempts are throttled through Redis when a client is configured.
//
// It is not a production server: state lives in process memory and is lost
// on restart.
package devserver
