// Package audit implements async delivery of client audit records.
//
// # Components
//
//   - [Sink] receives records (channel, JSON lines writer, no-op).
//   - [Dispatcher] is a buffered async relay that either drops or blocks
//     when full.
//   - [Event] is one record: what happened, to whom, and whether it
//     succeeded.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. Deciding which records to
// write belongs to the Manager, which maps bus events onto records.
//
// # What this package must NOT do
//
//   - Filter records based on business logic.
//   - Import goAuthClient or any sibling internal package.
package audit
