// Package otel exports goAuthClient metrics through OpenTelemetry.
//
// [NewOTelExporter] registers an Int64ObservableCounter per client counter
// and, for the refresh latency histogram, one bucket gauge keyed by an "le"
// attribute plus a sample counter. A single callback reads
// [goAuthClient.Manager.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate manager state.
package otel
