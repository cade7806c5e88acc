// Package prometheus exports goAuthClient metrics to Prometheus.
//
// [PrometheusExporter] serves two setups: its Handler renders the text
// exposition format directly, and it implements prometheus.Collector so it
// can be registered on a prometheus.Registry next to other collectors.
// Counter names are prefixed goauthclient_*_total; the single histogram is
// goauthclient_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate manager state.
package prometheus
