package internaldefs

import (
	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// CounterDef names one client counter.
type CounterDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram.
type HistogramDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for goAuthClient.Manager.AuditDropped.
const (
	AuditDroppedName = "goauthclient_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: goAuthClient.MetricLoginSuccess, Name: "goauthclient_login_success_total", Help: "Successful logins."},
	{ID: goAuthClient.MetricLoginFailure, Name: "goauthclient_login_failure_total", Help: "Failed logins."},
	{ID: goAuthClient.MetricRegisterSuccess, Name: "goauthclient_register_success_total", Help: "Successful registrations."},
	{ID: goAuthClient.MetricRegisterFailure, Name: "goauthclient_register_failure_total", Help: "Failed registrations."},
	{ID: goAuthClient.MetricLogout, Name: "goauthclient_logout_total", Help: "Logouts, including silent ones."},
	{ID: goAuthClient.MetricRevoke, Name: "goauthclient_revoke_total", Help: "Revoke-all-sessions operations."},
	{ID: goAuthClient.MetricRefreshSuccess, Name: "goauthclient_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goAuthClient.MetricRefreshFailure, Name: "goauthclient_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goAuthClient.MetricSessionExpired, Name: "goauthclient_session_expired_total", Help: "Sessions ended by expiry."},
	{ID: goAuthClient.MetricExpiryDeduped, Name: "goauthclient_expiry_deduped_total", Help: "Expiry triggers suppressed by the cooldown guard."},
	{ID: goAuthClient.MetricActivityThrottled, Name: "goauthclient_activity_throttled_total", Help: "Activity signals dropped by the throttle."},
	{ID: goAuthClient.MetricPermissionFetchSuccess, Name: "goauthclient_permission_fetch_success_total", Help: "Successful permission fetches."},
	{ID: goAuthClient.MetricPermissionFetchFailure, Name: "goauthclient_permission_fetch_failure_total", Help: "Failed permission fetches."},
	{ID: goAuthClient.MetricPermissionDenied, Name: "goauthclient_permission_denied_total", Help: "Denied permission or route checks."},
	{ID: goAuthClient.MetricServiceUnavailable, Name: "goauthclient_service_unavailable_total", Help: "Times the auth service was reported unreachable."},
	{ID: goAuthClient.MetricBroadcastReceived, Name: "goauthclient_broadcast_received_total", Help: "Sync messages received from sibling processes."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: goAuthClient.MetricRefreshLatency, Name: "goauthclient_refresh_latency_seconds", Help: "Token refresh round-trip latency."},
}

// HistogramBounds are the bucket upper bounds as exposition labels.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in instrument-name form.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// HistogramUpperBounds are the finite bucket bounds in seconds.
var HistogramUpperBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
