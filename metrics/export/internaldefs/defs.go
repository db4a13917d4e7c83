// Package internaldefs holds the shared metric naming tables consumed by
// the exporter packages. Not intended for direct use by hosts.
package internaldefs

import (
	idcore "github.com/guildworks/idcore"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   idcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   idcore.MetricID
	Name string
	Help string
}

// CounterDefs maps every exported engine counter to its metric name.
var CounterDefs = []CounterDef{
	{ID: idcore.MetricLoginSuccess, Name: "idcore_login_success_total", Help: "Successful login attempts."},
	{ID: idcore.MetricLoginFailure, Name: "idcore_login_failure_total", Help: "Failed login attempts."},
	{ID: idcore.MetricLoginCredentialUnset, Name: "idcore_login_credential_unset_total", Help: "Logins rejected because no credential is established."},
	{ID: idcore.MetricLoginRateLimited, Name: "idcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: idcore.MetricRefreshSuccess, Name: "idcore_refresh_success_total", Help: "Successful token refreshes."},
	{ID: idcore.MetricRefreshFailure, Name: "idcore_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: idcore.MetricRecoveryRequest, Name: "idcore_recovery_request_total", Help: "Account recovery requests."},
	{ID: idcore.MetricRecoveryRateLimited, Name: "idcore_recovery_rate_limited_total", Help: "Rate-limited recovery requests."},
	{ID: idcore.MetricRecoveryDispatched, Name: "idcore_recovery_dispatched_total", Help: "Recovery notifications handed to the dispatcher."},
	{ID: idcore.MetricResetConfirmSuccess, Name: "idcore_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: idcore.MetricResetConfirmFailure, Name: "idcore_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: idcore.MetricSetupCompleteSuccess, Name: "idcore_setup_complete_success_total", Help: "Successful first-credential setups."},
	{ID: idcore.MetricSetupCompleteFailure, Name: "idcore_setup_complete_failure_total", Help: "Failed first-credential setups."},
	{ID: idcore.MetricSetupConflict, Name: "idcore_setup_conflict_total", Help: "Setups lost to a concurrent winner."},
	{ID: idcore.MetricAccountCreationSuccess, Name: "idcore_account_creation_success_total", Help: "Successful account creations."},
	{ID: idcore.MetricAccountCreationDuplicate, Name: "idcore_account_creation_duplicate_total", Help: "Account creations rejected as duplicate."},
	{ID: idcore.MetricAccountDeletionSuccess, Name: "idcore_account_deletion_success_total", Help: "Successful account deletions."},
	{ID: idcore.MetricAccountDeletionFailure, Name: "idcore_account_deletion_failure_total", Help: "Failed account deletion cascades."},
	{ID: idcore.MetricNotifyDispatched, Name: "idcore_notify_dispatched_total", Help: "Notifications delivered by the background worker."},
	{ID: idcore.MetricNotifyFailed, Name: "idcore_notify_failed_total", Help: "Notification deliveries that returned an error."},
	{ID: idcore.MetricRateLimitHit, Name: "idcore_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs maps every exported engine histogram to its metric name.
var HistogramDefs = []HistogramDef{
	{ID: idcore.MetricValidateLatency, Name: "idcore_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are metric-name-safe renderings of the bounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies a raw bucket slice into the fixed-width form.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
