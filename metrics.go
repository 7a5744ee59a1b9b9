package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricTwoFactorLocked
	MetricSessionIssued
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricReuseDetected
	MetricLogout
	MetricRevokeAll
	MetricPasswordChanged
	MetricPasswordChangeFailure
	MetricAccessValidated
	MetricAccessRejected

	metricCount
)

var metricNames = [metricCount]string{
	MetricLoginSuccess:          "login_success",
	MetricLoginFailure:          "login_failure",
	MetricLoginRateLimited:      "login_rate_limited",
	MetricTwoFactorRequired:     "two_factor_required",
	MetricTwoFactorSuccess:      "two_factor_success",
	MetricTwoFactorFailure:      "two_factor_failure",
	MetricTwoFactorLocked:       "two_factor_attempts_exceeded",
	MetricSessionIssued:         "session_issued",
	MetricRefreshSuccess:        "refresh_success",
	MetricRefreshFailure:        "refresh_failure",
	MetricReuseDetected:         "refresh_reuse_detected",
	MetricLogout:                "logout",
	MetricRevokeAll:             "sessions_revoked",
	MetricPasswordChanged:       "password_changed",
	MetricPasswordChangeFailure: "password_change_failure",
	MetricAccessValidated:       "access_validated",
	MetricAccessRejected:        "access_rejected",
}

// String returns the stable snapshot key for the metric.
func (id MetricID) String() string {
	if id < 0 || id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// paddedCounter keeps each counter on its own cache line so hot counters
// incremented from many goroutines do not false-share.
type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// engineMetrics is the in-process counter set. All methods are safe for
// concurrent use and are no-ops on a nil receiver, which is how a disabled
// metrics config is represented.
type engineMetrics struct {
	counters [metricCount]paddedCounter
}

func newEngineMetrics() *engineMetrics {
	return &engineMetrics{}
}

func (m *engineMetrics) inc(id MetricID) {
	if m == nil || id < 0 || id >= metricCount {
		return
	}
	m.counters[id].value.Add(1)
}

func (m *engineMetrics) get(id MetricID) uint64 {
	if m == nil || id < 0 || id >= metricCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot returns the current value of every counter keyed by name. The
// values are read one at a time, so the map is not a consistent cut across
// counters; it is meant for scraping, not invariants.
func (m *engineMetrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, metricCount)
	for id := MetricID(0); id < metricCount; id++ {
		out[id.String()] = m.counters[id].value.Load()
	}
	return out
}
