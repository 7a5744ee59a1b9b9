package rate

import "errors"

var (
	// ErrRateLimited is returned when an identifier or IP exceeded its
	// attempt budget for the current window.
	ErrRateLimited = errors.New("rate limited")

	// ErrRedisUnavailable wraps transport-level Redis failures so the
	// caller can distinguish throttling from backend outage.
	ErrRedisUnavailable = errors.New("rate limiter backend unavailable")
)
