// Package rate implements the Redis-backed login throttle. Counters use
// fixed-window semantics: the first failure in a window sets the TTL,
// later failures only increment.
package rate
