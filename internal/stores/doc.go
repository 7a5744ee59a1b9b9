// Package stores implements the Redis-backed ephemeral stores used by
// the engine: the two-factor login challenge store. Challenge records
// are short-lived, single-use, and never touch relational storage so
// the login hot path stays off the database.
package stores
