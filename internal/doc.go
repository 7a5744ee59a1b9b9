// Package internal holds token generation helpers shared by the root
// engine and its stores. Nothing in here is part of the public API.
package internal
