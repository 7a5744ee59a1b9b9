// Package password implements one-way password hashing and verification
// with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent parameter upgrades: when a stored
// hash was produced with weaker parameters than the active config,
// [Hasher.NeedsRehash] returns true so the caller can re-hash on the
// next successful login.
//
// This package owns hashing and verification only. Password policy is
// the engine's concern, and plaintext is never stored or logged.
package password
