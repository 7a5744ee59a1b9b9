package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const (
	challengeTokenBytes = 24
	refreshValueBytes   = 48
)

// NewChallengeToken returns an opaque, single-use two-factor challenge
// token: 24 random bytes, base64url without padding.
func NewChallengeToken() (string, error) {
	var raw [challengeTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewRefreshTokenValue returns the opaque refresh credential handed to
// clients: 48 random bytes, base64url without padding. The value is not
// decodable and carries no structure; possession is the whole secret.
func NewRefreshTokenValue() (string, error) {
	var raw [refreshValueBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidRefreshTokenValue reports whether a presented string has the
// shape of a token this package generated. Used to reject junk before
// touching storage.
func ValidRefreshTokenValue(value string) error {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return err
	}
	if len(raw) != refreshValueBytes {
		return errors.New("invalid refresh token size")
	}
	return nil
}
