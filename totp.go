package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// totpManager implements RFC 6238 time-based one-time passwords over
// HMAC-SHA1, the algorithm every mainstream authenticator app ships with.
type totpManager struct {
	issuer string
	digits int
	period int
	skew   int
}

func newTOTPManager(cfg TwoFactorConfig) *totpManager {
	return &totpManager{
		issuer: cfg.Issuer,
		digits: cfg.Digits,
		period: cfg.Period,
		skew:   cfg.Skew,
	}
}

const totpSecretBytes = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret produces a fresh random secret and its base32 form for
// provisioning.
func (m *totpManager) GenerateSecret() ([]byte, string, error) {
	secret := make([]byte, totpSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", fmt.Errorf("totp: generating secret: %w", err)
	}
	return secret, b32.EncodeToString(secret), nil
}

// DecodeSecret parses a base32 secret as produced by GenerateSecret.
// Padding and case are normalized for manual entry.
func (m *totpManager) DecodeSecret(encoded string) ([]byte, error) {
	normalized := strings.ToUpper(strings.TrimRight(strings.TrimSpace(encoded), "="))
	secret, err := b32.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("totp: invalid secret encoding: %w", err)
	}
	if len(secret) < 10 {
		return nil, fmt.Errorf("totp: secret too short")
	}
	return secret, nil
}

// ProvisionURI builds the otpauth:// URI encoded in enrollment QR codes.
func (m *totpManager) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(m.issuer + ":" + account)
	q := url.Values{}
	q.Set("secret", secretBase32)
	q.Set("issuer", m.issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprint(m.digits))
	q.Set("period", fmt.Sprint(m.period))
	return "otpauth://totp/" + label + "?" + q.Encode()
}

// VerifyCode checks code against secret at now, accepting up to skew steps
// of drift either side. The comparison is constant time per candidate step.
func (m *totpManager) VerifyCode(secret []byte, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != m.digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}

	counter := now.Unix() / int64(m.period)
	ok := false
	for offset := -m.skew; offset <= m.skew; offset++ {
		candidate := m.hotpCode(secret, uint64(counter+int64(offset)))
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			ok = true
		}
	}
	return ok
}

// hotpCode computes the RFC 4226 HOTP value for one counter step.
func (m *totpManager) hotpCode(secret []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < m.digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", m.digits, value%mod)
}
