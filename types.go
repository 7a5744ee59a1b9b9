package authcore

import (
	"context"
	"time"
)

// Role is the platform-wide role of a user. Roles are carried in access
// token claims; authorization decisions on top of them are the caller's
// concern.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleTeacher    Role = "teacher"
	RoleAssistant  Role = "assistant"
	RoleStudent    Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RoleTeacher, RoleAssistant, RoleStudent:
		return true
	}
	return false
}

// UserStatus is the lifecycle state of an account.
type UserStatus uint8

const (
	StatusActive UserStatus = iota
	StatusInactive
)

func (s UserStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	}
	return "unknown"
}

// User is the engine's view of an account. The backing store owns the
// authoritative record; the engine only reads the fields below and writes
// through the narrow UserStore mutators.
//
// TwoFactorSecret holds the raw TOTP secret. Stores are expected to encrypt
// it at rest; the engine always sees plaintext bytes.
type User struct {
	ID               string
	TenantID         string
	Email            string
	FullName         string
	PasswordHash     string
	Role             Role
	Status           UserStatus
	TwoFactorEnabled bool
	TwoFactorSecret  []byte
}

// RefreshToken is one persisted refresh token. TokenValue is the opaque
// secret presented by clients; ID is the stable row identity used for the
// ReplacedBy chain.
type RefreshToken struct {
	ID            string
	TokenValue    string
	UserID        string
	TenantID      string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Revoked       bool
	RevokedAt     time.Time
	RevokedReason string
	ReplacedBy    string
}

// Expired reports whether the token lifetime has elapsed at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Usable reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// Revocation reasons recorded by the engine. Stores persist them verbatim.
const (
	RevokeReasonRotated         = "rotated"
	RevokeReasonLogout          = "logout"
	RevokeReasonRevokeAll       = "revoke_all"
	RevokeReasonReuseDetected   = "reuse_detected"
	RevokeReasonPasswordChanged = "password_changed"
	RevokeReasonDeactivated     = "deactivated"
)

// TokenClaims is the validated content of an access token.
type TokenClaims struct {
	UserID    string
	TenantID  string
	Role      Role
	Email     string
	FullName  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LoginResult is the outcome of a successful primary authentication. When
// TwoFactorRequired is set, the token fields are empty and the caller must
// complete VerifyTwoFactor with ChallengeToken.
type LoginResult struct {
	AccessToken       string
	RefreshToken      string
	TwoFactorRequired bool
	ChallengeToken    string
}

// TwoFactorSetup is a pending enrollment returned by GenerateTwoFactorSetup.
// The secret is not active until ConfirmTwoFactorSetup succeeds.
type TwoFactorSetup struct {
	SecretBase32 string
	OTPAuthURI   string
}

// UserStore is the persistence port for accounts. Implementations return
// ErrUserNotFound for lookups that match nothing and keep every method safe
// for concurrent use.
type UserStore interface {
	// GetByID loads a user by its stable identifier, across tenants.
	GetByID(ctx context.Context, userID string) (*User, error)

	// GetByEmail loads a user by email within one tenant. Emails are only
	// unique per tenant, so tenantID is mandatory.
	GetByEmail(ctx context.Context, tenantID, email string) (*User, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetTwoFactorSecret stores a confirmed TOTP secret and marks the second
	// factor enabled.
	SetTwoFactorSecret(ctx context.Context, userID string, secret []byte) error

	// ClearTwoFactorSecret removes the TOTP secret and marks the second
	// factor disabled.
	ClearTwoFactorSecret(ctx context.Context, userID string) error

	// SetStatus updates the account lifecycle state.
	SetStatus(ctx context.Context, userID string, status UserStatus) error
}

// RefreshTokenStore is the persistence port for refresh tokens.
//
/// Rotate is the heart of reuse detection and must be atomic: it revokes the
// presented token (reason "rotated", ReplacedBy pointing at the successor)
// and inserts the successor in one transaction, or does neither. It returns
// ErrRefreshTokenNotFound when the presented value matches no row and
// ErrRefreshTokenRevoked when the row is already revoked; under concurrent
// rotation of the same value exactly one caller succeeds.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByValue(ctx context.Context, tokenValue string) (*RefreshToken, error)
	Rotate(ctx context.Context, presentedValue string, successor *RefreshToken, at time.Time) error

	// Revoke marks one token revoked. Revoking an already revoked token is
	// a no-op, not an error.
	Revoke(ctx context.Context, tokenValue, reason string, at time.Time) error

	// RevokeAllForUser revokes every active token of a user and returns how
	// many rows changed.
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error)
}
