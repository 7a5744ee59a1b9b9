package authcore

import "errors"

// Engine sentinel errors. Operations wrap these with fmt.Errorf("%w: ...")
// where extra detail helps, so callers must match with errors.Is.
var (
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or after Close.
	ErrEngineNotReady = errors.New("authcore: engine not ready")

	// ErrInvalidCredentials is returned by Login for an unknown email, an
	// inactive account, or a password mismatch. The three cases are
	// deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("authcore: invalid credentials")

	// ErrUserDeactivated is returned by session operations other than Login
	// when the account behind a token or user ID is inactive.
	ErrUserDeactivated = errors.New("authcore: user deactivated")

	// ErrLoginRateLimited is returned by Login when the throttle window for
	// the email or client IP is exhausted.
	ErrLoginRateLimited = errors.New("authcore: too many login attempts")

	// ErrChallengeInvalidOrExpired is returned by VerifyTwoFactor when the
	// challenge token is unknown, already consumed, past its TTL, or bound
	// to a different tenant.
	ErrChallengeInvalidOrExpired = errors.New("authcore: two-factor challenge invalid or expired")

	// ErrTwoFactorCodeInvalid is returned by VerifyTwoFactor and
	// ConfirmTwoFactorSetup when the TOTP code does not match within the
	// configured window.
	ErrTwoFactorCodeInvalid = errors.New("authcore: two-factor code invalid")

	// ErrTwoFactorAttemptsExceeded is returned by VerifyTwoFactor when the
	// failed-attempt budget for a challenge is spent. The challenge is
	// consumed and the user must log in again.
	ErrTwoFactorAttemptsExceeded = errors.New("authcore: two-factor attempts exceeded")

	// ErrTwoFactorNotConfigured is returned by two-factor operations on a
	// user that has no confirmed second factor.
	ErrTwoFactorNotConfigured = errors.New("authcore: two-factor not configured")

	// ErrTwoFactorAlreadyEnabled is returned by ConfirmTwoFactorSetup when
	// the user already has a confirmed second factor.
	ErrTwoFactorAlreadyEnabled = errors.New("authcore: two-factor already enabled")

	// ErrTwoFactorDisabled is returned by enrollment operations when the
	// deployment has two-factor enrollment switched off.
	ErrTwoFactorDisabled = errors.New("authcore: two-factor enrollment disabled")

	// ErrInvalidRefreshToken is returned by Refresh and Logout for a token
	// value that is malformed or unknown.
	ErrInvalidRefreshToken = errors.New("authcore: invalid refresh token")

	// ErrRefreshTokenExpired is returned by Refresh for a known token whose
	// lifetime has elapsed.
	ErrRefreshTokenExpired = errors.New("authcore: refresh token expired")

	// ErrTokenReuseDetected is returned by Refresh when a previously rotated
	// or revoked token is presented again. Every active session of the user
	// has been revoked by the time this error is returned.
	ErrTokenReuseDetected = errors.New("authcore: refresh token reuse detected")

	// ErrTokenInvalid is returned by ValidateAccess for an access token that
	// fails signature, structure, or time-window checks.
	ErrTokenInvalid = errors.New("authcore: access token invalid")

	// ErrPasswordPolicy is returned by ChangePassword when the new password
	// does not meet the minimum length.
	ErrPasswordPolicy = errors.New("authcore: password does not meet policy")

	// ErrPasswordReuse is returned by ChangePassword when the new password
	// equals the current one.
	ErrPasswordReuse = errors.New("authcore: new password matches current password")

	// ErrTransientFailure wraps infrastructure errors (database, Redis) so
	// callers can retry without misreading an outage as an auth decision.
	ErrTransientFailure = errors.New("authcore: transient backend failure")
)

// Store sentinel errors. Implementations of UserStore and RefreshTokenStore
// return these; the engine translates them into the operation-level errors
// above.
var (
	// ErrUserNotFound is returned by UserStore lookups that match no row.
	ErrUserNotFound = errors.New("authcore: user not found")

	// ErrRefreshTokenNotFound is returned by RefreshTokenStore lookups and
	// by Rotate when the presented value matches no row.
	ErrRefreshTokenNotFound = errors.New("authcore: refresh token not found")

	// ErrRefreshTokenRevoked is returned by RefreshTokenStore.Rotate when
	// the presented token exists but is already revoked, which includes
	// losing a concurrent rotation race.
	ErrRefreshTokenRevoked = errors.New("authcore: refresh token revoked")
)
