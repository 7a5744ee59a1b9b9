package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/campuskit/authcore/internal/stores"
)

// VerifyTwoFactor completes a login that required a second factor. The
// challenge token comes from the LoginResult; code is the current TOTP
// value.
//
// The challenge is single use. A correct code consumes it and yields a
// token pair. Wrong codes burn attempts from the configured budget; when
// the budget is spent the challenge is consumed without a session and the
// user must start over at Login.
func (e *Engine) VerifyTwoFactor(ctx context.Context, challengeToken, code string) (*LoginResult, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	record, err := e.challenges.Get(ctx, challengeToken)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) || errors.Is(err, stores.ErrChallengeExpired) {
			e.metrics.inc(MetricTwoFactorFailure)
			e.emitAudit(ctx, auditTwoFactorFailure, false, "", e.tenantOrDefault(ctx), ErrChallengeInvalidOrExpired, nil)
			return nil, ErrChallengeInvalidOrExpired
		}
		return nil, transient("loading challenge", err)
	}

	// A challenge presented under a different tenant scope is treated as
	// unknown and burned.
	if scoped, ok := CurrentTenant(ctx); ok && scoped != record.TenantID {
		e.discardChallenge(ctx, challengeToken)
		e.metrics.inc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditTwoFactorFailure, false, record.UserID, scoped, ErrChallengeInvalidOrExpired, map[string]string{"reason": "tenant_mismatch"})
		return nil, ErrChallengeInvalidOrExpired
	}

	user, err := e.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.discardChallenge(ctx, challengeToken)
			return nil, ErrChallengeInvalidOrExpired
		}
		return nil, transient("loading user", err)
	}
	if user.Status != StatusActive {
		e.discardChallenge(ctx, challengeToken)
		e.emitAudit(ctx, auditTwoFactorFailure, false, user.ID, user.TenantID, ErrUserDeactivated, nil)
		return nil, ErrUserDeactivated
	}
	if !user.TwoFactorEnabled || len(user.TwoFactorSecret) == 0 {
		e.discardChallenge(ctx, challengeToken)
		return nil, ErrTwoFactorNotConfigured
	}

	if !e.totp.VerifyCode(user.TwoFactorSecret, code, e.now()) {
		exceeded, recErr := e.challenges.RecordFailure(ctx, challengeToken, e.cfg.TwoFactor.MaxAttempts)
		if recErr != nil {
			if errors.Is(recErr, stores.ErrChallengeNotFound) || errors.Is(recErr, stores.ErrChallengeExpired) {
				return nil, ErrChallengeInvalidOrExpired
			}
			return nil, transient("recording challenge failure", recErr)
		}
		if exceeded {
			e.metrics.inc(MetricTwoFactorLocked)
			e.emitAudit(ctx, auditTwoFactorLocked, false, user.ID, user.TenantID, ErrTwoFactorAttemptsExceeded, nil)
			return nil, ErrTwoFactorAttemptsExceeded
		}
		e.metrics.inc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditTwoFactorFailure, false, user.ID, user.TenantID, ErrTwoFactorCodeInvalid, nil)
		return nil, ErrTwoFactorCodeInvalid
	}

	consumed, err := e.challenges.Consume(ctx, challengeToken)
	if err != nil {
		return nil, transient("consuming challenge", err)
	}
	if !consumed {
		// Lost the race against a concurrent verification of the same
		// challenge. Only the winner gets a session.
		e.metrics.inc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditTwoFactorFailure, false, user.ID, user.TenantID, ErrChallengeInvalidOrExpired, map[string]string{"reason": "already_consumed"})
		return nil, ErrChallengeInvalidOrExpired
	}

	access, refresh, err := e.issueTokensFor(ctx, user)
	if err != nil {
		return nil, err
	}
	e.resetThrottle(ctx, user.TenantID, user.Email, clientIPFromContext(ctx))
	e.metrics.inc(MetricTwoFactorSuccess)
	e.metrics.inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditTwoFactorSuccess, true, user.ID, user.TenantID, nil, nil)
	return &LoginResult{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) discardChallenge(ctx context.Context, challengeToken string) {
	if _, err := e.challenges.Consume(ctx, challengeToken); err != nil {
		log.Printf("authcore: discarding challenge: %v", err)
	}
}

// GenerateTwoFactorSetup starts TOTP enrollment for a user. It returns the
// secret in base32 plus the otpauth URI for the QR code; nothing is
// persisted until ConfirmTwoFactorSetup proves the authenticator was set up
// with a working code.
func (e *Engine) GenerateTwoFactorSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	if !e.cfg.TwoFactor.Enabled {
		return nil, ErrTwoFactorDisabled
	}
	user, err := e.loadActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, transient("generating totp secret", err)
	}
	e.emitAudit(ctx, auditTwoFactorSetup, true, user.ID, user.TenantID, nil, nil)
	return &TwoFactorSetup{
		SecretBase32: secretBase32,
		OTPAuthURI:   e.totp.ProvisionURI(secretBase32, user.Email),
	}, nil
}

// ConfirmTwoFactorSetup activates a pending enrollment. secretBase32 is the
// value from GenerateTwoFactorSetup and code must be a current TOTP value
// for it; that round trip proves the user's authenticator holds the secret
// before it becomes a login requirement.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID, secretBase32, code string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if !e.cfg.TwoFactor.Enabled {
		return ErrTwoFactorDisabled
	}
	user, err := e.loadActiveUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	secret, err := e.totp.DecodeSecret(secretBase32)
	if err != nil {
		return ErrTwoFactorCodeInvalid
	}
	if !e.totp.VerifyCode(secret, code, e.now()) {
		e.emitAudit(ctx, auditTwoFactorFailure, false, user.ID, user.TenantID, ErrTwoFactorCodeInvalid, map[string]string{"phase": "setup"})
		return ErrTwoFactorCodeInvalid
	}
	if err := e.users.SetTwoFactorSecret(ctx, user.ID, secret); err != nil {
		return transient("storing totp secret", err)
	}
	e.emitAudit(ctx, auditTwoFactorEnabled, true, user.ID, user.TenantID, nil, nil)
	return nil
}

// DisableTwoFactor removes a user's second factor. A current TOTP code is
// required so a hijacked session cannot silently weaken the account.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	user, err := e.loadActiveUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled || len(user.TwoFactorSecret) == 0 {
		return ErrTwoFactorNotConfigured
	}
	if !e.totp.VerifyCode(user.TwoFactorSecret, code, e.now()) {
		e.emitAudit(ctx, auditTwoFactorFailure, false, user.ID, user.TenantID, ErrTwoFactorCodeInvalid, map[string]string{"phase": "disable"})
		return ErrTwoFactorCodeInvalid
	}
	if err := e.users.ClearTwoFactorSecret(ctx, user.ID); err != nil {
		return transient("clearing totp secret", err)
	}
	e.emitAudit(ctx, auditTwoFactorDisabled, true, user.ID, user.TenantID, nil, nil)
	return nil
}
