package authcore

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/google/uuid"

	"github.com/campuskit/authcore/internal"
)

// Refresh exchanges a refresh token for a new access token and a new
// refresh token, revoking the presented one. Each refresh value works
// exactly once.
//
// Presenting a token that was already rotated or revoked is treated as
// theft: every active session of the owning user is revoked and
// ErrTokenReuseDetected is returned. The same applies when two refreshes
// race on one value; the loser triggers the cascade.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	if err := internal.ValidRefreshTokenValue(refreshToken); err != nil {
		e.metrics.inc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}

	record, err := e.tokens.GetByValue(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			e.metrics.inc(MetricRefreshFailure)
			e.emitAudit(ctx, auditRefreshFailure, false, "", e.tenantOrDefault(ctx), ErrInvalidRefreshToken, nil)
			return nil, ErrInvalidRefreshToken
		}
		return nil, transient("loading refresh token", err)
	}

	now := e.now()
	if record.Revoked {
		return nil, e.reuseDetected(ctx, record)
	}
	if record.Expired(now) {
		e.metrics.inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefreshFailure, false, record.UserID, record.TenantID, ErrRefreshTokenExpired, nil)
		return nil, ErrRefreshTokenExpired
	}

	user, err := e.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.inc(MetricRefreshFailure)
			return nil, ErrInvalidRefreshToken
		}
		return nil, transient("loading user", err)
	}
	if user.Status != StatusActive {
		if _, revErr := e.tokens.RevokeAllForUser(ctx, user.ID, RevokeReasonDeactivated, now); revErr != nil {
			log.Printf("authcore: revoking sessions of deactivated user %s: %v", user.ID, revErr)
		}
		e.metrics.inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefreshFailure, false, user.ID, user.TenantID, ErrUserDeactivated, nil)
		return nil, ErrUserDeactivated
	}

	// Sign the access token before touching the store so a successful
	// rotation is always followed by a successful return: after Rotate
	// commits, nothing below it can fail.
	access, err := e.jwt.CreateAccess(user.ID, user.TenantID, string(user.Role), user.Email, user.FullName)
	if err != nil {
		return nil, transient("signing access token", err)
	}
	value, err := internal.NewRefreshTokenValue()
	if err != nil {
		return nil, transient("generating refresh token", err)
	}
	successor := &RefreshToken{
		ID:         uuid.NewString(),
		TokenValue: value,
		UserID:     user.ID,
		TenantID:   user.TenantID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(e.cfg.Refresh.TTL),
	}

	if err := e.tokens.Rotate(ctx, refreshToken, successor, now); err != nil {
		switch {
		case errors.Is(err, ErrRefreshTokenRevoked):
			// Someone else rotated or revoked it between our read and the
			// conditional update.
			return nil, e.reuseDetected(ctx, record)
		case errors.Is(err, ErrRefreshTokenNotFound):
			e.metrics.inc(MetricRefreshFailure)
			return nil, ErrInvalidRefreshToken
		}
		return nil, transient("rotating refresh token", err)
	}

	e.metrics.inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditRefreshSuccess, true, user.ID, user.TenantID, nil, nil)
	return &LoginResult{AccessToken: access, RefreshToken: value}, nil
}

// reuseDetected runs the cascade for a replayed refresh token.
func (e *Engine) reuseDetected(ctx context.Context, record *RefreshToken) error {
	revoked, err := e.tokens.RevokeAllForUser(ctx, record.UserID, RevokeReasonReuseDetected, e.now())
	if err != nil {
		// The cascade must not be skipped silently; surface the failure so
		// the caller retries and the replayed token stays unusable.
		return transient("revoking sessions after reuse", err)
	}
	e.metrics.inc(MetricReuseDetected)
	e.emitAudit(ctx, auditReuseDetected, false, record.UserID, record.TenantID, ErrTokenReuseDetected, map[string]string{
		"token_id": record.ID,
	})
	if revoked > 0 {
		log.Printf("authcore: refresh reuse for user %s, revoked %d active sessions", record.UserID, revoked)
	}
	return ErrTokenReuseDetected
}

// Logout revokes one refresh token, ending that session. The matching
// access token stays valid until it expires on its own; callers that need
// immediate cutoff keep access lifetimes short.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if err := internal.ValidRefreshTokenValue(refreshToken); err != nil {
		return ErrInvalidRefreshToken
	}
	record, err := e.tokens.GetByValue(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return ErrInvalidRefreshToken
		}
		return transient("loading refresh token", err)
	}
	if err := e.tokens.Revoke(ctx, refreshToken, RevokeReasonLogout, e.now()); err != nil {
		return transient("revoking refresh token", err)
	}
	e.metrics.inc(MetricLogout)
	e.emitAudit(ctx, auditLogout, true, record.UserID, record.TenantID, nil, nil)
	return nil
}

// RevokeAllSessions revokes every active refresh token of a user, for
// example from an admin console or a "log out everywhere" button. It
// returns how many sessions were ended.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	if err := e.checkReady(); err != nil {
		return 0, err
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, transient("loading user", err)
	}
	revoked, err := e.tokens.RevokeAllForUser(ctx, user.ID, RevokeReasonRevokeAll, e.now())
	if err != nil {
		return 0, transient("revoking sessions", err)
	}
	e.metrics.inc(MetricRevokeAll)
	e.emitAudit(ctx, auditRevokeAll, true, user.ID, user.TenantID, nil, map[string]string{
		"count": strconv.FormatInt(revoked, 10),
	})
	return revoked, nil
}
