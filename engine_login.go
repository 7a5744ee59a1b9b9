package authcore

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/campuskit/authcore/internal"
	"github.com/campuskit/authcore/internal/rate"
	"github.com/campuskit/authcore/internal/stores"
)

// Login authenticates primary credentials within the tenant carried by the
// context (or the configured default tenant).
//
// On success for a user without a second factor it returns a full token
// pair. For a user with a confirmed second factor it returns only a
// challenge token; no session exists until VerifyTwoFactor succeeds.
//
// Unknown email, wrong password, and inactive account all fail with
// ErrInvalidCredentials so callers cannot probe which accounts exist.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	tenantID := e.tenantOrDefault(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	ip := clientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, tenantID, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metrics.inc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditLoginRateLimited, false, "", tenantID, ErrLoginRateLimited, map[string]string{"email": email})
				return nil, ErrLoginRateLimited
			}
			return nil, transient("login throttle", err)
		}
	}

	user, err := e.users.GetByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.loginFailure(ctx, tenantID, email, "", ErrInvalidCredentials)
		}
		return nil, transient("loading user", err)
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		// A hash that does not parse is a data problem, but to the caller
		// it is still just a failed login.
		log.Printf("authcore: stored hash for user %s is unreadable: %v", user.ID, err)
		return nil, e.loginFailure(ctx, tenantID, email, user.ID, ErrInvalidCredentials)
	}
	if !ok {
		return nil, e.loginFailure(ctx, tenantID, email, user.ID, ErrInvalidCredentials)
	}
	if user.Status != StatusActive {
		return nil, e.loginFailure(ctx, tenantID, email, user.ID, ErrUserDeactivated)
	}

	if e.cfg.Password.UpgradeOnLogin {
		if needs, rehashErr := e.hasher.NeedsRehash(user.PasswordHash); rehashErr == nil && needs {
			if newHash, hashErr := e.hasher.Hash(pass); hashErr == nil {
				if upErr := e.users.UpdatePasswordHash(ctx, user.ID, newHash); upErr != nil {
					log.Printf("authcore: hash upgrade for user %s failed: %v", user.ID, upErr)
				}
			}
		}
	}

	if user.TwoFactorEnabled {
		challengeToken, chErr := e.createChallenge(ctx, user)
		if chErr != nil {
			return nil, chErr
		}
		e.metrics.inc(MetricTwoFactorRequired)
		e.emitAudit(ctx, auditTwoFactorRequired, true, user.ID, user.TenantID, nil, nil)
		return &LoginResult{TwoFactorRequired: true, ChallengeToken: challengeToken}, nil
	}

	access, refresh, err := e.issueTokensFor(ctx, user)
	if err != nil {
		return nil, err
	}
	e.resetThrottle(ctx, tenantID, email, ip)
	e.metrics.inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditLoginSuccess, true, user.ID, user.TenantID, nil, nil)
	return &LoginResult{AccessToken: access, RefreshToken: refresh}, nil
}

// loginFailure records a failed attempt against the throttle and returns
// ErrInvalidCredentials regardless of the underlying cause. The cause still
// reaches the audit trail.
func (e *Engine) loginFailure(ctx context.Context, tenantID, email, userID string, cause error) error {
	ip := clientIPFromContext(ctx)
	if e.limiter != nil {
		if err := e.limiter.RecordFailure(ctx, tenantID, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			log.Printf("authcore: recording login failure: %v", err)
		}
	}
	e.metrics.inc(MetricLoginFailure)
	e.emitAudit(ctx, auditLoginFailure, false, userID, tenantID, cause, map[string]string{"email": email})
	return ErrInvalidCredentials
}

// LoginAttempts reports the failed-attempt count currently held against an
// email in the tenant carried by the context, for admin dashboards and
// support tooling. With throttling disabled it is always zero.
func (e *Engine) LoginAttempts(ctx context.Context, email string) (int, error) {
	if err := e.checkReady(); err != nil {
		return 0, err
	}
	if e.limiter == nil {
		return 0, nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	n, err := e.limiter.Attempts(ctx, e.tenantOrDefault(ctx), email)
	if err != nil {
		return 0, transient("reading login attempts", err)
	}
	return n, nil
}

func (e *Engine) resetThrottle(ctx context.Context, tenantID, email, ip string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.Reset(ctx, tenantID, email, ip); err != nil {
		log.Printf("authcore: resetting login throttle: %v", err)
	}
}

// createChallenge stores a single-use two-factor challenge bound to the
// user and tenant.
func (e *Engine) createChallenge(ctx context.Context, user *User) (string, error) {
	token, err := internal.NewChallengeToken()
	if err != nil {
		return "", transient("generating challenge token", err)
	}
	record := &stores.Challenge{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		ExpiresAt: e.now().Add(e.cfg.TwoFactor.ChallengeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, token, record, e.cfg.TwoFactor.ChallengeTTL); err != nil {
		return "", transient("storing challenge", err)
	}
	return token, nil
}

// IssueSession creates a token pair for an already authenticated user, the
// step shared by first-factor-only logins and completed two-factor flows.
// It is exported for flows where authentication happened out of band, for
// example an SSO bridge.
func (e *Engine) IssueSession(ctx context.Context, userID string) (*LoginResult, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	user, err := e.loadActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	access, refresh, err := e.issueTokensFor(ctx, user)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditSessionIssued, true, user.ID, user.TenantID, nil, nil)
	return &LoginResult{AccessToken: access, RefreshToken: refresh}, nil
}

// issueTokensFor signs an access token and persists a fresh refresh token.
func (e *Engine) issueTokensFor(ctx context.Context, user *User) (string, string, error) {
	access, err := e.jwt.CreateAccess(user.ID, user.TenantID, string(user.Role), user.Email, user.FullName)
	if err != nil {
		return "", "", transient("signing access token", err)
	}
	value, err := internal.NewRefreshTokenValue()
	if err != nil {
		return "", "", transient("generating refresh token", err)
	}
	now := e.now()
	record := &RefreshToken{
		ID:         uuid.NewString(),
		TokenValue: value,
		UserID:     user.ID,
		TenantID:   user.TenantID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(e.cfg.Refresh.TTL),
	}
	if err := e.tokens.Create(ctx, record); err != nil {
		return "", "", transient("storing refresh token", err)
	}
	e.metrics.inc(MetricSessionIssued)
	return access, value, nil
}
