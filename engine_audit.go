package authcore

import (
	"context"
	"errors"
	"time"
)

// Audit event types emitted by the engine.
const (
	auditLoginSuccess     = "login_success"
	auditLoginFailure     = "login_failure"
	auditLoginRateLimited = "login_rate_limited"

	auditTwoFactorRequired = "two_factor_required"
	auditTwoFactorSuccess  = "two_factor_success"
	auditTwoFactorFailure  = "two_factor_failure"
	auditTwoFactorLocked   = "two_factor_attempts_exceeded"

	auditSessionIssued = "session_issued"

	auditRefreshSuccess = "refresh_success"
	auditRefreshFailure = "refresh_failure"
	auditReuseDetected  = "refresh_reuse_detected"

	auditLogout    = "logout"
	auditRevokeAll = "sessions_revoked"

	auditPasswordChanged       = "password_changed"
	auditPasswordChangeFailure = "password_change_failure"

	auditTwoFactorSetup    = "two_factor_setup_started"
	auditTwoFactorEnabled  = "two_factor_enabled"
	auditTwoFactorDisabled = "two_factor_disabled"

	auditUserDeactivated = "user_deactivated"
	auditUserReactivated = "user_reactivated"
)

// auditErrorCode maps engine errors to stable short codes for event
// consumers. Unknown errors report as "internal".
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUserDeactivated):
		return "user_deactivated"
	case errors.Is(err, ErrLoginRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrChallengeInvalidOrExpired):
		return "challenge_invalid"
	case errors.Is(err, ErrTwoFactorAttemptsExceeded):
		return "two_factor_attempts_exceeded"
	case errors.Is(err, ErrTwoFactorCodeInvalid):
		return "two_factor_code_invalid"
	case errors.Is(err, ErrTwoFactorNotConfigured):
		return "two_factor_not_configured"
	case errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return "two_factor_already_enabled"
	case errors.Is(err, ErrTwoFactorDisabled):
		return "two_factor_disabled"
	case errors.Is(err, ErrTokenReuseDetected):
		return "reuse_detected"
	case errors.Is(err, ErrRefreshTokenExpired):
		return "refresh_expired"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "refresh_invalid"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrTransientFailure):
		return "transient"
	}
	return "internal"
}

// emitAudit queues one event if auditing is enabled. metadata may be nil.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, tenantID string, err error, metadata map[string]string) {
	if e.audit == nil {
		return
	}
	e.audit.emit(AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Success:   success,
		UserID:    userID,
		TenantID:  tenantID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		ErrorCode: auditErrorCode(err),
		Metadata:  metadata,
	})
}
