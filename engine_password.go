package authcore

import "context"

// ChangePassword replaces a user's password after verifying the current
// one, then revokes every active session so stolen refresh tokens die with
// the old credential. The caller logs the user back in afterwards.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	user, err := e.loadActiveUser(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metrics.inc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditPasswordChangeFailure, false, user.ID, user.TenantID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if len(newPassword) < e.cfg.Password.MinLength {
		e.metrics.inc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditPasswordChangeFailure, false, user.ID, user.TenantID, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}
	if newPassword == currentPassword {
		e.metrics.inc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditPasswordChangeFailure, false, user.ID, user.TenantID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return transient("hashing password", err)
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		return transient("updating password", err)
	}
	if _, err := e.tokens.RevokeAllForUser(ctx, user.ID, RevokeReasonPasswordChanged, e.now()); err != nil {
		return transient("revoking sessions after password change", err)
	}
	e.resetThrottle(ctx, user.TenantID, user.Email, clientIPFromContext(ctx))
	e.metrics.inc(MetricPasswordChanged)
	e.emitAudit(ctx, auditPasswordChanged, true, user.ID, user.TenantID, nil, nil)
	return nil
}
