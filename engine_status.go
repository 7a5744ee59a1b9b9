package authcore

import (
	"context"
	"errors"
)

// DeactivateUser marks an account inactive and revokes all of its sessions.
// Already issued access tokens run out on their own; everything refreshable
// dies immediately.
func (e *Engine) DeactivateUser(ctx context.Context, userID string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return transient("loading user", err)
	}
	if err := e.users.SetStatus(ctx, user.ID, StatusInactive); err != nil {
		return transient("updating status", err)
	}
	if _, err := e.tokens.RevokeAllForUser(ctx, user.ID, RevokeReasonDeactivated, e.now()); err != nil {
		return transient("revoking sessions", err)
	}
	e.emitAudit(ctx, auditUserDeactivated, true, user.ID, user.TenantID, nil, nil)
	return nil
}

// ReactivateUser marks an account active again. No sessions are restored;
// the user logs in fresh.
func (e *Engine) ReactivateUser(ctx context.Context, userID string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return transient("loading user", err)
	}
	if err := e.users.SetStatus(ctx, user.ID, StatusActive); err != nil {
		return transient("updating status", err)
	}
	e.emitAudit(ctx, auditUserReactivated, true, user.ID, user.TenantID, nil, nil)
	return nil
}
