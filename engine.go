package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/campuskit/authcore/internal/rate"
	"github.com/campuskit/authcore/internal/stores"
	"github.com/campuskit/authcore/jwt"
	"github.com/campuskit/authcore/password"
)

// Engine is the session and credential core. It is safe for concurrent use
// and is built once at startup through the Builder; see the package
// documentation for the wiring.
type Engine struct {
	cfg Config

	users  UserStore
	tokens RefreshTokenStore

	challenges *stores.ChallengeStore
	limiter    *rate.Limiter
	hasher     *password.Hasher
	jwt        *jwt.Manager
	totp       *totpManager

	metrics *engineMetrics
	audit   *auditDispatcher

	closed atomic.Bool

	// now is swapped in tests to pin time-dependent behavior.
	now func() time.Time
}

// Close shuts the engine down. Pending audit events are drained to the sink
// before Close returns. The engine rejects every operation afterwards with
// ErrEngineNotReady. The Redis client and the stores are caller-owned and
// stay open.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	if e.audit != nil {
		e.audit.close()
	}
}

func (e *Engine) checkReady() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// transient wraps an infrastructure error so callers see ErrTransientFailure
// through errors.Is while the cause stays in the message.
func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransientFailure, op, err)
}

// ValidateAccess verifies an access token's signature, structure, and time
// window and returns its claims. Validation is purely local; revocation of
// the session does not affect already issued access tokens, which is why
// their lifetime is short.
func (e *Engine) ValidateAccess(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	claims, err := e.jwt.ParseAccess(tokenString)
	if err != nil {
		e.metrics.inc(MetricAccessRejected)
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	e.metrics.inc(MetricAccessValidated)
	out := &TokenClaims{
		UserID:   claims.UID,
		TenantID: claims.TID,
		Role:     Role(claims.Role),
		Email:    claims.Email,
		FullName: claims.FullName,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// MetricsSnapshot returns the current counter values keyed by metric name.
// With metrics disabled the map is empty.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	return e.metrics.Snapshot()
}

// loadActiveUser fetches a user by ID and enforces the active status.
func (e *Engine) loadActiveUser(ctx context.Context, userID string) (*User, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, transient("loading user", err)
	}
	if user.Status != StatusActive {
		return nil, ErrUserDeactivated
	}
	return user, nil
}
