package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskit/authcore"
)

// RefreshTokenStore is the PostgreSQL implementation of
// authcore.RefreshTokenStore.
type RefreshTokenStore struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenStore(pool *pgxpool.Pool) *RefreshTokenStore {
	return &RefreshTokenStore{pool: pool}
}

func (s *RefreshTokenStore) Create(ctx context.Context, token *authcore.RefreshToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, token_value, user_id, tenant_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.TokenValue, token.UserID, token.TenantID, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("pgstore: inserting refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) GetByValue(ctx context.Context, tokenValue string) (*authcore.RefreshToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, token_value, user_id, tenant_id, issued_at, expires_at,
		        revoked, revoked_at, revoked_reason, replaced_by
		   FROM refresh_tokens WHERE token_value = $1`, tokenValue)

	var t authcore.RefreshToken
	var revokedAt *time.Time
	err := row.Scan(&t.ID, &t.TokenValue, &t.UserID, &t.TenantID, &t.IssuedAt, &t.ExpiresAt,
		&t.Revoked, &revokedAt, &t.RevokedReason, &t.ReplacedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("pgstore: scanning refresh token: %w", err)
	}
	if revokedAt != nil {
		t.RevokedAt = *revokedAt
	}
	return &t, nil
}

// Rotate revokes the presented token and inserts its successor in one
// transaction. The conditional UPDATE on NOT revoked is what makes
// concurrent rotations of the same value resolve to a single winner: the
// loser's update touches zero rows and the whole transaction rolls back.
func (s *RefreshTokenStore) Rotate(ctx context.Context, presentedValue string, successor *authcore.RefreshToken, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: beginning rotation: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens
		    SET revoked = TRUE, revoked_at = $1, revoked_reason = $2, replaced_by = $3
		  WHERE token_value = $4 AND NOT revoked`,
		at, authcore.RevokeReasonRotated, successor.ID, presentedValue)
	if err != nil {
		return fmt.Errorf("pgstore: revoking rotated token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var revoked bool
		err := tx.QueryRow(ctx,
			`SELECT revoked FROM refresh_tokens WHERE token_value = $1`, presentedValue).Scan(&revoked)
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.ErrRefreshTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("pgstore: inspecting rotated token: %w", err)
		}
		return authcore.ErrRefreshTokenRevoked
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, token_value, user_id, tenant_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		successor.ID, successor.TokenValue, successor.UserID, successor.TenantID,
		successor.IssuedAt, successor.ExpiresAt)
	if err != nil {
		return fmt.Errorf("pgstore: inserting successor token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: committing rotation: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, tokenValue, reason string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens
		    SET revoked = TRUE, revoked_at = $1, revoked_reason = $2
		  WHERE token_value = $3 AND NOT revoked`,
		at, reason, tokenValue)
	if err != nil {
		return fmt.Errorf("pgstore: revoking refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens
		    SET revoked = TRUE, revoked_at = $1, revoked_reason = $2
		  WHERE user_id = $3 AND NOT revoked`,
		at, reason, userID)
	if err != nil {
		return 0, fmt.Errorf("pgstore: revoking user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
