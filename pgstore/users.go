package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskit/authcore"
)

// UserStore is the PostgreSQL implementation of authcore.UserStore.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, tenant_id, email, full_name, password_hash, role, status, two_factor_enabled, two_factor_secret`

func scanUser(row pgx.Row) (*authcore.User, error) {
	var u authcore.User
	var role string
	var status int16
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.PasswordHash, &role, &status, &u.TwoFactorEnabled, &u.TwoFactorSecret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("pgstore: scanning user: %w", err)
	}
	u.Role = authcore.Role(role)
	u.Status = authcore.UserStatus(status)
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (*authcore.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *UserStore) GetByEmail(ctx context.Context, tenantID, email string) (*authcore.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)`,
		tenantID, email)
	return scanUser(row)
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`, newHash, userID)
	if err != nil {
		return fmt.Errorf("pgstore: updating password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) SetTwoFactorSecret(ctx context.Context, userID string, secret []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET two_factor_secret = $1, two_factor_enabled = TRUE WHERE id = $2`,
		secret, userID)
	if err != nil {
		return fmt.Errorf("pgstore: setting two-factor secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) ClearTwoFactorSecret(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET two_factor_secret = NULL, two_factor_enabled = FALSE WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("pgstore: clearing two-factor secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) SetStatus(ctx context.Context, userID string, status authcore.UserStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET status = $1 WHERE id = $2`, int16(status), userID)
	if err != nil {
		return fmt.Errorf("pgstore: updating status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
