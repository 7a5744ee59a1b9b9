package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestChangePassword(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")
	f.loginTokens(t, "ada@example.edu")
	f.loginTokens(t, "ada@example.edu")

	const newPass = "an entirely new passphrase"
	if err := f.engine.ChangePassword(context.Background(), u.ID, testPassword, newPass); err != nil {
		t.Fatalf("change password: %v", err)
	}

	// Old sessions are dead, the old password refused, the new one works.
	if got := f.tokens.activeCount(u.ID); got != 0 {
		t.Fatalf("active sessions = %d, want 0", got)
	}
	if _, err := f.engine.Login(tenantCtx(), "ada@example.edu", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.engine.Login(tenantCtx(), "ada@example.edu", newPass); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestChangePasswordRejections(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")
	ctx := context.Background()

	if err := f.engine.ChangePassword(ctx, u.ID, "wrong", "another passphrase"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current err = %v, want ErrInvalidCredentials", err)
	}
	if err := f.engine.ChangePassword(ctx, u.ID, testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("short new err = %v, want ErrPasswordPolicy", err)
	}
	if err := f.engine.ChangePassword(ctx, u.ID, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("reused new err = %v, want ErrPasswordReuse", err)
	}
	if err := f.engine.ChangePassword(ctx, "ghost", testPassword, "another passphrase"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user err = %v, want ErrUserNotFound", err)
	}
}

func TestDeactivateAndReactivate(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")
	f.loginTokens(t, "ada@example.edu")
	ctx := context.Background()

	if err := f.engine.DeactivateUser(ctx, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got := f.tokens.activeCount(u.ID); got != 0 {
		t.Fatalf("active sessions = %d, want 0", got)
	}
	if _, err := f.engine.Login(tenantCtx(), "ada@example.edu", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login while inactive err = %v", err)
	}
	if _, err := f.engine.IssueSession(ctx, u.ID); !errors.Is(err, ErrUserDeactivated) {
		t.Fatalf("issue while inactive err = %v", err)
	}

	if err := f.engine.ReactivateUser(ctx, u.ID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := f.engine.Login(tenantCtx(), "ada@example.edu", testPassword); err != nil {
		t.Fatalf("login after reactivation: %v", err)
	}

	if err := f.engine.DeactivateUser(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("deactivate unknown err = %v, want ErrUserNotFound", err)
	}
}
