package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func (f *testFixture) loginForChallenge(t *testing.T, email string) string {
	t.Helper()
	result, err := f.engine.Login(tenantCtx(), email, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !result.TwoFactorRequired || result.ChallengeToken == "" {
		t.Fatalf("expected a two-factor challenge, got %+v", result)
	}
	if result.AccessToken != "" || result.RefreshToken != "" {
		t.Fatal("no tokens may be issued before the second factor")
	}
	return result.ChallengeToken
}

func TestTwoFactorLoginFlow(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")
	secret := f.enableTwoFactor(t, u.ID)

	challenge := f.loginForChallenge(t, "ada@example.edu")
	if got := f.tokens.activeCount(u.ID); got != 0 {
		t.Fatalf("sessions before verification = %d", got)
	}

	result, err := f.engine.VerifyTwoFactor(tenantCtx(), challenge, f.currentCode(secret))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected a full token pair after verification")
	}
	if got := f.tokens.activeCount(u.ID); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}
}

func TestTwoFactorChallengeSingleUse(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")
	secret := f.enableTwoFactor(t, u.ID)

	challenge := f.loginForChallenge(t, "ada@example.edu")
	code := f.currentCode(secret)

	if _, err := f.engine.VerifyTwoFactor(tenantCtx(), challenge, code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	_, err := f.engine.VerifyTwoFactor(tenantCtx(), challenge, code)
	if !errors.Is(err, ErrChallengeInvalidOrExpired) {
		t.Fatalf("replayed challenge err = %v, want ErrChallengeInvalidOrExpired", err)
	}
}

func TestTwoFactorWrongCodeBudget(t *testing.T) {
	f := newTestEngine(t, func(cfg *Config) {
		cfg.TwoFactor.MaxAttempts = 3
	})
	u := f.seedUser(t, "u1", "ada@example.edu")
	secret := f.enableTwoFactor(t, u.ID)

	challenge := f.loginForChallenge(t, "ada@example.edu")

	for i := 0; i < 2; i++ {
		_, err := f.engine.VerifyTwoFactor(tenantCtx(), challenge, "000000")
		if !errors.Is(err, ErrTwoFactorCodeInvalid) {
			t.Fatalf("attempt %d: err = %v, want ErrTwoFactorCodeInvalid", i, err)
		}
	}
	_, err := f.engine.VerifyTwoFactor(tenantCtx(), challenge, "000000")
	if !errors.Is(err, ErrTwoFactorAttemptsExceeded) {
		t.Fatalf("err = %v, want ErrTwoFactorAttemptsExceeded", err)
	}

	// The budget consumed the challenge; even the right code is dead now.
	_, err = f.engine.VerifyTwoFactor(tenantCtx(), challenge, f.currentCode(secret))
	if !errors.Is(err, ErrChallengeInvalidOrExpired) {
		t.Fatalf("post-lockout err = %v, want ErrChallengeInvalidOrExpired", err)
	}
}

func TestTwoFactorSingleAttemptPolicy(t *testing.T) {
	f := newTestEngine(t, func(cfg *Config) {
		cfg.TwoFactor.MaxAttempts = 1
	})
	u := f.seedUser(t, "u1", "ada@example.edu")
	f.enableTwoFactor(t, u.ID)

	challenge := f.loginForChallenge(t, "ada@example.edu")
	_, err := f.engine.VerifyTwoFactor(tenantCtx(), challenge, "000000")
	if !errors.Is(err, ErrTwoFactorAttemptsExceeded) {
		t.Fatalf("err = %v, want ErrTwoFactorAttemptsExceeded on first failure", err)
	}
}

func TestTwoFactorChallengeExpiry(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")
	secret := f.enableTwoFactor(t, u.ID)

	// Issue the challenge from the past so its deadline is already gone,
	// without waiting out the TTL.
	f.engine.now = func() time.Time { return time.Now().Add(-2 * f.engine.cfg.TwoFactor.ChallengeTTL) }
	challenge := f.loginForChallenge(t, "ada@example.edu")
	f.engine.now = time.Now

	_, err := f.engine.VerifyTwoFactor(tenantCtx(), challenge, f.currentCode(secret))
	if !errors.Is(err, ErrChallengeInvalidOrExpired) {
		t.Fatalf("err = %v, want ErrChallengeInvalidOrExpired", err)
	}
}

func TestTwoFactorUnknownChallenge(t *testing.T) {
	f := newTestEngine(t)
	_, err := f.engine.VerifyTwoFactor(tenantCtx(), "no-such-challenge", "123456")
	if !errors.Is(err, ErrChallengeInvalidOrExpired) {
		t.Fatalf("err = %v, want ErrChallengeInvalidOrExpired", err)
	}
}

func TestTwoFactorTenantMismatch(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")
	secret := f.enableTwoFactor(t, u.ID)

	challenge := f.loginForChallenge(t, "ada@example.edu")
	code := f.currentCode(secret)

	_, err := f.engine.VerifyTwoFactor(WithTenant(context.Background(), "other-uni"), challenge, code)
	if !errors.Is(err, ErrChallengeInvalidOrExpired) {
		t.Fatalf("cross-tenant verify err = %v, want ErrChallengeInvalidOrExpired", err)
	}
	// The mismatch burned the challenge.
	_, err = f.engine.VerifyTwoFactor(tenantCtx(), challenge, code)
	if !errors.Is(err, ErrChallengeInvalidOrExpired) {
		t.Fatalf("err = %v, want ErrChallengeInvalidOrExpired after burn", err)
	}
}

func TestTwoFactorSetupFlow(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")

	setup, err := f.engine.GenerateTwoFactorSetup(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if setup.SecretBase32 == "" || setup.OTPAuthURI == "" {
		t.Fatalf("incomplete setup: %+v", setup)
	}
	if f.users.get(u.ID).TwoFactorEnabled {
		t.Fatal("setup must not enable the factor before confirmation")
	}

	secret, err := f.engine.totp.DecodeSecret(setup.SecretBase32)
	if err != nil {
		t.Fatalf("decoding secret: %v", err)
	}

	if err := f.engine.ConfirmTwoFactorSetup(context.Background(), u.ID, setup.SecretBase32, "000000"); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("confirm with wrong code: %v", err)
	}
	if err := f.engine.ConfirmTwoFactorSetup(context.Background(), u.ID, setup.SecretBase32, f.currentCode(secret)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !f.users.get(u.ID).TwoFactorEnabled {
		t.Fatal("factor not enabled after confirmation")
	}

	if _, err := f.engine.GenerateTwoFactorSetup(context.Background(), u.ID); !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("second setup err = %v, want ErrTwoFactorAlreadyEnabled", err)
	}
}

func TestTwoFactorSetupDisabledByConfig(t *testing.T) {
	f := newTestEngine(t, func(cfg *Config) {
		cfg.TwoFactor.Enabled = false
	})
	u := f.seedUser(t, "u1", "ada@example.edu")

	if _, err := f.engine.GenerateTwoFactorSetup(context.Background(), u.ID); !errors.Is(err, ErrTwoFactorDisabled) {
		t.Fatalf("err = %v, want ErrTwoFactorDisabled", err)
	}
}

func TestDisableTwoFactor(t *testing.T) {
	f := newTestEngine(t)
	u := f.seedUser(t, "u1", "ada@example.edu")
	secret := f.enableTwoFactor(t, u.ID)

	if err := f.engine.DisableTwoFactor(context.Background(), u.ID, "000000"); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("disable with wrong code: %v", err)
	}
	if err := f.engine.DisableTwoFactor(context.Background(), u.ID, f.currentCode(secret)); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if f.users.get(u.ID).TwoFactorEnabled {
		t.Fatal("factor still enabled")
	}
	if err := f.engine.DisableTwoFactor(context.Background(), u.ID, "123456"); !errors.Is(err, ErrTwoFactorNotConfigured) {
		t.Fatalf("err = %v, want ErrTwoFactorNotConfigured", err)
	}

	// Next login is first factor only.
	result, err := f.engine.Login(tenantCtx(), "ada@example.edu", testPassword)
	if err != nil {
		t.Fatalf("login after disable: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("unexpected challenge after disable")
	}
}
