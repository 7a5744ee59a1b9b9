package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/campuskit/authcore/password"
)

// Config is the full engine configuration. Zero values are filled from
// defaultConfig during Build; only the JWT key material has no default.
// The engine keeps a private deep copy, so mutating a Config after Build
// has no effect.
type Config struct {
	JWT       JWTConfig
	Refresh   RefreshConfig
	TwoFactor TwoFactorConfig
	Login     LoginConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Tenancy   TenancyConfig
}

// JWTConfig controls access token signing and validation.
type JWTConfig struct {
	// AccessTTL is the access token lifetime. Default 15m.
	AccessTTL time.Duration
	// SigningMethod is "EdDSA" (default) or "HS256".
	SigningMethod string
	// PrivateKey is the Ed25519 private key (raw or PEM) or the HMAC secret.
	PrivateKey []byte
	// PublicKey is the Ed25519 public key. Ignored for HS256.
	PublicKey []byte
	// Issuer and Audience are stamped on and required from every token.
	Issuer   string
	Audience string
	// Leeway tolerates clock skew during validation. Default 30s, max 2m.
	Leeway time.Duration
}

// RefreshConfig controls refresh token lifetimes.
type RefreshConfig struct {
	// TTL is the refresh token lifetime. Default 30 days. Rotation issues
	// the successor with a fresh full TTL.
	TTL time.Duration
}

// TwoFactorConfig controls TOTP enrollment and the login challenge flow.
type TwoFactorConfig struct {
	// Enabled gates enrollment (GenerateTwoFactorSetup). Users that already
	// have a confirmed factor are still challenged at login when this is
	// false.
	Enabled bool
	// Issuer is the provisioning URI issuer label. Default "authcore".
	Issuer string
	// Digits per code, 6 to 8. Default 6.
	Digits int
	// Period is the TOTP step in seconds. Default 30.
	Period int
	// Skew is how many steps either side of now are accepted. Default 1;
	// a zero value is replaced by the default.
	Skew int
	// ChallengeTTL bounds the window between Login and VerifyTwoFactor.
	// Default 3m.
	ChallengeTTL time.Duration
	// MaxAttempts is the failed-code budget per challenge before it is
	// consumed. Default 3.
	MaxAttempts int
	// RedisPrefix namespaces challenge keys. Default "tfc".
	RedisPrefix string
}

// LoginConfig controls primary-credential throttling.
type LoginConfig struct {
	// EnableThrottle turns on per-email failure counting. Default true.
	EnableThrottle bool
	// EnableIPThrottle additionally counts per client IP, taken from the
	// context via WithClientIP. Default false.
	EnableIPThrottle bool
	// MaxAttempts per window. Default 10.
	MaxAttempts int
	// Cooldown is the counting window and lockout length. Default 15m.
	Cooldown time.Duration
}

// PasswordConfig tunes argon2id hashing.
type PasswordConfig struct {
	// Memory in KiB. Default 65536 (64 MiB).
	Memory uint32
	// Time is the iteration count. Default 3.
	Time uint32
	// Parallelism is the lane count. Default 2.
	Parallelism uint8
	// UpgradeOnLogin rehashes stored credentials that were created with
	// weaker parameters the next time the password verifies. Default true.
	UpgradeOnLogin bool
	// MinLength for new passwords. Default 8.
	MinLength int
}

// AuditConfig controls the async audit pipeline.
type AuditConfig struct {
	// Enabled turns event emission on. Default true; without a sink the
	// dispatcher is a no-op either way.
	Enabled bool
	// BufferSize of the dispatch channel. Default 256.
	BufferSize int
	// DropIfFull drops events instead of blocking the auth path when the
	// buffer is full. Default true.
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	// Enabled turns counting on. Default true.
	Enabled bool
}

// TenancyConfig controls tenant resolution.
type TenancyConfig struct {
	// DefaultTenantID is used when the context carries no tenant scope.
	// Default "0".
	DefaultTenantID string
}

func defaultConfig() Config {
	p := password.DefaultParams()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "EdDSA",
			Issuer:        "authcore",
			Audience:      "authcore",
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		TwoFactor: TwoFactorConfig{
			Enabled:      true,
			Issuer:       "authcore",
			Digits:       6,
			Period:       30,
			Skew:         1,
			ChallengeTTL: 3 * time.Minute,
			MaxAttempts:  3,
			RedisPrefix:  "tfc",
		},
		Login: LoginConfig{
			EnableThrottle: true,
			MaxAttempts:    10,
			Cooldown:       15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         p.Memory,
			Time:           p.Time,
			Parallelism:    p.Parallelism,
			UpgradeOnLogin: true,
			MinLength:      8,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tenancy: TenancyConfig{
			DefaultTenantID: "0",
		},
	}
}

// mergeDefaults fills zero-valued non-boolean fields of c from
// defaultConfig. Boolean flags are taken literally: a caller-built Config
// with Audit.Enabled false keeps auditing off. Builders that want the
// documented true defaults start from defaultConfig and override fields.
func mergeDefaults(c *Config) {
	d := defaultConfig()
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = d.JWT.AccessTTL
	}
	if c.JWT.SigningMethod == "" {
		c.JWT.SigningMethod = d.JWT.SigningMethod
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = d.JWT.Issuer
	}
	if c.JWT.Audience == "" {
		c.JWT.Audience = d.JWT.Audience
	}
	if c.JWT.Leeway == 0 {
		c.JWT.Leeway = d.JWT.Leeway
	}
	if c.Refresh.TTL == 0 {
		c.Refresh.TTL = d.Refresh.TTL
	}
	if c.TwoFactor.Issuer == "" {
		c.TwoFactor.Issuer = d.TwoFactor.Issuer
	}
	if c.TwoFactor.Digits == 0 {
		c.TwoFactor.Digits = d.TwoFactor.Digits
	}
	if c.TwoFactor.Period == 0 {
		c.TwoFactor.Period = d.TwoFactor.Period
	}
	if c.TwoFactor.Skew == 0 {
		c.TwoFactor.Skew = d.TwoFactor.Skew
	}
	if c.TwoFactor.ChallengeTTL == 0 {
		c.TwoFactor.ChallengeTTL = d.TwoFactor.ChallengeTTL
	}
	if c.TwoFactor.MaxAttempts == 0 {
		c.TwoFactor.MaxAttempts = d.TwoFactor.MaxAttempts
	}
	if c.TwoFactor.RedisPrefix == "" {
		c.TwoFactor.RedisPrefix = d.TwoFactor.RedisPrefix
	}
	if c.Login.MaxAttempts == 0 {
		c.Login.MaxAttempts = d.Login.MaxAttempts
	}
	if c.Login.Cooldown == 0 {
		c.Login.Cooldown = d.Login.Cooldown
	}
	if c.Password.Memory == 0 {
		c.Password.Memory = d.Password.Memory
	}
	if c.Password.Time == 0 {
		c.Password.Time = d.Password.Time
	}
	if c.Password.Parallelism == 0 {
		c.Password.Parallelism = d.Password.Parallelism
	}
	if c.Password.MinLength == 0 {
		c.Password.MinLength = d.Password.MinLength
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = d.Audit.BufferSize
	}
	if c.Tenancy.DefaultTenantID == "" {
		c.Tenancy.DefaultTenantID = d.Tenancy.DefaultTenantID
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.JWT.SigningMethod {
	case "EdDSA":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			errs = append(errs, errors.New("jwt: EdDSA requires both private and public key"))
		}
	case "HS256":
		if len(c.JWT.PrivateKey) < 32 {
			errs = append(errs, errors.New("jwt: HS256 secret must be at least 32 bytes"))
		}
	default:
		errs = append(errs, fmt.Errorf("jwt: unsupported signing method %q", c.JWT.SigningMethod))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.AccessTTL > 24*time.Hour {
		errs = append(errs, errors.New("jwt: access ttl must be in (0, 24h]"))
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		errs = append(errs, errors.New("jwt: leeway must be in [0, 2m]"))
	}

	if c.Refresh.TTL <= c.JWT.AccessTTL {
		errs = append(errs, errors.New("refresh: ttl must exceed access ttl"))
	}

	if c.TwoFactor.Digits < 6 || c.TwoFactor.Digits > 8 {
		errs = append(errs, errors.New("twofactor: digits must be 6 to 8"))
	}
	if c.TwoFactor.Period < 15 || c.TwoFactor.Period > 120 {
		errs = append(errs, errors.New("twofactor: period must be 15 to 120 seconds"))
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 2 {
		errs = append(errs, errors.New("twofactor: skew must be 0 to 2 steps"))
	}
	if c.TwoFactor.ChallengeTTL < 30*time.Second || c.TwoFactor.ChallengeTTL > 15*time.Minute {
		errs = append(errs, errors.New("twofactor: challenge ttl must be in [30s, 15m]"))
	}
	if c.TwoFactor.MaxAttempts < 1 || c.TwoFactor.MaxAttempts > 10 {
		errs = append(errs, errors.New("twofactor: max attempts must be 1 to 10"))
	}

	if c.Login.EnableThrottle {
		if c.Login.MaxAttempts < 1 {
			errs = append(errs, errors.New("login: max attempts must be positive"))
		}
		if c.Login.Cooldown < time.Second {
			errs = append(errs, errors.New("login: cooldown must be at least 1s"))
		}
	}

	if c.Password.Memory < 8*1024 {
		errs = append(errs, errors.New("password: memory must be at least 8 MiB"))
	}
	if c.Password.Time < 1 {
		errs = append(errs, errors.New("password: time must be at least 1"))
	}
	if c.Password.MinLength < 8 {
		errs = append(errs, errors.New("password: minimum length must be at least 8"))
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		errs = append(errs, errors.New("audit: buffer size must be positive"))
	}

	return errors.Join(errs...)
}

// cloneConfig deep-copies c so the engine is isolated from later mutation
// of the caller's struct (key slices included).
func cloneConfig(c Config) Config {
	out := c
	out.JWT.PrivateKey = append([]byte(nil), c.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), c.JWT.PublicKey...)
	return out
}
