package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuskit/authcore/internal/rate"
	"github.com/campuskit/authcore/internal/stores"
	authjwt "github.com/campuskit/authcore/jwt"
	"github.com/campuskit/authcore/password"
)

// Builder assembles an Engine. Configuration problems are collected and
// reported together by Build, so a misconfigured engine fails once with the
// full list instead of on the first field.
type Builder struct {
	cfg    Config
	cfgSet bool

	redis  redis.UniversalClient
	users  UserStore
	tokens RefreshTokenStore
	sink   AuditSink
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithConfig replaces the configuration. Zero-valued non-boolean fields are
// filled from defaults during Build; boolean flags are taken as given.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// WithRedis sets the Redis client used for two-factor challenges and login
// throttling. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the account store. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithRefreshTokenStore sets the refresh token store. Required.
func (b *Builder) WithRefreshTokenStore(store RefreshTokenStore) *Builder {
	b.tokens = store
	return b
}

// WithAuditSink sets the audit destination. Without one, events go to a
// NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration, wires the components, and returns a
// ready engine.
func (b *Builder) Build() (*Engine, error) {
	if b.cfgSet {
		mergeDefaults(&b.cfg)
	}
	cfg := cloneConfig(b.cfg)

	var errs []error
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if b.redis == nil {
		errs = append(errs, errors.New("builder: redis client is required"))
	}
	if b.users == nil {
		errs = append(errs, errors.New("builder: user store is required"))
	}
	if b.tokens == nil {
		errs = append(errs, errors.New("builder: refresh token store is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("authcore: build: %w", errors.Join(errs...))
	}

	jwtManager, err := authjwt.NewManager(authjwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: signingMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("authcore: build: %w", err)
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  password.DefaultParams().SaltLength,
		KeyLength:   password.DefaultParams().KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("authcore: build: %w", err)
	}

	eng := &Engine{
		cfg:        cfg,
		users:      b.users,
		tokens:     b.tokens,
		challenges: stores.NewChallengeStore(b.redis, cfg.TwoFactor.RedisPrefix),
		hasher:     hasher,
		jwt:        jwtManager,
		totp:       newTOTPManager(cfg.TwoFactor),
		now:        time.Now,
	}
	if cfg.Login.EnableThrottle {
		eng.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.Login.EnableIPThrottle,
			MaxLoginAttempts: cfg.Login.MaxAttempts,
			LoginCooldown:    cfg.Login.Cooldown,
		})
	}
	if cfg.Metrics.Enabled {
		eng.metrics = newEngineMetrics()
	}
	if cfg.Audit.Enabled {
		eng.audit = newAuditDispatcher(b.sink, cfg.Audit.BufferSize, cfg.Audit.DropIfFull)
	}
	return eng, nil
}

func signingMethod(name string) authjwt.SigningMethod {
	if name == "HS256" {
		return authjwt.MethodHS256
	}
	return authjwt.MethodEd25519
}
