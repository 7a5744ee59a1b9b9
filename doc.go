// Package authcore is the session and credential core for a multi-tenant
// campus administration platform. It authenticates primary credentials,
// drives an optional TOTP second factor through single-use challenges,
// issues signed access tokens, and rotates opaque refresh tokens with
// reuse detection and cascading revocation.
//
// The package is transport-agnostic: callers bring their own HTTP or RPC
// surface and their own persistence through the UserStore and
// RefreshTokenStore interfaces. Redis is required for the short-lived
// pieces (two-factor challenges, login throttling).
//
// Construct an Engine through the Builder:
//
//	eng, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithUserStore(users).
//		WithRefreshTokenStore(tokens).
//		Build()
//
// All engine operations take a context.Context and return sentinel errors
// that callers match with errors.Is.
package authcore
