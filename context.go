package authcore

import "context"

type tenantScopeKey struct{}

// tenantScope is one frame of the tenant stack. Frames are immutable;
// WithTenant links a new frame onto the parent chain, so a derived context
// never mutates scopes visible to its ancestors.
type tenantScope struct {
	id     string
	parent *tenantScope
}

// WithTenant pushes a tenant scope onto the context. Scopes nest: code that
// derives a child context with a different tenant does not disturb the
// caller's scope, and the caller's scope is restored simply by using the
// original context again.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	parent, _ := ctx.Value(tenantScopeKey{}).(*tenantScope)
	return context.WithValue(ctx, tenantScopeKey{}, &tenantScope{id: tenantID, parent: parent})
}

// CurrentTenant returns the innermost tenant scope on the context, if any.
func CurrentTenant(ctx context.Context) (string, bool) {
	scope, ok := ctx.Value(tenantScopeKey{}).(*tenantScope)
	if !ok {
		return "", false
	}
	return scope.id, true
}

// TenantChain returns the tenant scopes on the context from outermost to
// innermost. It is meant for audit trails and debugging.
func TenantChain(ctx context.Context) []string {
	scope, ok := ctx.Value(tenantScopeKey{}).(*tenantScope)
	if !ok {
		return nil
	}
	var chain []string
	for s := scope; s != nil; s = s.parent {
		chain = append(chain, s.id)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// AsTenant runs fn with tenantID pushed as the innermost scope. The scope
// ends when fn returns; it never leaks into the surrounding context.
func AsTenant(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	return fn(WithTenant(ctx, tenantID))
}

type clientIPKey struct{}
type userAgentKey struct{}

// WithClientIP attaches the client IP used for login throttling and audit
// events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// WithUserAgent attaches the client user agent for audit events.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

// tenantOrDefault resolves the effective tenant for an operation: the
// innermost context scope, or the configured default when none is set.
func (e *Engine) tenantOrDefault(ctx context.Context) string {
	if id, ok := CurrentTenant(ctx); ok {
		return id
	}
	return e.cfg.Tenancy.DefaultTenantID
}
