package shared

import "context"

type tenantContextKey struct{}

type actorContextKey struct{}

// ContextWithTenant stores the company id in context. Every core operation
// still takes the tenant explicitly; the context carries it only between the
// HTTP middleware and the handler that unpacks it.
func ContextWithTenant(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, companyID)
}

// TenantFromContext extracts the company id from context.
func TenantFromContext(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(tenantContextKey{}).(int64)
	if !ok || id <= 0 {
		return 0, ErrTenantMissing
	}
	return id, nil
}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the acting user id, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
