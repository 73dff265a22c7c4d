package shared

import "context"

type contextKey int

const tenantKey contextKey = iota

// ContextWithTenant stores the tenant identifier on the context.
func ContextWithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// TenantFromContext returns the tenant identifier or an empty string.
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey).(string)
	return tenant
}
