package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	tenantIDKey     contextKey = "tenant_id"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
	requestInfoKey  contextKey = "request_info"
)

// requestInfo is installed by Logger and filled in by inner middleware, so the
// request log line can name the tenant even though authentication runs later.
type requestInfo struct {
	tenantID uuid.UUID
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey, info), info
}

// SetTenantID stores the authenticated tenant in ctx.
func SetTenantID(ctx context.Context, id uuid.UUID) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.tenantID = id
	}
	return context.WithValue(ctx, tenantIDKey, id)
}

// GetTenantID returns the tenant resolved by Authenticate.
func GetTenantID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(tenantIDKey).(uuid.UUID)
	return id, ok
}

// SetKeyPrefix stores the calling key's prefix in ctx. Rate limits are counted per prefix.
func SetKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}
