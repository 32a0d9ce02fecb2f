package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type tenantKey struct{}
type deviceKey struct{}

// TenantResolver resolves a tenant ID from a bearer token.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, token string) (string, error)
}

// TenantFromContext returns the tenant ID from context, if present.
func TenantFromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantKey{}).(string)
	return tenantID, ok
}

// DeviceFromContext returns the caller's device tag, or "" when the client
// didn't send one.
func DeviceFromContext(ctx context.Context) string {
	device, _ := ctx.Value(deviceKey{}).(string)
	return device
}

// AuthMiddleware enforces bearer token authentication.
func AuthMiddleware(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
					Code:    "unauthorized",
					Message: "missing bearer token",
				}})
				return
			}

			tenantID, err := resolver.ResolveTenant(r.Context(), token)
			if err != nil || tenantID == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
					Code:    "unauthorized",
					Message: "invalid bearer token",
				}})
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey{}, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceMiddleware extracts X-Tally-Device and stores it in context. The tag
// travels on broadcast events as their origin, so the issuing client can
// recognize and drop its own echoes.
func DeviceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device := r.Header.Get("X-Tally-Device")
		if device != "" {
			ctx := context.WithValue(r.Context(), deviceKey{}, device)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}
