package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const claimsContextKey contextKey = "claims"

// WithClaims returns a context carrying the verified claims
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts verified claims from context
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}
