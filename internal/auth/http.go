package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the session cookie set by the campus backend
const CookieName = "token"

// Middleware rejects HTTP requests without a valid session token.
// A missing token yields 401 and an invalid or expired one 403.
func (m *JWTManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.ValidateToken(tokenFromRequest(r))
		if err != nil {
			status := http.StatusForbidden
			message := "Invalid session. Please log in again."
			if errors.Is(err, ErrMissingToken) {
				status = http.StatusUnauthorized
				message = "Authentication required. No session token found."
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// tokenFromRequest prefers a bearer token and falls back to the session cookie
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
