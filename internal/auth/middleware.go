package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware enforces bearer-token auth on the wrapped handler. When the
// service has no secret configured, requests pass through unauthenticated
// (matches teacher's "auth disabled in local/dev" convention).
func Middleware(service *Service, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if service == nil || !service.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		principal, err := service.Validate(token)
		if err != nil {
			if logger != nil {
				logger.Warn("token validation failed", "error", err)
			}
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
