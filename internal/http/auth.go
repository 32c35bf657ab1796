package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/devlink/internal/auth"
)

type identityKey struct{}

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// requireIdentity verifies the bearer token with the same verifier the
// WebSocket handshake uses and stores the caller in the request context.
func requireIdentity(v auth.Verifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := v.Verify(r.Context(), token)
		if err != nil {
			slog.Warn("security.http_auth_failed", "remote", r.RemoteAddr, "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	}
}

// identityFrom returns the caller set by requireIdentity.
func identityFrom(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey{}).(*auth.Identity)
	return id
}
