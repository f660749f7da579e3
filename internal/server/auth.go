package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kbforge/graphrag-go/internal/logging"
)

// authMiddleware enforces Bearer token authentication on protected routes.
// An empty apiKey disables auth entirely; the startup warning for that mode
// is logged once by the server, not per request.
//
// Rejections carry a WWW-Authenticate challenge and the API's JSON error
// shape. Presented token values are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	want := []byte(apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			logging.FromContext(r.Context()).Warn("auth: missing or malformed Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="graphrag"`)
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		// Constant-time compare; a plain == would leak the match length.
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			logging.FromContext(r.Context()).Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="graphrag" error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the credential from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively per RFC 7235; ok is false
// when the header is absent, uses another scheme, or carries no token.
func bearerToken(r *http.Request) (token string, ok bool) {
	scheme, rest, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(rest)
	return token, token != ""
}
