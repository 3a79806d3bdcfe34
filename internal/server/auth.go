package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/reliefconnect/internal/logging"
)

// authMiddleware enforces Bearer token authentication on protected routes.
// With an empty apiKey it returns next unchanged; New logs the warning once
// at startup.
//
//	Authorization: Bearer <apiKey>
//
// Failures get 401 with a WWW-Authenticate challenge. The presented token is
// never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="relief"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="relief" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
