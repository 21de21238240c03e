// API authentication middleware — static bearer token.
//
// When gateway.api_key is non-empty in config, all API requests MUST carry:
//
//	Authorization: Bearer <api_key>
//
// or:
//
//	X-API-Key: <api_key>
//
// Exempt routes (no token required):
//   - GET /api/health
//
// WebSocket upgrade requests check the token in the query param as fallback:
//   ws://host/api/ws?token=<api_key>
//
// When api_key is empty, all requests are allowed through and a warning is
// logged once at startup; NewServer auto-generates a key so this branch
// should not be reached under normal operation.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/openig/igbot/pkg/logger"
)

// authMiddleware wraps a handler with bearer token checking.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		logger.WarnC("auth", "API auth DISABLED — this should not happen; auto-keygen failed")
		return next
	}

	logger.InfoC("auth", "API bearer token auth ENABLED")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health check never requires a token
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// OPTIONS preflight — let CORS middleware handle it
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)

		if !tokenValid(token, apiKey) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="igbot"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "unauthorized — bearer token required",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the bearer token from Authorization header,
// X-API-Key header, or ?token= query param (for WebSocket upgrades).
func extractToken(r *http.Request) string {
	// Authorization: Bearer <token>
	if auth := r.Header.Get("Authorization"); auth != "" {
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}

	// X-API-Key: <token>
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	// ?token=<token> — WebSocket safe
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}

	return ""
}

// tokenValid does a constant-time comparison to prevent timing attacks.
func tokenValid(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// isPublicPath returns true for paths that never require authentication.
func isPublicPath(path string) bool {
	return path == "/api/health"
}
