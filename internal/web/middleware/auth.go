package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/JonMunkholm/intake/internal/config"
	"github.com/JonMunkholm/intake/internal/logging"
)

// APIKeyHeader carries the reviewer's key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests without a configured key when
// cfg.RequireAPIKey is set. The key is read from X-API-Key or a bearer
// Authorization header. Paths in open bypass the check.
func APIKeyAuth(cfg config.SecurityConfig, open ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(open))
	for _, p := range open {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey || skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			log := logging.FromContext(r.Context()).With("path", r.URL.Path, "remote_addr", r.RemoteAddr)
			switch key := presentedKey(r); {
			case key == "":
				log.Warn("auth: missing api key")
				writeJSONError(w, http.StatusUnauthorized, "AUTH001", "missing API key")
			case !isValidAPIKey(key, cfg.APIKeys):
				log.Warn("auth: invalid api key")
				writeJSONError(w, http.StatusForbidden, "AUTH002", "invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func presentedKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// isValidAPIKey compares against every key so timing does not reveal
// which one matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, k := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return valid == 1
}
