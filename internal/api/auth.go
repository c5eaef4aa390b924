package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/internal/logging"
)

// MinAPIKeyLength is the shortest accepted API key.
const MinAPIKeyLength = 16

// APIKeyHeader carries the API key.
const APIKeyHeader = "X-API-Key"

// AuthConfig turns API key checks on.
type AuthConfig struct {
	Enabled bool
	APIKey  string
}

// Validate rejects an enabled configuration without a usable key.
func (c AuthConfig) Validate() error {
	switch {
	case !c.Enabled:
		return nil
	case c.APIKey == "":
		return cerrors.NewValidation("api_key", "required when authentication is enabled")
	case len(c.APIKey) < MinAPIKeyLength:
		return cerrors.NewValidation("api_key",
			fmt.Sprintf("must be at least %d characters (got %d)", MinAPIKeyLength, len(c.APIKey)))
	}
	return nil
}

// publicPaths skip the key check.
var publicPaths = map[string]bool{"/": true, "/health": true}

// AuthMiddleware requires the configured key on every non-public path when
// authentication is enabled.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	want := []byte(cfg.APIKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			key := requestKey(r)
			var reason string
			switch {
			case key == "":
				reason = "missing API key"
			case subtle.ConstantTimeCompare([]byte(key), want) != 1:
				reason = "invalid API key"
			default:
				next.ServeHTTP(w, r)
				return
			}
			logging.FromContext(r.Context()).Warn("unauthorized request", "path", r.URL.Path, "reason", reason)
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", reason)
		})
	}
}

// requestKey reads the key from the header, or from the api_key query
// parameter since browsers cannot set headers on a WebSocket handshake.
func requestKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	return r.URL.Query().Get("api_key")
}
