package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"

	"golang.org/x/crypto/bcrypt"
)

const bearerPrefix = "Bearer "

// Response bodies for rejected requests.
const (
	msgMissingHeader = "Missing or invalid Authorization header"
	msgUnauthorized  = "Unauthorized"
	msgNotConfigured = "Server authentication is not configured"
)

const (
	authStatusOK      = "success"
	authStatusFailed  = "failure"
	authStatusMissing = "unconfigured"
)

// AuthConfig configures bearer token authentication. Token is compared in
// constant time; TokenHash is a bcrypt hash and takes precedence when set.
type AuthConfig struct {
	Token     string
	TokenHash string
	// ExemptPaths are served without a token. Entries ending in "/" match
	// as prefixes, others exactly.
	ExemptPaths []string
	// QueryTokenPaths accept the token in a "token" query parameter, for
	// clients such as browser WebSockets that cannot set headers.
	QueryTokenPaths []string
}

// Configured reports whether a token or hash is set.
func (c AuthConfig) Configured() bool {
	return c.Token != "" || c.TokenHash != ""
}

type tokenVerifier struct {
	config AuthConfig

	mu       sync.Mutex
	verified [sha256.Size]byte
	cached   bool
}

// verify checks a presented token. A bcrypt match is remembered by digest
// so later requests skip the key derivation.
func (v *tokenVerifier) verify(token string) bool {
	if v.config.TokenHash == "" {
		return subtle.ConstantTimeCompare([]byte(token), []byte(v.config.Token)) == 1
	}

	digest := sha256.Sum256([]byte(token))
	v.mu.Lock()
	if v.cached && subtle.ConstantTimeCompare(digest[:], v.verified[:]) == 1 {
		v.mu.Unlock()
		return true
	}
	v.mu.Unlock()

	if bcrypt.CompareHashAndPassword([]byte(v.config.TokenHash), []byte(token)) != nil {
		return false
	}

	v.mu.Lock()
	v.verified = digest
	v.cached = true
	v.mu.Unlock()
	return true
}

func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
		} else if path == p {
			return true
		}
	}
	return false
}

func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

// BearerAuth requires "Authorization: Bearer <token>" on every request
// except preflights and exempt paths.
func BearerAuth(config AuthConfig) func(http.Handler) http.Handler {
	v := &tokenVerifier{config: config}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || matchesAny(r.URL.Path, config.ExemptPaths) {
				next.ServeHTTP(w, r)
				return
			}

			if !config.Configured() {
				logging.Error("Rejecting %s: no AUTH_TOKEN or AUTH_TOKEN_HASH configured", sanitizeLogField(r.URL.Path))
				metrics.AuthAttemptsTotal.WithLabelValues(authStatusMissing).Inc()
				reject(w, http.StatusInternalServerError, msgNotConfigured)
				return
			}

			token, ok := bearerToken(r)
			if !ok && matchesAny(r.URL.Path, config.QueryTokenPaths) {
				token = r.URL.Query().Get("token")
				ok = token != ""
			}
			if !ok {
				metrics.AuthAttemptsTotal.WithLabelValues(authStatusFailed).Inc()
				reject(w, http.StatusUnauthorized, msgMissingHeader)
				return
			}

			if !v.verify(token) {
				logging.Warn("Invalid token from %s for %s", sanitizeLogField(clientAddr(r)), sanitizeLogField(r.URL.Path))
				metrics.AuthAttemptsTotal.WithLabelValues(authStatusFailed).Inc()
				reject(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			metrics.AuthAttemptsTotal.WithLabelValues(authStatusOK).Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(header, bearerPrefix), true
}
