package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type contextKey int

const apiKeyInfoContextKey contextKey = iota

const apiKeyHeader = "X-API-Key"

// APIKeyInfo identifies the key a request authenticated with. KeyID is a
// short digest, never the key itself.
type APIKeyInfo struct {
	KeyID string `json:"key_id"`
}

// APIKeyValidator checks a presented API key.
type APIKeyValidator interface {
	ValidateAPIKey(key string) (*APIKeyInfo, error)
}

// StaticKeyValidator accepts a fixed set of keys from configuration.
type StaticKeyValidator struct {
	digests [][sha256.Size]byte
}

// NewStaticKeyValidator builds a validator for keys. Blank entries are ignored.
func NewStaticKeyValidator(keys []string) *StaticKeyValidator {
	v := &StaticKeyValidator{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			v.digests = append(v.digests, sha256.Sum256([]byte(k)))
		}
	}
	return v
}

// ValidateAPIKey compares digests in constant time.
func (v *StaticKeyValidator) ValidateAPIKey(key string) (*APIKeyInfo, error) {
	d := sha256.Sum256([]byte(key))
	match := 0
	for i := range v.digests {
		match |= subtle.ConstantTimeCompare(d[:], v.digests[i][:])
	}
	if match != 1 {
		return nil, errors.Unauthorized("invalid API key")
	}
	return &APIKeyInfo{KeyID: hex.EncodeToString(d[:4])}, nil
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// SkipPaths bypass authentication, including their sub-paths.
	SkipPaths []string
}

// AuthMiddleware requires an API key on every request it wraps.
type AuthMiddleware struct {
	validator APIKeyValidator
	config    AuthConfig
	logger    logging.Logger
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(validator APIKeyValidator, config AuthConfig, logger logging.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AuthMiddleware{validator: validator, config: config, logger: logger}
}

// Handler authenticates with "Authorization: Bearer <key>" or "X-API-Key".
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := extractBearerToken(r)
		if key == "" {
			key = extractAPIKey(r)
		}
		if key == "" {
			writeUnauthorized(w, "Missing API key")
			return
		}

		info, err := m.validator.ValidateAPIKey(key)
		if err != nil {
			m.logger.Warn("API key rejected",
				logging.String("path", r.URL.Path),
				logging.String("remote_addr", r.RemoteAddr))
			writeUnauthorized(w, "Invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyInfoContextKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) shouldSkip(path string) bool {
	for _, skip := range m.config.SkipPaths {
		if path == skip || strings.HasPrefix(path, skip+"/") {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func extractAPIKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(apiKeyHeader))
}

// ContextGetAPIKeyInfo returns the authenticated key, or nil.
func ContextGetAPIKeyInfo(ctx context.Context) *APIKeyInfo {
	info, ok := ctx.Value(apiKeyInfoContextKey).(*APIKeyInfo)
	if !ok {
		return nil
	}
	return info
}

// IsAuthenticated reports whether the request carried a valid key.
func IsAuthenticated(ctx context.Context) bool {
	return ContextGetAPIKeyInfo(ctx) != nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="safescan"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(errors.ErrCodeUnauthorized),
		"message": message,
	})
}
