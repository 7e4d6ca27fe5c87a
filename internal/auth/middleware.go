// Package auth guards the operator API with static bearer keys and limits
// how often test sends may be triggered.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sort"
	"strings"
)

type contextKey string

const operatorKey contextKey = "operator"

// ErrUnknownKey is returned by a KeyLookupFunc for keys it does not know.
var ErrUnknownKey = errors.New("auth: unknown API key")

// OperatorFromContext returns the name of the authenticated operator.
// Returns an empty string if the request was not authenticated.
func OperatorFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(operatorKey).(string); ok {
		return name
	}
	return ""
}

// withOperator stores the operator name in the request context.
func withOperator(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operatorKey, name)
}

// KeyLookupFunc resolves an API key to the operator name it belongs to.
type KeyLookupFunc func(ctx context.Context, apiKey string) (string, error)

// StaticKeys returns a KeyLookupFunc over a fixed operator-name to key map.
// Keys are compared in constant time.
func StaticKeys(keys map[string]string) KeyLookupFunc {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(_ context.Context, apiKey string) (string, error) {
		for _, name := range names {
			if subtle.ConstantTimeCompare([]byte(keys[name]), []byte(apiKey)) == 1 {
				return name, nil
			}
		}
		return "", ErrUnknownKey
	}
}

// BearerAuth returns an HTTP middleware that validates Bearer token authentication.
// It extracts the API key from the Authorization header and looks up the operator.
// On success, the operator name is stored in the request context.
func BearerAuth(lookup KeyLookupFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "invalid authorization format, expected Bearer <token>")
				return
			}

			apiKey := strings.TrimSpace(parts[1])
			if apiKey == "" {
				unauthorized(w, "empty API key")
				return
			}

			name, err := lookup(r.Context(), apiKey)
			if err != nil {
				unauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(withOperator(r.Context(), name)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
