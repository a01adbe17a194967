package security

import (
	"crypto/subtle"
	"net/http"
	"sync/atomic"
)

// HeaderAPIKey carries the shared secret of API clients.
const HeaderAPIKey = "x-api-key"

// APIKey guards routes with a shared secret compared in constant time.
type APIKey struct {
	key      []byte
	rejected int64
}

func NewAPIKey(key string) *APIKey {
	return &APIKey{key: []byte(key)}
}

// Valid reports whether presented matches the configured key. An empty
// configured key matches nothing.
func (a *APIKey) Valid(presented string) bool {
	if len(a.key) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), a.key) == 1
}

// Middleware rejects requests without the key through onReject.
func (a *APIKey) Middleware(onReject func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Valid(r.Header.Get(HeaderAPIKey)) {
				atomic.AddInt64(&a.rejected, 1)
				onReject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Rejected returns how many requests failed the key check.
func (a *APIKey) Rejected() int64 {
	return atomic.LoadInt64(&a.rejected)
}
