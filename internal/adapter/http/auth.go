package http

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

type clientKey struct{}

// ClientID returns the identity attached by Authenticate.
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientKey{}).(string)
	return id
}

// Authenticate resolves the caller's client id. With keys configured every
// request must present one as a bearer token or X-API-Key header and the
// client id is derived from the key. Without keys the client id is the
// remote address.
func Authenticate(keys []string) func(http.Handler) http.Handler {
	hashed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			sum := blake2b.Sum256([]byte(k))
			hashed = append(hashed, sum[:])
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(hashed) == 0 {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, remoteHost(r))))
				return
			}

			presented := presentedKey(r)
			if presented == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="reelsub"`)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing api key"})
				return
			}
			sum := blake2b.Sum256([]byte(presented))
			matched := 0
			for _, h := range hashed {
				matched |= subtle.ConstantTimeCompare(sum[:], h)
			}
			if matched != 1 {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid api key"})
				return
			}

			id := "key-" + hex.EncodeToString(sum[:6])
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, id)))
		})
	}
}

func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
