package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func echoClient() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ClientID(r.Context())))
	})
}

func TestAuthenticate_NoKeysUsesRemoteAddress(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()

	Authenticate(nil)(echoClient()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "203.0.113.7", rec.Body.String())
}

func TestAuthenticate_Keys(t *testing.T) {
	handler := Authenticate([]string{"alpha", " beta "})(echoClient())

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong bearer", header: "Authorization", value: "Bearer gamma", want: http.StatusUnauthorized},
		{name: "bearer", header: "Authorization", value: "Bearer alpha", want: http.StatusOK},
		{name: "api key header", header: "X-API-Key", value: "beta", want: http.StatusOK},
		{name: "basic scheme ignored", header: "Authorization", value: "Basic YWxwaGE=", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.True(t, strings.HasPrefix(rec.Body.String(), "key-"))
			}
		})
	}
}

func TestAuthenticate_ClientIDIsStablePerKey(t *testing.T) {
	handler := Authenticate([]string{"alpha", "beta"})(echoClient())
	idFor := func(key string) string {
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Body.String()
	}

	assert.Equal(t, idFor("alpha"), idFor("alpha"))
	assert.NotEqual(t, idFor("alpha"), idFor("beta"))
}
