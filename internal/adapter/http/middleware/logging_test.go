package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/reelsub/internal/infrastructure/logger"
)

func TestAccessLog_WritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	logger.Setup(logger.Options{Level: "info", Format: "json", Out: &buf})
	t.Cleanup(func() { logger.Setup(logger.Options{Format: "json", Out: os.Stderr}) })

	handler := chimw.RequestID(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/jobs/abc", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.EqualValues(t, len("short and stout"), line["bytes"])
	assert.NotEmpty(t, line["request_id"])
}

func TestAccessLog_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	logger.Setup(logger.Options{Level: "info", Format: "json", Out: &buf})
	t.Cleanup(func() { logger.Setup(logger.Options{Format: "json", Out: os.Stderr}) })

	handler := AccessLog(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "info", line["level"])
	assert.EqualValues(t, http.StatusOK, line["status"])
}
