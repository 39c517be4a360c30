package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/reelsub/internal/domain"
)

func TestSSEWrite_SplitsMultilineData(t *testing.T) {
	rec := httptest.NewRecorder()
	sseWrite(rec, "evt-1", "notice", "first\nsecond")

	assert.Equal(t, "id: evt-1\nevent: notice\ndata: first\ndata: second\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSendEvent_EncodesJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	e := domain.Event{
		ID:        "evt-2",
		Type:      domain.EventJobCompleted,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:    domain.JobStatusDone,
	}

	require.NoError(t, sendEvent(rec, e))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "id: evt-2\nevent: job.completed\ndata: {"))
	assert.Contains(t, body, `"status":"done"`)
	assert.Equal(t, 1, strings.Count(body, "data: "), "JSON payload stays on one line")
}

func TestSendKeepAlive(t *testing.T) {
	rec := httptest.NewRecorder()
	sendKeepAlive(rec)
	assert.Equal(t, ": keep-alive\n\n", rec.Body.String())
}
