package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/events"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
)

// keepAliveInterval keeps proxies from closing a quiet connection between
// heartbeat events.
const keepAliveInterval = 15 * time.Second

// sseWrite writes an SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, id, eventName, data string) {
	if id != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", id)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sendEvent(w http.ResponseWriter, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	sseWrite(w, e.ID, string(e.Type), string(payload))
	return nil
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// streamEvents relays the job's event stream until it closes or the client
// goes away.
func (h *Handlers) streamEvents(w http.ResponseWriter, r *http.Request, id string, q events.Query) {
	ctx := r.Context()
	stream, err := h.streamer.Stream(ctx, id, q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	sendKeepAlive(w)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			sendKeepAlive(w)
		case e, ok := <-stream:
			if !ok {
				sseWrite(w, "", "end", `{"reason":"stream closed"}`)
				return
			}
			if err := sendEvent(w, e); err != nil {
				logger.Job(id).Warn().Err(err).Str("type", string(e.Type)).Msg("encode stream event")
			}
		}
	}
}
