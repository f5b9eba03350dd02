package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sseHeartbeatInterval = 30 * time.Second

// handleSSE streams the collector's event bus to the client as named
// server-sent events, replaying the current snapshot first.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	replay := s.collector.Replay()
	if replay.SiteUpdate != nil {
		writeSSEEvent(w, "siteUpdate", replay.SiteUpdate)
	}
	if replay.SiteMetrics != nil {
		writeSSEEvent(w, "siteMetrics", replay.SiteMetrics)
	}
	writeSSEEvent(w, "hiresHistory", replay.HiresHistory)
	writeSSEEvent(w, "minutelyHistory", replay.MinutelyHistory)
	if replay.PushTest != nil {
		writeSSEEvent(w, "pushTest", replay.PushTest)
	}
	flusher.Flush()

	sub := s.collector.Bus().Subscribe()
	defer sub.Close()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			writeSSEEvent(w, string(ev.Topic), ev.Data)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
}
