// Package httpapi serves the inbound HTTP surface: status, on-demand
// rescan, server-sent events, and rolling history.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fronius-io/gen24-collector/collector"
	"github.com/fronius-io/gen24-collector/config"
)

// localOffsetFormat renders a timestamp as local-with-offset
// (YYYY-MM-DDTHH:MM:SS±HH:MM). It is applied to lastScan on /api/status and
// to the timestamps on /api/history; time.Time values inside other JSON
// payloads (site metrics, minutely reports, SSE events) use encoding/json's
// default RFC 3339 form with fractional seconds.
const localOffsetFormat = "2006-01-02T15:04:05-07:00"

// Server hosts the collector's HTTP surface.
type Server struct {
	httpServer *http.Server
	collector  *collector.Collector
	config     *config.Config
	logger     *log.Logger
}

// NewServer builds the mux and http.Server but does not start listening.
func NewServer(cfg *config.Config, coll *collector.Collector, logger *log.Logger) *Server {
	s := &Server{collector: coll, config: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/do", s.handleDo)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Mux exposes the underlying handler so main can mount the /metrics
// endpoint alongside it.
func (s *Server) Mux() *http.ServeMux {
	return s.httpServer.Handler.(*http.ServeMux)
}

// Start begins listening in its own goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("httpapi: server error: %v", err)
		}
	}()
	s.logger.Printf("httpapi: listening on %s", s.httpServer.Addr)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleDo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.Action != "scan" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid action"})
		return
	}

	go s.collector.Scan(context.Background())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Scan initiated"})
}
