package httpapi

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEStreamsConnectedCommentAndReplay(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/api/sse", nil)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET /api/sse: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for i := 0; i < 12 && scanner.Scan(); i++ {
		lines = append(lines, scanner.Text())
	}
	joined := strings.Join(lines, "\n")

	if !strings.Contains(joined, ": connected") {
		t.Errorf("stream = %q, want leading connected comment", joined)
	}
	if !strings.Contains(joined, "event: hiresHistory") {
		t.Errorf("stream = %q, want a hiresHistory replay event", joined)
	}
	if !strings.Contains(joined, "event: minutelyHistory") {
		t.Errorf("stream = %q, want a minutelyHistory replay event", joined)
	}
}
