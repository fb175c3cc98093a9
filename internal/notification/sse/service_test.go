package sse

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func readFrame(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestHandlerStreamsBroadcastsWithIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := New(nil)
	engine := gin.New()
	engine.GET("/events", svc.Handler(func(*gin.Context) (string, bool) { return "operator", true }))
	srv := httptest.NewServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if frame := readFrame(t, r); len(frame) != 2 || frame[0] != "event: connected" {
		t.Fatalf("expected connected frame, got %v", frame)
	}
	if svc.Clients() != 1 {
		t.Fatalf("expected one client, got %d", svc.Clients())
	}

	svc.Broadcast(Event{ID: "evt-1", Type: EventLeadCreated, Lead: "ada@firm.test"})
	frame := readFrame(t, r)
	if len(frame) != 3 || frame[0] != "id: evt-1" || frame[1] != "event: lead_created" {
		t.Fatalf("unexpected frame %v", frame)
	}
	if !strings.Contains(frame[2], `"lead":"ada@firm.test"`) {
		t.Fatalf("expected lead in payload, got %q", frame[2])
	}

	svc.Close()
}

func TestHandlerRejectsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := New(nil)
	engine := gin.New()
	engine.GET("/events", svc.Handler(func(*gin.Context) (string, bool) { return "", false }))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
