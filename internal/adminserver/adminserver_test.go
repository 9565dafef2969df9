package adminserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/metrics"
)

func TestHealthzReportsOK(t *testing.T) {
	s := New(metrics.Registry(), zerolog.Nop())
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
}

func TestMetricsServesPrometheusFormat(t *testing.T) {
	registry := metrics.Registry()
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()

	s := New(registry, zerolog.Nop())
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("expected text/plain content type, got %q", ct)
	}
}

func TestEventsBroadcastsToConnectedSubscriber(t *testing.T) {
	s := New(metrics.Registry(), zerolog.Nop())
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /events: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine a moment to register the subscriber before
	// broadcasting; poll rather than sleep a fixed guess.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		n := len(s.clients)
		s.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Broadcast(Event{Job: "rankings", Status: "complete", Timestamp: time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read broadcast event: %v", err)
	}
	if got.Job != "rankings" || got.Status != "complete" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestShutdownClosesSubscribers(t *testing.T) {
	s := New(metrics.Registry(), zerolog.Nop())
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /events: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection closed after Shutdown")
	}
}
