package osutrack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/httpclient"
	"github.com/mbalsdon/daily-dosu-go/internal/model"
)

func TestGetBestPlaysPanicsOnNonPositiveLimit(t *testing.T) {
	c := New(httpclient.New(), 0, zerolog.Nop())
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for limit <= 0")
		}
	}()
	_, _ = c.GetBestPlays(context.Background(), model.Osu, time.Now(), time.Now(), 0)
}

func TestGetBestPlaysEncodesModeAndDateWindow(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(httpclient.New(), 0, zerolog.Nop())
	c.SetBaseURL(srv.URL)

	from := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	body, err := c.GetBestPlays(context.Background(), model.Taiko, from, to, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "[]" {
		t.Fatalf("unexpected body: %s", body)
	}
	want := "mode=1&from=2026-07-30&to=2026-07-31&limit=10"
	if gotQuery != want {
		t.Fatalf("expected query %q, got %q", want, gotQuery)
	}
}

func TestGetBestPlaysTreats4xxAsNonRetryable(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(httpclient.New(), 0, zerolog.Nop())
	c.SetBaseURL(srv.URL)

	_, err := c.GetBestPlays(context.Background(), model.Osu, time.Now(), time.Now(), 5)
	if err == nil {
		t.Fatalf("expected non-retryable error for a 400")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call (no retry on 4xx), got %d", calls)
	}
}
