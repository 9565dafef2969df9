package osuapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/httpclient"
	"github.com/mbalsdon/daily-dosu-go/internal/model"
	"github.com/mbalsdon/daily-dosu-go/internal/token"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	req := httpclient.New()
	tm := token.New("id", "secret", req, zerolog.Nop())
	c := New(req, tm, 0, zerolog.Nop())
	return c, srv
}

func TestGetRankingsPanicsAboveMaxPage(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte(`{}`)) })
	defer srv.Close()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for page > 199")
		}
	}()
	_, _, _ = c.GetRankings(context.Background(), 200, model.Osu)
}

func TestGetUsersPanicsAboveBatchLimit(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	ids := make([]model.UserID, 51)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for batch > 50")
		}
	}()
	_, _, _ = c.GetUsers(context.Background(), ids)
}

func TestApiRequestReturns404AsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	req := httpclient.New()
	tm := token.New("id", "secret", req, zerolog.Nop())
	c := New(req, tm, 0, zerolog.Nop())

	body, found, err := c.apiRequest(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for a 404")
	}
	if body != nil {
		t.Fatalf("expected nil body for a 404")
	}
}

func TestApiRequestRefreshesTokenOn401ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"access_token":"refreshed","expires_in":60}`))
	}))
	defer tokenSrv.Close()

	req := httpclient.New()
	tm := token.New("id", "secret", req, zerolog.Nop())
	tm.SetTokenEndpoint(tokenSrv.URL)
	c := New(req, tm, 0, zerolog.Nop())

	body, found, err := c.apiRequest(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatalf("expected found=true after retry")
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls (401 then 200), got %d", calls)
	}
}

func TestApiRequestBacksOffOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req := httpclient.New()
	tm := token.New("id", "secret", req, zerolog.Nop())
	c := New(req, tm, 0, zerolog.Nop())

	start := time.Now()
	_, found, err := c.apiRequest(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatalf("expected eventual success")
	}
	if time.Since(start) < time.Second {
		t.Fatalf("expected backoff delay of at least ~1s before success")
	}
}
