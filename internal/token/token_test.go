package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/httpclient"
)

// TestConcurrentUpdateCallsUpstreamOnce models scenario 4 from spec.md §8:
// K concurrent updateAccessToken callers cause exactly one network call.
func TestConcurrentUpdateCallsUpstreamOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"access_token":"fresh-token","expires_in":3600}`))
	}))
	defer srv.Close()

	m := New("id", "secret", httpclient.New(), zerolog.Nop())
	m.SetTokenEndpoint(srv.URL)

	const k = 8
	var wg sync.WaitGroup
	wg.Add(k)
	for i := 0; i < k; i++ {
		go func() {
			defer wg.Done()
			_ = m.UpdateAccessToken(context.Background())
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 upstream call, got %d", got)
	}
	if got := m.GetAccessToken(); got != "fresh-token" {
		t.Fatalf("expected token to be updated, got %q", got)
	}
}

func TestGetAccessTokenReturnsEmptyBeforeFirstRefresh(t *testing.T) {
	m := New("id", "secret", httpclient.New(), zerolog.Nop())
	if got := m.GetAccessToken(); got != "" {
		t.Fatalf("expected empty token before any refresh, got %q", got)
	}
}

func TestUpdateAccessTokenRetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"access_token":"ok","expires_in":60}`))
	}))
	defer srv.Close()

	m := New("id", "secret", httpclient.New(), zerolog.Nop())
	m.SetTokenEndpoint(srv.URL)
	m.SetRetryWait(time.Millisecond)

	if err := m.UpdateAccessToken(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.GetAccessToken(); got != "ok" {
		t.Fatalf("expected token 'ok', got %q", got)
	}
}
