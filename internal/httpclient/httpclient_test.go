package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if got := req.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("expected User-Agent %q, got %q", userAgent, got)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	r := New()
	res, err := r.Do(context.Background(), http.MethodGet, srv.URL, []Header{
		{Key: "Authorization", Value: "Bearer abc"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if string(res.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", res.Body)
	}
}

func TestDoSurfacesNon2xxAsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := New()
	res, err := r.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("expected no transport error for a 429 status, got %v", err)
	}
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.StatusCode)
	}
}

func TestDoReportsTransportErrorForUnreachableHost(t *testing.T) {
	r := New()
	_, err := r.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1", nil, nil)
	if err == nil {
		t.Fatalf("expected a transport error for an unreachable address")
	}
}
