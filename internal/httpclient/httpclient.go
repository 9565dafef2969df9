// Package httpclient implements the single-request HTTP transport shared by
// the token manager and both upstream clients: fixed timeouts, a bounded
// redirect policy, and a pinned TLS floor. It performs no retries of its
// own; retry policy lives in internal/retry.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	totalTimeout   = 120 * time.Second
	connectTimeout = 30 * time.Second
	maxRedirects   = 10
	userAgent      = "daily-dosu-go/1.0 (+https://osu.ppy.sh)"
)

// Requester performs synchronous, single-shot HTTP calls. It is not safe for
// concurrent use by multiple goroutines sharing the same call; per the spec,
// each worker holds its own instance.
type Requester struct {
	client *http.Client
}

// New builds a Requester with the mandatory policy knobs: 120s total
// timeout, 30s connect timeout, TLS >= 1.2, 10 redirect hops, keep-alives on.
func New() *Requester {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxConnsPerHost:       10,
	}

	return &Requester{
		client: &http.Client{
			Timeout:   totalTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("httpclient: stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// Header is one request header key/value pair.
type Header struct {
	Key   string
	Value string
}

// Result is the status code and raw body of a completed request. A
// round-trip that failed before a status line was received
// (DNS/TCP/TLS/timeout) is reported through Do's error instead.
type Result struct {
	StatusCode int
	Body       []byte
}

// Do executes one HTTP request and returns its status and body. A non-nil
// error indicates a transport failure, distinct from any HTTP status code
// (including 4xx/5xx, which are returned as a normal Result).
func (r *Requester) Do(ctx context.Context, method, url string, headers []Header, body io.Reader) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Result{}, fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("httpclient: read body: %w", err)
	}

	return Result{StatusCode: resp.StatusCode, Body: raw}, nil
}
