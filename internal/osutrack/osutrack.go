// Package osutrack implements UpstreamClientB from spec.md §4.4: an
// unauthenticated, time-windowed "best plays" lookup against osu!track.
package osutrack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mbalsdon/daily-dosu-go/internal/httpclient"
	"github.com/mbalsdon/daily-dosu-go/internal/metrics"
	"github.com/mbalsdon/daily-dosu-go/internal/model"
	"github.com/mbalsdon/daily-dosu-go/internal/retry"
)

const (
	baseURL    = "https://osutrack-api.ameo.dev"
	clientName = "osutrack"
	dateLayout = "2006-01-02"
)

// Client is one worker's handle on UpstreamClientB.
type Client struct {
	requester *httpclient.Requester
	cooldown  time.Duration
	limiter   *rate.Limiter
	log       zerolog.Logger

	overrideBaseURL string
}

// New builds a Client with the given per-request cooldown, enforced as a
// hard floor between requests by an internal rate.Limiter independent of
// the retry loop's own backoff sleeps.
func New(requester *httpclient.Requester, cooldown time.Duration, log zerolog.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cooldown > 0 {
		limiter = rate.NewLimiter(rate.Every(cooldown), 1)
	}
	return &Client{requester: requester, cooldown: cooldown, limiter: limiter, log: log}
}

// SetBaseURL overrides the osu!track base URL; used by tests.
func (c *Client) SetBaseURL(url string) { c.overrideBaseURL = url }

func (c *Client) base() string {
	if c.overrideBaseURL != "" {
		return c.overrideBaseURL
	}
	return baseURL
}

// GetBestPlays fetches up to limit best-plays records for mode within
// [from, to], both dates inclusive, formatted YYYY-MM-DD.
func (c *Client) GetBestPlays(ctx context.Context, mode model.Gamemode, from, to time.Time, limit int) (json.RawMessage, error) {
	if limit <= 0 {
		panic(fmt.Sprintf("osutrack: limit must be > 0, got %d", limit))
	}
	url := fmt.Sprintf("%s/bestplays?mode=%d&from=%s&to=%s&limit=%d",
		c.base(), mode.TrackCode(), from.Format(dateLayout), to.Format(dateLayout), limit)
	return c.apiRequest(ctx, url)
}

// apiRequest mirrors UpstreamClientA's retry loop (spec.md §4.4) except
// there is no 401 branch (no auth) and any 4xx other than what 5xx/429
// already covers is a non-retryable failure.
func (c *Client) apiRequest(ctx context.Context, url string) (json.RawMessage, error) {
	var delay time.Duration
	retries := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := retry.Sleep(ctx, delay); err != nil {
			return nil, err
		}

		headers := []httpclient.Header{
			{Key: "Content-Type", Value: "application/json"},
			{Key: "Accept", Value: "application/json"},
		}

		start := time.Now()
		res, err := c.requester.Do(ctx, http.MethodGet, url, headers, nil)
		metrics.UpstreamCallDuration.WithLabelValues(clientName).Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.UpstreamCallsTotal.WithLabelValues(clientName, "transport").Inc()
			wait := retry.TransportErrorWait(delay)
			c.log.Warn().Err(err).Dur("wait", wait).Msg("osutrack request failed, retrying")
			if sleepErr := retry.Sleep(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		metrics.UpstreamCallsTotal.WithLabelValues(clientName, strconv.Itoa(res.StatusCode)).Inc()

		switch {
		case res.StatusCode == http.StatusOK:
			if !json.Valid(res.Body) {
				return nil, fmt.Errorf("osutrack: invalid JSON body from %s", url)
			}
			return json.RawMessage(res.Body), nil

		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
			delay = retry.Backoff(retries)
			retries++
			metrics.RetryBackoffSleepSeconds.WithLabelValues(strconv.Itoa(res.StatusCode)).Observe(delay.Seconds())
			c.log.Warn().Int("status", res.StatusCode).Dur("delay", delay).Msg("osutrack request rate-limited/errored, backing off")
			continue

		case res.StatusCode >= 400:
			return nil, fmt.Errorf("osutrack: non-retryable status %d from %s", res.StatusCode, url)

		default:
			return nil, fmt.Errorf("osutrack: unhandled status %d from %s", res.StatusCode, url)
		}
	}
}
