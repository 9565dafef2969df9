// Package osuapi implements UpstreamClientA from spec.md §4.3: paged
// rankings, batched user/beatmap lookups, and per-beatmap user scores,
// against the bearer-authenticated osu! API v2.
package osuapi

import (
	"bytes"
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
	"github.com/mbalsdon/daily-dosu-go/internal/token"
)

const (
	baseURL     = "https://osu.ppy.sh/api/v2"
	maxPage     = 199
	maxBatchIDs = 50
	clientName  = "osuapi"
)

// Client is one worker's handle on UpstreamClientA. Per spec.md §5, each
// worker holds its own Client (and Requester), while the TokenManager is
// shared across all of them.
type Client struct {
	requester *httpclient.Requester
	tokens    *token.Manager
	cooldown  time.Duration
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// New builds a Client with the given per-request cooldown (the initial
// "delay" of spec.md §4.3's retry loop; 0 is valid for in-pipeline workers
// that already rate-limit via other means). cooldown also seeds a
// rate.Limiter that enforces it as a hard floor between requests on this
// Client, independent of the retry loop's own backoff sleeps.
func New(requester *httpclient.Requester, tokens *token.Manager, cooldown time.Duration, log zerolog.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cooldown > 0 {
		limiter = rate.NewLimiter(rate.Every(cooldown), 1)
	}
	return &Client{requester: requester, tokens: tokens, cooldown: cooldown, limiter: limiter, log: log}
}

// GetRankings fetches one page of the global performance rankings for mode.
// page is zero-indexed in [0,199]; the upstream URL embeds page+1.
func (c *Client) GetRankings(ctx context.Context, page model.Page, mode model.Gamemode) (json.RawMessage, bool, error) {
	if page > maxPage {
		panic(fmt.Sprintf("osuapi: page %d exceeds max page %d", page, maxPage))
	}
	url := fmt.Sprintf("%s/rankings/%s/performance?page=%d", baseURL, mode.String(), page+1)
	return c.apiRequest(ctx, http.MethodGet, url, nil)
}

// GetUser fetches one user's profile for mode by ID.
func (c *Client) GetUser(ctx context.Context, userID model.UserID, mode model.Gamemode) (json.RawMessage, bool, error) {
	url := fmt.Sprintf("%s/users/%d/%s?key=id", baseURL, userID, mode.String())
	return c.apiRequest(ctx, http.MethodGet, url, nil)
}

// GetUsers fetches up to 50 users' profiles by ID in a single batched call.
func (c *Client) GetUsers(ctx context.Context, userIDs []model.UserID) (json.RawMessage, bool, error) {
	if len(userIDs) > maxBatchIDs {
		panic(fmt.Sprintf("osuapi: cannot request more than %d users at once, got %d", maxBatchIDs, len(userIDs)))
	}
	url := baseURL + "/users" + batchQuery(userIDs)
	return c.apiRequest(ctx, http.MethodGet, url, nil)
}

// GetBeatmap fetches one beatmap's metadata by ID.
func (c *Client) GetBeatmap(ctx context.Context, beatmapID model.BeatmapID) (json.RawMessage, bool, error) {
	url := fmt.Sprintf("%s/beatmaps/%d", baseURL, beatmapID)
	return c.apiRequest(ctx, http.MethodGet, url, nil)
}

// GetBeatmaps fetches up to 50 beatmaps' metadata by ID in a single batched
// call.
func (c *Client) GetBeatmaps(ctx context.Context, beatmapIDs []model.BeatmapID) (json.RawMessage, bool, error) {
	if len(beatmapIDs) > maxBatchIDs {
		panic(fmt.Sprintf("osuapi: cannot request more than %d beatmaps at once, got %d", maxBatchIDs, len(beatmapIDs)))
	}
	url := baseURL + "/beatmaps" + batchQuery(beatmapIDs)
	return c.apiRequest(ctx, http.MethodGet, url, nil)
}

// GetUserBeatmapScores fetches a user's scores on a beatmap for mode.
func (c *Client) GetUserBeatmapScores(ctx context.Context, mode model.Gamemode, userID model.UserID, beatmapID model.BeatmapID) (json.RawMessage, bool, error) {
	url := fmt.Sprintf("%s/beatmaps/%d/scores/users/%d/all?ruleset=%s", baseURL, beatmapID, userID, mode.String())
	return c.apiRequest(ctx, http.MethodGet, url, nil)
}

type idLike interface{ model.UserID | model.BeatmapID }

func batchQuery[T idLike](ids []T) string {
	var buf bytes.Buffer
	buf.WriteByte('?')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString("ids[]=")
		buf.WriteString(strconv.FormatInt(int64(id), 10))
	}
	return buf.String()
}

// apiRequest drives the retry loop from spec.md §4.3: sleep the current
// delay, attach auth headers, classify the response, and either return,
// refresh the token, or back off and retry. It returns (body, found, err):
// found is false only for a 404; err is non-nil for anything else fatal or
// cancelled.
func (c *Client) apiRequest(ctx context.Context, method, url string, body []byte) (json.RawMessage, bool, error) {
	delay := c.cooldown
	retries := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
		if err := retry.Sleep(ctx, delay); err != nil {
			return nil, false, err
		}

		headers := []httpclient.Header{
			{Key: "Content-Type", Value: "application/json"},
			{Key: "Accept", Value: "application/json"},
			{Key: "Authorization", Value: "Bearer " + c.tokens.GetAccessToken()},
		}

		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		start := time.Now()
		var res httpclient.Result
		var err error
		if reader != nil {
			res, err = c.requester.Do(ctx, method, url, headers, reader)
		} else {
			res, err = c.requester.Do(ctx, method, url, headers, nil)
		}
		metrics.UpstreamCallDuration.WithLabelValues(clientName).Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.UpstreamCallsTotal.WithLabelValues(clientName, "transport").Inc()
			wait := retry.TransportErrorWait(delay)
			c.log.Warn().Err(err).Dur("wait", wait).Msg("osuapi request failed, retrying")
			if sleepErr := retry.Sleep(ctx, wait); sleepErr != nil {
				return nil, false, sleepErr
			}
			continue
		}

		metrics.UpstreamCallsTotal.WithLabelValues(clientName, strconv.Itoa(res.StatusCode)).Inc()

		switch {
		case res.StatusCode == http.StatusOK:
			if !json.Valid(res.Body) {
				return nil, false, fmt.Errorf("osuapi: invalid JSON body from %s", url)
			}
			return json.RawMessage(res.Body), true, nil

		case res.StatusCode == http.StatusUnauthorized:
			c.log.Debug().Msg("got 401, refreshing token")
			if err := c.tokens.UpdateAccessToken(ctx); err != nil {
				return nil, false, fmt.Errorf("osuapi: token refresh after 401: %w", err)
			}
			continue

		case res.StatusCode == http.StatusNotFound:
			c.log.Warn().Str("url", url).Msg("got 404")
			return nil, false, nil

		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
			delay = retry.Backoff(retries)
			retries++
			metrics.RetryBackoffSleepSeconds.WithLabelValues(strconv.Itoa(res.StatusCode)).Observe(delay.Seconds())
			c.log.Warn().Int("status", res.StatusCode).Dur("delay", delay).Msg("osuapi request rate-limited/errored, backing off")
			continue

		default:
			return nil, false, fmt.Errorf("osuapi: unhandled status %d from %s", res.StatusCode, url)
		}
	}
}
