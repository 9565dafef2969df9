// Package token implements the OAuth2 client-credentials TokenManager from
// spec.md §4.2: readers get the cached token cheaply, and concurrent
// refreshers collapse into a single in-flight network round trip.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/httpclient"
	"github.com/mbalsdon/daily-dosu-go/internal/metrics"
)

const (
	tokenURL  = "https://osu.ppy.sh/oauth/token"
	tokenWait = 10 * time.Second
)

// Manager owns a single OAuth bearer token. It is safe for concurrent use.
//
// The state machine follows spec.md §4.2 exactly: a reader/writer lock
// guards the token string, and a buffered channel of size 1 plays the role
// of a try-lock "refresh leadership" mutex (Go has no native try_to_lock,
// so a non-blocking send on a size-1 channel is the idiomatic substitute).
type Manager struct {
	clientID     string
	clientSecret string
	requester    *httpclient.Requester
	log          zerolog.Logger

	tokenMu sync.RWMutex
	token   string

	leadership chan struct{} // buffered(1); holding a send is "owns the lock"

	overrideTokenURL  string
	overrideTokenWait time.Duration
}

// SetTokenEndpoint overrides the token endpoint URL; used by tests and by
// deployments pointed at a staging OAuth server.
func (m *Manager) SetTokenEndpoint(url string) { m.overrideTokenURL = url }

// SetRetryWait overrides the fixed wait between refresh retries; used by
// tests to avoid sleeping for the production default.
func (m *Manager) SetRetryWait(d time.Duration) { m.overrideTokenWait = d }

// New constructs a Manager. The token starts empty; the first call to
// getAccessToken from a pipeline should be preceded by an explicit
// updateAccessToken, matching spec.md's "Fresh with empty token" initial
// state.
func New(clientID, clientSecret string, requester *httpclient.Requester, log zerolog.Logger) *Manager {
	return &Manager{
		clientID:     clientID,
		clientSecret: clientSecret,
		requester:    requester,
		log:          log,
		leadership:   make(chan struct{}, 1),
	}
}

func (m *Manager) tokenEndpoint() string {
	if m.overrideTokenURL != "" {
		return m.overrideTokenURL
	}
	return tokenURL
}

func (m *Manager) retryWait() time.Duration {
	if m.overrideTokenWait != 0 {
		return m.overrideTokenWait
	}
	return tokenWait
}

// GetAccessToken returns the current cached token. If a refresh is
// in-flight, it blocks until that refresh completes, then returns the new
// token. This call cannot fail.
func (m *Manager) GetAccessToken() string {
	m.tokenMu.RLock()
	defer m.tokenMu.RUnlock()
	return m.token
}

// UpdateAccessToken performs the refresh if no other goroutine is already
// doing so; otherwise it blocks until the in-flight refresh finishes and
// returns nil (the other goroutine's refresh error, if any, surfaces only
// to the caller that actually performed it).
func (m *Manager) UpdateAccessToken(ctx context.Context) error {
	select {
	case m.leadership <- struct{}{}:
		defer func() { <-m.leadership }()
		return m.refresh(ctx)
	default:
		// Somebody else is already updating; wait for them to finish by
		// acquiring (then immediately releasing) the reader lock, which
		// blocks for as long as the writer lock is held.
		m.log.Debug().Msg("token refresh already in flight, waiting for leader")
		m.tokenMu.RLock()
		m.tokenMu.RUnlock()
		return nil
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// refresh performs the actual network round trip. The caller must hold
// refresh leadership (the m.leadership slot) before calling this.
func (m *Manager) refresh(ctx context.Context) error {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()

	m.log.Info().Msg("updating access token")

	body, err := json.Marshal(map[string]string{
		"client_id":     m.clientID,
		"client_secret": m.clientSecret,
		"grant_type":    "client_credentials",
		"scope":         "public",
	})
	if err != nil {
		return fmt.Errorf("token: marshal request body: %w", err)
	}

	headers := []httpclient.Header{
		{Key: "Content-Type", Value: "application/json"},
		{Key: "Accept", Value: "application/json"},
	}

	wait := m.retryWait()
	for {
		res, err := m.requester.Do(ctx, http.MethodPost, m.tokenEndpoint(), headers, bytes.NewReader(body))
		if err != nil {
			m.log.Warn().Err(err).Dur("wait", wait).Msg("token request failed, retrying")
			metrics.TokenRefreshTotal.WithLabelValues("transport_error").Inc()
			if sleepErr := sleepOrCancel(ctx, wait); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		switch {
		case res.StatusCode == http.StatusOK:
			var parsed tokenResponse
			if err := json.Unmarshal(res.Body, &parsed); err != nil {
				metrics.TokenRefreshTotal.WithLabelValues("malformed_response").Inc()
				return fmt.Errorf("token: malformed response: %w", err)
			}
			m.token = parsed.AccessToken
			metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
			return nil

		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
			m.log.Warn().Int("status", res.StatusCode).Dur("wait", wait).Msg("token request failed, retrying")
			metrics.TokenRefreshTotal.WithLabelValues(fmt.Sprintf("status_%d", res.StatusCode)).Inc()
			if sleepErr := sleepOrCancel(ctx, wait); sleepErr != nil {
				return sleepErr
			}
			continue

		default:
			metrics.TokenRefreshTotal.WithLabelValues(fmt.Sprintf("status_%d", res.StatusCode)).Inc()
			return fmt.Errorf("token: unhandled status %d", res.StatusCode)
		}
	}
}

func sleepOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpiresAt returns the access token's JWT exp claim, if the current token
// parses as a JWT. This is a soft, best-effort signal used only to schedule
// a pre-emptive refresh (spec.md §4.2's "or pre-emptively by policy" clause)
// — osu!'s token is opaque to us as a relying party, so the signature is
// never verified, only the exp claim is read.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	tok := m.GetAccessToken()
	if tok == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// RunPreemptiveRefresh blocks, waking shortly before each token expiry (as
// reported by ExpiresAt) to refresh proactively, until ctx is cancelled.
// If the current token does not parse as a JWT, this loop refreshes on a
// fixed five-minute interval instead; on-demand 401-triggered refresh
// remains the correctness backstop either way.
func (m *Manager) RunPreemptiveRefresh(ctx context.Context) {
	const fallbackPoll = 5 * time.Minute
	const safetyMargin = 60 * time.Second

	for {
		wait := fallbackPoll
		if exp, ok := m.ExpiresAt(); ok {
			if d := time.Until(exp) - safetyMargin; d > 0 {
				wait = d
			} else {
				wait = 0
			}
		}

		select {
		case <-time.After(wait):
			if err := m.UpdateAccessToken(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn().Err(err).Msg("pre-emptive token refresh failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
