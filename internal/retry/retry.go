// Package retry implements the backoff policy shared by both upstream
// clients, per spec.md §4.3 (the token manager keeps its own fixed-wait
// retry loop and does not use this package): a fixed wait on
// transport errors, and uncapped-count exponential backoff with jitter on
// 429/5xx responses.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// backoffCeilingMs is the point past which the exponential term stops
// growing and a flat ceiling plus smaller jitter applies instead.
const backoffCeilingMs = 64000

// Backoff computes the sleep duration for retry attempt r (0-indexed),
// following spec.md §4.3: delay_ms = (2^r + U[0,1)) * 1000 while < 64000;
// once at or past the ceiling, delay_ms = 64000 + U[0,1000).
func Backoff(r int) time.Duration {
	exp := math.Pow(2, float64(r))
	delayMs := (exp + rand.Float64()) * 1000
	if delayMs >= backoffCeilingMs {
		delayMs = backoffCeilingMs + rand.Float64()*1000
	}
	return time.Duration(delayMs) * time.Millisecond
}

// TransportErrorWait is the spec's "wait max(0, 30s - delay)" rule applied
// after a transport-level failure, where delay is the cooldown that was
// already slept before the failing attempt.
func TransportErrorWait(delay time.Duration) time.Duration {
	rem := 30*time.Second - delay
	if rem < 0 {
		return 0
	}
	return rem
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first. It
// returns ctx.Err() if cancellation won the race.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
