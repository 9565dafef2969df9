package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStartRegistersJobWithoutError(t *testing.T) {
	ran := make(chan struct{}, 1)
	job := New("test-job", 3, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}, nil, zerolog.Nop())

	if err := job.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer job.Stop()
}

func TestStopReturnsContextThatCompletes(t *testing.T) {
	job := New("test-job", 3, func(ctx context.Context) error { return nil }, nil, zerolog.Nop())
	if err := job.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := job.Stop()
	select {
	case <-done.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Stop()'s context to complete promptly when no job is running")
	}
}

// TestCallbackSkippedOnJobError exercises the same callback-gating logic
// Start's cron closure runs, without waiting for a real daily cron tick.
func TestCallbackSkippedOnJobError(t *testing.T) {
	var callbackCalled bool
	job := New("direct-invoke", 3, func(ctx context.Context) error {
		return context.DeadlineExceeded
	}, func(ctx context.Context) { callbackCalled = true }, zerolog.Nop())

	ok := job.runJob(context.Background())
	if ok {
		t.Fatalf("expected job to fail")
	}
	// Mirror Start's closure: callback only runs if runJob reported success.
	if ok && job.callback != nil {
		job.callback(context.Background())
	}
	if callbackCalled {
		t.Fatalf("callback must not run when the job returns an error")
	}
}

// TestRunJobRecoversPanicAndSkipsCallback exercises runJob directly: a
// panicking job (e.g. a programmer-error panic surfacing from an upstream
// client) must be recovered, not crash the process, and must not run the
// callback.
func TestRunJobRecoversPanicAndSkipsCallback(t *testing.T) {
	job := New("panicking-job", 3, func(ctx context.Context) error {
		panic("boom")
	}, func(ctx context.Context) {}, zerolog.Nop())

	ok := job.runJob(context.Background())
	if ok {
		t.Fatalf("expected runJob to report false after a recovered panic")
	}
}
