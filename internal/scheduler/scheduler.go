// Package scheduler implements ScheduledJob from spec.md §4.6: an
// hour-of-day trigger with at most one concurrent execution and cooperative
// cancellation, re-expressed over robfig/cron/v3 rather than a hand-rolled
// "compute minutes until next hour" sleep loop.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is the work a ScheduledJob runs each time it fires.
type Job func(ctx context.Context) error

// ScheduledJob fires Job once per day at a configured hour. robfig/cron's
// SkipIfStillRunning wrapper realizes spec.md's "at most one concurrent
// execution, no queuing" rule for free; Stop()'s returned context is
// exactly the cooperative-cancellation contract ("current sleep
// interrupted, executing job runs to completion").
type ScheduledJob struct {
	name     string
	hour     int
	job      Job
	callback func(ctx context.Context)
	log      zerolog.Logger

	cron *cron.Cron
}

// New builds a ScheduledJob that fires job once per day at hour (already
// normalized to [0,23] by internal/config), then, if the job returned
// without error, invokes callback.
func New(name string, hour int, job Job, callback func(ctx context.Context), log zerolog.Logger) *ScheduledJob {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	return &ScheduledJob{name: name, hour: hour, job: job, callback: callback, log: log, cron: c}
}

// Start registers the job's cron entry and begins the scheduler's
// background worker. The spec in use is "0 <hour> * * *" — once daily at
// minute 0 of the given hour, local time.
func (s *ScheduledJob) Start(ctx context.Context) error {
	spec := fmt.Sprintf("0 %d * * *", s.hour)
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Info().Str("job", s.name).Msg("scheduled job starting")
		if !s.runJob(ctx) {
			return
		}
		if s.callback != nil {
			s.callback(ctx)
		}
		s.log.Info().Str("job", s.name).Msg("scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %s at hour %d: %w", s.name, s.hour, err)
	}
	s.cron.Start()
	return nil
}

// runJob invokes the job, recovering a panic the same way a returned error
// is handled: logged, callback skipped. A panicking job is a programmer
// error (e.g. an out-of-range page/batch-size panic in internal/osuapi)
// that must not crash the whole daemon, since cron runs this closure on
// its own goroutine with no caller to recover it otherwise. It reports
// whether the job completed without error or panic.
func (s *ScheduledJob) runJob(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("job", s.name).Msg("scheduled job panicked, skipping callback")
			ok = false
		}
	}()
	if err := s.job(ctx); err != nil {
		s.log.Error().Err(err).Str("job", s.name).Msg("scheduled job failed, skipping callback")
		return false
	}
	return true
}

// Stop wakes the worker, which exits before its next scheduled fire. The
// returned context is done once any in-flight execution has completed.
func (s *ScheduledJob) Stop() context.Context {
	return s.cron.Stop()
}
