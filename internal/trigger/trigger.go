// Package trigger runs the weekly report on a cron schedule.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"meetmetrics/internal/models"
)

// RunFunc produces and delivers one report for job.
type RunFunc func(ctx context.Context, job Job) error

// Trigger holds at most one scheduled report job.
type Trigger struct {
	mu       sync.Mutex
	cron     *cron.Cron
	location *time.Location
	run      RunFunc
	entry    cron.EntryID
	job      *Job
	logger   *slog.Logger

	// running serializes firings across replaced entries.
	running sync.Mutex
}

// New creates a stopped Trigger that evaluates schedules in loc.
func New(logger *slog.Logger, loc *time.Location, run RunFunc) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "trigger", "job", JobKey)
	adapter := cronLogger{logger: logger}
	return &Trigger{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.DelayIfStillRunning(adapter)),
		),
		location: loc,
		run:      run,
		logger:   logger,
	}
}

// Start begins firing scheduled jobs in the background.
func (t *Trigger) Start() {
	t.cron.Start()
	t.logger.Info("Report trigger started.")
}

// Stop halts the scheduler and waits for a running report to finish or ctx to expire.
func (t *Trigger) Stop(ctx context.Context) error {
	done := t.cron.Stop()
	select {
	case <-done.Done():
		t.logger.Info("Report trigger stopped.")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule replaces any existing job with job. The current job stays
// installed when job is rejected.
func (t *Trigger) Schedule(job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	schedule, err := cron.ParseStandard(job.Spec())
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidSchedule, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	installed := job
	id := t.cron.Schedule(schedule, cron.FuncJob(func() { t.fire(installed) }))
	t.removeLocked()
	t.entry = id
	t.job = &installed
	t.logger.Info("Weekly report scheduled.", "day", job.Day.String(), "time", job.At.String(), "recipient", job.Recipient)
	return nil
}

// Cancel removes the scheduled job, if any.
func (t *Trigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job != nil {
		t.logger.Info("Weekly report cancelled.")
	}
	t.removeLocked()
}

// Current returns the scheduled job.
func (t *Trigger) Current() (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil {
		return Job{}, false
	}
	return *t.job, true
}

// Next returns the first firing after now, or the zero time when nothing is scheduled.
func (t *Trigger) Next(now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil {
		return time.Time{}
	}
	return t.cron.Entry(t.entry).Schedule.Next(now.In(t.location))
}

func (t *Trigger) removeLocked() {
	if t.entry != 0 {
		t.cron.Remove(t.entry)
	}
	t.entry = 0
	t.job = nil
}

// fire runs one report. Failures are logged and never affect later firings.
func (t *Trigger) fire(job Job) {
	t.running.Lock()
	defer t.running.Unlock()

	start := time.Now()
	t.logger.Info("Weekly report firing.", "recipient", job.Recipient)
	if err := t.run(context.Background(), job); err != nil {
		t.logger.Error("Weekly report failed", "error", err, "error_kind", models.ErrorKind(err), "elapsed", time.Since(start))
		return
	}
	t.logger.Info("Weekly report delivered.", "recipient", job.Recipient, "elapsed", time.Since(start))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
