// Package scheduler adapts robfig/cron to the pipeline's Scheduler port.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"threatwatch/internal/ports"
)

// CronScheduler drives the pipeline on a fixed cadence. A tick that
// arrives while the previous cycle is still running is skipped, never
// queued.
type CronScheduler struct {
	spec    string
	cron    *cron.Cron
	running atomic.Bool
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// New builds a scheduler from a cron spec; "@every 150s" style intervals
// are the expected form.
func New(spec string) *CronScheduler {
	return &CronScheduler{spec: spec}
}

// Start runs the job once immediately, then on every cron tick. It
// returns after registration; the job runs on the cron goroutine.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if c.cron != nil {
		return nil
	}

	guarded := func(t time.Time) {
		if ctx.Err() != nil {
			return
		}
		if !c.running.CompareAndSwap(false, true) {
			return
		}
		defer c.running.Store(false)
		job(t)
	}

	runner := cron.New()
	if _, err := runner.AddFunc(c.spec, func() { guarded(time.Now()) }); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", c.spec, err)
	}

	c.cron = runner
	go guarded(time.Now())
	runner.Start()
	return nil
}

// Stop halts scheduling and waits for an in-flight cycle to finish, up
// to the context deadline.
func (c *CronScheduler) Stop(ctx context.Context) error {
	if c.cron == nil {
		return nil
	}

	stopped := c.cron.Stop()
	c.cron = nil

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	// The immediate first run is outside cron's accounting; drain it too.
	for c.running.Load() {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
