// Package collector runs the periodic jobs that keep the IOC current.
//
// Four kinds of job implement Collector: the Loader copies the store into
// the dashboard cache, the Probe checks WPM websites, an IntegrityCollector
// hashes watched files on one SCM server over SSH, and the rail simulator
// advances its trains. Run drives any of them on its interval. Outbound
// probes share one WorkerPool so a large website list cannot open an
// unbounded number of connections.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// defaultInterval is used when a job reports a non-positive interval.
const defaultInterval = 30 * time.Second

// Collector is a periodic IOC job.
type Collector interface {
	Name() string
	Collect(ctx context.Context) error
	Interval() time.Duration
}

// WorkerPool bounds concurrent outbound work.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a pool running at most maxWorkers jobs at once.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{sem: make(chan struct{}, maxWorkers)}
}

// Submit runs fn in the pool, blocking while all workers are busy.
// Returns ctx.Err() if the context ends while waiting for a slot.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		go func() {
			defer func() { <-p.sem }()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Each runs fn for every index in [0, n) through the pool and waits for the
// submitted calls to finish. When the context ends before every call was
// submitted, the remaining indexes are skipped and the context error is
// returned once the running calls have returned.
func (p *WorkerPool) Each(ctx context.Context, n int, fn func(i int)) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for i := range n {
		wg.Add(1)
		if err := p.Submit(ctx, func() {
			defer wg.Done()
			fn(i)
		}); err != nil {
			wg.Done()
			return fmt.Errorf("submitting job %d of %d: %w", i+1, n, err)
		}
	}
	return nil
}

// Run calls c.Collect immediately and then on every tick of c.Interval
// until ctx is cancelled. A failing or panicking collection is logged and
// the loop carries on.
func Run(ctx context.Context, c Collector) error {
	name := c.Name()
	interval := c.Interval()
	if interval <= 0 {
		interval = defaultInterval
	}
	slog.Info("collector started", "name", name, "interval", interval)

	failures := 0
	tick := func() {
		start := time.Now()
		if err := collectOnce(ctx, c); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			slog.Error("collection failed", "collector", name, "consecutive_failures", failures, "error", err)
			return
		}
		if failures > 0 {
			slog.Info("collector recovered", "collector", name, "after_failures", failures)
			failures = 0
		}
		slog.Debug("collection finished", "collector", name, "took", time.Since(start))
	}

	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("collector stopped", "name", name)
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}

func collectOnce(ctx context.Context, c Collector) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collector %s panicked: %v", c.Name(), r)
		}
	}()
	return c.Collect(ctx)
}

// transientError marks a failure worth one more attempt, such as a refused
// connection or a timeout.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	return &transientError{err: err}
}

// isTransient reports whether err, or any error it wraps, was marked with
// transient.
func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
