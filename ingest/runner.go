/*
runner.go - Fixed-interval sync runner

Triggers a sync of a trailing window on a fixed cadence, in addition to the
on-demand endpoint. Each tick is one logical run; a failed run is logged
and the next tick retries the same window (idempotent, so overlap is free).
*/
package ingest

import (
	"context"
	"log"
	"sync"
	"time"
)

// Runner drives periodic syncs of a trailing window.
type Runner struct {
	Orchestrator *Orchestrator
	Interval     time.Duration
	WindowDays   int // trailing days to re-sync each tick

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRunner(o *Orchestrator, interval time.Duration, windowDays int) *Runner {
	if windowDays <= 0 {
		// Cover the open month plus the previous one, the usual window an
		// operator settles in.
		windowDays = 62
	}
	return &Runner{
		Orchestrator: o,
		Interval:     interval,
		WindowDays:   windowDays,
		stop:         make(chan struct{}),
	}
}

// Start begins the runner. A zero interval disables it.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Interval <= 0 {
		log.Println("[Runner] disabled, not starting")
		return
	}

	r.ticker = time.NewTicker(r.Interval)
	r.wg.Add(1)
	go r.run(r.ticker)

	log.Printf("[Runner] started, interval=%v window=%dd", r.Interval, r.WindowDays)
}

// Stop stops the runner and waits for an in-flight run to finish. Safe to
// call more than once, and on a runner that never started.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	r.ticker = nil
	close(r.stop)
	r.wg.Wait()
	log.Println("[Runner] stopped")
}

func (r *Runner) run(ticker *time.Ticker) {
	defer r.wg.Done()

	// Run immediately on start.
	r.syncOnce()

	for {
		select {
		case <-ticker.C:
			r.syncOnce()
		case <-r.stop:
			return
		}
	}
}

func (r *Runner) syncOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -r.WindowDays)

	if _, err := r.Orchestrator.Sync(ctx, from, now); err != nil {
		log.Printf("[Runner] sync failed: %v", err)
	}
}
