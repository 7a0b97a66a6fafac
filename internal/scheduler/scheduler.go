// Package scheduler runs the periodic jobs of the service (reaper, optional
// scrape cycles) on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron. Jobs that panic are recovered, and a job is
// skipped while its previous run is still going.
type Scheduler struct {
	cron  *cron.Cron
	chain cron.Chain
	jobs  int
}

// New creates an idle Scheduler.
func New() *Scheduler {
	logger := cron.DefaultLogger
	return &Scheduler{
		cron:  cron.New(cron.WithLogger(logger)),
		// Recover sits inside SkipIfStillRunning, which only frees its slot
		// when the wrapped job returns normally.
		chain: cron.NewChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	}
}

// Register adds job under the standard 5-field spec (or a descriptor such
// as "@hourly"). With runNow, job also runs once immediately so the service
// does not wait for the first tick. The immediate run and the ticks share
// one wrapped job: a tick that lands while it is still going is skipped.
func (s *Scheduler) Register(ctx context.Context, name, spec string, runNow bool, job func(context.Context)) error {
	wrapped := s.chain.Then(cron.FuncJob(func() {
		log.Printf("[scheduler] %s: started", name)
		job(ctx)
		log.Printf("[scheduler] %s: done", name)
	}))
	if _, err := s.cron.AddJob(spec, wrapped); err != nil {
		return fmt.Errorf("cron.AddJob %s %q: %w", name, spec, err)
	}
	s.jobs++
	log.Printf("[scheduler] %s registered, spec: %s", name, spec)

	if runNow {
		go wrapped.Run()
	}
	return nil
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[scheduler] Cron started with %d job(s)", s.jobs)
}

// Stop stops the scheduler and returns a context that is done once
// running jobs have returned.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
	return ctx
}
