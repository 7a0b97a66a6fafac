// Package orchestrator runs one scrape cycle: every registered scraper is
// submitted to the admission queue, and its postings are ingested as soon
// as it returns. A failing source never affects the others.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"connecta/ingest-service/internal/events"
	"connecta/ingest-service/internal/ingest"
	"connecta/ingest-service/internal/model"
	"connecta/ingest-service/internal/ratelimit"
	"connecta/ingest-service/internal/scraper"
)

// ErrCycleInProgress is returned when another process holds the cycle lock.
var ErrCycleInProgress = errors.New("scrape cycle already in progress")

// Ingester consumes raw postings.
type Ingester interface {
	Ingest(ctx context.Context, source string, raw model.RawPosting) (ingest.Result, error)
}

// Pinger checks that the store is reachable before a cycle starts.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Locker guards a cycle across processes.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// Options configures an Orchestrator.
type Options struct {
	Scrapers      []scraper.Scraper
	Queue         *ratelimit.Queue
	Ingester      Ingester
	Store         Pinger
	Lock          Locker        // optional
	ScrapeTimeout time.Duration // per source; 0 disables
}

// Orchestrator holds no schedule state; callers decide when to run a cycle.
type Orchestrator struct {
	scrapers      []scraper.Scraper
	queue         *ratelimit.Queue
	ingester      Ingester
	store         Pinger
	lock          Locker
	scrapeTimeout time.Duration
}

// New returns an Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		scrapers:      opts.Scrapers,
		queue:         opts.Queue,
		ingester:      opts.Ingester,
		store:         opts.Store,
		lock:          opts.Lock,
		scrapeTimeout: opts.ScrapeTimeout,
	}
}

// RunCycle scrapes every source once and waits for all of them. It returns
// an error only when the cycle could not start; per-source failures are in
// the report.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Report, error) {
	if err := o.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store unavailable: %w", err)
	}

	if o.lock != nil {
		release, err := o.lock.Acquire(ctx)
		if errors.Is(err, events.ErrLockHeld) {
			return nil, ErrCycleInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("acquire cycle lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("release cycle lock failed", "err", err)
			}
		}()
	}

	report := &Report{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
		Sources:   make([]SourceReport, len(o.scrapers)),
	}
	slog.Info("scrape cycle started", "cycle", report.CycleID, "sources", len(o.scrapers))

	// Enqueue in registry order, then wait for every source.
	pending := make([]<-chan error, len(o.scrapers))
	for i, s := range o.scrapers {
		report.Sources[i] = SourceReport{Source: s.Name(), Status: StatusFailed}
		sr := &report.Sources[i]
		pending[i] = o.queue.Enqueue(ctx, func(ctx context.Context) error {
			return o.runSource(ctx, s, sr)
		})
	}
	for i, ch := range pending {
		if err := <-ch; err != nil {
			sr := &report.Sources[i]
			if sr.Err == "" {
				sr.Err = err.Error()
			}
			slog.Error("source failed", "cycle", report.CycleID, "source", sr.Source, "err", err)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	t := report.Totals()
	slog.Info("scrape cycle finished",
		"cycle", report.CycleID, "duration", report.Duration.Round(time.Millisecond),
		"scraped", t.Scraped, "inserted", t.Inserted, "updated", t.Updated,
		"rejected", t.Rejected, "failedSources", report.FailedSources(),
	)
	return report, nil
}

// runSource scrapes one source under the per-source timeout and ingests
// whatever it returned. It fills sr and returns the scrape error, if any.
func (o *Orchestrator) runSource(ctx context.Context, s scraper.Scraper, sr *SourceReport) error {
	start := time.Now()
	defer func() { sr.Duration = time.Since(start) }()

	scrapeCtx := ctx
	if o.scrapeTimeout > 0 {
		var cancel context.CancelFunc
		scrapeCtx, cancel = context.WithTimeout(ctx, o.scrapeTimeout)
		defer cancel()
	}

	postings, scrapeErr := s.Scrape(scrapeCtx)
	sr.Scraped = len(postings)

	for _, raw := range postings {
		res, err := o.ingester.Ingest(ctx, s.Name(), raw)
		switch {
		case errors.Is(err, ingest.ErrInvalid):
			sr.Rejected++
			slog.Debug("posting rejected", "source", s.Name(), "title", raw.Title, "err", err)
		case err != nil:
			sr.Failed++
			slog.Warn("posting not stored", "source", s.Name(), "title", raw.Title, "err", err)
		case res.Outcome == ingest.OutcomeInserted:
			sr.Inserted++
		default:
			sr.Updated++
		}
	}

	sr.Status = statusFor(scrapeErr, sr)
	if scrapeErr != nil {
		sr.Err = scrapeErr.Error()
		return scrapeErr
	}
	if sr.Failed > 0 {
		sr.Err = fmt.Sprintf("%d postings could not be stored", sr.Failed)
	}
	return nil
}

func statusFor(scrapeErr error, sr *SourceReport) Status {
	stored := sr.Inserted + sr.Updated
	switch {
	case scrapeErr == nil && sr.Failed == 0:
		return StatusOK
	case stored > 0:
		return StatusPartial
	}
	return StatusFailed
}
