// connecta-scraper: external gig ingestion.
//
// Runs one scrape cycle over every enabled source in SOURCES_FILE and exits,
// which is how the daily supervisor job invokes it. With SCRAPE_SCHEDULE
// set, it stays up and runs a cycle on that cron schedule instead.
//
// Exit codes: 0 on a completed cycle (even if some sources failed),
// 1 when the cycle could not run or a dependency was lost.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"connecta/ingest-service/internal/config"
	"connecta/ingest-service/internal/db"
	"connecta/ingest-service/internal/events"
	"connecta/ingest-service/internal/ingest"
	"connecta/ingest-service/internal/logger"
	"connecta/ingest-service/internal/orchestrator"
	"connecta/ingest-service/internal/ratelimit"
	"connecta/ingest-service/internal/scheduler"
	"connecta/ingest-service/internal/scraper"
	"connecta/ingest-service/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Printf("[scraper] Config error: %v", err)
		return 1
	}
	logger.Install(cfg.LogLevel)

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		log.Printf("[scraper] Sources error: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ────────────────────────────────────────────────────────────────
	opened, err := store.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		log.Printf("[scraper] Store: %v", err)
		return 1
	}
	defer opened.Close()

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[scraper] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("[scraper] Redis: %v", err)
		return 1
	}
	defer rdb.Close()
	log.Println("[scraper] Redis connected ✓")

	// ── Pipeline ─────────────────────────────────────────────────────────────
	fetcher := scraper.NewFetcher(scraper.FetcherOptions{
		RequestsPerSecond: cfg.FetchRPS,
		MaxAttempts:       cfg.FetchMaxAttempts,
		RetryDelay:        cfg.FetchRetryDelay,
	})
	scrapers, err := scraper.BuildScrapers(sources.Enabled(), fetcher, scraper.AdzunaCredentials{
		AppID:   cfg.AdzunaAppID,
		AppKey:  cfg.AdzunaAppKey,
		Country: cfg.AdzunaCountry,
	})
	if err != nil {
		log.Printf("[scraper] Scrapers: %v", err)
		return 1
	}

	pub := events.NewRedisPublisher(rdb)
	orch := orchestrator.New(orchestrator.Options{
		Scrapers:      scrapers,
		Queue:         ratelimit.New(cfg.MaxConcurrent, cfg.MinDelay),
		Ingester:      ingest.NewIngester(opened.Store, pub, ingest.NewNormalizer(cfg.DefaultTTL)),
		Store:         opened.Store,
		Lock:          events.NewLock(rdb, events.CycleLockKey, lockTTL(cfg, len(scrapers))),
		ScrapeTimeout: cfg.ScrapeTimeout,
	})
	log.Printf("[scraper] %d source(s), maxConcurrent=%d minDelay=%v", len(scrapers), cfg.MaxConcurrent, cfg.MinDelay)

	cycle := func(ctx context.Context) error {
		report, err := orch.RunCycle(ctx)
		if errors.Is(err, orchestrator.ErrCycleInProgress) {
			log.Println("[scraper] Another cycle is running, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Print(report.Table())
		logStats(ctx, opened.Store)
		return nil
	}

	if cfg.ScrapeSchedule == "" {
		if err := cycle(ctx); err != nil {
			log.Printf("[scraper] Cycle failed: %v", err)
			return 1
		}
		return 0
	}

	return runScheduled(ctx, cfg, cycle, opened.Check, rdb)
}

// runScheduled keeps the process up, running cycles on the cron schedule
// until a signal arrives or a dependency is lost.
func runScheduled(ctx context.Context, cfg *config.Config, cycle func(context.Context) error, storeCheck db.Check, rdb *redis.Client) int {
	sched := scheduler.New()
	err := sched.Register(ctx, "scrape-cycle", cfg.ScrapeSchedule, true, func(ctx context.Context) {
		if err := cycle(ctx); err != nil {
			slog.Error("scrape cycle failed", "err", err)
		}
	})
	if err != nil {
		log.Printf("[scraper] Scheduler: %v", err)
		return 1
	}
	sched.Start()

	fatal := make(chan error, 1)
	go func() {
		fatal <- db.NewWatchdog(cfg.WatchdogInterval, cfg.WatchdogMaxFailures, storeCheck, db.RedisCheck(rdb)).Run(ctx)
	}()

	code := 0
	select {
	case <-ctx.Done():
		log.Println("[scraper] Shutting down…")
	case err := <-fatal:
		if db.IsFatal(err) {
			log.Printf("[scraper] Fatal: %v", err)
			code = 1
		}
	}

	<-sched.Stop().Done()
	log.Println("[scraper] Stopped.")
	return code
}

// lockTTL bounds how long a crashed cycle can block the next one: enough
// for every source to use its full timeout one after the other.
func lockTTL(cfg *config.Config, sources int) time.Duration {
	return time.Duration(sources)*(cfg.ScrapeTimeout+cfg.MinDelay) + time.Minute
}

func logStats(ctx context.Context, st store.Store) {
	stats, err := st.Stats(ctx, time.Now().UTC())
	if err != nil {
		slog.Warn("external gig stats unavailable", "err", err)
		return
	}
	slog.Info("external gigs", "total", stats.Total, "recentlyActive", stats.RecentlyActive, "stale", stats.Stale)
}
