// Package reaper deletes external gigs whose deadline has passed and those
// no scrape has seen for too long.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connecta/ingest-service/internal/events"
)

// Store is the delete side the reaper needs.
type Store interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper removes expired and stale gigs.
type Reaper struct {
	store      Store
	pub        events.Publisher
	staleAfter time.Duration // 0 disables the stale purge
	now        func() time.Time
}

// New returns a Reaper. A nil publisher disables events.
func New(store Store, pub events.Publisher, staleAfter time.Duration) *Reaper {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Reaper{store: store, pub: pub, staleAfter: staleAfter, now: time.Now}
}

// Reap deletes every gig with deadline < now and returns how many.
func (r *Reaper) Reap(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("reap expired gigs: %w", err)
	}
	return n, nil
}

// Purge deletes every gig last scraped more than staleAfter before now.
func (r *Reaper) Purge(ctx context.Context, now time.Time) (int64, error) {
	if r.staleAfter <= 0 {
		return 0, nil
	}
	n, err := r.store.DeleteStale(ctx, now.Add(-r.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("purge stale gigs: %w", err)
	}
	return n, nil
}

// Run is the scheduled entry point. Failures are logged, never returned,
// and a panic in the store layer is recovered.
func (r *Reaper) Run(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("reaper panicked", "panic", p)
		}
	}()

	now := r.now().UTC()

	expired, err := r.Reap(ctx, now)
	if err != nil {
		slog.Error("reaper run failed", "err", err)
	}
	stale, err := r.Purge(ctx, now)
	if err != nil {
		slog.Error("stale purge failed", "err", err)
	}

	if expired == 0 && stale == 0 {
		slog.Debug("reaper run: nothing to delete")
		return
	}
	slog.Info("reaper run", "expired", expired, "stale", stale)

	event := events.GigsReaped{Expired: expired, Stale: stale, At: now}
	if err := r.pub.Publish(ctx, events.ChannelGigsReaped, event); err != nil {
		slog.Warn("publish "+events.ChannelGigsReaped+" failed", "err", err)
	}
}
