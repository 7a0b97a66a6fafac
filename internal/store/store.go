// Package store persists external gigs. Every mutation is a single
// statement keyed by (source, external_id); there is no read-then-write.
package store

import (
	"context"
	"errors"
	"time"

	"connecta/ingest-service/internal/model"
)

// Store errors.
var (
	// ErrConstraint reports a row the database refused (integrity class).
	ErrConstraint = errors.New("constraint violation")
)

const (
	// DefaultListLimit applies when a ListFilter has no limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single listing.
	MaxListLimit = 10000

	recentWindow = 7 * 24 * time.Hour
	staleWindow  = 14 * 24 * time.Hour
)

// Store is implemented by Postgres and Memory.
type Store interface {
	// Upsert inserts g or updates the record with the same key in place,
	// keeping its id and createdAt. A zero g.PostedAt keeps the stored
	// postedAt on update and takes g.LastScrapedAt on insert. It fills
	// g.ID, g.PostedAt, g.CreatedAt and g.UpdatedAt and reports whether a
	// new record was created.
	Upsert(ctx context.Context, g *model.ExternalGig) (inserted bool, err error)
	// Delete removes the record with key k. A missing key is not an error.
	Delete(ctx context.Context, k model.Key) (deleted bool, err error)
	// List returns gigs newest first.
	List(ctx context.Context, f model.ListFilter) ([]model.ExternalGig, error)
	// DeleteExpired removes every gig whose deadline is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// DeleteStale removes every gig last scraped before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (model.Stats, error)
	Ping(ctx context.Context) error
}

// ClampLimit applies the default and the cap to a requested limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
