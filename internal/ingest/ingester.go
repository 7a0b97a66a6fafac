// Package ingest normalizes, validates and classifies postings, then merges
// them into the store through its atomic upsert.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"connecta/ingest-service/internal/events"
	"connecta/ingest-service/internal/model"
)

// Store is the write side the ingester needs. Upsert must be a single
// conditional write keyed by (source, externalId); it fills in ID,
// PostedAt, CreatedAt and UpdatedAt as stored. A zero PostedAt keeps the
// stored value on update.
type Store interface {
	Upsert(ctx context.Context, g *model.ExternalGig) (inserted bool, err error)
}

// Outcome tells whether an upsert created or updated the record.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
)

// Origin values carried by upsert events.
const (
	OriginScraper = "scraper"
	OriginGateway = "gateway"
)

// Result is the outcome of one ingestion.
type Result struct {
	Outcome Outcome
	Gig     *model.ExternalGig
}

// Ingester is the single entry point for writes coming from scrapers and
// from the gateway.
type Ingester struct {
	store      Store
	pub        events.Publisher
	normalizer *Normalizer
	now        func() time.Time
}

// NewIngester returns a configured Ingester. A nil publisher disables events.
func NewIngester(store Store, pub events.Publisher, normalizer *Normalizer) *Ingester {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Ingester{store: store, pub: pub, normalizer: normalizer, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (i *Ingester) WithClock(now func() time.Time) *Ingester {
	i.now = now
	return i
}

// Ingest normalizes a scraped posting, applies the strict rules, fills in a
// category when the source gave none, and upserts it. A rejected posting
// yields a *ValidationError and never reaches the store.
func (i *Ingester) Ingest(ctx context.Context, source string, raw model.RawPosting) (Result, error) {
	now := i.now().UTC()

	g, err := i.normalizer.Normalize(source, raw, now)
	if err != nil {
		return Result{}, err
	}
	if err := Validate(g, Strict, now); err != nil {
		return Result{}, err
	}
	classify(g)

	return i.upsert(ctx, g, OriginScraper)
}

// Push upserts a gig sent by a trusted producer. Only the lenient rules
// apply. A producer that omits postedAt on an update keeps the stored one.
func (i *Ingester) Push(ctx context.Context, g *model.ExternalGig) (Result, error) {
	now := i.now().UTC()

	g.Source = strings.TrimSpace(g.Source)
	g.ExternalID = strings.TrimSpace(g.ExternalID)
	if err := Validate(g, Lenient, now); err != nil {
		return Result{}, err
	}

	g.IsExternal = true
	g.LastScrapedAt = now
	g.Skills = dedupSkills(g.Skills)
	if g.JobType == "" {
		g.JobType = defaultJobType
	}
	if g.Location == "" {
		g.Location = defaultLocation
	}
	// A zero PostedAt is left to the store: it keeps the stored value on
	// update and becomes LastScrapedAt (now) on insert.
	classify(g)

	return i.upsert(ctx, g, OriginGateway)
}

func (i *Ingester) upsert(ctx context.Context, g *model.ExternalGig, origin string) (Result, error) {
	inserted, err := i.store.Upsert(ctx, g)
	if err != nil {
		return Result{}, fmt.Errorf("upsert external gig %s/%s: %w", g.Source, g.ExternalID, err)
	}

	res := Result{Outcome: OutcomeUpdated, Gig: g}
	if inserted {
		res.Outcome = OutcomeInserted
	}

	// Non-fatal: the write already happened.
	event := events.GigUpserted{
		ID: g.ID, Source: g.Source, ExternalID: g.ExternalID,
		Inserted: inserted, Origin: origin, At: g.UpdatedAt,
	}
	if err := i.pub.Publish(ctx, events.ChannelGigUpserted, event); err != nil {
		slog.Warn("publish "+events.ChannelGigUpserted+" failed", "source", g.Source, "externalId", g.ExternalID, "err", err)
	}

	return res, nil
}

func classify(g *model.ExternalGig) {
	if !needsClassification(g.Category) {
		return
	}
	c := Classify(g)
	g.Category = c.Category
	if g.Niche == "" {
		g.Niche = c.Niche
	}
}
