// Package externalgig is the gateway through which trusted producers push,
// delete and list external gigs without scraping.
//
// Service holds the logic and is transport-agnostic: Handler exposes it
// over HTTP and the grpcserver package over gRPC.
package externalgig

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"connecta/ingest-service/internal/events"
	"connecta/ingest-service/internal/ingest"
	"connecta/ingest-service/internal/model"
)

// ─── Request types ───────────────────────────────────────────────────────────

// UpsertRequest is the body producers send to create or update a gig.
type UpsertRequest struct {
	ExternalID  string   `json:"external_id"`
	Source      string   `json:"source"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	JobType     string   `json:"job_type"`
	Description string   `json:"description"`
	ApplyURL    string   `json:"apply_url"`
	PostedAt    string   `json:"posted_at"`
	Deadline    string   `json:"deadline"`
	Skills      []string `json:"skills"`
	Category    string   `json:"category"`
}

// toGig converts the request. Malformed dates are a *ingest.ValidationError.
func (r *UpsertRequest) toGig() (*model.ExternalGig, error) {
	g := &model.ExternalGig{
		ExternalID:  r.ExternalID,
		Source:      r.Source,
		Title:       strings.TrimSpace(r.Title),
		Company:     strings.TrimSpace(r.Company),
		Location:    strings.TrimSpace(r.Location),
		JobType:     strings.TrimSpace(r.JobType),
		Description: strings.TrimSpace(r.Description),
		URL:         strings.TrimSpace(r.ApplyURL),
		Skills:      r.Skills,
		Category:    strings.TrimSpace(r.Category),
	}

	var problems []string
	if r.PostedAt != "" {
		t, err := parseTimestamp(r.PostedAt)
		if err != nil {
			problems = append(problems, "posted_at must be RFC 3339 or YYYY-MM-DD")
		}
		g.PostedAt = t
	}
	if r.Deadline != "" {
		t, err := parseTimestamp(r.Deadline)
		if err != nil {
			problems = append(problems, "deadline must be RFC 3339 or YYYY-MM-DD")
		} else {
			g.Deadline = &t
		}
	}
	if len(problems) > 0 {
		return nil, &ingest.ValidationError{Problems: problems}
	}
	return g, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Pusher performs the validated upsert.
type Pusher interface {
	Push(ctx context.Context, g *model.ExternalGig) (ingest.Result, error)
}

// Store is the read/delete side the gateway needs.
type Store interface {
	Delete(ctx context.Context, k model.Key) (bool, error)
	List(ctx context.Context, f model.ListFilter) ([]model.ExternalGig, error)
	Stats(ctx context.Context, now time.Time) (model.Stats, error)
}

// Service implements the gateway operations.
type Service struct {
	pusher Pusher
	store  Store
	pub    events.Publisher
}

// NewService returns a configured Service. A nil publisher disables events.
func NewService(pusher Pusher, store Store, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{pusher: pusher, store: store, pub: pub}
}

// Upsert creates or updates the gig described by req.
func (s *Service) Upsert(ctx context.Context, req *UpsertRequest) (ingest.Result, error) {
	g, err := req.toGig()
	if err != nil {
		return ingest.Result{}, err
	}
	return s.pusher.Push(ctx, g)
}

// Delete removes one gig. A missing key returns (false, nil).
func (s *Service) Delete(ctx context.Context, source, externalID string) (bool, error) {
	if source == "" || externalID == "" {
		return false, &ingest.ValidationError{Problems: []string{"source and externalId are required"}}
	}

	deleted, err := s.store.Delete(ctx, model.Key{Source: source, ExternalID: externalID})
	if err != nil {
		return false, fmt.Errorf("delete external gig %s/%s: %w", source, externalID, err)
	}
	if !deleted {
		return false, nil
	}

	event := events.GigDeleted{Source: source, ExternalID: externalID, At: time.Now().UTC()}
	if err := s.pub.Publish(ctx, events.ChannelGigDeleted, event); err != nil {
		slog.Warn("publish "+events.ChannelGigDeleted+" failed", "source", source, "externalId", externalID, "err", err)
	}
	return true, nil
}

// List returns gigs newest first.
func (s *Service) List(ctx context.Context, f model.ListFilter) ([]model.ExternalGig, error) {
	gigs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list external gigs: %w", err)
	}
	return gigs, nil
}

// Stats returns population counters.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	st, err := s.store.Stats(ctx, time.Now().UTC())
	if err != nil {
		return model.Stats{}, fmt.Errorf("external gig stats: %w", err)
	}
	return st, nil
}
