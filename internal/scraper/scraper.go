// Package scraper implements the per-source scrapers and the shared HTTP
// fetcher they use.
//
// A Scraper turns one external source into raw postings. Sources share no
// mutable state apart from the Fetcher's per-host politeness limiters.
package scraper

import (
	"context"
	"errors"
	"fmt"

	"connecta/ingest-service/internal/model"
)

// Scraper fetches and parses postings from one external source.
//
// Scrape may return postings together with a non-nil error when the source
// failed part-way; callers ingest what was returned and report the failure.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context) ([]model.RawPosting, error)
}

// Getter is the transport used by scrapers.
type Getter interface {
	Get(ctx context.Context, rawURL, accept string) ([]byte, error)
}

// ErrUnexpectedStatusCode indicates an HTTP response with unexpected status.
var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// ErrBodyTooLarge indicates a response larger than the fetcher's size cap.
// The body is dropped rather than parsed truncated.
var ErrBodyTooLarge = errors.New("response body too large")

// TransportError reports a failed fetch.
type TransportError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a page whose structure did not match expectations.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Source, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }
