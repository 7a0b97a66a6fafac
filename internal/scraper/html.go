package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/net/html"

	"connecta/ingest-service/internal/config"
	"connecta/ingest-service/internal/model"
)

// ErrNoItems is returned when a listing page has no element matching the
// item selector. It usually means the site changed its markup.
var ErrNoItems = errors.New("no listing items matched")

// HTMLListScraper extracts postings from a server-rendered listing page.
// Site specifics live entirely in its selectors.
type HTMLListScraper struct {
	name     string
	pageURL  *url.URL
	jobType  string
	location string
	category string
	getter   Getter

	item, title, company, loc, description, link, skip Selector
}

// NewHTMLListScraper compiles the selectors of src.
func NewHTMLListScraper(src config.SourceConfig, getter Getter) (*HTMLListScraper, error) {
	u, err := url.Parse(src.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source %q: invalid url %q", src.Name, src.URL)
	}

	s := &HTMLListScraper{
		name:     src.Name,
		pageURL:  u,
		jobType:  src.JobType,
		location: src.Location,
		category: src.Category,
		getter:   getter,
	}

	compile := []struct {
		dst *Selector
		raw string
	}{
		{&s.item, src.Selectors.Item},
		{&s.title, src.Selectors.Title},
		{&s.company, src.Selectors.Company},
		{&s.loc, src.Selectors.Location},
		{&s.description, src.Selectors.Description},
		{&s.link, src.Selectors.Link},
		{&s.skip, src.Selectors.Skip},
	}
	for _, c := range compile {
		sel, err := ParseSelector(c.raw)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}
		*c.dst = sel
	}
	if s.item.Empty() || s.title.Empty() || s.link.Empty() {
		return nil, fmt.Errorf("source %q: %w", src.Name, config.ErrMissingSelectors)
	}

	return s, nil
}

func (s *HTMLListScraper) Name() string { return s.name }

// Scrape fetches the listing page and returns one posting per item that
// has both a title and a link. Items matching the skip selector and
// repeated links are dropped.
func (s *HTMLListScraper) Scrape(ctx context.Context) ([]model.RawPosting, error) {
	body, err := s.getter.Get(ctx, s.pageURL.String(), "text/html")
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Source: s.name, Err: err}
	}

	items := s.item.FindAll(doc)
	if len(items) == 0 {
		return nil, &ParseError{Source: s.name, Err: fmt.Errorf("%w: %q", ErrNoItems, s.item)}
	}

	seen := make(map[string]struct{}, len(items))
	postings := make([]model.RawPosting, 0, len(items))

	for _, item := range items {
		if !s.skip.Empty() && s.skip.FindFirst(item) != nil {
			continue
		}

		title := Text(s.title.FindFirst(item))
		href := s.href(item)
		if title == "" || href == "" {
			slog.Debug("skipping incomplete item", "source", s.name, "title", title)
			continue
		}
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}

		p := model.RawPosting{
			Title:    title,
			Company:  Text(s.company.FindFirst(item)),
			Location: Text(s.loc.FindFirst(item)),
			JobType:  s.jobType,
			URL:      href,
			Category: s.category,
		}
		if p.Location == "" {
			p.Location = s.location
		}
		p.Description = Text(s.description.FindFirst(item))
		if p.Description == "" {
			p.Description = fallbackDescription(p)
		}
		postings = append(postings, p)
	}

	return postings, nil
}

// href resolves the first link of item against the page URL.
func (s *HTMLListScraper) href(item *html.Node) string {
	n := s.link.FindFirst(item)
	if n == nil {
		return ""
	}
	raw := attr(n, "href")
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	abs := s.pageURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func fallbackDescription(p model.RawPosting) string {
	company := p.Company
	if company == "" {
		company = "an external company"
	}
	location := p.Location
	if location == "" {
		location = "Remote"
	}
	return fmt.Sprintf("%s at %s (%s)", p.Title, company, location)
}
