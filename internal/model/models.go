// Package model defines shared data structures for the ingestion service.
package model

import "time"

// RawPosting is an offer as extracted by a scraper, before normalization.
// Dates are kept as the source's strings; the normalizer parses them.
type RawPosting struct {
	ExternalID  string         `json:"externalId"`
	Title       string         `json:"title"`
	Company     string         `json:"company"`
	Location    string         `json:"location"`
	JobType     string         `json:"jobType,omitempty"`
	Description string         `json:"description"`
	URL         string         `json:"url"`
	PostedAt    string         `json:"postedAt,omitempty"`
	Deadline    string         `json:"deadline,omitempty"`
	Skills      []string       `json:"skills,omitempty"`
	Category    string         `json:"category,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ExternalGig is the canonical ingested posting. (Source, ExternalID) is
// its identity.
type ExternalGig struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	ExternalID    string     `json:"externalId"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Company       string     `json:"company"`
	Location      string     `json:"location"`
	JobType       string     `json:"jobType"`
	Category      string     `json:"category"`
	Niche         string     `json:"niche,omitempty"`
	URL           string     `json:"applyUrl"`
	Skills        []string   `json:"skills"`
	PostedAt      time.Time  `json:"postedAt"`
	Deadline      *time.Time `json:"deadline"`
	IsExternal    bool       `json:"isExternal"`
	LastScrapedAt time.Time  `json:"lastScrapedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Key returns the dedup identity of the gig.
func (g *ExternalGig) Key() Key { return Key{Source: g.Source, ExternalID: g.ExternalID} }

// Key is the (source, externalId) identity tuple.
type Key struct {
	Source     string
	ExternalID string
}

// ListFilter narrows a gig listing.
type ListFilter struct {
	Source string // empty: all sources
	Limit  int
}

// Stats summarises the external gig population.
type Stats struct {
	Total          int64 `json:"total"`
	RecentlyActive int64 `json:"recentlyActive"` // scraped within the last 7 days
	Stale          int64 `json:"stale"`          // not scraped for 14 days or more
}
