package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"connecta/ingest-service/internal/config"
	"connecta/ingest-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per (what × where) pair
)

// AdzunaCredentials authenticate against the Adzuna search API.
type AdzunaCredentials struct {
	AppID   string
	AppKey  string
	Country string // "fr", "gb", "us", …
}

// AdzunaScraper pulls offers from the Adzuna public job-search API, one
// paged search per configured query.
// If AppID or AppKey is empty, Scrape returns (nil, nil) and logs a warning.
type AdzunaScraper struct {
	name     string
	creds    AdzunaCredentials
	queries  []config.QueryConfig
	maxPages int
	jobType  string
	category string
	getter   Getter

	// BaseURL overrides the API root, for tests.
	BaseURL string
}

// NewAdzunaScraper constructs a scraper for src.
func NewAdzunaScraper(src config.SourceConfig, creds AdzunaCredentials, getter Getter) *AdzunaScraper {
	maxPages := src.MaxPages
	if maxPages <= 0 {
		maxPages = adzunaMaxPages
	}
	if creds.Country == "" {
		creds.Country = "fr"
	}
	return &AdzunaScraper{
		name:     src.Name,
		creds:    creds,
		queries:  src.Queries,
		maxPages: maxPages,
		jobType:  src.JobType,
		category: src.Category,
		getter:   getter,
		BaseURL:  adzunaBaseURL,
	}
}

func (s *AdzunaScraper) Name() string { return s.name }

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaLabel    `json:"company"`
	Location     adzunaLabel    `json:"location"`
	Category     adzunaCategory `json:"category"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaLabel struct {
	DisplayName string `json:"display_name"`
}

type adzunaCategory struct {
	Label string `json:"label"`
}

// Scrape runs every query. A failing query does not stop the others; the
// postings gathered so far are returned with the joined errors.
func (s *AdzunaScraper) Scrape(ctx context.Context) ([]model.RawPosting, error) {
	if s.creds.AppID == "" || s.creds.AppKey == "" {
		slog.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, skipping source", "source", s.name)
		return nil, nil
	}

	var (
		postings []model.RawPosting
		errs     []error
	)
	for _, q := range s.queries {
		batch, err := s.search(ctx, q)
		postings = append(postings, batch...)
		if err != nil {
			errs = append(errs, fmt.Errorf("query %q in %q: %w", q.What, q.Where, err))
			if ctx.Err() != nil {
				break
			}
		}
	}

	return postings, errors.Join(errs...)
}

// search iterates pages until no more results or maxPages is reached.
func (s *AdzunaScraper) search(ctx context.Context, q config.QueryConfig) ([]model.RawPosting, error) {
	var results []model.RawPosting

	for page := 1; page <= s.maxPages; page++ {
		batch, err := s.fetchPage(ctx, q, page)
		if err != nil {
			return results, fmt.Errorf("page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}
		results = append(results, batch...)
		if len(batch) < adzunaPageSize {
			break
		}
	}

	return results, nil
}

func (s *AdzunaScraper) fetchPage(ctx context.Context, q config.QueryConfig, page int) ([]model.RawPosting, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", s.BaseURL, s.creds.Country, page)

	params := url.Values{}
	params.Set("app_id", s.creds.AppID)
	params.Set("app_key", s.creds.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", q.What)
	if q.Where != "" {
		params.Set("where", q.Where)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	body, err := s.getter.Get(ctx, endpoint+"?"+params.Encode(), "application/json")
	if err != nil {
		return nil, err
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &ParseError{Source: s.name, Err: fmt.Errorf("json unmarshal: %w", err)}
	}

	results := make([]model.RawPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		p := model.RawPosting{
			ExternalID:  r.ID,
			Title:       r.Title,
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Description: r.Description,
			URL:         r.RedirectURL,
			PostedAt:    r.Created,
			JobType:     jobType(r.ContractType, r.ContractTime, s.jobType),
			Category:    s.category,
		}
		if p.Category == "" {
			p.Category = r.Category.Label
		}
		if r.SalaryMin > 0 || r.SalaryMax > 0 {
			p.Extra = map[string]any{"salaryMin": r.SalaryMin, "salaryMax": r.SalaryMax}
		}
		results = append(results, p)
	}

	return results, nil
}

// jobType maps Adzuna's contract fields onto the marketplace vocabulary.
func jobType(contractType, contractTime, fallback string) string {
	switch {
	case contractType == "contract":
		return "contract"
	case contractTime == "part_time":
		return "part-time"
	case contractTime == "full_time" || contractType == "permanent":
		return "full-time"
	}
	return fallback
}
