package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"connecta/ingest-service/internal/model"
)

const (
	defaultJobType  = "full-time"
	defaultLocation = "Remote"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006",
}

// Normalizer turns raw postings into canonical gigs.
type Normalizer struct {
	defaultTTL time.Duration
}

// NewNormalizer returns a Normalizer that gives postings without a deadline
// one of now+defaultTTL. A zero TTL leaves the deadline unset.
func NewNormalizer(defaultTTL time.Duration) *Normalizer {
	return &Normalizer{defaultTTL: defaultTTL}
}

// Normalize builds the canonical gig for raw. A deadline the source sent
// but that cannot be parsed is a *ValidationError.
func (n *Normalizer) Normalize(source string, raw model.RawPosting, now time.Time) (*model.ExternalGig, error) {
	g := &model.ExternalGig{
		Source:        strings.TrimSpace(source),
		ExternalID:    strings.TrimSpace(raw.ExternalID),
		Title:         collapse(raw.Title),
		Company:       collapse(raw.Company),
		Location:      collapse(raw.Location),
		JobType:       strings.ToLower(collapse(raw.JobType)),
		Category:      collapse(raw.Category),
		Description:   strings.TrimSpace(raw.Description),
		URL:           strings.TrimSpace(raw.URL),
		Skills:        dedupSkills(raw.Skills),
		IsExternal:    true,
		LastScrapedAt: now,
	}

	if g.ExternalID == "" && g.URL != "" {
		g.ExternalID = DeriveExternalID(g.URL)
	}
	if g.JobType == "" {
		g.JobType = defaultJobType
	}
	if g.Location == "" {
		g.Location = defaultLocation
	}

	g.PostedAt = now
	if t, ok := parseDate(raw.PostedAt); ok && !t.After(now) {
		g.PostedAt = t
	}

	switch {
	case strings.TrimSpace(raw.Deadline) != "":
		t, ok := parseDate(raw.Deadline)
		if !ok {
			return nil, &ValidationError{Problems: []string{"invalid deadline date format"}}
		}
		g.Deadline = &t
	case n.defaultTTL > 0:
		d := now.Add(n.defaultTTL)
		g.Deadline = &d
	}

	return g, nil
}

// DeriveExternalID returns a stable id for postings whose source exposes
// none: the first 16 bytes of the SHA-256 of the apply URL, hex encoded.
func DeriveExternalID(applyURL string) string {
	sum := sha256.Sum256([]byte(applyURL))
	return hex.EncodeToString(sum[:16])
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dedupSkills trims, drops empties and removes case-insensitive repeats,
// keeping first-seen order.
func dedupSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = collapse(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
