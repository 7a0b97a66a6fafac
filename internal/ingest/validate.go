package ingest

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"connecta/ingest-service/internal/model"
)

// ErrInvalid matches every *ValidationError.
var ErrInvalid = errors.New("invalid external gig")

// ValidationError lists every rule a gig broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrInvalid.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Mode selects the validation rule set.
type Mode int

const (
	// Strict applies the quality rules used for scraped postings.
	Strict Mode = iota
	// Lenient only checks the fields trusted producers must send.
	Lenient
)

const minDescriptionLen = 20

var spamPhrases = []string{
	"click here now",
	"make money fast",
	"100% free",
	"act now",
	"limited time offer",
	"no experience needed earn $$$",
	"work from home earn thousands",
}

// Validate checks g against the rules of mode. It returns nil or a
// *ValidationError.
func Validate(g *model.ExternalGig, mode Mode, now time.Time) error {
	var problems []string
	required := func(v, field string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, field+" is required")
		}
	}

	required(g.ExternalID, "external_id")
	required(g.Source, "source")
	required(g.Title, "title")
	required(g.Company, "company")
	required(g.Description, "description")
	required(g.URL, "apply_url")

	if mode == Strict {
		if d := strings.TrimSpace(g.Description); d != "" && len([]rune(d)) < minDescriptionLen {
			problems = append(problems, "description must be at least 20 characters long")
		}
		if g.URL != "" && !isHTTPURL(g.URL) {
			problems = append(problems, "apply_url must be an http(s) URL")
		}
		if containsSpam(g.Title) || containsSpam(g.Description) {
			problems = append(problems, "content appears to be spam")
		}
		if g.Deadline != nil && g.Deadline.Before(now) {
			problems = append(problems, "deadline has already passed")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func containsSpam(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range spamPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
