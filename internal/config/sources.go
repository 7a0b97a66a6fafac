package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source kinds understood by the scraper registry.
const (
	KindHTML   = "html"
	KindAdzuna = "adzuna"
)

// Source file validation errors.
var (
	ErrNoSources         = errors.New("at least one source is required")
	ErrNoEnabledSources  = errors.New("at least one source must be enabled")
	ErrSourceMissingName = errors.New("name is required")
	ErrDuplicateSource   = errors.New("source names must be unique")
	ErrUnknownKind       = errors.New("kind must be 'html' or 'adzuna'")
	ErrSourceMissingURL  = errors.New("url is required for html sources")
	ErrMissingSelectors  = errors.New("selectors.item, selectors.title and selectors.link are required for html sources")
	ErrMissingQueries    = errors.New("queries are required for adzuna sources")
)

// SourcesFile is the YAML document listing the scrapers to run.
type SourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig describes one external source.
type SourceConfig struct {
	Name      string         `yaml:"name"`
	Kind      string         `yaml:"kind"`
	Enabled   bool           `yaml:"enabled"`
	URL       string         `yaml:"url"`
	JobType   string         `yaml:"job_type"`
	Location  string         `yaml:"location"`
	Category  string         `yaml:"category"`
	Selectors SelectorConfig `yaml:"selectors"`
	Queries   []QueryConfig  `yaml:"queries"`
	MaxPages  int            `yaml:"max_pages"`
}

// SelectorConfig holds the CSS selectors used by html sources. Title,
// company, location, description, link and skip are matched inside each
// item. Attribute values that are not plain identifiers must be quoted:
// a[href^="/jobs/"].
type SelectorConfig struct {
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
	Skip        string `yaml:"skip"` // items containing a match are ignored
}

// QueryConfig is one (what × where) search for API sources.
type QueryConfig struct {
	What  string `yaml:"what"`
	Where string `yaml:"where"`
}

// LoadSources reads and validates the scraper source file.
func LoadSources(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var sf SourcesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := sf.Validate(); err != nil {
		return nil, fmt.Errorf("sources validation failed: %w", err)
	}

	return &sf, nil
}

// Validate checks every source definition.
func (sf *SourcesFile) Validate() error {
	if len(sf.Sources) == 0 {
		return ErrNoSources
	}

	seen := make(map[string]struct{}, len(sf.Sources))
	enabled := 0

	for i, src := range sf.Sources {
		if src.Name == "" {
			return fmt.Errorf("%w: source[%d]", ErrSourceMissingName, i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateSource, src.Name)
		}
		seen[src.Name] = struct{}{}

		switch src.Kind {
		case KindHTML:
			if src.URL == "" {
				return fmt.Errorf("%w: %q", ErrSourceMissingURL, src.Name)
			}
			if src.Selectors.Item == "" || src.Selectors.Title == "" || src.Selectors.Link == "" {
				return fmt.Errorf("%w: %q", ErrMissingSelectors, src.Name)
			}
		case KindAdzuna:
			if len(src.Queries) == 0 {
				return fmt.Errorf("%w: %q", ErrMissingQueries, src.Name)
			}
		default:
			return fmt.Errorf("%w: %q has kind %q", ErrUnknownKind, src.Name, src.Kind)
		}

		if src.Enabled {
			enabled++
		}
	}

	if enabled == 0 {
		return ErrNoEnabledSources
	}

	return nil
}

// Enabled returns the enabled sources in file order.
func (sf *SourcesFile) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(sf.Sources))
	for _, src := range sf.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}
