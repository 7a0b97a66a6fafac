package scraper

import (
	"fmt"

	"connecta/ingest-service/internal/config"
)

// BuildScrapers constructs one Scraper per enabled source, in file order.
func BuildScrapers(sources []config.SourceConfig, getter Getter, adzuna AdzunaCredentials) ([]Scraper, error) {
	scrapers := make([]Scraper, 0, len(sources))

	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		switch src.Kind {
		case config.KindHTML:
			s, err := NewHTMLListScraper(src, getter)
			if err != nil {
				return nil, err
			}
			scrapers = append(scrapers, s)
		case config.KindAdzuna:
			scrapers = append(scrapers, NewAdzunaScraper(src, adzuna, getter))
		default:
			return nil, fmt.Errorf("%w: %q has kind %q", config.ErrUnknownKind, src.Name, src.Kind)
		}
	}

	return scrapers, nil
}
