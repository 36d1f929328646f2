package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go-townwork-crawler/internal/scraper"
)

// ErrUnknownSource means a crawl was requested for a source that has no
// selector configuration. This is fatal to the whole crawl.
var ErrUnknownSource = errors.New("no selector config for source")

// SiteConfig is the per-site block of selectors.yaml: URL construction
// plus the logical-field-to-selector mapping. Read-only during a crawl.
type SiteConfig struct {
	Name             string            `yaml:"name"`
	BaseURL          string            `yaml:"base_url"`
	SearchURLPattern string            `yaml:"search_url_pattern"`
	AreaCodes        map[string]string `yaml:"area_codes"`
	Pagination       struct {
		Type      string `yaml:"type"`
		Increment int    `yaml:"increment"`
	} `yaml:"pagination"`
	Selectors       map[string]string `yaml:"selectors"`
	DetailSelectors map[string]string `yaml:"detail_selectors"`
	Filters         struct {
		QueryParams map[string]string            `yaml:"query_params"`
		Options     map[string]map[string]string `yaml:"options"`
	} `yaml:"filters"`
}

// Selectors is the loaded selector configuration, keyed by source name.
type Selectors map[string]SiteConfig

func LoadSelectors(path string) (Selectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selector config: %w", err)
	}
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// Strategy builds the extraction strategy for one source, or fails with
// ErrUnknownSource.
func (s Selectors) Strategy(source string) (scraper.Strategy, error) {
	site, ok := s[source]
	if !ok {
		return scraper.Strategy{}, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	if site.Selectors["job_cards"] == "" {
		return scraper.Strategy{}, fmt.Errorf("source %s: selectors.job_cards is required", source)
	}
	return scraper.Strategy{
		Name:                source,
		BaseURL:             site.BaseURL,
		SearchURLPattern:    site.SearchURLPattern,
		AreaCodes:           site.AreaCodes,
		PaginationType:      site.Pagination.Type,
		PaginationIncrement: site.Pagination.Increment,
		Selectors:           site.Selectors,
		DetailSelectors:     site.DetailSelectors,
		FilterParams:        site.Filters.QueryParams,
		FilterOptions:       site.Filters.Options,
	}, nil
}
