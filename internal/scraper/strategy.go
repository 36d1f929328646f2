package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Strategy is the data-driven, per-site piece of the extractor: URL
// construction plus the selector maps. It is plain configuration turned
// into a value; there is no per-site subclassing.
type Strategy struct {
	Name             string
	BaseURL          string
	SearchURLPattern string // accepts {keyword} {area} {page} or {offset}

	// AreaCodes maps display area names to the site's URL tokens
	// (東京 -> tokyo). Unknown areas fall through lowercased.
	AreaCodes map[string]string

	PaginationType      string // "page" (default) or "offset"
	PaginationIncrement int

	Selectors       map[string]string // job_cards, title, company, location, salary, employment_type, detail_link
	DetailSelectors map[string]string // company_kana, postal_code, phone, job_number, business_content, employee_count

	// search filter -> query parameter name, and per-filter option value
	// translation (正社員 -> full)
	FilterParams  map[string]string
	FilterOptions map[string]map[string]string
}

// BuildSearchURL renders the search URL for one (keyword, area, page)
// combination, appending any configured filter parameters.
func (s Strategy) BuildSearchURL(keyword, area string, page int, filters map[string][]string) (string, error) {
	if s.SearchURLPattern == "" {
		return "", fmt.Errorf("source %s has no search_url_pattern", s.Name)
	}

	areaCode, ok := s.AreaCodes[area]
	if !ok {
		areaCode = strings.ToLower(area)
	}

	raw := s.SearchURLPattern
	raw = strings.ReplaceAll(raw, "{keyword}", url.PathEscape(keyword))
	raw = strings.ReplaceAll(raw, "{area}", areaCode)
	if s.PaginationType == "offset" {
		inc := s.PaginationIncrement
		if inc <= 0 {
			inc = 10
		}
		raw = strings.ReplaceAll(raw, "{offset}", strconv.Itoa((page-1)*inc))
	} else {
		raw = strings.ReplaceAll(raw, "{page}", strconv.Itoa(page))
	}

	if len(filters) == 0 {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	for key, values := range filters {
		param, ok := s.FilterParams[key]
		if !ok {
			continue // filter not supported by this site
		}
		for _, v := range values {
			if mapped, ok := s.FilterOptions[key][v]; ok {
				v = mapped
			}
			q.Add(param, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveURL turns a possibly relative href into an absolute URL.
func (s Strategy) ResolveURL(href string) string {
	if href == "" || !strings.HasPrefix(href, "/") {
		return href
	}
	return strings.TrimRight(s.BaseURL, "/") + href
}
