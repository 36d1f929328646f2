package models

import (
	"strings"
	"time"
)

// Record is one job listing as extracted from a search result page.
// Only fields the page actually resolved are populated; everything else
// stays empty/nil. Derived fields are filled in by the normalize package
// before the record reaches the store.
type Record struct {
	// identity
	JobID string `json:"job_id,omitempty"` // site-native id (求人番号), when present
	URL   string `json:"url,omitempty"`    // detail/listing page URL

	// display fields
	Title          string `json:"title"`
	Company        string `json:"company"`
	CompanyKana    string `json:"company_kana,omitempty"`
	Location       string `json:"location,omitempty"`
	Salary         string `json:"salary,omitempty"`
	EmploymentType string `json:"employment_type,omitempty"`

	// detail-page fields (optional enrichment, never identity-bearing)
	Phone               string `json:"phone,omitempty"`
	PostalCode          string `json:"postal_code,omitempty"`
	BusinessDescription string `json:"business_description,omitempty"`
	EmployeeCount       *int   `json:"employee_count,omitempty"`

	// derived
	PhoneNormalized string `json:"phone_normalized,omitempty"`
	AddressPref     string `json:"address_pref,omitempty"`
	AddressCity     string `json:"address_city,omitempty"`
	AddressDetail   string `json:"address_detail,omitempty"`
	SalaryMin       *int   `json:"salary_min,omitempty"`
	SalaryMax       *int   `json:"salary_max,omitempty"`

	// provenance
	Source    string    `json:"source"`
	CrawledAt time.Time `json:"crawled_at"`
}

// Valid reports whether the record is worth keeping. Cards without a
// resolvable title are noise (ad slots, broken markup) and are dropped.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Title) != ""
}

// StoredJob is a Record as persisted by the store, keyed by
// (Source, IdentityKey).
type StoredJob struct {
	Record

	ID           int64     `json:"id"`
	IdentityKey  string    `json:"identity_key"`
	IsNew        bool      `json:"is_new"`
	IsFiltered   bool      `json:"is_filtered"`
	FilterReason string    `json:"filter_reason,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Source is a static registry entry for a crawl target site.
type Source struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	BaseURL     string `json:"base_url"`
	Priority    int    `json:"priority"`
}

// DefaultSources lists the sites this build knows about. Only townwork is
// wired end to end; the rest are registry placeholders.
func DefaultSources() []Source {
	return []Source{
		{Name: "townwork", DisplayName: "タウンワーク", BaseURL: "https://townwork.net", Priority: 1},
	}
}
