// Package filter applies the configurable post-fetch exclusion rules to a
// batch of stored jobs. Rules run in a fixed order; for each record the
// first matching rule wins and is counted exactly once.
package filter

import (
	"fmt"
	"strings"

	"go-townwork-crawler/internal/models"
)

// Exclusion is one record the engine dropped, with the reason it matched.
type Exclusion struct {
	Job    models.StoredJob `json:"job"`
	Reason string           `json:"reason"`
}

// Result is built fresh per invocation; it is never persisted.
type Result struct {
	TotalCount int `json:"total_count"`

	DuplicatePhoneCount int `json:"duplicate_phone_count"`
	LargeCompanyCount   int `json:"large_company_count"`
	KeywordCount        int `json:"keyword_count"`
	IndustryCount       int `json:"industry_count"`
	LocationCount       int `json:"location_count"`
	PhonePrefixCount    int `json:"phone_prefix_count"`

	Kept     []models.StoredJob `json:"kept"`
	Excluded []Exclusion        `json:"excluded"`
}

func (r *Result) ExcludedCount() int {
	return r.TotalCount - len(r.Kept)
}

// Summary renders the human-readable report shown after filtering.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "対象求人: %d件\n", r.TotalCount)
	fmt.Fprintf(&b, "  電話番号重複: %d件\n", r.DuplicatePhoneCount)
	fmt.Fprintf(&b, "  従業員数超過: %d件\n", r.LargeCompanyCount)
	fmt.Fprintf(&b, "  除外キーワード: %d件\n", r.KeywordCount)
	fmt.Fprintf(&b, "  除外業界: %d件\n", r.IndustryCount)
	fmt.Fprintf(&b, "  除外勤務地: %d件\n", r.LocationCount)
	fmt.Fprintf(&b, "  除外電話番号: %d件\n", r.PhonePrefixCount)
	fmt.Fprintf(&b, "除外合計: %d件 / 残り: %d件", r.ExcludedCount(), len(r.Kept))
	return b.String()
}

// Filter runs the enabled rules over records. Step 1 collapses duplicate
// phone numbers, keeping one representative per number in original order.
// Then each survivor is checked against the per-record rules in order:
// large company, exclusion keyword, industry, location, phone prefix.
// Retained records preserve their original order.
func Filter(records []models.StoredJob, rules Rules) *Result {
	result := &Result{TotalCount: len(records)}

	if rules.DuplicatePhone {
		records = collapseDuplicatePhones(records, result)
	}

	for _, job := range records {
		reason := checkExclusion(job, rules, result)
		if reason == "" {
			result.Kept = append(result.Kept, job)
			continue
		}
		job.IsFiltered = true
		job.FilterReason = reason
		result.Excluded = append(result.Excluded, Exclusion{Job: job, Reason: reason})
	}
	return result
}

func collapseDuplicatePhones(records []models.StoredJob, result *Result) []models.StoredJob {
	seen := make(map[string]bool, len(records))
	kept := records[:0:0]
	for _, job := range records {
		phone := job.PhoneNormalized
		if phone == "" || !seen[phone] {
			seen[phone] = true
			kept = append(kept, job)
			continue
		}
		result.DuplicatePhoneCount++
		job.IsFiltered = true
		job.FilterReason = "電話番号重複"
		result.Excluded = append(result.Excluded, Exclusion{Job: job, Reason: job.FilterReason})
	}
	return kept
}

// checkExclusion evaluates rules 2-6 in order and returns the reason for
// the first match, bumping the matching category counter.
func checkExclusion(job models.StoredJob, rules Rules, result *Result) string {
	if rules.LargeCompany && job.EmployeeCount != nil && *job.EmployeeCount >= rules.LargeCompanyThreshold {
		result.LargeCompanyCount++
		return fmt.Sprintf("従業員数%d人", *job.EmployeeCount)
	}

	combined := job.Company + " " + job.BusinessDescription

	if rules.Keyword {
		for _, kw := range rules.keywords() {
			if kw != "" && strings.Contains(combined, kw) {
				result.KeywordCount++
				return fmt.Sprintf("除外キーワード（%s）", kw)
			}
		}
	}

	if rules.Industry {
		for _, industry := range rules.ExcludeIndustries {
			if industry != "" && strings.Contains(job.BusinessDescription, industry) {
				result.IndustryCount++
				return fmt.Sprintf("除外業界（%s）", industry)
			}
		}
	}

	if rules.Location {
		locationText := job.AddressPref + " " + job.Location
		for _, loc := range rules.ExcludeLocations {
			if loc != "" && strings.Contains(locationText, loc) {
				result.LocationCount++
				return fmt.Sprintf("除外勤務地（%s）", loc)
			}
		}
	}

	if rules.PhonePrefix && job.PhoneNormalized != "" {
		for _, prefix := range rules.ExcludePhonePrefixes {
			if prefix != "" && strings.HasPrefix(job.PhoneNormalized, prefix) {
				result.PhonePrefixCount++
				return fmt.Sprintf("除外電話番号（%s）", prefix)
			}
		}
	}

	return ""
}
