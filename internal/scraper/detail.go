package scraper

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"go-townwork-crawler/internal/models"
)

var (
	// primary: an explicitly labelled employee count
	employeeLabelRe = regexp.MustCompile(`従業員数?[:：\s]*([0-9,]+)\s*[人名]`)
	// fallback: any count followed by a person counter
	employeeBareRe = regexp.MustCompile(`([0-9,]+)\s*[人名]`)

	postalRe = regexp.MustCompile(`〒?\s*([0-9]{3})-?([0-9]{4})`)
)

// ExtractDetail enriches rec with fields that only exist on the detail
// page: phone, postal code, company kana, job number, business
// description, employee count. Each field is independent; one that fails
// to resolve is simply left absent. Detail fields never participate in
// identity resolution.
func (e *Extractor) ExtractDetail(ctx context.Context, page Page, rec *models.Record) error {
	if rec.URL == "" || len(e.strategy.DetailSelectors) == 0 {
		return nil
	}

	if err := page.Navigate(ctx, rec.URL, e.NavTimeout); err != nil {
		return &FetchError{URL: rec.URL, Err: err}
	}

	text := func(field string) string {
		sel := e.strategy.DetailSelectors[field]
		if sel == "" {
			return ""
		}
		el, err := page.QueryOne(sel)
		if err != nil || el == nil {
			return ""
		}
		t, err := el.Text()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(t)
	}

	if v := text("company_kana"); v != "" {
		rec.CompanyKana = v
	}
	if v := text("phone"); v != "" {
		rec.Phone = v
	}
	if v := text("postal_code"); v != "" {
		rec.PostalCode = ParsePostalCode(v)
	}
	if v := text("job_number"); v != "" && rec.JobID == "" {
		rec.JobID = v
	}
	if v := text("business_content"); v != "" {
		rec.BusinessDescription = v
	}
	if v := text("employee_count"); v != "" {
		if n, ok := ParseEmployeeCount(v); ok {
			rec.EmployeeCount = &n
		}
	}
	return nil
}

// ParseEmployeeCount pulls a headcount out of free-form company text. The
// labelled form (従業員数120人) is preferred; a bare counter (120名) is the
// fallback. Returns false when neither pattern matches.
func ParseEmployeeCount(text string) (int, bool) {
	narrow := width.Narrow.String(text)
	m := employeeLabelRe.FindStringSubmatch(narrow)
	if m == nil {
		m = employeeBareRe.FindStringSubmatch(narrow)
	}
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParsePostalCode extracts a 7-digit postal code as NNN-NNNN, or returns
// the input trimmed when no code is present.
func ParsePostalCode(text string) string {
	narrow := width.Narrow.String(text)
	if m := postalRe.FindStringSubmatch(narrow); m != nil {
		return m[1] + "-" + m[2]
	}
	return strings.TrimSpace(text)
}
