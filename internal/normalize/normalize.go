// Package normalize holds the pure normalization and identity-resolution
// functions the pipeline applies to raw records before persisting them.
// Everything in here is deterministic and side-effect free.
package normalize

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"go-townwork-crawler/internal/models"
)

var (
	nonDigitRe = regexp.MustCompile(`[^0-9]`)
	spaceRe    = regexp.MustCompile(`\s+`)

	prefRe = regexp.MustCompile(`^(北海道|東京都|大阪府|京都府|.{2,3}県)`)
	cityRe = regexp.MustCompile(`^(.+?[市区町村])`)

	// 「時給1,000円」「月給20万円」: the first amount is the minimum
	salaryAmountRe = regexp.MustCompile(`([0-9]{1,3}(?:,[0-9]{3})*|[0-9]+)(?:万円|円)`)
	// amount after a range dash is the maximum
	salaryRangeRe = regexp.MustCompile(`[〜~～\-－].*?([0-9]{1,3}(?:,[0-9]{3})*|[0-9]+)(?:万円|円)`)
)

// Phone folds full-width digits to ASCII and strips everything that is not
// a digit. "０３-１２３４-５６７８" becomes "0312345678".
func Phone(phone string) string {
	if phone == "" {
		return ""
	}
	narrow := width.Narrow.String(phone)
	return nonDigitRe.ReplaceAllString(narrow, "")
}

// Address splits a Japanese address into prefecture, municipality and
// detail. Input that matches neither pattern degrades to detail-only
// rather than failing.
func Address(address string) (pref, city, detail string) {
	if address == "" {
		return "", "", ""
	}
	rest := address
	if m := prefRe.FindString(rest); m != "" {
		pref = m
		rest = rest[len(m):]
	}
	if m := cityRe.FindString(rest); m != "" {
		city = m
		detail = rest[len(m):]
	} else {
		detail = rest
	}
	return pref, city, detail
}

// Salary extracts the minimum and maximum amounts from free-form salary
// text. The first amount is the minimum; an amount after a range dash is
// the maximum, otherwise max equals min. Amounts are scaled by 10,000
// when the text carries the 万 unit marker.
func Salary(salary string) (min, max *int) {
	if salary == "" {
		return nil, nil
	}
	narrow := width.Narrow.String(salary)
	scale := 1
	if strings.Contains(narrow, "万") {
		scale = 10000
	}

	if m := salaryAmountRe.FindStringSubmatch(narrow); m != nil {
		v := parseAmount(m[1]) * scale
		min = &v
	}
	if min == nil {
		return nil, nil
	}
	if m := salaryRangeRe.FindStringSubmatch(narrow); m != nil {
		v := parseAmount(m[1]) * scale
		max = &v
	} else {
		v := *min
		max = &v
	}
	return min, max
}

func parseAmount(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}

// URL strips query string and fragment and collapses the trailing slash,
// keeping scheme+host+path only. Tracking parameters vary between fetches
// of the same listing and must not fracture identity. Idempotent.
func URL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		path = "/"
	}
	clean := url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}
	return clean.String()
}

// Fingerprint builds a stable content hash over company, title and
// location. Salary is deliberately left out: it is the field most likely
// to be redisplayed with formatting variance between fetches of the same
// listing.
func Fingerprint(company, title, location string) string {
	key := strings.Join([]string{
		collapse(company),
		collapse(title),
		collapse(location),
	}, "|")
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func collapse(s string) string {
	return spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// ResolveIdentity derives the dedup key for a record. Precedence: explicit
// site id, then normalized URL, then content fingerprint.
func ResolveIdentity(r models.Record) string {
	if r.JobID != "" {
		return r.JobID
	}
	if u := URL(r.URL); u != "" {
		return u
	}
	return Fingerprint(r.Company, r.Title, r.Location)
}

// Apply fills in all derived fields of a record in place.
func Apply(r *models.Record) {
	r.URL = URL(r.URL)
	r.PhoneNormalized = Phone(r.Phone)
	r.AddressPref, r.AddressCity, r.AddressDetail = Address(r.Location)
	r.SalaryMin, r.SalaryMax = Salary(r.Salary)
}
