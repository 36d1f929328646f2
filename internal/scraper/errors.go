package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrBlocked means the site's anti-automation defenses prevented
	// normal content delivery. Not retried within the same task, and never
	// to be confused with "no results".
	ErrBlocked = errors.New("access blocked")

	// ErrSelectorNotFound means the job-card selector never appeared, even
	// after the extended readiness retry. Surfaced as a page failure so a
	// load problem is not misread as end of results.
	ErrSelectorNotFound = errors.New("job card selector not found")
)

// FetchError is a navigation failure: timeout, network error or a
// non-success HTTP status. Page-level retry policy applies to these.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
