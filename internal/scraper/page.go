// Package scraper turns rendered listing pages into job records. It only
// talks to the browser through the narrow Page capability below, so the
// extraction logic stays testable without a real browser.
package scraper

import (
	"context"
	"time"
)

// Element is one matched DOM node.
type Element interface {
	// Text returns the trimmed inner text of the element.
	Text() (string, error)

	// Attr returns the named attribute, or "" when absent.
	Attr(name string) (string, error)

	// QueryOne finds the first descendant matching selector, or nil.
	QueryOne(selector string) (Element, error)
}

// Page is the rendered-page capability the extractor consumes. The
// production implementation wraps a Playwright page; tests substitute an
// in-memory fake.
type Page interface {
	// Navigate loads url and waits for DOM content, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// WaitFor blocks until selector is present, or timeout elapses.
	WaitFor(selector string, timeout time.Duration) bool

	// QueryAll returns every element matching selector.
	QueryAll(selector string) ([]Element, error)

	// QueryOne returns the first element matching selector, or nil.
	QueryOne(selector string) (Element, error)

	// Content returns the rendered page source, for block scanning.
	Content() (string, error)

	Close() error
}

// Screenshotter is optionally implemented by pages that can capture
// debug screenshots (taken when a block is detected).
type Screenshotter interface {
	Screenshot(path string) error
}

// PageFactory hands out isolated pages. Each crawl task owns its own
// page/browser-context so concurrent tasks never share mutable page state.
type PageFactory interface {
	NewPage(ctx context.Context) (Page, error)
}
