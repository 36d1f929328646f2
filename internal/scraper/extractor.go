package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-townwork-crawler/internal/models"
)

// blockIndicators are scanned case-insensitively against the rendered page
// text. Matching any of them means the site refused us, which must surface
// as a blocked outcome, not as zero results.
var blockIndicators = []string{
	"access denied",
	"robot check",
	"checking your browser",
	"attention required",
	"just a moment",
}

// captchaSelectors mark CAPTCHA widgets.
var captchaSelectors = []string{
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	".g-recaptcha",
	"#captcha",
	"[class*='captcha']",
}

// Extractor turns one rendered listing page into job records. Listing
// content is client-rendered and may lag the DOM-ready signal, so the
// readiness check runs twice: an initial wait, then one bounded retry with
// a longer window. A single fixed wait misses slow renders; unbounded
// waiting would hang the whole crawl.
type Extractor struct {
	strategy Strategy
	log      *zap.SugaredLogger

	NavTimeout    time.Duration
	InitialWait   time.Duration
	RetryDelay    time.Duration
	RetryWait     time.Duration
	ScreenshotDir string // when set, capture the page on blocked outcomes
}

func NewExtractor(strategy Strategy, log *zap.SugaredLogger) *Extractor {
	return &Extractor{
		strategy:    strategy,
		log:         log,
		NavTimeout:  30 * time.Second,
		InitialWait: 15 * time.Second,
		RetryDelay:  3 * time.Second,
		RetryWait:   10 * time.Second,
	}
}

func (e *Extractor) Strategy() Strategy { return e.strategy }

// ExtractPage fetches url and returns the records on it. An empty slice
// with nil error means the page loaded fine and legitimately has no
// listings. Blocked pages return ErrBlocked, missing job cards after the
// readiness retry return ErrSelectorNotFound, navigation problems return
// a *FetchError.
func (e *Extractor) ExtractPage(ctx context.Context, page Page, url string) ([]models.Record, error) {
	e.log.Infow("scraping page", "source", e.strategy.Name, "url", url)

	if err := page.Navigate(ctx, url, e.NavTimeout); err != nil {
		if _, ok := err.(*FetchError); ok {
			return nil, err
		}
		return nil, &FetchError{URL: url, Err: err}
	}

	if reason, blocked := e.checkBlocked(page); blocked {
		e.log.Warnw("access blocked", "url", url, "indicator", reason)
		e.captureBlocked(page)
		return nil, fmt.Errorf("%s: %w", reason, ErrBlocked)
	}

	cardsSelector := e.strategy.Selectors["job_cards"]
	if cardsSelector == "" {
		return nil, fmt.Errorf("source %s has no job_cards selector", e.strategy.Name)
	}

	if !page.WaitFor(cardsSelector, e.InitialWait) {
		e.log.Debugw("job cards not ready, retrying with extended timeout", "url", url)
		if err := sleepCtx(ctx, e.RetryDelay); err != nil {
			return nil, err
		}
		if !page.WaitFor(cardsSelector, e.RetryWait) {
			return nil, fmt.Errorf("%q on %s: %w", cardsSelector, url, ErrSelectorNotFound)
		}
	}

	cards, err := page.QueryAll(cardsSelector)
	if err != nil {
		return nil, fmt.Errorf("query job cards: %w", err)
	}

	records := make([]models.Record, 0, len(cards))
	now := time.Now()
	for i, card := range cards {
		rec, err := e.extractCard(card)
		if err != nil {
			// one broken card must not sink the page
			e.log.Warnw("card extraction failed, skipping", "url", url, "card", i, "err", err)
			continue
		}
		if !rec.Valid() {
			e.log.Debugw("card has no title, skipping", "url", url, "card", i)
			continue
		}
		rec.Source = e.strategy.Name
		rec.CrawledAt = now
		records = append(records, rec)
	}

	e.log.Infow("page extracted", "url", url, "cards", len(cards), "records", len(records))
	return records, nil
}

func (e *Extractor) extractCard(card Element) (models.Record, error) {
	var rec models.Record

	text := func(field string) string {
		sel := e.strategy.Selectors[field]
		if sel == "" {
			return ""
		}
		el, err := card.QueryOne(sel)
		if err != nil || el == nil {
			return ""
		}
		t, err := el.Text()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(t)
	}

	rec.Title = text("title")
	rec.Company = text("company")
	rec.Location = text("location")
	rec.Salary = text("salary")
	rec.EmploymentType = text("employment_type")

	if sel := e.strategy.Selectors["detail_link"]; sel != "" {
		el, err := card.QueryOne(sel)
		if err == nil && el != nil {
			href, err := el.Attr("href")
			if err == nil && href != "" {
				rec.URL = e.strategy.ResolveURL(href)
			}
		}
	}

	return rec, nil
}

// checkBlocked scans the rendered page for anti-bot indicators.
func (e *Extractor) checkBlocked(page Page) (string, bool) {
	content, err := page.Content()
	if err == nil {
		lower := strings.ToLower(content)
		for _, indicator := range blockIndicators {
			if strings.Contains(lower, indicator) {
				return indicator, true
			}
		}
	}
	for _, sel := range captchaSelectors {
		el, err := page.QueryOne(sel)
		if err == nil && el != nil {
			return "captcha", true
		}
	}
	return "", false
}

func (e *Extractor) captureBlocked(page Page) {
	if e.ScreenshotDir == "" {
		return
	}
	shooter, ok := page.(Screenshotter)
	if !ok {
		return
	}
	path := fmt.Sprintf("%s/blocked_%s_%d.png", e.ScreenshotDir, e.strategy.Name, time.Now().UnixMilli())
	if err := shooter.Screenshot(path); err != nil {
		e.log.Debugw("blocked-page screenshot failed", "err", err)
		return
	}
	e.log.Infow("blocked-page screenshot saved", "path", path)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
