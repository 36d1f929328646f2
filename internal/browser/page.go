package browser

import (
	"context"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"go-townwork-crawler/internal/scraper"
)

// pageAdapter implements scraper.Page on a playwright page plus its
// owning context.
type pageAdapter struct {
	page playwright.Page
	ctx  playwright.BrowserContext
}

func (p *pageAdapter) Navigate(_ context.Context, url string, timeout time.Duration) error {
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return &scraper.FetchError{URL: url, Err: err}
	}
	if resp != nil && resp.Status() >= 400 {
		return &scraper.FetchError{URL: url, Status: resp.Status()}
	}

	// light humanizing plus lazy-load trigger
	MouseJiggle(p.page)
	SmoothScroll(p.page)
	return nil
}

func (p *pageAdapter) WaitFor(selector string, timeout time.Duration) bool {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err == nil
}

func (p *pageAdapter) QueryAll(selector string) ([]scraper.Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	elements := make([]scraper.Element, len(handles))
	for i, h := range handles {
		elements[i] = &elementAdapter{handle: h}
	}
	return elements, nil
}

func (p *pageAdapter) QueryOne(selector string) (scraper.Element, error) {
	handle, err := p.page.QuerySelector(selector)
	if err != nil || handle == nil {
		return nil, err
	}
	return &elementAdapter{handle: handle}, nil
}

func (p *pageAdapter) Content() (string, error) {
	return p.page.Content()
}

func (p *pageAdapter) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (p *pageAdapter) Close() error {
	if err := p.page.Close(); err != nil {
		return err
	}
	return p.ctx.Close()
}

type elementAdapter struct {
	handle playwright.ElementHandle
}

func (e *elementAdapter) Text() (string, error) {
	text, err := e.handle.InnerText()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *elementAdapter) Attr(name string) (string, error) {
	return e.handle.GetAttribute(name)
}

func (e *elementAdapter) QueryOne(selector string) (scraper.Element, error) {
	handle, err := e.handle.QuerySelector(selector)
	if err != nil || handle == nil {
		return nil, err
	}
	return &elementAdapter{handle: handle}, nil
}
