// Package browser owns the Playwright lifecycle and adapts it to the
// narrow page capability the scraper consumes. Nothing outside this
// package touches playwright types except through that interface.
package browser

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"go-townwork-crawler/internal/scraper"
)

// Options configures the shared browser and the contexts handed to tasks.
type Options struct {
	Headless   bool
	UserAgents []string                    // one is picked at random per context
	Cookies    []playwright.OptionalCookie // optional, pre-loaded session cookies
}

// Manager owns one Playwright installation and one shared browser.
// Contexts (one per crawl task) are isolated from each other.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
	log     *zap.SugaredLogger
}

func NewManager(opts Options, log *zap.SugaredLogger) (*Manager, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not launch playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     stealthLaunchArgs,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	return &Manager{pw: pw, browser: browser, opts: opts, log: log}, nil
}

func (m *Manager) Close() {
	if m.browser != nil {
		m.browser.Close()
	}
	if m.pw != nil {
		m.pw.Stop()
	}
}

// NewPage creates an isolated browser context with a fresh page. Each
// crawl task gets its own so concurrent tasks never share page state.
func (m *Manager) NewPage(_ context.Context) (scraper.Page, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if len(m.opts.UserAgents) > 0 {
		ua := m.opts.UserAgents[rand.Intn(len(m.opts.UserAgents))]
		ctxOpts.UserAgent = playwright.String(ua)
	}

	browserCtx, err := m.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}

	if err := browserCtx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("could not apply stealth script: %w", err)
	}

	if len(m.opts.Cookies) > 0 {
		if err := browserCtx.AddCookies(m.opts.Cookies); err != nil {
			m.log.Warnw("could not add cookies, continuing without", "err", err)
		}
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	return &pageAdapter{page: page, ctx: browserCtx}, nil
}
