package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeNode is an in-memory DOM node for extractor tests.
type fakeNode struct {
	text     string
	attrs    map[string]string
	children map[string]*fakeNode
}

func (n *fakeNode) Text() (string, error) { return n.text, nil }

func (n *fakeNode) Attr(name string) (string, error) { return n.attrs[name], nil }

func (n *fakeNode) QueryOne(selector string) (Element, error) {
	child, ok := n.children[selector]
	if !ok {
		return nil, nil
	}
	return child, nil
}

// fakePage serves canned content; waitResults are consumed one per
// WaitFor call.
type fakePage struct {
	navErr      error
	navCount    int
	content     string
	waitResults []bool
	waitCalls   int
	cards       []Element
	nodes       map[string]*fakeNode
}

func (p *fakePage) Navigate(_ context.Context, _ string, _ time.Duration) error {
	p.navCount++
	return p.navErr
}

func (p *fakePage) WaitFor(_ string, _ time.Duration) bool {
	p.waitCalls++
	if len(p.waitResults) == 0 {
		return false
	}
	r := p.waitResults[0]
	p.waitResults = p.waitResults[1:]
	return r
}

func (p *fakePage) QueryAll(_ string) ([]Element, error) { return p.cards, nil }

func (p *fakePage) QueryOne(selector string) (Element, error) {
	n, ok := p.nodes[selector]
	if !ok {
		return nil, nil
	}
	return n, nil
}

func (p *fakePage) Content() (string, error) { return p.content, nil }

func (p *fakePage) Close() error { return nil }

func jobCard(title, company string) *fakeNode {
	return &fakeNode{children: map[string]*fakeNode{
		".title":   {text: title},
		".company": {text: company},
		"a.detail": {attrs: map[string]string{"href": "/detail/clc_1"}},
	}}
}

func newTestExtractor() *Extractor {
	e := NewExtractor(Strategy{
		Name:    "townwork",
		BaseURL: "https://townwork.net",
		Selectors: map[string]string{
			"job_cards":   ".card",
			"title":       ".title",
			"company":     ".company",
			"detail_link": "a.detail",
		},
	}, zap.NewNop().Sugar())
	// keep the readiness windows short for tests
	e.InitialWait = 10 * time.Millisecond
	e.RetryDelay = time.Millisecond
	e.RetryWait = 10 * time.Millisecond
	return e
}

func TestExtractPage(t *testing.T) {
	e := newTestExtractor()
	page := &fakePage{
		content:     "<html>results</html>",
		waitResults: []bool{true},
		cards: []Element{
			jobCard("軽作業スタッフ", "株式会社テスト"),
			jobCard("", "広告枠"), // no title, dropped
		},
	}

	records, err := e.ExtractPage(context.Background(), page, "https://townwork.net/tokyo/list/")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "軽作業スタッフ", records[0].Title)
	assert.Equal(t, "株式会社テスト", records[0].Company)
	assert.Equal(t, "https://townwork.net/detail/clc_1", records[0].URL)
	assert.Equal(t, "townwork", records[0].Source)
	assert.False(t, records[0].CrawledAt.IsZero())
}

func TestExtractPage_ReadinessRetry(t *testing.T) {
	e := newTestExtractor()
	// cards appear only in the second wait window
	page := &fakePage{
		content:     "<html>loading</html>",
		waitResults: []bool{false, true},
		cards:       []Element{jobCard("ホールスタッフ", "カフェ東京")},
	}

	records, err := e.ExtractPage(context.Background(), page, "https://townwork.net/tokyo/list/")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, page.waitCalls)
}

func TestExtractPage_SelectorNeverAppears(t *testing.T) {
	e := newTestExtractor()
	page := &fakePage{content: "<html>redesigned page</html>", waitResults: []bool{false, false}}

	_, err := e.ExtractPage(context.Background(), page, "https://townwork.net/tokyo/list/")
	assert.ErrorIs(t, err, ErrSelectorNotFound)
	assert.Equal(t, 2, page.waitCalls)
}

func TestExtractPage_Blocked(t *testing.T) {
	e := newTestExtractor()
	page := &fakePage{content: "<html><h1>Access Denied</h1></html>"}

	_, err := e.ExtractPage(context.Background(), page, "https://townwork.net/tokyo/list/")
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, 0, page.waitCalls)
}

func TestExtractPage_Captcha(t *testing.T) {
	e := newTestExtractor()
	page := &fakePage{
		content: "<html>please verify</html>",
		nodes:   map[string]*fakeNode{".g-recaptcha": {}},
	}

	_, err := e.ExtractPage(context.Background(), page, "https://townwork.net/tokyo/list/")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestExtractPage_NavigateFailure(t *testing.T) {
	e := newTestExtractor()
	page := &fakePage{navErr: errors.New("net::ERR_CONNECTION_RESET")}

	_, err := e.ExtractPage(context.Background(), page, "https://townwork.net/tokyo/list/")
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestExtractPage_EmptyResultIsNotAnError(t *testing.T) {
	e := newTestExtractor()
	page := &fakePage{content: "<html>0件</html>", waitResults: []bool{true}}

	records, err := e.ExtractPage(context.Background(), page, "https://townwork.net/tokyo/list/")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseEmployeeCount(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
		ok       bool
	}{
		{"labelled", "従業員数：120人", 120, true},
		{"labelled with comma", "従業員数 1,200名", 1200, true},
		{"bare counter", "スタッフ50名在籍", 50, true},
		{"full-width digits", "従業員数３０人", 30, true},
		{"no count", "アットホームな職場です", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := ParseEmployeeCount(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, n)
			}
		})
	}
}

func TestParsePostalCode(t *testing.T) {
	assert.Equal(t, "160-0023", ParsePostalCode("〒160-0023 東京都新宿区"))
	assert.Equal(t, "160-0023", ParsePostalCode("1600023"))
	assert.Equal(t, "住所のみ", ParsePostalCode(" 住所のみ "))
}
