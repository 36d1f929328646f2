package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-townwork-crawler/internal/crawler"
	"go-townwork-crawler/internal/filter"
	"go-townwork-crawler/internal/models"
	"go-townwork-crawler/internal/scraper"
	"go-townwork-crawler/internal/store"
)

// svcNode is a canned DOM node; the href keeps listing identity unique
// per (task, card).
type svcNode struct {
	text string
	href string
}

func (n *svcNode) Text() (string, error)       { return n.text, nil }
func (n *svcNode) Attr(string) (string, error) { return n.href, nil }
func (n *svcNode) QueryOne(selector string) (scraper.Element, error) {
	switch selector {
	case ".title":
		return &svcNode{text: n.text}, nil
	case ".salary":
		return &svcNode{text: "時給1,000円〜1,200円"}, nil
	case "a.detail":
		return &svcNode{href: n.href}, nil
	}
	return nil, nil
}

type svcPage struct {
	url string
}

func (p *svcPage) Navigate(_ context.Context, u string, _ time.Duration) error {
	p.url = u
	return nil
}

func (p *svcPage) WaitFor(string, time.Duration) bool { return true }

func (p *svcPage) QueryAll(string) ([]scraper.Element, error) {
	slug := url.PathEscape(p.url)
	return []scraper.Element{
		&svcNode{text: "スタッフ募集 1", href: "/detail/" + slug + "/1"},
		&svcNode{text: "スタッフ募集 2", href: "/detail/" + slug + "/2"},
	}, nil
}

func (p *svcPage) QueryOne(string) (scraper.Element, error) { return nil, nil }
func (p *svcPage) Content() (string, error)                 { return "<html>results</html>", nil }
func (p *svcPage) Close() error                             { return nil }

type svcFactory struct{}

func (svcFactory) NewPage(context.Context) (scraper.Page, error) { return &svcPage{}, nil }

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	log := zap.NewNop().Sugar()

	strategy := scraper.Strategy{
		Name:             "townwork",
		BaseURL:          "https://site.test",
		SearchURLPattern: "https://site.test/{area}/?q={keyword}&page={page}",
		Selectors: map[string]string{
			"job_cards":   ".card",
			"title":       ".title",
			"salary":      ".salary",
			"detail_link": "a.detail",
		},
	}
	extractor := scraper.NewExtractor(strategy, log)
	sched := crawler.NewScheduler(svcFactory{}, extractor, log)
	sched.PageDelayMin = 0
	sched.PageDelayMax = 0

	st := store.NewMemoryStore(log)
	svc := New(sched, st, models.Source{Name: "townwork"}, log)
	return svc, st
}

func TestCrawl(t *testing.T) {
	svc, st := newTestService(t)

	outcome := svc.Crawl(context.Background(), crawler.Request{
		Keywords:    []string{"軽作業"},
		Areas:       []string{"tokyo", "osaka"},
		MaxPages:    1,
		Parallelism: 2,
	})

	assert.Empty(t, outcome.Err)
	assert.Equal(t, 4, outcome.ScrapedCount) // 2 tasks x 2 cards
	assert.Equal(t, 4, outcome.SavedCount)
	assert.Equal(t, 4, outcome.NewCount)
	assert.Len(t, outcome.Jobs, 4)
	assert.False(t, outcome.FinishedAt.IsZero())

	// records reach the store normalized
	jobs, err := st.List(context.Background(), store.Query{})
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	for _, j := range jobs {
		require.NotNil(t, j.SalaryMin)
		assert.Equal(t, 1000, *j.SalaryMin)
		assert.Equal(t, 1200, *j.SalaryMax)
		assert.True(t, j.IsNew)
	}

	// one audit entry per task with the created count attributed to it
	logs := st.CrawlLogs()
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, "success", l.Status)
		assert.Equal(t, 2, l.TotalCount)
		assert.Equal(t, 2, l.NewCount)
	}
}

func TestCrawl_SecondRunFindsNothingNew(t *testing.T) {
	svc, _ := newTestService(t)
	req := crawler.Request{
		Keywords:    []string{"軽作業"},
		Areas:       []string{"tokyo"},
		MaxPages:    1,
		Parallelism: 1,
	}

	first := svc.Crawl(context.Background(), req)
	assert.Equal(t, 2, first.NewCount)

	second := svc.Crawl(context.Background(), req)
	assert.Equal(t, 2, second.SavedCount)
	assert.Zero(t, second.NewCount)
}

func TestCrawl_InvalidRequest(t *testing.T) {
	svc, st := newTestService(t)

	outcome := svc.Crawl(context.Background(), crawler.Request{})
	assert.NotEmpty(t, outcome.Err)
	assert.Zero(t, outcome.SavedCount)
	assert.Empty(t, st.CrawlLogs())
}

func TestCrawl_ReportsProgress(t *testing.T) {
	svc, _ := newTestService(t)

	var messages []string
	svc.SetProgress(func(message string, _, _ int) {
		messages = append(messages, message)
	})

	svc.Crawl(context.Background(), crawler.Request{
		Keywords:    []string{"軽作業"},
		Areas:       []string{"tokyo"},
		MaxPages:    1,
		Parallelism: 1,
	})

	require.NotEmpty(t, messages)
	assert.Equal(t, "クローリング開始", messages[0])
	assert.Equal(t, "保存完了", messages[len(messages)-1])
}

func TestJobsWithFilter(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	good := models.Record{Title: "普通の求人", Company: "株式会社テスト", Source: "townwork", URL: "https://site.test/detail/1"}
	bad := models.Record{Title: "派遣の求人", Company: "人材派遣センター", Source: "townwork", URL: "https://site.test/detail/2"}
	_, err := st.Upsert(ctx, good)
	require.NoError(t, err)
	_, err = st.Upsert(ctx, bad)
	require.NoError(t, err)

	result, err := svc.JobsWithFilter(ctx, store.Query{Source: "townwork"}, true, filter.DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)
	assert.Len(t, result.Kept, 1)
	assert.Equal(t, 1, result.KeywordCount)

	// apply=false returns everything untouched
	result, err = svc.JobsWithFilter(ctx, store.Query{Source: "townwork"}, false, filter.Rules{})
	require.NoError(t, err)
	assert.Len(t, result.Kept, 2)
}

func TestNewJobsCountAndMarkOld(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	old := models.Record{Title: "古い求人", Company: "株式会社テスト", Source: "townwork",
		URL: "https://site.test/detail/1", CrawledAt: time.Now().AddDate(0, 0, -10)}
	fresh := models.Record{Title: "新着求人", Company: "株式会社テスト", Source: "townwork",
		URL: "https://site.test/detail/2", CrawledAt: time.Now()}
	_, err := st.Upsert(ctx, old)
	require.NoError(t, err)
	_, err = st.Upsert(ctx, fresh)
	require.NoError(t, err)

	n, err := svc.NewJobsCount(ctx, "townwork")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	aged, err := svc.MarkOld(ctx, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), aged)

	n, err = svc.NewJobsCount(ctx, "townwork")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCleanupOlderThan(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	old := models.Record{Title: "期限切れ", Company: "株式会社テスト", Source: "townwork",
		URL: "https://site.test/detail/1", CrawledAt: time.Now().AddDate(0, 0, -120)}
	_, err := st.Upsert(ctx, old)
	require.NoError(t, err)

	deleted, err := svc.CleanupOlderThan(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
