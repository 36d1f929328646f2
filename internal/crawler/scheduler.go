// Package crawler expands a crawl request into independent (keyword, area)
// tasks and runs them under a bounded-parallelism limiter. Tasks fail
// independently: one blocked or broken task never aborts its siblings, and
// the merged result of the successful tasks is always returned.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"go-townwork-crawler/internal/models"
	"go-townwork-crawler/internal/scraper"
)

// ErrInvalidRequest rejects a request before any task is scheduled.
var ErrInvalidRequest = errors.New("invalid crawl request")

// Request is one crawl invocation.
type Request struct {
	Keywords    []string
	Areas       []string
	MaxPages    int
	Parallelism int
	Filters     map[string][]string
}

// Validate fails fast on empty keyword/area sets and non-positive budgets.
func (r Request) Validate() error {
	if len(r.Keywords) == 0 {
		return fmt.Errorf("%w: no keywords", ErrInvalidRequest)
	}
	if len(r.Areas) == 0 {
		return fmt.Errorf("%w: no areas", ErrInvalidRequest)
	}
	if r.MaxPages < 1 {
		return fmt.Errorf("%w: max pages must be >= 1", ErrInvalidRequest)
	}
	if r.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be >= 1", ErrInvalidRequest)
	}
	return nil
}

// TaskStatus is the terminal state of one (keyword, area) task.
type TaskStatus string

const (
	TaskSucceeded TaskStatus = "success"
	TaskPartial   TaskStatus = "partial"
	TaskFailed    TaskStatus = "failed"
	TaskBlocked   TaskStatus = "blocked"
)

// TaskReport records the outcome of one task, for logging and the
// append-only crawl log.
type TaskReport struct {
	Keyword    string
	Area       string
	Status     TaskStatus
	Pages      int
	Scraped    int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time

	// Records holds what this task extracted, also present in the merged
	// result of Run.
	Records []models.Record
}

// Scheduler runs crawl requests. Each task gets its own page from the
// factory; pages within a task are fetched strictly in increasing
// page-number order with a jittered delay in between, so the target never
// sees a perfectly periodic cadence.
type Scheduler struct {
	factory   scraper.PageFactory
	extractor *scraper.Extractor
	log       *zap.SugaredLogger

	PageDelayMin time.Duration
	PageDelayMax time.Duration

	// fetch failures are retried per page with linear backoff
	FetchAttempts int
	FetchBackoff  time.Duration

	// FetchDetails enables the per-record detail-page pass
	FetchDetails bool
}

func NewScheduler(factory scraper.PageFactory, extractor *scraper.Extractor, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		factory:       factory,
		extractor:     extractor,
		log:           log,
		PageDelayMin:  500 * time.Millisecond,
		PageDelayMax:  time.Second,
		FetchAttempts: 3,
		FetchBackoff:  2 * time.Second,
	}
}

type task struct {
	keyword string
	area    string
}

// Run executes the full keyword×area cross product and merges the results
// of every task that produced records. Only request validation is fatal;
// task failures are reported, not propagated.
func (s *Scheduler) Run(ctx context.Context, req Request) ([]models.Record, []TaskReport, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	seen := mapset.NewSet[string]()
	var tasks []task
	for _, kw := range req.Keywords {
		for _, area := range req.Areas {
			if seen.Add(kw + "\x00" + area) {
				tasks = append(tasks, task{keyword: kw, area: area})
			}
		}
	}

	s.log.Infow("crawl started",
		"tasks", len(tasks), "parallelism", req.Parallelism, "max_pages", req.MaxPages)

	sem := semaphore.NewWeighted(int64(req.Parallelism))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		merged  []models.Record
		reports = make([]TaskReport, len(tasks))
	)

	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				reports[i] = TaskReport{
					Keyword: t.keyword, Area: t.area,
					Status: TaskFailed, Err: err,
					StartedAt: time.Now(), FinishedAt: time.Now(),
				}
				return
			}
			defer sem.Release(1)

			records, report := s.runTask(ctx, t, req)
			report.Records = records
			reports[i] = report
			if len(records) > 0 {
				mu.Lock()
				merged = append(merged, records...)
				mu.Unlock()
			}
		}(i, t)
	}
	wg.Wait()

	var failed int
	for _, r := range reports {
		if r.Err != nil {
			failed++
			s.log.Warnw("task did not complete cleanly",
				"keyword", r.Keyword, "area", r.Area, "status", r.Status, "err", r.Err)
		}
	}
	s.log.Infow("crawl finished", "records", len(merged), "tasks", len(tasks), "failed", failed)
	return merged, reports, nil
}

// runTask crawls pages 1..MaxPages for one (keyword, area) pair on its
// own page instance, stopping early on an empty page.
func (s *Scheduler) runTask(ctx context.Context, t task, req Request) ([]models.Record, TaskReport) {
	report := TaskReport{Keyword: t.keyword, Area: t.area, StartedAt: time.Now()}
	finish := func(status TaskStatus, err error) TaskReport {
		report.Status = status
		report.Err = err
		report.FinishedAt = time.Now()
		return report
	}

	page, err := s.factory.NewPage(ctx)
	if err != nil {
		return nil, finish(TaskFailed, fmt.Errorf("new page: %w", err))
	}
	defer page.Close()

	var records []models.Record
	for pageNum := 1; pageNum <= req.MaxPages; pageNum++ {
		url, err := s.extractor.Strategy().BuildSearchURL(t.keyword, t.area, pageNum, req.Filters)
		if err != nil {
			return records, finish(TaskFailed, err)
		}

		pageRecords, err := s.fetchPage(ctx, page, url)
		switch {
		case err == nil:
		case errors.Is(err, scraper.ErrBlocked):
			// a blocked task terminates itself, siblings keep running
			return records, finish(TaskBlocked, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return records, finish(TaskFailed, err)
		default:
			// fetch exhausted or selector never appeared
			if pageNum == 1 {
				return records, finish(TaskFailed, err)
			}
			return records, finish(TaskPartial, err)
		}

		report.Pages = pageNum
		if len(pageRecords) == 0 {
			s.log.Infow("no more results", "keyword", t.keyword, "area", t.area, "page", pageNum)
			break
		}

		if s.FetchDetails {
			s.enrichDetails(ctx, page, pageRecords)
		}

		records = append(records, pageRecords...)
		report.Scraped = len(records)

		if pageNum < req.MaxPages {
			if err := s.pageDelay(ctx); err != nil {
				return records, finish(TaskFailed, err)
			}
		}
	}

	return records, finish(TaskSucceeded, nil)
}

// fetchPage runs the extractor with the page-level retry policy: fetch
// failures are retried with backoff, blocked and selector-not-found
// outcomes are not.
func (s *Scheduler) fetchPage(ctx context.Context, page scraper.Page, url string) ([]models.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= s.FetchAttempts; attempt++ {
		records, err := s.extractor.ExtractPage(ctx, page, url)
		if err == nil {
			return records, nil
		}
		lastErr = err

		var fe *scraper.FetchError
		if !errors.As(err, &fe) {
			return nil, err
		}
		if attempt < s.FetchAttempts {
			s.log.Warnw("fetch failed, backing off",
				"url", url, "attempt", attempt, "err", err)
			if serr := sleepCtx(ctx, time.Duration(attempt)*s.FetchBackoff); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", s.FetchAttempts, lastErr)
}

func (s *Scheduler) enrichDetails(ctx context.Context, page scraper.Page, records []models.Record) {
	for i := range records {
		if err := s.extractor.ExtractDetail(ctx, page, &records[i]); err != nil {
			s.log.Debugw("detail extraction failed, keeping listing fields",
				"url", records[i].URL, "err", err)
		}
	}
}

func (s *Scheduler) pageDelay(ctx context.Context) error {
	d := s.PageDelayMin
	if jitter := s.PageDelayMax - s.PageDelayMin; jitter > 0 {
		d += time.Duration(rand.Int63n(int64(jitter)))
	}
	if d <= 0 {
		return nil
	}
	return sleepCtx(ctx, d)
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
