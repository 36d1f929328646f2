// Package service wires the crawl scheduler, the normalizer, the store
// and the filter engine into the operations exposed to the CLI and the
// HTTP API.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"go-townwork-crawler/internal/crawler"
	"go-townwork-crawler/internal/filter"
	"go-townwork-crawler/internal/models"
	"go-townwork-crawler/internal/normalize"
	"go-townwork-crawler/internal/store"
)

// ProgressFunc receives coarse progress updates during a crawl.
type ProgressFunc func(message string, current, total int)

// Outcome is the result of one crawl invocation. Partial results are
// always populated, even when Err is set.
type Outcome struct {
	Source     string    `json:"source"`
	Keywords   []string  `json:"keywords"`
	Areas      []string  `json:"areas"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	ScrapedCount int `json:"scraped_count"`
	SavedCount   int `json:"saved_count"`
	NewCount     int `json:"new_count"`

	Jobs []models.Record `json:"jobs"`
	Err  string          `json:"error,omitempty"`
}

type Service struct {
	sched    *crawler.Scheduler
	store    store.Store
	log      *zap.SugaredLogger
	source   models.Source
	progress ProgressFunc
}

func New(sched *crawler.Scheduler, st store.Store, source models.Source, log *zap.SugaredLogger) *Service {
	return &Service{sched: sched, store: st, log: log, source: source}
}

// SetProgress installs a progress callback. Nil disables reporting.
func (s *Service) SetProgress(fn ProgressFunc) { s.progress = fn }

func (s *Service) report(message string, current, total int) {
	if s.progress != nil {
		s.progress(message, current, total)
	}
	s.log.Infof("%s (%d/%d)", message, current, total)
}

// Crawl runs the full pipeline: schedule, extract, normalize, upsert,
// audit-log. Per-record save failures are skipped; the scraped records
// are returned regardless of save success.
func (s *Service) Crawl(ctx context.Context, req crawler.Request) (outcome Outcome) {
	outcome = Outcome{
		Source:    s.source.Name,
		Keywords:  req.Keywords,
		Areas:     req.Areas,
		StartedAt: time.Now(),
	}
	defer func() { outcome.FinishedAt = time.Now() }()

	s.report("クローリング開始", 0, 2)

	_, reports, err := s.sched.Run(ctx, req)
	if err != nil {
		outcome.Err = err.Error()
		return outcome
	}
	s.report("取得完了", 1, 2)

	// save per task so the crawl log can attribute new records correctly
	for ri := range reports {
		r := &reports[ri]
		for i := range r.Records {
			normalize.Apply(&r.Records[i])
		}
		saved, created := s.store.SaveBulk(ctx, r.Records)

		outcome.ScrapedCount += len(r.Records)
		outcome.SavedCount += saved
		outcome.NewCount += created
		outcome.Jobs = append(outcome.Jobs, r.Records...)

		entry := store.CrawlLog{
			Source:     s.source.Name,
			Keyword:    r.Keyword,
			Area:       r.Area,
			Status:     string(r.Status),
			TotalCount: len(r.Records),
			NewCount:   created,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		}
		if r.Err != nil {
			entry.ErrorMessage = r.Err.Error()
		}
		if err := s.store.AppendCrawlLog(ctx, entry); err != nil {
			s.log.Warnw("failed to append crawl log", "keyword", r.Keyword, "area", r.Area, "err", err)
		}
	}
	s.report("保存完了", 2, 2)

	s.log.Infow("crawl outcome",
		"scraped", outcome.ScrapedCount, "saved", outcome.SavedCount, "new", outcome.NewCount)
	return outcome
}

// ApplyFilters runs the rule engine over records.
func (s *Service) ApplyFilters(records []models.StoredJob, rules filter.Rules) *filter.Result {
	result := filter.Filter(records, rules)
	s.log.Infow("filters applied",
		"total", result.TotalCount, "kept", len(result.Kept), "excluded", result.ExcludedCount())
	return result
}

// JobsWithFilter loads unfiltered jobs matching q and, when apply is set,
// runs the default rules over them.
func (s *Service) JobsWithFilter(ctx context.Context, q store.Query, apply bool, rules filter.Rules) (*filter.Result, error) {
	notFiltered := false
	q.IsFiltered = &notFiltered
	if q.Limit == 0 {
		q.Limit = 10000
	}

	jobs, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if !apply {
		return &filter.Result{TotalCount: len(jobs), Kept: jobs}, nil
	}
	return s.ApplyFilters(jobs, rules), nil
}

func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) NewJobsCount(ctx context.Context, source string) (int, error) {
	isNew := true
	return s.store.Count(ctx, store.Query{Source: source, IsNew: &isNew})
}

// MarkOld ages out the new flag for rows first seen before cutoff.
func (s *Service) MarkOld(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.store.MarkOldBefore(ctx, cutoff)
	if err == nil && n > 0 {
		s.log.Infow("aged out new flags", "rows", n)
	}
	return n, err
}

// CleanupOlderThan hard-deletes rows outside the retention window.
func (s *Service) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err == nil {
		s.log.Infow("deleted old jobs", "rows", n, "cutoff", cutoff)
	}
	return n, err
}
