// Package store persists job records keyed by (source, identity key) with
// insert-or-update semantics and new-vs-updated classification.
package store

import (
	"context"
	"time"

	"go-townwork-crawler/internal/models"
)

// UpsertResult reports what one upsert did.
type UpsertResult struct {
	ID     int64
	WasNew bool
}

// Query narrows a List or Count call. Nil pointer fields mean "don't care".
type Query struct {
	Source     string
	Keyword    string // matches title, company or business description
	Prefecture string
	IsNew      *bool
	IsFiltered *bool
	Limit      int
	Offset     int
}

// Stats is the aggregate view exposed to callers.
type Stats struct {
	TotalJobs    int            `json:"total_jobs"`
	NewJobs      int            `json:"new_jobs"`
	FilteredJobs int            `json:"filtered_jobs"`
	PerSource    map[string]int `json:"per_source"`
}

// CrawlLog is one append-only audit row per crawl task.
type CrawlLog struct {
	Source       string
	Keyword      string
	Area         string
	Status       string
	TotalCount   int
	NewCount     int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store is the persistence boundary. Upsert must be atomic per record: a
// second observation of the same (source, identity key) updates the
// existing row in place and returns WasNew=false.
type Store interface {
	Upsert(ctx context.Context, rec models.Record) (UpsertResult, error)

	// SaveBulk upserts a batch independently; a single record's failure is
	// logged and skipped without aborting the batch. Returns records saved
	// and how many of those were new.
	SaveBulk(ctx context.Context, recs []models.Record) (saved, created int)

	List(ctx context.Context, q Query) ([]models.StoredJob, error)
	Count(ctx context.Context, q Query) (int, error)

	// MarkOldBefore ages out the new flag for rows first crawled before
	// cutoff. DeleteOlderThan hard-deletes rows outside the retention
	// window. Both return affected row counts.
	MarkOldBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Stats(ctx context.Context) (Stats, error)
	AppendCrawlLog(ctx context.Context, l CrawlLog) error

	Close()
}
