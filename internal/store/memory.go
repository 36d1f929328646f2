package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-townwork-crawler/internal/models"
	"go-townwork-crawler/internal/normalize"
)

// MemoryStore is the in-process Store: a mutex-serialized map keyed by
// (source, identity key). It backs tests and DB-less CLI runs. The single
// mutex is the serialization point that makes concurrent upserts on the
// same identity safe.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]*models.StoredJob
	logs   []CrawlLog
	nextID int64
	log    *zap.SugaredLogger
}

func NewMemoryStore(log *zap.SugaredLogger) *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]*models.StoredJob),
		nextID: 1,
		log:    log,
	}
}

func rowKey(source, identity string) string {
	return source + "\x00" + identity
}

func (m *MemoryStore) Upsert(_ context.Context, rec models.Record) (UpsertResult, error) {
	if !rec.Valid() {
		return UpsertResult{}, fmt.Errorf("record has no title (company=%q)", rec.Company)
	}
	if rec.Source == "" {
		return UpsertResult{}, fmt.Errorf("record has no source")
	}

	identity := normalize.ResolveIdentity(rec)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	key := rowKey(rec.Source, identity)
	if existing, ok := m.rows[key]; ok {
		crawledAt := existing.CrawledAt // first-seen time is immutable
		existing.Record = rec
		existing.CrawledAt = crawledAt
		existing.IsNew = false
		existing.UpdatedAt = now
		return UpsertResult{ID: existing.ID, WasNew: false}, nil
	}

	row := &models.StoredJob{
		Record:      rec,
		ID:          m.nextID,
		IdentityKey: identity,
		IsNew:       true,
		UpdatedAt:   now,
	}
	if row.CrawledAt.IsZero() {
		row.CrawledAt = now
	}
	m.nextID++
	m.rows[key] = row
	return UpsertResult{ID: row.ID, WasNew: true}, nil
}

func (m *MemoryStore) SaveBulk(ctx context.Context, recs []models.Record) (saved, created int) {
	for _, rec := range recs {
		res, err := m.Upsert(ctx, rec)
		if err != nil {
			m.log.Warnw("failed to save job, skipping", "title", rec.Title, "err", err)
			continue
		}
		saved++
		if res.WasNew {
			created++
		}
	}
	return saved, created
}

func (m *MemoryStore) List(_ context.Context, q Query) ([]models.StoredJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.StoredJob
	for _, row := range m.rows {
		if matches(row, q) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CrawledAt.Equal(out[j].CrawledAt) {
			return out[i].CrawledAt.After(out[j].CrawledAt)
		}
		return out[i].ID < out[j].ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context, q Query) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, row := range m.rows {
		if matches(row, q) {
			n++
		}
	}
	return n, nil
}

func matches(row *models.StoredJob, q Query) bool {
	if q.Source != "" && row.Source != q.Source {
		return false
	}
	if q.Prefecture != "" && row.AddressPref != q.Prefecture {
		return false
	}
	if q.IsNew != nil && row.IsNew != *q.IsNew {
		return false
	}
	if q.IsFiltered != nil && row.IsFiltered != *q.IsFiltered {
		return false
	}
	if q.Keyword != "" {
		kw := strings.ToLower(q.Keyword)
		hay := strings.ToLower(row.Title + " " + row.Company + " " + row.BusinessDescription)
		if !strings.Contains(hay, kw) {
			return false
		}
	}
	return true
}

func (m *MemoryStore) MarkOldBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, row := range m.rows {
		if row.IsNew && row.CrawledAt.Before(cutoff) {
			row.IsNew = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, row := range m.rows {
		if row.CrawledAt.Before(cutoff) {
			delete(m.rows, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{PerSource: make(map[string]int)}
	for _, row := range m.rows {
		stats.TotalJobs++
		if row.IsNew {
			stats.NewJobs++
		}
		if row.IsFiltered {
			stats.FilteredJobs++
		}
		stats.PerSource[row.Source]++
	}
	return stats, nil
}

func (m *MemoryStore) AppendCrawlLog(_ context.Context, l CrawlLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

// CrawlLogs returns a copy of the audit log, newest last.
func (m *MemoryStore) CrawlLogs() []CrawlLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CrawlLog, len(m.logs))
	copy(out, m.logs)
	return out
}

func (m *MemoryStore) Close() {}
