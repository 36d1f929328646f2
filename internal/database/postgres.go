// Package database is the Postgres-backed Store. Upserts are single
// conditional statements (INSERT ... ON CONFLICT), so concurrent writes on
// the same identity cannot lose updates.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"go-townwork-crawler/internal/models"
	"go-townwork-crawler/internal/normalize"
	"go-townwork-crawler/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                      BIGSERIAL PRIMARY KEY,
	source_name             VARCHAR(50)  NOT NULL,
	identity_key            VARCHAR(500) NOT NULL,
	job_id                  VARCHAR(200) NOT NULL DEFAULT '',
	page_url                VARCHAR(500) NOT NULL DEFAULT '',
	title                   VARCHAR(300) NOT NULL,
	company_name            VARCHAR(300) NOT NULL DEFAULT '',
	company_kana            VARCHAR(300) NOT NULL DEFAULT '',
	postal_code             VARCHAR(20)  NOT NULL DEFAULT '',
	address_pref            VARCHAR(20)  NOT NULL DEFAULT '',
	address_city            VARCHAR(100) NOT NULL DEFAULT '',
	address_detail          VARCHAR(300) NOT NULL DEFAULT '',
	phone_number            VARCHAR(50)  NOT NULL DEFAULT '',
	phone_number_normalized VARCHAR(20)  NOT NULL DEFAULT '',
	employment_type         VARCHAR(100) NOT NULL DEFAULT '',
	salary                  VARCHAR(300) NOT NULL DEFAULT '',
	salary_min              INTEGER,
	salary_max              INTEGER,
	work_location           VARCHAR(300) NOT NULL DEFAULT '',
	business_description    TEXT         NOT NULL DEFAULT '',
	employee_count          INTEGER,
	is_new                  BOOLEAN      NOT NULL DEFAULT TRUE,
	is_filtered             BOOLEAN      NOT NULL DEFAULT FALSE,
	filter_reason           VARCHAR(200) NOT NULL DEFAULT '',
	crawled_at              TIMESTAMPTZ  NOT NULL,
	updated_at              TIMESTAMPTZ  NOT NULL,
	UNIQUE (source_name, identity_key)
);

CREATE TABLE IF NOT EXISTS crawl_logs (
	id            BIGSERIAL PRIMARY KEY,
	source_name   VARCHAR(50)  NOT NULL,
	keyword       VARCHAR(200) NOT NULL,
	area          VARCHAR(100) NOT NULL,
	status        VARCHAR(20)  NOT NULL,
	total_count   INTEGER      NOT NULL DEFAULT 0,
	new_count     INTEGER      NOT NULL DEFAULT 0,
	error_message TEXT         NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ  NOT NULL,
	finished_at   TIMESTAMPTZ  NOT NULL,
	created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_crawled_at ON jobs (crawled_at);
CREATE INDEX IF NOT EXISTS idx_jobs_phone ON jobs (phone_number_normalized);
`

// PostgresStore implements store.Store on a pgx connection pool.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *zap.SugaredLogger
}

// Connect opens the pool, pings it and ensures the schema exists.
func Connect(ctx context.Context, connString string, log *zap.SugaredLogger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &PostgresStore{db: pool, log: log}, nil
}

func (s *PostgresStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Upsert inserts or updates the row for (source, identity key) in one
// statement. The xmax trick distinguishes a fresh insert from a conflict
// update. crawled_at and is_filtered are preserved on update.
func (s *PostgresStore) Upsert(ctx context.Context, rec models.Record) (store.UpsertResult, error) {
	if !rec.Valid() {
		return store.UpsertResult{}, fmt.Errorf("record has no title (company=%q)", rec.Company)
	}
	if rec.Source == "" {
		return store.UpsertResult{}, fmt.Errorf("record has no source")
	}

	identity := normalize.ResolveIdentity(rec)
	now := time.Now()
	crawledAt := rec.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = now
	}

	query := `
		INSERT INTO jobs (
			source_name, identity_key, job_id, page_url, title,
			company_name, company_kana, postal_code,
			address_pref, address_city, address_detail,
			phone_number, phone_number_normalized,
			employment_type, salary, salary_min, salary_max,
			work_location, business_description, employee_count,
			is_new, crawled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, TRUE, $21, $21
		)
		ON CONFLICT (source_name, identity_key) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			page_url = EXCLUDED.page_url,
			title = EXCLUDED.title,
			company_name = EXCLUDED.company_name,
			company_kana = EXCLUDED.company_kana,
			postal_code = EXCLUDED.postal_code,
			address_pref = EXCLUDED.address_pref,
			address_city = EXCLUDED.address_city,
			address_detail = EXCLUDED.address_detail,
			phone_number = EXCLUDED.phone_number,
			phone_number_normalized = EXCLUDED.phone_number_normalized,
			employment_type = EXCLUDED.employment_type,
			salary = EXCLUDED.salary,
			salary_min = EXCLUDED.salary_min,
			salary_max = EXCLUDED.salary_max,
			work_location = EXCLUDED.work_location,
			business_description = EXCLUDED.business_description,
			employee_count = EXCLUDED.employee_count,
			is_new = FALSE,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS was_new`

	var res store.UpsertResult
	err := s.db.QueryRow(ctx, query,
		rec.Source, identity, rec.JobID, rec.URL, rec.Title,
		rec.Company, rec.CompanyKana, rec.PostalCode,
		rec.AddressPref, rec.AddressCity, rec.AddressDetail,
		rec.Phone, rec.PhoneNormalized,
		rec.EmploymentType, rec.Salary, rec.SalaryMin, rec.SalaryMax,
		rec.Location, rec.BusinessDescription, rec.EmployeeCount,
		crawledAt,
	).Scan(&res.ID, &res.WasNew)
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("failed to upsert job: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) SaveBulk(ctx context.Context, recs []models.Record) (saved, created int) {
	for _, rec := range recs {
		res, err := s.Upsert(ctx, rec)
		if err != nil {
			s.log.Warnw("failed to save job, skipping", "title", rec.Title, "err", err)
			continue
		}
		saved++
		if res.WasNew {
			created++
		}
	}
	return saved, created
}

const jobColumns = `
	id, source_name, identity_key, job_id, page_url, title,
	company_name, company_kana, postal_code,
	address_pref, address_city, address_detail,
	phone_number, phone_number_normalized,
	employment_type, salary, salary_min, salary_max,
	work_location, business_description, employee_count,
	is_new, is_filtered, filter_reason, crawled_at, updated_at`

func (s *PostgresStore) List(ctx context.Context, q store.Query) ([]models.StoredJob, error) {
	where, args := buildWhere(q)
	query := "SELECT" + jobColumns + " FROM jobs" + where + " ORDER BY crawled_at DESC, id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.StoredJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, q store.Query) (int, error) {
	where, args := buildWhere(q)
	var n int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM jobs"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

func buildWhere(q store.Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.Source != "" {
		add("source_name = $%d", q.Source)
	}
	if q.Prefecture != "" {
		add("address_pref = $%d", q.Prefecture)
	}
	if q.IsNew != nil {
		add("is_new = $%d", *q.IsNew)
	}
	if q.IsFiltered != nil {
		add("is_filtered = $%d", *q.IsFiltered)
	}
	if q.Keyword != "" {
		args = append(args, "%"+q.Keyword+"%")
		i := len(args)
		conds = append(conds, fmt.Sprintf(
			"(title ILIKE $%d OR company_name ILIKE $%d OR business_description ILIKE $%d)", i, i, i))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanJob(row pgx.Row) (models.StoredJob, error) {
	var j models.StoredJob
	err := row.Scan(
		&j.ID, &j.Source, &j.IdentityKey, &j.JobID, &j.URL, &j.Title,
		&j.Company, &j.CompanyKana, &j.PostalCode,
		&j.AddressPref, &j.AddressCity, &j.AddressDetail,
		&j.Phone, &j.PhoneNormalized,
		&j.EmploymentType, &j.Salary, &j.SalaryMin, &j.SalaryMax,
		&j.Location, &j.BusinessDescription, &j.EmployeeCount,
		&j.IsNew, &j.IsFiltered, &j.FilterReason, &j.CrawledAt, &j.UpdatedAt,
	)
	if err != nil {
		return models.StoredJob{}, fmt.Errorf("failed to scan job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) MarkOldBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		"UPDATE jobs SET is_new = FALSE WHERE is_new AND crawled_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark old jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM jobs WHERE crawled_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (store.Stats, error) {
	stats := store.Stats{PerSource: make(map[string]int)}

	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_new),
		       COUNT(*) FILTER (WHERE is_filtered)
		FROM jobs`).Scan(&stats.TotalJobs, &stats.NewJobs, &stats.FilteredJobs)
	if err != nil {
		return store.Stats{}, fmt.Errorf("failed to load stats: %w", err)
	}

	rows, err := s.db.Query(ctx, "SELECT source_name, COUNT(*) FROM jobs GROUP BY source_name")
	if err != nil {
		return store.Stats{}, fmt.Errorf("failed to load per-source stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return store.Stats{}, err
		}
		stats.PerSource[name] = n
	}
	return stats, rows.Err()
}

func (s *PostgresStore) AppendCrawlLog(ctx context.Context, l store.CrawlLog) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO crawl_logs (
			source_name, keyword, area, status,
			total_count, new_count, error_message, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.Source, l.Keyword, l.Area, l.Status,
		l.TotalCount, l.NewCount, l.ErrorMessage, l.StartedAt, l.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to append crawl log: %w", err)
	}
	return nil
}
