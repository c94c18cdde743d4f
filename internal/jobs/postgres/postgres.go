// Package postgres implements jobs.Repository against PostgreSQL, the
// control-plane store for Job/JobFile/JobError/JobMetric rows (distinct
// from the SQL Server destination the migration writes into).
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/csv-migrator/internal/domain"
	"github.com/ignite/csv-migrator/internal/jobs"
)

// Repo implements jobs.Repository against PostgreSQL.
type Repo struct{ db *sql.DB }

// New creates a Postgres-backed Job Repository.
func New(db *sql.DB) *Repo { return &Repo{db: db} }

// InitializeSchema creates the four control tables if absent, with the
// FKs named in the Job Repository contract.
func (r *Repo) InitializeSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS jobs (
	id              UUID PRIMARY KEY,
	created_at      TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	finished_at     TIMESTAMPTZ,
	status          INT NOT NULL,
	root_folder     TEXT NOT NULL,
	total_files     INT NOT NULL DEFAULT 0,
	processed_files INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS job_files (
	id             UUID PRIMARY KEY,
	job_id         UUID NOT NULL REFERENCES jobs(id),
	file_path      TEXT NOT NULL,
	status         INT NOT NULL,
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ,
	lines_read     BIGINT NOT NULL DEFAULT 0,
	lines_inserted BIGINT NOT NULL DEFAULT 0,
	lines_rejected BIGINT NOT NULL DEFAULT 0,
	table_name     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS job_errors (
	id           UUID PRIMARY KEY,
	job_id       UUID NOT NULL REFERENCES jobs(id),
	job_file_id  UUID REFERENCES job_files(id),
	line_number  BIGINT,
	column_name  TEXT,
	error_type   INT NOT NULL,
	message      TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS job_metrics (
	id           UUID PRIMARY KEY,
	job_id       UUID NOT NULL REFERENCES jobs(id),
	metric_name  TEXT NOT NULL,
	metric_value DOUBLE PRECISION NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
);
`
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("initialize control schema: %w", err)
	}
	return nil
}

func (r *Repo) CreateJob(ctx context.Context, j *domain.Job) (string, error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, created_at, started_at, finished_at, status, root_folder, total_files, processed_files)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, j.ID, j.CreatedAt, j.StartedAt, j.FinishedAt, int(j.Status), j.RootFolder, j.TotalFiles, j.ProcessedFiles)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return j.ID, nil
}

func (r *Repo) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	j := &domain.Job{}
	var status int
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, started_at, finished_at, status, root_folder, total_files, processed_files
		FROM jobs WHERE id = $1
	`, id).Scan(&j.ID, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &status, &j.RootFolder, &j.TotalFiles, &j.ProcessedFiles)
	if err == sql.ErrNoRows {
		return nil, jobs.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Status = domain.JobStatus(status)
	return j, nil
}

func (r *Repo) GetAllJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, started_at, finished_at, status, root_folder, total_files, processed_files
		FROM jobs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var j domain.Job
		var status int
		if err := rows.Scan(&j.ID, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &status, &j.RootFolder, &j.TotalFiles, &j.ProcessedFiles); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Status = domain.JobStatus(status)
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateJob(ctx context.Context, j *domain.Job) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET started_at = $2, finished_at = $3, status = $4, total_files = $5, processed_files = $6
		WHERE id = $1
	`, j.ID, j.StartedAt, j.FinishedAt, int(j.Status), j.TotalFiles, j.ProcessedFiles)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}

func (r *Repo) CreateJobFile(ctx context.Context, f *domain.JobFile) (string, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_files (id, job_id, file_path, status, started_at, finished_at, lines_read, lines_inserted, lines_rejected, table_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, f.ID, f.JobID, f.FilePath, int(f.Status), f.StartedAt, f.FinishedAt, f.LinesRead, f.LinesInserted, f.LinesRejected, f.TableName)
	if err != nil {
		return "", fmt.Errorf("create job file: %w", err)
	}
	return f.ID, nil
}

func (r *Repo) GetJobFile(ctx context.Context, id string) (*domain.JobFile, error) {
	f := &domain.JobFile{}
	var status int
	err := r.db.QueryRowContext(ctx, `
		SELECT id, job_id, file_path, status, started_at, finished_at, lines_read, lines_inserted, lines_rejected, table_name
		FROM job_files WHERE id = $1
	`, id).Scan(&f.ID, &f.JobID, &f.FilePath, &status, &f.StartedAt, &f.FinishedAt, &f.LinesRead, &f.LinesInserted, &f.LinesRejected, &f.TableName)
	if err == sql.ErrNoRows {
		return nil, jobs.ErrJobFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job file: %w", err)
	}
	f.Status = domain.JobFileStatus(status)
	return f, nil
}

func (r *Repo) ListJobFiles(ctx context.Context, jobID string) ([]domain.JobFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, file_path, status, started_at, finished_at, lines_read, lines_inserted, lines_rejected, table_name
		FROM job_files WHERE job_id = $1 ORDER BY file_path
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job files: %w", err)
	}
	defer rows.Close()

	var out []domain.JobFile
	for rows.Next() {
		var f domain.JobFile
		var status int
		if err := rows.Scan(&f.ID, &f.JobID, &f.FilePath, &status, &f.StartedAt, &f.FinishedAt, &f.LinesRead, &f.LinesInserted, &f.LinesRejected, &f.TableName); err != nil {
			return nil, fmt.Errorf("scan job file: %w", err)
		}
		f.Status = domain.JobFileStatus(status)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateJobFile(ctx context.Context, f *domain.JobFile) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE job_files SET status = $2, started_at = $3, finished_at = $4,
			lines_read = $5, lines_inserted = $6, lines_rejected = $7, table_name = $8
		WHERE id = $1
	`, f.ID, int(f.Status), f.StartedAt, f.FinishedAt, f.LinesRead, f.LinesInserted, f.LinesRejected, f.TableName)
	if err != nil {
		return fmt.Errorf("update job file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jobs.ErrJobFileNotFound
	}
	return nil
}

func (r *Repo) CreateJobError(ctx context.Context, e *domain.JobError) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_errors (id, job_id, job_file_id, line_number, column_name, error_type, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.JobID, e.JobFileID, e.LineNumber, e.ColumnName, int(e.ErrorType), e.Message, e.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("create job error: %w", err)
	}
	return e.ID, nil
}

func (r *Repo) ListJobErrors(ctx context.Context, jobID string) ([]domain.JobError, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, job_file_id, line_number, column_name, error_type, message, created_at
		FROM job_errors WHERE job_id = $1 ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job errors: %w", err)
	}
	defer rows.Close()

	var out []domain.JobError
	for rows.Next() {
		var e domain.JobError
		var errType int
		if err := rows.Scan(&e.ID, &e.JobID, &e.JobFileID, &e.LineNumber, &e.ColumnName, &errType, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job error: %w", err)
		}
		e.ErrorType = domain.ErrorKind(errType)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) CreateJobMetric(ctx context.Context, m *domain.JobMetric) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_metrics (id, job_id, metric_name, metric_value, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.JobID, m.MetricName, m.MetricValue, m.RecordedAt)
	if err != nil {
		return "", fmt.Errorf("create job metric: %w", err)
	}
	return m.ID, nil
}

func (r *Repo) ListJobMetrics(ctx context.Context, jobID string) ([]domain.JobMetric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, metric_name, metric_value, recorded_at
		FROM job_metrics WHERE job_id = $1 ORDER BY recorded_at
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.JobMetric
	for rows.Next() {
		var m domain.JobMetric
		if err := rows.Scan(&m.ID, &m.JobID, &m.MetricName, &m.MetricValue, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan job metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
