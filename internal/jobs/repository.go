package jobs

import (
	"context"

	"github.com/ignite/csv-migrator/internal/domain"
)

// Repository defines the data access contract for the four control-table
// entities. Implementations must be safe for concurrent use; each call
// opens its own connection.
type Repository interface {
	// InitializeSchema creates the four control tables (and their FKs)
	// if they don't already exist. Safe to call repeatedly.
	InitializeSchema(ctx context.Context) error

	CreateJob(ctx context.Context, j *domain.Job) (string, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	// GetAllJobs returns every Job, newest first.
	GetAllJobs(ctx context.Context) ([]domain.Job, error)
	UpdateJob(ctx context.Context, j *domain.Job) error

	CreateJobFile(ctx context.Context, f *domain.JobFile) (string, error)
	GetJobFile(ctx context.Context, id string) (*domain.JobFile, error)
	ListJobFiles(ctx context.Context, jobID string) ([]domain.JobFile, error)
	UpdateJobFile(ctx context.Context, f *domain.JobFile) error

	CreateJobError(ctx context.Context, e *domain.JobError) (string, error)
	ListJobErrors(ctx context.Context, jobID string) ([]domain.JobError, error)

	CreateJobMetric(ctx context.Context, m *domain.JobMetric) (string, error)
	ListJobMetrics(ctx context.Context, jobID string) ([]domain.JobMetric, error)
}
