// Package app composes the migration engine's components behind the
// external interface described for UI/API collaborators: testing a
// destination connection, submitting jobs (fresh, reprocess, or
// single-file reprocess), and reading back Job/JobFile/JobError/
// JobMetric state.
package app

import (
	"context"
	"fmt"

	"github.com/ignite/csv-migrator/internal/domain"
	"github.com/ignite/csv-migrator/internal/jobs"
	"github.com/ignite/csv-migrator/internal/queue"
	"github.com/ignite/csv-migrator/internal/schema"
)

// Orchestrator is the subset of *orchestrator.Orchestrator the App
// drives directly; submission is instead routed through Queue so a
// submitJob caller never blocks on processing.
type Orchestrator interface {
	CreateJob(ctx context.Context, rootFolder string) (string, error)
	CreateReprocessJob(ctx context.Context, origJobID string) (string, error)
	CreateReprocessFileJob(ctx context.Context, origJobID, fileID, connectionString string) (string, error)
}

// Submitter enqueues a job id for background processing.
type Submitter interface {
	Submit(ctx context.Context, jobID, connectionString string) (bool, error)
}

// App is the entry-point surface exposed to external collaborators
// (HTTP handlers, a CLI, a UI backend).
type App struct {
	repo   jobs.Repository
	orch   Orchestrator
	queue  Submitter
	schema *schema.Service
}

// New creates an App over its already-wired collaborators.
func New(repo jobs.Repository, orch Orchestrator, q Submitter, schemaSvc *schema.Service) *App {
	return &App{repo: repo, orch: orch, queue: q, schema: schemaSvc}
}

// TestConnection validates a destination connection string without
// submitting any job against it.
func (a *App) TestConnection(ctx context.Context, connectionString string) schema.TestConnectionResult {
	return a.schema.TestConnection(ctx, connectionString)
}

// SubmitJob creates a Job over rootFolder and enqueues it for
// processing against connectionString. Returns the new Job's id.
func (a *App) SubmitJob(ctx context.Context, rootFolder, connectionString string) (string, error) {
	jobID, err := a.orch.CreateJob(ctx, rootFolder)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	if _, err := a.queue.Submit(ctx, jobID, connectionString); err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return jobID, nil
}

// SubmitReprocessJob creates a new Job over the same root folder as
// jobID (rediscovering files from scratch) and enqueues it.
func (a *App) SubmitReprocessJob(ctx context.Context, jobID, connectionString string) (string, error) {
	newJobID, err := a.orch.CreateReprocessJob(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("submit reprocess job: %w", err)
	}
	if _, err := a.queue.Submit(ctx, newJobID, connectionString); err != nil {
		return "", fmt.Errorf("enqueue reprocess job %s: %w", newJobID, err)
	}
	return newJobID, nil
}

// SubmitReprocessFile creates a new single-file Job cloned from fileID
// of jobID, drops the original destination table, and enqueues it.
func (a *App) SubmitReprocessFile(ctx context.Context, jobID, fileID, connectionString string) (string, error) {
	newJobID, err := a.orch.CreateReprocessFileJob(ctx, jobID, fileID, connectionString)
	if err != nil {
		return "", fmt.Errorf("submit reprocess file: %w", err)
	}
	if _, err := a.queue.Submit(ctx, newJobID, connectionString); err != nil {
		return "", fmt.Errorf("enqueue reprocess file job %s: %w", newJobID, err)
	}
	return newJobID, nil
}

// ListJobs returns every Job, newest first.
func (a *App) ListJobs(ctx context.Context) ([]domain.Job, error) {
	return a.repo.GetAllJobs(ctx)
}

// ListJobFiles returns every JobFile belonging to jobID.
func (a *App) ListJobFiles(ctx context.Context, jobID string) ([]domain.JobFile, error) {
	return a.repo.ListJobFiles(ctx, jobID)
}

// ListJobErrors returns every JobError recorded against jobID.
func (a *App) ListJobErrors(ctx context.Context, jobID string) ([]domain.JobError, error) {
	return a.repo.ListJobErrors(ctx, jobID)
}

// ListJobMetrics returns every JobMetric recorded against jobID.
func (a *App) ListJobMetrics(ctx context.Context, jobID string) ([]domain.JobMetric, error) {
	return a.repo.ListJobMetrics(ctx, jobID)
}

var _ Submitter = (*queue.Queue)(nil)
