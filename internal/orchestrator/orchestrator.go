// Package orchestrator implements the Job Orchestrator (C8): it owns the
// Job/JobFile lifecycle state machine, fans a Job's files out to a
// bounded worker pool, and drives each file through header read, type
// inference, identifier sanitization, table creation, and bulk load.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ignite/csv-migrator/internal/csvio"
	"github.com/ignite/csv-migrator/internal/discovery"
	"github.com/ignite/csv-migrator/internal/domain"
	"github.com/ignite/csv-migrator/internal/identifier"
	"github.com/ignite/csv-migrator/internal/inference"
	"github.com/ignite/csv-migrator/internal/jobs"
	"github.com/ignite/csv-migrator/internal/loader"
	"github.com/ignite/csv-migrator/internal/pkg/distlock"
	"github.com/ignite/csv-migrator/internal/pkg/logger"
	"github.com/ignite/csv-migrator/internal/schema"
)

const (
	// DefaultWorkerPoolSize bounds how many files within one Job are
	// processed concurrently.
	DefaultWorkerPoolSize = 4

	// sampleRows is how many data rows are read for type inference
	// before the full load pass.
	sampleRows = 1000

	lockTTL = 10 * time.Minute
)

// Orchestrator coordinates Jobs end to end. A single instance may drive
// many jobs concurrently; per-job state lives on the
// stack of Process, never on the Orchestrator itself.
type Orchestrator struct {
	repo     jobs.Repository
	schema   *schema.Service
	loader   *loader.Loader
	reader   *csvio.Reader
	locks    distlock.Factory
	poolSize int64
}

// New creates an Orchestrator. poolSize is the per-job bounded worker
// pool size; pass 0 for DefaultWorkerPoolSize.
func New(repo jobs.Repository, schemaSvc *schema.Service, ld *loader.Loader, locks distlock.Factory, poolSize int) *Orchestrator {
	if poolSize <= 0 {
		poolSize = DefaultWorkerPoolSize
	}
	return &Orchestrator{
		repo:     repo,
		schema:   schemaSvc,
		loader:   ld,
		reader:   csvio.New(),
		locks:    locks,
		poolSize: int64(poolSize),
	}
}

// CreateJob discovers the CSV files under rootFolder and persists a new
// Job plus one Pending JobFile per discovered file. A missing rootFolder
// is fatal and surfaces before any Job row is written.
func (o *Orchestrator) CreateJob(ctx context.Context, rootFolder string) (string, error) {
	files, err := discovery.FindCSVFiles(rootFolder)
	if err != nil {
		return "", err
	}

	job := &domain.Job{
		CreatedAt:  time.Now(),
		Status:     domain.JobCreated,
		RootFolder: rootFolder,
		TotalFiles: len(files),
	}
	jobID, err := o.repo.CreateJob(ctx, job)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	for _, path := range files {
		jf := &domain.JobFile{JobID: jobID, FilePath: path, Status: domain.JobFilePending}
		if _, err := o.repo.CreateJobFile(ctx, jf); err != nil {
			return "", fmt.Errorf("create job file for %s: %w", path, err)
		}
	}
	return jobID, nil
}

// CreateReprocessJob creates a new Job over the same rootFolder as an
// existing one, rediscovering files from scratch.
func (o *Orchestrator) CreateReprocessJob(ctx context.Context, origJobID string) (string, error) {
	orig, err := o.repo.GetJob(ctx, origJobID)
	if err != nil {
		return "", fmt.Errorf("get original job: %w", err)
	}
	return o.CreateJob(ctx, orig.RootFolder)
}

// CreateReprocessFileJob creates a new single-file Job cloned from one
// JobFile of an existing Job. The original destination table is dropped
// first so the clone starts from a clean table.
func (o *Orchestrator) CreateReprocessFileJob(ctx context.Context, origJobID, fileID, connectionString string) (string, error) {
	origFile, err := o.repo.GetJobFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("get original job file: %w", err)
	}
	if origFile.JobID != origJobID {
		return "", fmt.Errorf("job file %s does not belong to job %s", fileID, origJobID)
	}

	orig, err := o.repo.GetJob(ctx, origJobID)
	if err != nil {
		return "", fmt.Errorf("get original job: %w", err)
	}

	if origFile.TableName != "" {
		db, err := sql.Open("sqlserver", connectionString)
		if err != nil {
			return "", fmt.Errorf("open destination: %w", err)
		}
		defer db.Close()
		if err := o.schema.DropTable(ctx, db, origFile.TableName); err != nil {
			return "", fmt.Errorf("drop destination table %s: %w", origFile.TableName, err)
		}
	}

	job := &domain.Job{
		CreatedAt:  time.Now(),
		Status:     domain.JobCreated,
		RootFolder: orig.RootFolder,
		TotalFiles: 1,
	}
	jobID, err := o.repo.CreateJob(ctx, job)
	if err != nil {
		return "", fmt.Errorf("create reprocess job: %w", err)
	}

	clone := &domain.JobFile{
		JobID:    jobID,
		FilePath: origFile.FilePath,
		Status:   domain.JobFilePending,
	}
	if _, err := o.repo.CreateJobFile(ctx, clone); err != nil {
		return "", fmt.Errorf("create cloned job file: %w", err)
	}
	return jobID, nil
}

// Process runs a Job to completion: every Pending JobFile is processed
// through the bounded worker pool, then end-of-job metrics are recorded
// and the Job's terminal status is stamped. Cancellation propagates to
// every in-flight file.
func (o *Orchestrator) Process(ctx context.Context, jobID, connectionString string) error {
	job, err := o.repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	// The lock is taken and released on a context that ignores
	// cancellation, so a cancelled run still reaches its terminal status
	// write and never leaves the lock held.
	lockCtx := context.WithoutCancel(ctx)
	lock := o.locks.NewLock(fmt.Sprintf("job:%s", jobID), lockTTL)
	acquired, err := lock.Acquire(lockCtx)
	if err != nil {
		return fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("job %s is already being processed", jobID)
	}
	defer lock.Release(lockCtx)

	now := time.Now()
	job.StartedAt = &now
	job.Status = domain.JobRunning
	if err := o.repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	files, err := o.repo.ListJobFiles(ctx, jobID)
	if err != nil {
		failure := o.failJob(ctx, job, err)
		return failure
	}

	var pending []domain.JobFile
	for _, f := range files {
		if f.Status == domain.JobFilePending {
			pending = append(pending, f)
		}
	}

	state := &jobRunState{job: job}
	tables := &tableRegistry{names: map[string]bool{}}
	for _, f := range files {
		if f.TableName != "" {
			tables.names[f.TableName] = true
		}
	}

	sem := semaphore.NewWeighted(o.poolSize)
	var wg sync.WaitGroup
	for i := range pending {
		jf := pending[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			// ctx was cancelled before every pending file could be
			// dispatched; the rest stay Pending in the repository.
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			o.processFile(ctx, jobID, jf, connectionString, tables, state)
		}()
	}
	wg.Wait()

	// A Job reaches Completed only if every non-failed JobFile is
	// Completed. Cancellation (either before dispatch finished, via the
	// sem.Acquire break above, or while files were in flight) can leave
	// JobFiles Pending or Processing, so the terminal status must
	// reflect that instead of claiming completion.
	finished := time.Now()
	job.FinishedAt = &finished
	cancelled := ctx.Err() != nil
	if !cancelled {
		current, err := o.repo.ListJobFiles(ctx, jobID)
		if err != nil {
			return o.failJob(ctx, job, err)
		}
		for _, f := range current {
			if f.Status == domain.JobFilePending || f.Status == domain.JobFileProcessing {
				cancelled = true
				break
			}
		}
	}
	if cancelled {
		job.Status = domain.JobCancelled
	} else {
		job.Status = domain.JobCompleted
	}

	// The status write must land even if ctx is already cancelled, or
	// the Job would stay stuck Running forever.
	updateCtx := ctx
	if ctx.Err() != nil {
		updateCtx = context.Background()
	}
	if err := o.repo.UpdateJob(updateCtx, job); err != nil {
		return fmt.Errorf("mark job %s: %w", job.Status, err)
	}

	o.recordEndOfJobMetrics(updateCtx, job, files)
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, cause error) error {
	finished := time.Now()
	job.FinishedAt = &finished
	job.Status = domain.JobFailed
	_ = o.repo.UpdateJob(ctx, job)
	_, _ = o.repo.CreateJobError(ctx, &domain.JobError{
		JobID:     job.ID,
		ErrorType: domain.OtherError,
		Message:   cause.Error(),
		CreatedAt: time.Now(),
	})
	logger.Error("job failed", "job_id", job.ID, "error", cause.Error())
	return fmt.Errorf("job %s failed: %w", job.ID, cause)
}

// jobRunState tracks the Job's mutable processedFiles counter, which
// every worker increments concurrently.
type jobRunState struct {
	mu  sync.Mutex
	job *domain.Job
}

func (s *jobRunState) incrementProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.ProcessedFiles++
}

// tableRegistry tracks table names already chosen within the running
// Job, so concurrent file workers never pick the same name.
type tableRegistry struct {
	mu    sync.Mutex
	names map[string]bool
}

func (t *tableRegistry) reserve(fileName string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	name := identifier.TableName(fileName, t.names)
	t.names[name] = true
	return name
}

func (o *Orchestrator) processFile(ctx context.Context, jobID string, jf domain.JobFile, connectionString string, tables *tableRegistry, state *jobRunState) {
	started := time.Now()
	jf.Status = domain.JobFileProcessing
	jf.StartedAt = &started
	if err := o.repo.UpdateJobFile(ctx, &jf); err != nil {
		logger.Error("mark job file processing failed", "job_file_id", jf.ID, "error", err.Error())
		return
	}

	db, err := sql.Open("sqlserver", connectionString)
	if err != nil {
		o.failFile(ctx, &jf, domain.NewStructuralError(fmt.Errorf("open destination: %w", err)))
		return
	}
	defer db.Close()

	if err := o.runFile(ctx, db, &jf, tables); err != nil {
		o.failFile(ctx, &jf, err)
		return
	}

	finished := time.Now()
	jf.Status = domain.JobFileCompleted
	jf.FinishedAt = &finished
	if err := o.repo.UpdateJobFile(ctx, &jf); err != nil {
		logger.Error("mark job file completed failed", "job_file_id", jf.ID, "error", err.Error())
	}

	state.incrementProcessed()

	elapsed := finished.Sub(started).Seconds()
	metricName := fmt.Sprintf("FileProcessingTime_%s", filepath.Base(jf.FilePath))
	_, _ = o.repo.CreateJobMetric(ctx, &domain.JobMetric{
		JobID:       jobID,
		MetricName:  metricName,
		MetricValue: elapsed,
		RecordedAt:  finished,
	})
}

func (o *Orchestrator) failFile(ctx context.Context, jf *domain.JobFile, cause error) {
	finished := time.Now()
	jf.Status = domain.JobFileFailed
	jf.FinishedAt = &finished
	_ = o.repo.UpdateJobFile(ctx, jf)

	kind := domain.OtherError
	if pe, ok := domain.AsPipelineError(cause); ok {
		kind = pe.Kind
	}
	_, _ = o.repo.CreateJobError(ctx, &domain.JobError{
		JobID:     jf.JobID,
		JobFileID: &jf.ID,
		ErrorType: kind,
		Message:   cause.Error(),
		CreatedAt: time.Now(),
	})
	logger.Error("job file failed", "job_file_id", jf.ID, "error", cause.Error())
}

// runFile drives one file through header read, sampling, naming, table
// creation, full read, and bulk load.
func (o *Orchestrator) runFile(ctx context.Context, db *sql.DB, jf *domain.JobFile, tables *tableRegistry) error {
	header, err := o.reader.ReadHeader(jf.FilePath)
	if err != nil {
		return err
	}

	samples := make([][]string, len(header))
	sampled := 0
	sampleCtx, cancelSample := context.WithCancel(ctx)
	err = o.reader.Stream(sampleCtx, jf.FilePath, func(fields []string, lineNo int) {
		for i, v := range fields {
			if i < len(samples) {
				samples[i] = append(samples[i], v)
			}
		}
		sampled++
		if sampled >= sampleRows {
			cancelSample()
		}
	}, nil)
	cancelSample()
	if err != nil && err != context.Canceled {
		return err
	}

	columnTypes := make([]domain.SqlColumnType, len(header))
	for i := range header {
		columnTypes[i] = inference.Infer(samples[i])
	}

	tableName := tables.reserve(filepath.Base(jf.FilePath))
	existingColumns := map[string]bool{}
	columnNames := make([]string, len(header))
	for i, h := range header {
		name := identifier.ColumnName(h, existingColumns, i)
		existingColumns[name] = true
		columnNames[i] = name
	}

	if err := o.schema.CreateTable(ctx, db, tableName, columnNames, columnTypes); err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}
	jf.TableName = tableName

	var rows [][]string
	err = o.reader.Stream(ctx, jf.FilePath, func(fields []string, lineNo int) {
		rows = append(rows, fields)
		jf.LinesRead++
	}, func(msg string, lineNo int) {
		jf.LinesRejected++
		ln := int64(lineNo)
		_, _ = o.repo.CreateJobError(ctx, &domain.JobError{
			JobID:      jf.JobID,
			JobFileID:  &jf.ID,
			LineNumber: &ln,
			ErrorType:  domain.LineError,
			Message:    msg,
			CreatedAt:  time.Now(),
		})
	})
	if err != nil {
		return err
	}

	idx := 0
	next := func() ([]string, bool) {
		if idx >= len(rows) {
			return nil, false
		}
		row := rows[idx]
		idx++
		return row, true
	}

	inserted, err := o.loader.BulkInsert(ctx, db, tableName, columnNames, columnTypes, next, func(row []string, absoluteRowIndex int64, reason string) {
		jf.LinesRejected++
		ln := absoluteRowIndex
		_, _ = o.repo.CreateJobError(ctx, &domain.JobError{
			JobID:      jf.JobID,
			JobFileID:  &jf.ID,
			LineNumber: &ln,
			ErrorType:  domain.DatabaseError,
			Message:    reason,
			CreatedAt:  time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("bulk insert into %s: %w", tableName, err)
	}
	jf.LinesInserted = inserted

	return nil
}

func (o *Orchestrator) recordEndOfJobMetrics(ctx context.Context, job *domain.Job, files []domain.JobFile) {
	var linesRead, linesInserted int64
	for _, f := range files {
		linesRead += f.LinesRead
		linesInserted += f.LinesInserted
	}

	utilization := 0.0
	if linesRead > 0 {
		utilization = 100 * float64(linesInserted) / float64(linesRead)
	}
	_, _ = o.repo.CreateJobMetric(ctx, &domain.JobMetric{
		JobID:       job.ID,
		MetricName:  domain.MetricUtilizationPercentage,
		MetricValue: utilization,
		RecordedAt:  time.Now(),
	})

	if job.StartedAt != nil && job.FinishedAt != nil {
		_, _ = o.repo.CreateJobMetric(ctx, &domain.JobMetric{
			JobID:       job.ID,
			MetricName:  domain.MetricTotalExecutionTime,
			MetricValue: job.FinishedAt.Sub(*job.StartedAt).Seconds(),
			RecordedAt:  time.Now(),
		})
	}
}
