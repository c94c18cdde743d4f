package domain

import "time"

// JobStatus is the lifecycle state of a Job. Ordinals are persisted as-is
// so existing rows remain valid across deploys; append new states at the
// end, never renumber.
type JobStatus int

const (
	JobCreated JobStatus = iota
	JobRunning
	JobCompleted
	JobFailed
	JobCancelled
)

func (s JobStatus) String() string {
	switch s {
	case JobCreated:
		return "Created"
	case JobRunning:
		return "Running"
	case JobCompleted:
		return "Completed"
	case JobFailed:
		return "Failed"
	case JobCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Job is one migration run over a root folder.
type Job struct {
	ID             string     `json:"id" db:"id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	StartedAt      *time.Time `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at" db:"finished_at"`
	Status         JobStatus  `json:"status" db:"status"`
	RootFolder     string     `json:"root_folder" db:"root_folder"`
	TotalFiles     int        `json:"total_files" db:"total_files"`
	ProcessedFiles int        `json:"processed_files" db:"processed_files"`
}

// JobFileStatus is the lifecycle state of a single file within a Job.
type JobFileStatus int

const (
	JobFilePending JobFileStatus = iota
	JobFileProcessing
	JobFileCompleted
	JobFileFailed
)

func (s JobFileStatus) String() string {
	switch s {
	case JobFilePending:
		return "Pending"
	case JobFileProcessing:
		return "Processing"
	case JobFileCompleted:
		return "Completed"
	case JobFileFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// JobFile is one source file within a Job.
type JobFile struct {
	ID            string        `json:"id" db:"id"`
	JobID         string        `json:"job_id" db:"job_id"`
	FilePath      string        `json:"file_path" db:"file_path"`
	Status        JobFileStatus `json:"status" db:"status"`
	StartedAt     *time.Time    `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at" db:"finished_at"`
	LinesRead     int64         `json:"lines_read" db:"lines_read"`
	LinesInserted int64         `json:"lines_inserted" db:"lines_inserted"`
	LinesRejected int64         `json:"lines_rejected" db:"lines_rejected"`
	TableName     string        `json:"table_name" db:"table_name"`
}

// ErrorKind classifies a JobError by where the failure occurred.
type ErrorKind int

const (
	StructuralFailure ErrorKind = iota
	LineError
	ColumnError
	DatabaseError
	OtherError
)

func (k ErrorKind) String() string {
	switch k {
	case StructuralFailure:
		return "StructuralFailure"
	case LineError:
		return "LineError"
	case ColumnError:
		return "ColumnError"
	case DatabaseError:
		return "DatabaseError"
	case OtherError:
		return "Other"
	default:
		return "Unknown"
	}
}

// JobError is one append-only failure event.
type JobError struct {
	ID         string    `json:"id" db:"id"`
	JobID      string    `json:"job_id" db:"job_id"`
	JobFileID  *string   `json:"job_file_id" db:"job_file_id"`
	LineNumber *int64    `json:"line_number" db:"line_number"`
	ColumnName *string   `json:"column_name" db:"column_name"`
	ErrorType  ErrorKind `json:"error_type" db:"error_type"`
	Message    string    `json:"message" db:"message"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// JobMetric is one time-stamped measurement recorded against a Job.
//
// Common metric names: UtilizationPercentage, TotalExecutionTime,
// FileProcessingTime_<basename>.
type JobMetric struct {
	ID          string    `json:"id" db:"id"`
	JobID       string    `json:"job_id" db:"job_id"`
	MetricName  string    `json:"metric_name" db:"metric_name"`
	MetricValue float64   `json:"metric_value" db:"metric_value"`
	RecordedAt  time.Time `json:"recorded_at" db:"recorded_at"`
}

const (
	MetricUtilizationPercentage = "UtilizationPercentage"
	MetricTotalExecutionTime    = "TotalExecutionTime"
	MetricFileProcessingTimePrefix = "FileProcessingTime_"
)
