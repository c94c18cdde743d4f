// Package jobs defines the Job Repository contract (C7): CRUD access to
// the four control-table entities (Job, JobFile, JobError, JobMetric).
//
// Implementations live in jobs/postgres. The Orchestrator (internal/
// orchestrator) is the only caller that mutates Job/JobFile state;
// this package itself carries no business logic.
package jobs
