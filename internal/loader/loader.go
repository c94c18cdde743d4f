// Package loader implements the Bulk Loader (C6): it converts raw CSV
// rows into typed values and submits them to the SQL Server destination
// in batches using the driver's native bulk-copy protocol.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ignite/csv-migrator/internal/domain"
)

const defaultBatchSize = 1000

var defaultTimeout = 300 * time.Second

// RowErrorFunc is called when a row is dropped from a batch, either
// because marshalling failed or because the batch it belonged to
// failed to load.
type RowErrorFunc func(row []string, absoluteRowIndex int64, reason string)

// Loader bulk-loads rows into a SQL Server table using batched
// bulk-copy operations. It holds no per-call state and is safe for
// concurrent use across different tables/connections.
type Loader struct {
	batchSize int
	timeout   time.Duration
}

// New creates a Loader. A batchSize ≤ 0 defaults to 1000 rows; a
// timeout ≤ 0 defaults to 300 seconds.
func New(batchSize int, timeout time.Duration) *Loader {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Loader{batchSize: batchSize, timeout: timeout}
}

// BulkInsert pulls rows from next (a lazy source: it returns false when
// exhausted) until exhaustion or cancellation, converting each value
// according to columnTypes and submitting batches of l.batchSize rows
// to [dbo].[table]. onRowError is called once per row that never made
// it into the destination, with its 1-based absolute row index.
//
// It returns the running count of rows that were successfully loaded.
func (l *Loader) BulkInsert(
	ctx context.Context,
	db *sql.DB,
	table string,
	columnNames []string,
	columnTypes []domain.SqlColumnType,
	next func() ([]string, bool),
	onRowError RowErrorFunc,
) (int64, error) {
	if len(columnNames) == 0 {
		return 0, fmt.Errorf("bulk insert into %s: no columns", table)
	}

	var inserted int64
	var rowIndex int64

	type pendingRow struct {
		raw      []string
		values   []interface{}
		rowIndex int64
	}
	batch := make([]pendingRow, 0, l.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		rows := make([][]interface{}, len(batch))
		for i, p := range batch {
			rows[i] = p.values
		}
		n, err := l.submitBatch(ctx, db, table, columnNames, rows)
		if err != nil {
			for _, p := range batch {
				if onRowError != nil {
					onRowError(p.raw, p.rowIndex, err.Error())
				}
			}
			batch = batch[:0]
			return nil
		}
		inserted += n
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return inserted, ctx.Err()
		default:
		}

		row, ok := next()
		if !ok {
			break
		}
		rowIndex++

		values, err := convertRow(row, columnTypes)
		if err != nil {
			if onRowError != nil {
				onRowError(row, rowIndex, err.Error())
			}
			continue
		}
		batch = append(batch, pendingRow{raw: row, values: values, rowIndex: rowIndex})

		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}

	if err := flush(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// submitBatch submits one batch as a single bulk-copy operation,
// grounded on the same prepare/exec-per-row/flush/commit shape the
// Postgres COPY path uses, adapted to SQL Server's bulk-copy protocol.
func (l *Loader) submitBatch(ctx context.Context, db *sql.DB, table string, columnNames []string, rows [][]interface{}) (int64, error) {
	batchCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	txn, err := db.BeginTx(batchCtx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk-copy transaction: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(batchCtx, mssql.CopyIn(table, mssql.BulkOptions{}, columnNames...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk copy for %s: %w", table, err)
	}

	for _, row := range rows {
		if _, err := stmt.ExecContext(batchCtx, row...); err != nil {
			return 0, fmt.Errorf("bulk copy row into %s: %w", table, err)
		}
	}

	if _, err := stmt.ExecContext(batchCtx); err != nil {
		return 0, fmt.Errorf("flush bulk copy into %s: %w", table, err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("close bulk copy statement: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk copy into %s: %w", table, err)
	}

	return int64(len(rows)), nil
}

var bitTrue = map[string]bool{"true": true, "1": true, "sim": true, "yes": true}
var bitFalse = map[string]bool{"false": true, "0": true, "não": true, "nao": true, "no": true}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "01/02/2006"}
var dateTimeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
}

// convertRow marshals each raw field: conversion failures
// degrade to NULL rather than rejecting the row. The row is only
// rejected (a returned error) on an internal length mismatch, which
// the orchestrator treats as a consistency failure.
func convertRow(row []string, columnTypes []domain.SqlColumnType) ([]interface{}, error) {
	if len(row) != len(columnTypes) {
		return nil, fmt.Errorf("row has %d fields, expected %d", len(row), len(columnTypes))
	}
	values := make([]interface{}, len(row))
	for i, raw := range row {
		values[i] = convertValue(raw, columnTypes[i])
	}
	return values, nil
}

func convertValue(raw string, t domain.SqlColumnType) interface{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	switch t.TypeName {
	case domain.TypeBit:
		lower := strings.ToLower(trimmed)
		if bitTrue[lower] {
			return true
		}
		if bitFalse[lower] {
			return false
		}
		return nil
	case domain.TypeInt:
		v, err := strconv.ParseInt(trimmed, 10, 32)
		if err != nil {
			return nil
		}
		return int32(v)
	case domain.TypeBigInt:
		v, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil
		}
		return v
	case domain.TypeDecimal:
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil
		}
		return v
	case domain.TypeDate, domain.TypeDateTime:
		if v, ok := parseFlexibleTime(trimmed); ok {
			return v
		}
		return nil
	default:
		return trimmed
	}
}

func parseFlexibleTime(v string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
