// Package schema implements the Schema Service (C5): connection testing
// and table lifecycle management against the SQL Server destination.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ignite/csv-migrator/internal/domain"
)

// ConnectionStatus classifies the outcome of a connection test.
type ConnectionStatus int

const (
	ConnectionOK ConnectionStatus = iota
	ConnectionCertificateMismatch
	ConnectionNetworkUnreachable
	ConnectionAuthFailure
	ConnectionDatabaseNotAccessible
	ConnectionTimeout
	ConnectionHostUnresolved
	ConnectionServerRefused
	ConnectionOther
)

func (s ConnectionStatus) String() string {
	switch s {
	case ConnectionOK:
		return "OK"
	case ConnectionCertificateMismatch:
		return "CertificateMismatch"
	case ConnectionNetworkUnreachable:
		return "NetworkUnreachable"
	case ConnectionAuthFailure:
		return "AuthFailure"
	case ConnectionDatabaseNotAccessible:
		return "DatabaseNotAccessible"
	case ConnectionTimeout:
		return "Timeout"
	case ConnectionHostUnresolved:
		return "HostUnresolved"
	case ConnectionServerRefused:
		return "ServerRefused"
	case ConnectionOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// TestConnectionResult is the structured outcome callers rely on.
type TestConnectionResult struct {
	Status  ConnectionStatus
	Message string
}

// serverErrorMessages maps known SQL Server error numbers to
// human-readable messages.
var serverErrorMessages = map[int32]string{
	2:     "host could not be resolved",
	53:    "network is unreachable",
	18456: "login failed: check username and password",
	4060:  "database is not accessible or does not exist",
	40613: "database is currently unavailable",
	233:   "no process is on the other end of the pipe: server may be starting up",
	10060: "connection attempt timed out",
	10061: "server actively refused the connection",
}

// sslTrustMismatchHResult is the Windows SSPI HRESULT
// (SEC_E_WRONG_PRINCIPAL, "the target principal name is incorrect")
// go-mssqldb surfaces when the server's certificate doesn't match the
// hostname used to connect.
const sslTrustMismatchHResult = -2146893022

// Service exposes connection testing and table lifecycle operations
// against a SQL Server destination.
type Service struct {
	connectTimeout func() int
}

// New creates a Schema Service. connectTimeoutSeconds is read lazily via
// the supplied func so callers can source it from live configuration.
func New(connectTimeoutSeconds func() int) *Service {
	return &Service{connectTimeout: connectTimeoutSeconds}
}

// TestConnection attempts to open and ping cs, classifying the failure
// mode when it cannot.
func (s *Service) TestConnection(ctx context.Context, cs string) TestConnectionResult {
	timeoutSeconds := 5
	if s.connectTimeout != nil {
		if v := s.connectTimeout(); v > 0 {
			timeoutSeconds = v
		}
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	db, err := sql.Open("sqlserver", cs)
	if err != nil {
		return TestConnectionResult{Status: ConnectionOther, Message: err.Error()}
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return classifyConnectionError(err)
	}
	return TestConnectionResult{Status: ConnectionOK, Message: "connection succeeded"}
}

func classifyConnectionError(err error) TestConnectionResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return TestConnectionResult{Status: ConnectionTimeout, Message: "connection attempt timed out"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TestConnectionResult{Status: ConnectionTimeout, Message: "connection attempt timed out"}
		}
		return TestConnectionResult{Status: ConnectionNetworkUnreachable, Message: err.Error()}
	}

	var mssqlErr mssql.Error
	if errors.As(err, &mssqlErr) {
		if mssqlErr.Number == sslTrustMismatchHResult {
			return TestConnectionResult{Status: ConnectionCertificateMismatch, Message: mssqlErr.Message}
		}
		if msg, ok := serverErrorMessages[mssqlErr.Number]; ok {
			status := ConnectionOther
			switch mssqlErr.Number {
			case 2:
				status = ConnectionHostUnresolved
			case 53:
				status = ConnectionNetworkUnreachable
			case 18456:
				status = ConnectionAuthFailure
			case 4060, 40613:
				status = ConnectionDatabaseNotAccessible
			case 233, 10060, 10061:
				status = ConnectionServerRefused
			}
			return TestConnectionResult{Status: status, Message: msg}
		}
		return TestConnectionResult{Status: ConnectionOther, Message: mssqlErr.Message}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "certificate"), strings.Contains(msg, "x509"), strings.Contains(msg, "principal name"):
		return TestConnectionResult{Status: ConnectionCertificateMismatch, Message: err.Error()}
	case strings.Contains(msg, "no such host"):
		return TestConnectionResult{Status: ConnectionHostUnresolved, Message: err.Error()}
	case strings.Contains(msg, "login failed"), strings.Contains(msg, "authentication"):
		return TestConnectionResult{Status: ConnectionAuthFailure, Message: err.Error()}
	case strings.Contains(msg, "connection refused"):
		return TestConnectionResult{Status: ConnectionServerRefused, Message: err.Error()}
	case strings.Contains(msg, "network is unreachable"):
		return TestConnectionResult{Status: ConnectionNetworkUnreachable, Message: err.Error()}
	default:
		return TestConnectionResult{Status: ConnectionOther, Message: err.Error()}
	}
}

// CreateTable issues an idempotent CREATE TABLE for name using each
// column's ToSqlDefinition(). Both table and column identifiers are
// escaped by doubling any "]" they contain.
func (s *Service) CreateTable(ctx context.Context, db *sql.DB, name string, columnNames []string, columnTypes []domain.SqlColumnType) error {
	if len(columnNames) == 0 {
		return fmt.Errorf("create table %s: no columns", name)
	}

	var cols strings.Builder
	for i, col := range columnNames {
		if i > 0 {
			cols.WriteString(", ")
		}
		fmt.Fprintf(&cols, "[%s] %s", escapeIdentifier(col), columnTypes[i].ToSqlDefinition())
	}

	stmt := fmt.Sprintf(
		`IF NOT EXISTS (SELECT 1 FROM sys.tables WHERE name = '%s') CREATE TABLE [dbo].[%s] (%s)`,
		escapeLiteral(name), escapeIdentifier(name), cols.String(),
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

// DropTable drops name if it exists.
func (s *Service) DropTable(ctx context.Context, db *sql.DB, name string) error {
	stmt := fmt.Sprintf(`IF EXISTS (SELECT 1 FROM sys.tables WHERE name = '%s') DROP TABLE [dbo].[%s]`,
		escapeLiteral(name), escapeIdentifier(name))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	return nil
}

// TableExists reports whether name exists in the dbo schema.
func (s *Service) TableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT CAST(CASE WHEN EXISTS (
		SELECT 1 FROM sys.tables WHERE name = @p1 AND schema_id = SCHEMA_ID('dbo')
	) THEN 1 ELSE 0 END AS BIT)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s exists: %w", name, err)
	}
	return exists, nil
}

func escapeIdentifier(name string) string {
	return strings.ReplaceAll(name, "]", "]]")
}

func escapeLiteral(name string) string {
	return strings.ReplaceAll(name, "'", "''")
}
