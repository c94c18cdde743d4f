package schema

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/csv-migrator/internal/domain"
)

func TestCreateTable_IssuesIdempotentCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("IF NOT EXISTS")).WillReturnResult(sqlmock.NewResult(0, 0))

	svc := New(nil)
	precision := 10
	err = svc.CreateTable(context.Background(), db, "TB_customers",
		[]string{"id", "name"},
		[]domain.SqlColumnType{
			{TypeName: domain.TypeInt},
			{TypeName: domain.TypeNVarChar, Precision: &precision},
		})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTable_EmptyColumnsIsError(t *testing.T) {
	svc := New(nil)
	err := svc.CreateTable(context.Background(), nil, "TB_x", nil, nil)
	assert.Error(t, err)
}

func TestDropTable_IssuesConditionalDrop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("IF EXISTS")).WillReturnResult(sqlmock.NewResult(0, 0))

	svc := New(nil)
	require.NoError(t, svc.DropTable(context.Background(), db, "TB_customers"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableExists_ReturnsScannedValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT CAST")).
		WithArgs("TB_customers").
		WillReturnRows(sqlmock.NewRows([]string{""}).AddRow(true))

	svc := New(nil)
	exists, err := svc.TableExists(context.Background(), db, "TB_customers")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeIdentifier_DoublesClosingBracket(t *testing.T) {
	assert.Equal(t, "foo]]bar", escapeIdentifier("foo]bar"))
}

func TestEscapeLiteral_DoublesSingleQuote(t *testing.T) {
	assert.Equal(t, "foo''bar", escapeLiteral("foo'bar"))
}

func TestClassifyConnectionError_DeadlineExceeded(t *testing.T) {
	result := classifyConnectionError(context.DeadlineExceeded)
	assert.Equal(t, ConnectionTimeout, result.Status)
}

func TestClassifyConnectionError_CertificateMismatch(t *testing.T) {
	result := classifyConnectionError(errors.New("x509: certificate signed by unknown authority"))
	assert.Equal(t, ConnectionCertificateMismatch, result.Status)
}

func TestClassifyConnectionError_AuthFailure(t *testing.T) {
	result := classifyConnectionError(errors.New("login failed for user 'svc'"))
	assert.Equal(t, ConnectionAuthFailure, result.Status)
}

func TestClassifyConnectionError_ServerRefused(t *testing.T) {
	result := classifyConnectionError(errors.New("dial tcp: connection refused"))
	assert.Equal(t, ConnectionServerRefused, result.Status)
}

func TestClassifyConnectionError_NetworkUnreachable(t *testing.T) {
	result := classifyConnectionError(errors.New("dial tcp: network is unreachable"))
	assert.Equal(t, ConnectionNetworkUnreachable, result.Status)
}

func TestClassifyConnectionError_HostUnresolved(t *testing.T) {
	result := classifyConnectionError(errors.New("dial tcp: lookup db.example.com: no such host"))
	assert.Equal(t, ConnectionHostUnresolved, result.Status)
}

func TestClassifyConnectionError_PrincipalNameMismatch(t *testing.T) {
	result := classifyConnectionError(errors.New("ssl: the target principal name is incorrect"))
	assert.Equal(t, ConnectionCertificateMismatch, result.Status)
}

func TestClassifyConnectionError_FallsBackToOther(t *testing.T) {
	result := classifyConnectionError(errors.New("something unexpected happened"))
	assert.Equal(t, ConnectionOther, result.Status)
}

func TestClassifyConnectionError_MssqlErrorNumberMapping(t *testing.T) {
	cases := []struct {
		number int32
		status ConnectionStatus
	}{
		{2, ConnectionHostUnresolved},
		{53, ConnectionNetworkUnreachable},
		{18456, ConnectionAuthFailure},
		{4060, ConnectionDatabaseNotAccessible},
		{40613, ConnectionDatabaseNotAccessible},
		{233, ConnectionServerRefused},
		{10060, ConnectionServerRefused},
		{10061, ConnectionServerRefused},
	}
	for _, c := range cases {
		result := classifyConnectionError(mssql.Error{Number: c.number, Message: "server error"})
		assert.Equal(t, c.status, result.Status, "error number %d", c.number)
	}
}

func TestClassifyConnectionError_MssqlSSLTrustMismatchHResult(t *testing.T) {
	result := classifyConnectionError(mssql.Error{Number: sslTrustMismatchHResult, Message: "the target principal name is incorrect"})
	assert.Equal(t, ConnectionCertificateMismatch, result.Status)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "OK", ConnectionOK.String())
	assert.Equal(t, "AuthFailure", ConnectionAuthFailure.String())
	assert.Equal(t, "HostUnresolved", ConnectionHostUnresolved.String())
	assert.Equal(t, "ServerRefused", ConnectionServerRefused.String())
}
