package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/csv-migrator/internal/domain"
)

func intType() domain.SqlColumnType      { return domain.SqlColumnType{TypeName: domain.TypeInt} }
func bigIntType() domain.SqlColumnType   { return domain.SqlColumnType{TypeName: domain.TypeBigInt} }
func bitType() domain.SqlColumnType      { return domain.SqlColumnType{TypeName: domain.TypeBit} }
func decimalType() domain.SqlColumnType  { return domain.SqlColumnType{TypeName: domain.TypeDecimal} }
func dateType() domain.SqlColumnType     { return domain.SqlColumnType{TypeName: domain.TypeDate} }
func dateTimeType() domain.SqlColumnType { return domain.SqlColumnType{TypeName: domain.TypeDateTime} }
func nvarcharType() domain.SqlColumnType { return domain.NVarChar255(true) }

func TestConvertValue_EmptyAlwaysNull(t *testing.T) {
	for _, typ := range []domain.SqlColumnType{intType(), bitType(), decimalType(), dateType(), nvarcharType()} {
		assert.Nil(t, convertValue("   ", typ))
		assert.Nil(t, convertValue("", typ))
	}
}

func TestConvertValue_Bit(t *testing.T) {
	assert.Equal(t, true, convertValue("true", bitType()))
	assert.Equal(t, true, convertValue("1", bitType()))
	assert.Equal(t, true, convertValue("sim", bitType()))
	assert.Equal(t, false, convertValue("false", bitType()))
	assert.Equal(t, false, convertValue("0", bitType()))
	assert.Nil(t, convertValue("maybe", bitType()))
}

func TestConvertValue_Int(t *testing.T) {
	assert.Equal(t, int32(42), convertValue("42", intType()))
	assert.Nil(t, convertValue("not-a-number", intType()))
}

func TestConvertValue_BigInt(t *testing.T) {
	assert.Equal(t, int64(9223372036854775800), convertValue("9223372036854775800", bigIntType()))
	assert.Nil(t, convertValue("abc", bigIntType()))
}

func TestConvertValue_Decimal(t *testing.T) {
	assert.Equal(t, 10.50, convertValue("10.50", decimalType()))
	assert.Nil(t, convertValue("x", decimalType()))
}

func TestConvertValue_Date(t *testing.T) {
	got := convertValue("2024-01-02", dateType())
	require.IsType(t, time.Time{}, got)
	assert.Equal(t, 2024, got.(time.Time).Year())
}

func TestConvertValue_DateInvalidDegradesToNull(t *testing.T) {
	assert.Nil(t, convertValue("not-a-date", dateType()))
}

func TestConvertValue_DateTime(t *testing.T) {
	got := convertValue("2024-01-02T15:04:05Z", dateTimeType())
	require.IsType(t, time.Time{}, got)
	assert.Equal(t, 15, got.(time.Time).Hour())
}

func TestConvertValue_NVarCharPassesThroughTrimmed(t *testing.T) {
	assert.Equal(t, "hello", convertValue("  hello  ", nvarcharType()))
}

func TestConvertRow_LengthMismatchErrors(t *testing.T) {
	_, err := convertRow([]string{"1", "2"}, []domain.SqlColumnType{intType()})
	assert.Error(t, err)
}

func TestConvertRow_MatchingLengthSucceeds(t *testing.T) {
	values, err := convertRow([]string{"1", "true", "x"}, []domain.SqlColumnType{intType(), bitType(), nvarcharType()})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, int32(1), values[0])
	assert.Equal(t, true, values[1])
	assert.Equal(t, "x", values[2])
}

func TestBulkInsert_BatchFailureReportsOriginalRowIndices(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	rows := [][]string{{"1"}, {"2"}, {"3"}}
	idx := 0
	next := func() ([]string, bool) {
		if idx >= len(rows) {
			return nil, false
		}
		r := rows[idx]
		idx++
		return r, true
	}

	l := New(len(rows), time.Second)
	var gotIndices []int64
	inserted, err := l.BulkInsert(context.Background(), db, "TB_x", []string{"n"}, []domain.SqlColumnType{intType()}, next,
		func(row []string, absoluteRowIndex int64, reason string) {
			gotIndices = append(gotIndices, absoluteRowIndex)
		})
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Equal(t, []int64{1, 2, 3}, gotIndices, "each row in a failed batch must keep its own 1-based row index")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_DefaultsApplied(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, defaultBatchSize, l.batchSize)
	assert.Equal(t, defaultTimeout, l.timeout)
}

func TestNew_CustomValuesKept(t *testing.T) {
	l := New(500, 60*time.Second)
	assert.Equal(t, 500, l.batchSize)
	assert.Equal(t, 60*time.Second, l.timeout)
}
