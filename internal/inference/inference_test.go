package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/csv-migrator/internal/domain"
)

func TestInfer_AllIntsChoosesInt(t *testing.T) {
	got := Infer([]string{"1", "2", "3", "4", "5"})
	assert.Equal(t, domain.TypeInt, got.TypeName)
	assert.True(t, got.Reliable)
}

func TestInfer_MostlyIntsWithEmptyValues(t *testing.T) {
	// 18 non-empty values, one non-numeric ("n/a"): 17/18 ≈ 0.94 over
	// non-empty values, well clear of int's 0.80 threshold. The 2 blanks
	// don't count toward the denominator at all.
	got := Infer([]string{
		"1", "2", "3", "", "", "4", "5", "6", "7", "n/a",
		"8", "9", "10", "11", "12", "13", "14", "15", "16", "17",
	})
	require.Equal(t, domain.TypeInt, got.TypeName)
	assert.True(t, got.Reliable)
}

func TestInfer_OneOutOfRangeValueChoosesBigInt(t *testing.T) {
	values := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "9223372036854775800"}
	got := Infer(values)
	assert.Equal(t, domain.TypeBigInt, got.TypeName)
	assert.True(t, got.Reliable)
}

func TestInfer_AllValuesFitIntRejectsBigInt(t *testing.T) {
	got := Infer([]string{"1", "2", "3", "4", "5"})
	assert.Equal(t, domain.TypeInt, got.TypeName)
	assert.NotEqual(t, domain.TypeBigInt, got.TypeName)
}

func TestInfer_DecimalPrecisionAndScale(t *testing.T) {
	got := Infer([]string{"10.50", "200.1", "3.25", "45.0"})
	require.Equal(t, domain.TypeDecimal, got.TypeName)
	require.NotNil(t, got.Precision)
	require.NotNil(t, got.Scale)
	assert.Equal(t, 5, *got.Precision)
	assert.Equal(t, 2, *got.Scale)
}

func TestInfer_DecimalWithNoise(t *testing.T) {
	// "x" isn't parseable as anything; decimal's reliability (0.5) misses
	// its own 0.80 threshold and wins only via the relaxed fallback, where
	// it ties with (and so beats, per the >= rule) nvarchar's reliability.
	got := Infer([]string{"10.50", "x"})
	assert.Equal(t, domain.TypeDecimal, got.TypeName)
	assert.False(t, got.Reliable)
}

func TestInfer_AmbiguousBitFallsBackToNVarChar(t *testing.T) {
	// bit's reliability (4/5 = 0.80) misses its strict 0.90 threshold.
	// Unlike numeric/temporal candidates, bit is excluded from the
	// relaxed fallback, so this lands on nvarchar(255), not reliable.
	got := Infer([]string{"true", "0", "sim", "maybe", "1"})
	assert.Equal(t, domain.TypeNVarChar, got.TypeName)
	require.NotNil(t, got.Precision)
	assert.Equal(t, 255, *got.Precision)
	assert.False(t, got.Reliable)
}

func TestInfer_DateExactFormats(t *testing.T) {
	got := Infer([]string{"2024-01-02", "2024-02-03", "2024-03-04"})
	assert.Equal(t, domain.TypeDate, got.TypeName)
	assert.True(t, got.Reliable)
}

func TestInfer_DateTimeFormats(t *testing.T) {
	got := Infer([]string{"2024-01-02T15:04:05Z", "2024-01-03T09:00:00Z", "2024-01-04T23:59:59Z"})
	assert.Equal(t, domain.TypeDateTime, got.TypeName)
	assert.True(t, got.Reliable)
}

func TestInfer_GenuinelyTextualColumn(t *testing.T) {
	got := Infer([]string{"Alice", "Bob Smith", "Carla Jones", "D'Angelo"})
	assert.Equal(t, domain.TypeNVarChar, got.TypeName)
	assert.True(t, got.Reliable)
}

func TestInfer_LongStringUsesNVarCharMax(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "a"
	}
	got := Infer([]string{long, "short text value here"})
	require.Equal(t, domain.TypeNVarChar, got.TypeName)
	assert.Nil(t, got.Precision)
}

func TestInfer_AllValuesEmptyFallsBackToNVarChar(t *testing.T) {
	got := Infer([]string{"", "", ""})
	assert.Equal(t, domain.TypeNVarChar, got.TypeName)
	assert.False(t, got.Reliable)
}

func TestInfer_NoValuesFallsBackToNVarChar(t *testing.T) {
	got := Infer(nil)
	assert.Equal(t, domain.TypeNVarChar, got.TypeName)
	assert.False(t, got.Reliable)
}

func TestInfer_SampleTruncatedAtMax(t *testing.T) {
	values := make([]string, MaxSample+500)
	for i := range values {
		values[i] = "7"
	}
	got := Infer(values)
	assert.Equal(t, domain.TypeInt, got.TypeName)
}
