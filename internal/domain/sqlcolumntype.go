package domain

import "fmt"

// SqlTypeName is the closed set of destination column types the inferencer
// can produce.
type SqlTypeName string

const (
	TypeBit      SqlTypeName = "bit"
	TypeInt      SqlTypeName = "int"
	TypeBigInt   SqlTypeName = "bigint"
	TypeDecimal  SqlTypeName = "decimal"
	TypeDate     SqlTypeName = "date"
	TypeDateTime SqlTypeName = "datetime"
	TypeNVarChar SqlTypeName = "nvarchar"
)

// SqlColumnType is the inferred destination type for a single column.
//
// Precision/Scale are only meaningful for decimal. For nvarchar, a nil
// Precision means "max" (nvarchar(max)); a non-nil Precision is the
// fixed length.
type SqlColumnType struct {
	TypeName  SqlTypeName
	Precision *int
	Scale     *int
	Reliable  bool
}

// ToSqlDefinition renders the SQL Server column type clause, e.g.
// "decimal(12,3)", "nvarchar(255)", "nvarchar(max)".
func (t SqlColumnType) ToSqlDefinition() string {
	switch t.TypeName {
	case TypeDecimal:
		precision := 18
		if t.Precision != nil {
			precision = *t.Precision
		}
		scale := 0
		if t.Scale != nil {
			scale = *t.Scale
		}
		return fmt.Sprintf("decimal(%d,%d)", precision, scale)
	case TypeNVarChar:
		if t.Precision == nil {
			return "nvarchar(max)"
		}
		return fmt.Sprintf("nvarchar(%d)", *t.Precision)
	default:
		return string(t.TypeName)
	}
}

// NVarChar255 is the default fallback type: a reliable-or-not nvarchar(255).
func NVarChar255(reliable bool) SqlColumnType {
	p := 255
	return SqlColumnType{TypeName: TypeNVarChar, Precision: &p, Reliable: reliable}
}

// NVarCharMax is the nvarchar(max) variant used when any observed value
// exceeds 255 characters.
func NVarCharMax(reliable bool) SqlColumnType {
	return SqlColumnType{TypeName: TypeNVarChar, Precision: nil, Reliable: reliable}
}
