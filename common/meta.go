package common

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Type int

const (
	TypeUnknown Type = iota
	TypeBigInt
	TypeDouble
	TypeVarchar
	TypeBoolean
)

func (t *Type) Capture(tokens []string) error {
	text := strings.ToUpper(strings.Join(tokens, " "))
	switch text {
	case "BIGINT":
		*t = TypeBigInt
	case "DOUBLE":
		*t = TypeDouble
	case "VARCHAR":
		*t = TypeVarchar
	case "BOOLEAN":
		*t = TypeBoolean
	default:
		return errors.Errorf("unknown column type %s", text)
	}
	return nil
}

func (t Type) String() string {
	switch t {
	case TypeBigInt:
		return "bigint"
	case TypeDouble:
		return "double"
	case TypeVarchar:
		return "varchar"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

var (
	BigIntColumnType  = ColumnType{Type: TypeBigInt}
	DoubleColumnType  = ColumnType{Type: TypeDouble}
	VarcharColumnType = ColumnType{Type: TypeVarchar}
	BooleanColumnType = ColumnType{Type: TypeBoolean}
	UnknownColumnType = ColumnType{Type: TypeUnknown}

	// ColumnTypesByType allows lookup of ColumnType by Type.
	ColumnTypesByType = map[Type]ColumnType{
		TypeBigInt:  BigIntColumnType,
		TypeDouble:  DoubleColumnType,
		TypeVarchar: VarcharColumnType,
		TypeBoolean: BooleanColumnType,
	}
)

type ColumnType struct {
	Type Type
}

func (ct ColumnType) String() string {
	return ct.Type.String()
}

func (ct ColumnType) IsNumeric() bool {
	return ct.Type == TypeBigInt || ct.Type == TypeDouble
}

type ColumnInfo struct {
	Name string
	ColumnType
}

// TableInfo describes the schema of one table: column names and types, in
// declaration order. The schema is fixed for the lifetime of the table.
type TableInfo struct {
	ID          uint64
	Name        string
	ColumnNames []string
	ColumnTypes []ColumnType
}

func (i *TableInfo) String() string {
	return fmt.Sprintf("table[name=%s,id=%d]", i.Name, i.ID)
}

// ColumnIndex returns the ordinal of the named column, or -1 if the table
// has no such column.
func (i *TableInfo) ColumnIndex(name string) int {
	for idx, n := range i.ColumnNames {
		if n == name {
			return idx
		}
	}
	return -1
}

type Schema struct {
	Tables map[string]*TableInfo
}

func NewSchema() *Schema {
	return &Schema{Tables: make(map[string]*TableInfo)}
}

func (s *Schema) GetTable(name string) (*TableInfo, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

func (s *Schema) PutTable(info *TableInfo) {
	s.Tables[info.Name] = info
}
