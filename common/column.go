package common

import (
	"github.com/jaywalker76/LocustDB/errors"
)

// Column is a typed, in-memory vector of values plus a null mask. It is the
// decoded form of a segment and the intermediate buffer type flowing
// through the operator pipeline. Appends only; never mutated in place once
// handed off.
type Column struct {
	colType  ColumnType
	nulls    []bool
	int64s   []int64
	float64s []float64
	strings  []string
}

func NewColumn(colType ColumnType) *Column {
	return &Column{colType: colType}
}

func NewColumnWithCapacity(colType ColumnType, capacity int) *Column {
	col := &Column{colType: colType, nulls: make([]bool, 0, capacity)}
	switch colType.Type {
	case TypeBigInt, TypeBoolean:
		col.int64s = make([]int64, 0, capacity)
	case TypeDouble:
		col.float64s = make([]float64, 0, capacity)
	case TypeVarchar:
		col.strings = make([]string, 0, capacity)
	}
	return col
}

func (c *Column) Type() ColumnType {
	return c.colType
}

func (c *Column) RowCount() int {
	return len(c.nulls)
}

func (c *Column) IsNull(row int) bool {
	return c.nulls[row]
}

// AppendInt64 appends a BIGINT value. BOOLEAN columns also store their
// values here, as 0 or 1.
func (c *Column) AppendInt64(val int64) {
	c.int64s = append(c.int64s, val)
	c.nulls = append(c.nulls, false)
}

func (c *Column) AppendFloat64(val float64) {
	c.float64s = append(c.float64s, val)
	c.nulls = append(c.nulls, false)
}

func (c *Column) AppendString(val string) {
	c.strings = append(c.strings, val)
	c.nulls = append(c.nulls, false)
}

func (c *Column) AppendBool(val bool) {
	v := int64(0)
	if val {
		v = 1
	}
	c.int64s = append(c.int64s, v)
	c.nulls = append(c.nulls, false)
}

func (c *Column) AppendNull() {
	switch c.colType.Type {
	case TypeBigInt, TypeBoolean:
		c.int64s = append(c.int64s, 0)
	case TypeDouble:
		c.float64s = append(c.float64s, 0)
	case TypeVarchar:
		c.strings = append(c.strings, "")
	}
	c.nulls = append(c.nulls, true)
}

func (c *Column) GetInt64(row int) (int64, bool) {
	return c.int64s[row], c.nulls[row]
}

func (c *Column) GetFloat64(row int) (float64, bool) {
	return c.float64s[row], c.nulls[row]
}

func (c *Column) GetString(row int) (string, bool) {
	return c.strings[row], c.nulls[row]
}

func (c *Column) GetBool(row int) (bool, bool) {
	return c.int64s[row] != 0, c.nulls[row]
}

// Int64s exposes the backing value slice. Null rows hold a zero
// placeholder; callers must consult the null mask.
func (c *Column) Int64s() []int64 {
	return c.int64s
}

func (c *Column) Float64s() []float64 {
	return c.float64s
}

func (c *Column) Strings() []string {
	return c.strings
}

// AppendFrom appends row from the source column, which must have the same
// type.
func (c *Column) AppendFrom(src *Column, row int) {
	if src.nulls[row] {
		c.AppendNull()
		return
	}
	switch c.colType.Type {
	case TypeBigInt, TypeBoolean:
		c.AppendInt64(src.int64s[row])
	case TypeDouble:
		c.AppendFloat64(src.float64s[row])
	case TypeVarchar:
		c.AppendString(src.strings[row])
	}
}

// MemSize is an estimate of the resident bytes of the decoded column, used
// for cache accounting.
func (c *Column) MemSize() int64 {
	size := int64(len(c.nulls))
	size += int64(len(c.int64s) * 8)
	size += int64(len(c.float64s) * 8)
	for _, s := range c.strings {
		size += int64(len(s)) + 16
	}
	return size
}

// AppendValue appends an arbitrary Go value, used by test fixtures and the
// ingest path for already-typed batches. nil appends a null.
func (c *Column) AppendValue(val interface{}) error {
	if val == nil {
		c.AppendNull()
		return nil
	}
	switch c.colType.Type {
	case TypeBigInt:
		switch v := val.(type) {
		case int:
			c.AppendInt64(int64(v))
		case int64:
			c.AppendInt64(v)
		default:
			return errors.NewTypeMismatchError(TypeBigInt.String(), "value")
		}
	case TypeDouble:
		v, ok := val.(float64)
		if !ok {
			return errors.NewTypeMismatchError(TypeDouble.String(), "value")
		}
		c.AppendFloat64(v)
	case TypeVarchar:
		v, ok := val.(string)
		if !ok {
			return errors.NewTypeMismatchError(TypeVarchar.String(), "value")
		}
		c.AppendString(v)
	case TypeBoolean:
		v, ok := val.(bool)
		if !ok {
			return errors.NewTypeMismatchError(TypeBoolean.String(), "value")
		}
		c.AppendBool(v)
	default:
		return errors.Errorf("unknown column type %d", c.colType.Type)
	}
	return nil
}
