package common

// Rows is a set of aligned columns, the vectorized buffer the operator
// pipeline produces and the shape query results are returned in.
type Rows struct {
	columns []*Column
}

// RowsFactory caches the column types so we don't have to pass them each
// time we create a new Rows.
type RowsFactory struct {
	ColumnTypes []ColumnType
}

func NewRowsFactory(columnTypes []ColumnType) *RowsFactory {
	return &RowsFactory{ColumnTypes: columnTypes}
}

func (rf *RowsFactory) NewRows(capacity int) *Rows {
	cols := make([]*Column, len(rf.ColumnTypes))
	for i, ct := range rf.ColumnTypes {
		cols[i] = NewColumnWithCapacity(ct, capacity)
	}
	return &Rows{columns: cols}
}

func NewRowsFromColumns(cols []*Column) *Rows {
	return &Rows{columns: cols}
}

func (r *Rows) RowCount() int {
	if len(r.columns) == 0 {
		return 0
	}
	return r.columns[0].RowCount()
}

func (r *Rows) ColCount() int {
	return len(r.columns)
}

func (r *Rows) Column(colIndex int) *Column {
	return r.columns[colIndex]
}

func (r *Rows) GetRow(rowIndex int) Row {
	return Row{rows: r, index: rowIndex}
}

func (r *Rows) AppendRow(row Row) {
	for i, col := range r.columns {
		col.AppendFrom(row.rows.columns[i], row.index)
	}
}

func (r *Rows) AppendAll(other *Rows) {
	for i := 0; i < other.RowCount(); i++ {
		r.AppendRow(other.GetRow(i))
	}
}

func (r *Rows) AppendInt64ToColumn(colIndex int, val int64) {
	r.columns[colIndex].AppendInt64(val)
}

func (r *Rows) AppendFloat64ToColumn(colIndex int, val float64) {
	r.columns[colIndex].AppendFloat64(val)
}

func (r *Rows) AppendStringToColumn(colIndex int, val string) {
	r.columns[colIndex].AppendString(val)
}

func (r *Rows) AppendBoolToColumn(colIndex int, val bool) {
	r.columns[colIndex].AppendBool(val)
}

func (r *Rows) AppendNullToColumn(colIndex int) {
	r.columns[colIndex].AppendNull()
}

// Row is a lightweight view of one row of a Rows.
type Row struct {
	rows  *Rows
	index int
}

func (r Row) ColCount() int {
	return len(r.rows.columns)
}

func (r Row) IsNull(colIndex int) bool {
	return r.rows.columns[colIndex].IsNull(r.index)
}

func (r Row) GetInt64(colIndex int) int64 {
	v, _ := r.rows.columns[colIndex].GetInt64(r.index)
	return v
}

func (r Row) GetFloat64(colIndex int) float64 {
	v, _ := r.rows.columns[colIndex].GetFloat64(r.index)
	return v
}

func (r Row) GetString(colIndex int) string {
	v, _ := r.rows.columns[colIndex].GetString(r.index)
	return v
}

func (r Row) GetBool(colIndex int) bool {
	v, _ := r.rows.columns[colIndex].GetBool(r.index)
	return v
}
