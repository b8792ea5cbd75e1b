package common

// AggFuncType enumerates the aggregate functions the surface language
// exposes.
type AggFuncType int

const (
	AggSum AggFuncType = iota
	AggCount
	AggMin
	AggMax
	AggAvg
)

func (t AggFuncType) String() string {
	switch t {
	case AggSum:
		return "sum"
	case AggCount:
		return "count"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggAvg:
		return "avg"
	}
	return "?"
}

// AggDesc is one aggregate in the select list. ColName is empty for
// COUNT(*).
type AggDesc struct {
	Func    AggFuncType
	ColName string
}

// OrderDesc is one ORDER BY term, referencing an output column of the
// query by name.
type OrderDesc struct {
	ColName    string
	Descending bool
}

// QueryDesc is the abstract query description produced by the parser and
// consumed by the planner. It is validated for syntax only; semantic
// validation (column existence, types) happens at plan time.
type QueryDesc struct {
	TableName  string
	Star       bool
	SelectCols []string
	Aggregates []AggDesc
	Filter     *Predicate
	GroupBy    []string
	OrderBy    []OrderDesc
	Limit      int64 // -1 when absent
}
