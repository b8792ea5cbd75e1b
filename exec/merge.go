package exec

import (
	"math/big"
	"sort"

	"github.com/cznic/mathutil"

	"github.com/jaywalker76/LocustDB/aggfuncs"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

// MergeResults folds the per-batch partials into the final result rows.
// Partials are first ordered by batch ordinal, which makes the merge a
// pure function of the partial set: task completion order never shows in
// the output, group ordering or sort ties included.
func MergeResults(desc *PipelineDesc, partials []*BatchResult) (*common.Rows, error) {
	sort.Slice(partials, func(a, b int) bool { return partials[a].Ordinal < partials[b].Ordinal })
	if desc.IsAggregate() {
		return mergeGrouped(desc, partials)
	}
	if len(desc.OrderBy) > 0 {
		return mergeOrdered(desc, partials)
	}
	return mergeConcat(desc, partials)
}

func mergeGrouped(desc *PipelineDesc, partials []*BatchResult) (*common.Rows, error) {
	merged := NewGroupedPartial(len(desc.Aggs))
	for _, partial := range partials {
		for _, entry := range partial.Groups.Entries {
			target := merged.EntryFor(entry.Key)
			for i, agg := range desc.Aggs {
				if err := agg.Func.MergeState(entry.State, target.State, i); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(desc.GroupBy) == 0 && len(merged.Entries) == 0 {
		// a global aggregate over zero batches still yields one row,
		// COUNT 0 and the rest null
		merged.EntryFor(nil)
	}
	rows := common.NewRowsFactory(desc.OutputTypes()).NewRows(len(merged.Entries))
	for _, entry := range merged.Entries {
		for i := range desc.GroupBy {
			appendLiteral(rows, i, entry.Key[i])
		}
		for i, agg := range desc.Aggs {
			if err := appendAggValue(rows, len(desc.GroupBy)+i, agg, entry.State, i); err != nil {
				return nil, err
			}
		}
	}
	if len(desc.OrderBy) > 0 {
		rows, _ = SortRows(rows, nil, desc.OrderBy)
	}
	return limitRows(rows, desc.Limit), nil
}

func mergeConcat(desc *PipelineDesc, partials []*BatchResult) (*common.Rows, error) {
	rows := common.NewRowsFactory(desc.OutputTypes()).NewRows(0)
	for _, partial := range partials {
		if desc.Limit >= 0 && int64(rows.RowCount()) >= desc.Limit {
			break
		}
		rows.AppendAll(partial.Rows)
	}
	return limitRows(rows, desc.Limit), nil
}

// rowRef addresses one row of one partial during the ordered merge.
type rowRef struct {
	partial int
	row     int
}

func mergeOrdered(desc *PipelineDesc, partials []*BatchResult) (*common.Rows, error) {
	var refs []rowRef
	for p, partial := range partials {
		for row := 0; row < partial.Rows.RowCount(); row++ {
			refs = append(refs, rowRef{partial: p, row: row})
		}
	}
	position := func(r rowRef) int {
		if partials[r.partial].Positions != nil {
			return partials[r.partial].Positions[r.row]
		}
		return r.row
	}
	sort.Slice(refs, func(a, b int) bool {
		ra, rb := refs[a], refs[b]
		for _, term := range desc.OrderBy {
			ca := partials[ra.partial].Rows.Column(term.OutputIndex)
			cb := partials[rb.partial].Rows.Column(term.OutputIndex)
			cmp := compareAcross(ca, ra.row, cb, rb.row)
			if term.Descending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		// ties resolve to the original global row order
		if ra.partial != rb.partial {
			return partials[ra.partial].Ordinal < partials[rb.partial].Ordinal
		}
		return position(ra) < position(rb)
	})
	n := len(refs)
	if desc.Limit >= 0 {
		n = mathutil.Min(n, int(desc.Limit))
	}
	rows := common.NewRowsFactory(desc.OutputTypes()).NewRows(n)
	for _, ref := range refs[:n] {
		src := partials[ref.partial].Rows
		for c := 0; c < src.ColCount(); c++ {
			rows.Column(c).AppendFrom(src.Column(c), ref.row)
		}
	}
	return rows, nil
}

// compareAcross compares a row of one column buffer against a row of
// another buffer of the same type. Nulls order first.
func compareAcross(ca *common.Column, ra int, cb *common.Column, rb int) int {
	an, bn := ca.IsNull(ra), cb.IsNull(rb)
	if an || bn {
		switch {
		case an && bn:
			return 0
		case an:
			return -1
		default:
			return 1
		}
	}
	switch ca.Type().Type {
	case common.TypeBigInt:
		av, _ := ca.GetInt64(ra)
		bv, _ := cb.GetInt64(rb)
		return compareInt64(av, bv)
	case common.TypeDouble:
		av, _ := ca.GetFloat64(ra)
		bv, _ := cb.GetFloat64(rb)
		return compareFloat64(av, bv)
	case common.TypeVarchar:
		av, _ := ca.GetString(ra)
		bv, _ := cb.GetString(rb)
		return compareString(av, bv)
	case common.TypeBoolean:
		av, _ := ca.GetBool(ra)
		bv, _ := cb.GetBool(rb)
		return compareBool(av, bv)
	}
	return 0
}

func limitRows(rows *common.Rows, limit int64) *common.Rows {
	if limit < 0 || int64(rows.RowCount()) <= limit {
		return rows
	}
	types := make([]common.ColumnType, rows.ColCount())
	for i := 0; i < rows.ColCount(); i++ {
		types[i] = rows.Column(i).Type()
	}
	out := common.NewRowsFactory(types).NewRows(int(limit))
	for row := 0; row < int(limit); row++ {
		for c := 0; c < rows.ColCount(); c++ {
			out.Column(c).AppendFrom(rows.Column(c), row)
		}
	}
	return out
}

func appendLiteral(rows *common.Rows, colIndex int, lit common.Literal) {
	if lit.IsNull {
		rows.AppendNullToColumn(colIndex)
		return
	}
	switch lit.Type {
	case common.TypeBigInt:
		rows.AppendInt64ToColumn(colIndex, lit.Int64)
	case common.TypeDouble:
		rows.AppendFloat64ToColumn(colIndex, lit.Float)
	case common.TypeVarchar:
		rows.AppendStringToColumn(colIndex, lit.String)
	case common.TypeBoolean:
		rows.AppendBoolToColumn(colIndex, lit.Bool)
	}
}

// appendAggValue extracts the final value of one aggregate from its merged
// state. Aggregates over zero non-null values yield null, except COUNT
// which yields zero.
func appendAggValue(rows *common.Rows, colIndex int, agg AggOp, state *aggfuncs.AggState, stateIndex int) error {
	switch agg.FuncType {
	case common.AggCount:
		rows.AppendInt64ToColumn(colIndex, state.Count(stateIndex))
		return nil
	case common.AggSum:
		if state.Count(stateIndex) == 0 {
			rows.AppendNullToColumn(colIndex)
			return nil
		}
		if agg.Func.ValueType().Type == common.TypeDouble {
			rows.AppendFloat64ToColumn(colIndex, state.GetFloat64(stateIndex))
			return nil
		}
		if state.Overflowed(stateIndex) {
			b := state.GetBig(stateIndex)
			if !b.IsInt64() {
				return errors.NewValueOutOfRangeError("sum overflows bigint")
			}
			rows.AppendInt64ToColumn(colIndex, b.Int64())
			return nil
		}
		rows.AppendInt64ToColumn(colIndex, state.GetInt64(stateIndex))
		return nil
	case common.AggMin, common.AggMax:
		if state.Count(stateIndex) == 0 {
			rows.AppendNullToColumn(colIndex)
			return nil
		}
		switch agg.Func.ValueType().Type {
		case common.TypeBigInt:
			rows.AppendInt64ToColumn(colIndex, state.GetInt64(stateIndex))
		case common.TypeDouble:
			rows.AppendFloat64ToColumn(colIndex, state.GetFloat64(stateIndex))
		case common.TypeVarchar:
			rows.AppendStringToColumn(colIndex, state.GetString(stateIndex))
		case common.TypeBoolean:
			rows.AppendBoolToColumn(colIndex, state.GetInt64(stateIndex) != 0)
		}
		return nil
	case common.AggAvg:
		count := state.Count(stateIndex)
		if count == 0 {
			rows.AppendNullToColumn(colIndex)
			return nil
		}
		var sum float64
		switch {
		case state.Overflowed(stateIndex):
			sum, _ = new(big.Float).SetInt(state.GetBig(stateIndex)).Float64()
		case agg.Arg.Type.Type == common.TypeDouble:
			sum = state.GetFloat64(stateIndex)
		default:
			sum = float64(state.GetInt64(stateIndex))
		}
		rows.AppendFloat64ToColumn(colIndex, sum/float64(count))
		return nil
	default:
		return errors.NewLocustErrorf(errors.InternalError, "unknown aggregate %d", agg.FuncType)
	}
}
