package exec

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

// filterExecutor evaluates the predicate tree into a row-index set.
// Comparisons run on the encoded form via the codec readers; AND and OR
// combine child sets; NOT and <> fall back to a row-wise three-valued
// evaluation because they need the null positions, which the codec filter
// paths deliberately never report.
type filterExecutor struct {
	batchExecutorBase
	pred *common.Predicate
}

func (f *filterExecutor) Execute(ctx context.Context) (*BatchState, error) {
	state, err := f.pull(ctx)
	if err != nil {
		return nil, err
	}
	sel, err := evalPredicate(state.Source, f.pred)
	if err != nil {
		return nil, err
	}
	state.Selection = sel
	return state, nil
}

func evalPredicate(src Source, pred *common.Predicate) (*roaring.Bitmap, error) {
	switch pred.Op {
	case common.OpAnd:
		var acc *roaring.Bitmap
		for _, c := range pred.Children {
			bm, err := evalPredicate(src, c)
			if err != nil {
				return nil, err
			}
			if acc == nil {
				acc = bm
			} else {
				acc.And(bm)
			}
			if acc.IsEmpty() {
				return acc, nil
			}
		}
		return acc, nil
	case common.OpOr:
		acc := roaring.New()
		for _, c := range pred.Children {
			bm, err := evalPredicate(src, c)
			if err != nil {
				return nil, err
			}
			acc.Or(bm)
		}
		return acc, nil
	case common.OpNot, common.OpNe:
		return rowwiseFilter(src, pred)
	case common.OpEq:
		rd, err := src.Reader(pred.ColIndex)
		if err != nil {
			return nil, err
		}
		return rd.FilterEqual(pred.Literals[0])
	case common.OpIn:
		rd, err := src.Reader(pred.ColIndex)
		if err != nil {
			return nil, err
		}
		acc := roaring.New()
		for _, lit := range pred.Literals {
			if lit.IsNull {
				continue
			}
			bm, err := rd.FilterEqual(lit)
			if err != nil {
				return nil, err
			}
			acc.Or(bm)
		}
		return acc, nil
	case common.OpLt:
		return rangeFilter(src, pred, nil, &pred.Literals[0], false, false)
	case common.OpLe:
		return rangeFilter(src, pred, nil, &pred.Literals[0], false, true)
	case common.OpGt:
		return rangeFilter(src, pred, &pred.Literals[0], nil, false, false)
	case common.OpGe:
		return rangeFilter(src, pred, &pred.Literals[0], nil, true, false)
	default:
		return nil, errors.NewLocustErrorf(errors.InternalError, "unknown predicate op %d", pred.Op)
	}
}

func rangeFilter(src Source, pred *common.Predicate, lo, hi *common.Literal, loIncl, hiIncl bool) (*roaring.Bitmap, error) {
	rd, err := src.Reader(pred.ColIndex)
	if err != nil {
		return nil, err
	}
	return rd.FilterRange(lo, hi, loIncl, hiIncl)
}

// truth is the three-valued outcome of a predicate for one row.
type truth int8

const (
	truthFalse truth = iota
	truthTrue
	truthNull
)

// rowwiseFilter keeps the rows where the predicate is definitely true.
func rowwiseFilter(src Source, pred *common.Predicate) (*roaring.Bitmap, error) {
	out := roaring.New()
	rowCount := src.RowCount()
	for row := 0; row < rowCount; row++ {
		t, err := evalRow(src, pred, row)
		if err != nil {
			return nil, err
		}
		if t == truthTrue {
			out.Add(uint32(row))
		}
	}
	return out, nil
}

func evalRow(src Source, pred *common.Predicate, row int) (truth, error) {
	switch pred.Op {
	case common.OpNot:
		t, err := evalRow(src, pred.Children[0], row)
		if err != nil {
			return truthNull, err
		}
		switch t {
		case truthTrue:
			return truthFalse, nil
		case truthFalse:
			return truthTrue, nil
		default:
			return truthNull, nil
		}
	case common.OpAnd:
		result := truthTrue
		for _, c := range pred.Children {
			t, err := evalRow(src, c, row)
			if err != nil {
				return truthNull, err
			}
			if t == truthFalse {
				return truthFalse, nil
			}
			if t == truthNull {
				result = truthNull
			}
		}
		return result, nil
	case common.OpOr:
		result := truthFalse
		for _, c := range pred.Children {
			t, err := evalRow(src, c, row)
			if err != nil {
				return truthNull, err
			}
			if t == truthTrue {
				return truthTrue, nil
			}
			if t == truthNull {
				result = truthNull
			}
		}
		return result, nil
	case common.OpIn:
		anyNull := false
		for _, lit := range pred.Literals {
			t, err := compareRow(src, pred.ColIndex, common.OpEq, lit, row)
			if err != nil {
				return truthNull, err
			}
			if t == truthTrue {
				return truthTrue, nil
			}
			if t == truthNull {
				anyNull = true
			}
		}
		if anyNull {
			return truthNull, nil
		}
		return truthFalse, nil
	default:
		return compareRow(src, pred.ColIndex, pred.Op, pred.Literals[0], row)
	}
}

func compareRow(src Source, colIndex int, op common.PredicateOp, lit common.Literal, row int) (truth, error) {
	col, err := src.Column(colIndex)
	if err != nil {
		return truthNull, err
	}
	if col.IsNull(row) || lit.IsNull {
		return truthNull, nil
	}
	var cmp int
	switch col.Type().Type {
	case common.TypeBigInt:
		v, _ := col.GetInt64(row)
		cmp = compareInt64(v, lit.Int64)
	case common.TypeDouble:
		v, _ := col.GetFloat64(row)
		cmp = compareFloat64(v, lit.Float)
	case common.TypeVarchar:
		v, _ := col.GetString(row)
		cmp = compareString(v, lit.String)
	case common.TypeBoolean:
		v, _ := col.GetBool(row)
		cmp = compareBool(v, lit.Bool)
	default:
		return truthNull, errors.NewLocustErrorf(errors.InternalError, "comparison on unknown type")
	}
	switch op {
	case common.OpEq:
		return toTruth(cmp == 0), nil
	case common.OpNe:
		return toTruth(cmp != 0), nil
	case common.OpLt:
		return toTruth(cmp < 0), nil
	case common.OpLe:
		return toTruth(cmp <= 0), nil
	case common.OpGt:
		return toTruth(cmp > 0), nil
	case common.OpGe:
		return toTruth(cmp >= 0), nil
	default:
		return truthNull, errors.NewLocustErrorf(errors.InternalError, "unexpected comparison op %d", op)
	}
}

func toTruth(b bool) truth {
	if b {
		return truthTrue
	}
	return truthFalse
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
