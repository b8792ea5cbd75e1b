package aggfuncs

import (
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

// AggregateFunction accumulates one aggregate over the values of a group.
// Implementations are stateless; all accumulation lives in the AggState so
// partial states computed per batch can be merged in any order.
type AggregateFunction interface {
	EvalInt64(currValue int64, null bool, aggState *AggState, index int) error
	EvalFloat64(currValue float64, null bool, aggState *AggState, index int) error
	EvalString(currValue string, null bool, aggState *AggState, index int) error

	// MergeState folds the partial state at index in from into to. Merging
	// is commutative and associative.
	MergeState(from *AggState, to *AggState, index int) error

	ValueType() common.ColumnType
	ArgType() common.ColumnType
}

type aggregateFunctionBase struct {
	valueType common.ColumnType
	argType   common.ColumnType
}

func (b *aggregateFunctionBase) ValueType() common.ColumnType {
	return b.valueType
}

func (b *aggregateFunctionBase) ArgType() common.ColumnType {
	return b.argType
}

// NewAggregateFunction returns the function for the given descriptor bound
// against the argument column type. COUNT has no argument column and takes
// an empty arg type.
func NewAggregateFunction(funcType common.AggFuncType, argType common.ColumnType) (AggregateFunction, error) {
	base := aggregateFunctionBase{argType: argType}
	switch funcType {
	case common.AggSum:
		switch argType.Type {
		case common.TypeBigInt:
			base.valueType = common.BigIntColumnType
		case common.TypeDouble:
			base.valueType = common.DoubleColumnType
		default:
			return nil, errors.NewTypeMismatchError("numeric", argType.String())
		}
		return &sumAggregateFunction{aggregateFunctionBase: base}, nil
	case common.AggCount:
		base.valueType = common.BigIntColumnType
		return &countAggregateFunction{aggregateFunctionBase: base}, nil
	case common.AggMin:
		base.valueType = argType
		return &minAggregateFunction{aggregateFunctionBase: base}, nil
	case common.AggMax:
		base.valueType = argType
		return &maxAggregateFunction{aggregateFunctionBase: base}, nil
	case common.AggAvg:
		if !argType.IsNumeric() {
			return nil, errors.NewTypeMismatchError("numeric", argType.String())
		}
		base.valueType = common.DoubleColumnType
		return &avgAggregateFunction{aggregateFunctionBase: base}, nil
	default:
		return nil, errors.NewLocustErrorf(errors.InternalError, "unknown aggregate function type %d", funcType)
	}
}
