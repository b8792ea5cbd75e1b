package aggfuncs

import (
	"github.com/jaywalker76/LocustDB/errors"
)

type sumAggregateFunction struct {
	aggregateFunctionBase
}

func (s *sumAggregateFunction) EvalInt64(currValue int64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	aggState.AddInt64(index, currValue)
	aggState.AddCount(index, 1)
	return nil
}

func (s *sumAggregateFunction) EvalFloat64(currValue float64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	aggState.SetFloat64(index, aggState.GetFloat64(index)+currValue)
	aggState.AddCount(index, 1)
	return nil
}

func (s *sumAggregateFunction) EvalString(currValue string, null bool, aggState *AggState, index int) error {
	return errors.NewTypeMismatchError("numeric", "varchar")
}

func (s *sumAggregateFunction) MergeState(from *AggState, to *AggState, index int) error {
	if !from.IsSet(index) {
		return nil
	}
	to.mergeIntSumFrom(from, index)
	to.SetFloat64(index, to.GetFloat64(index)+from.GetFloat64(index))
	to.AddCount(index, from.Count(index))
	return nil
}

type countAggregateFunction struct {
	aggregateFunctionBase
}

func (c *countAggregateFunction) EvalInt64(currValue int64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	aggState.AddCount(index, 1)
	return nil
}

func (c *countAggregateFunction) EvalFloat64(currValue float64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	aggState.AddCount(index, 1)
	return nil
}

func (c *countAggregateFunction) EvalString(currValue string, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	aggState.AddCount(index, 1)
	return nil
}

// EvalRow counts a row unconditionally, used for COUNT(*).
func (c *countAggregateFunction) EvalRow(aggState *AggState, index int) error {
	aggState.AddCount(index, 1)
	return nil
}

func (c *countAggregateFunction) MergeState(from *AggState, to *AggState, index int) error {
	to.AddCount(index, from.Count(index))
	return nil
}

type minAggregateFunction struct {
	aggregateFunctionBase
}

func (m *minAggregateFunction) EvalInt64(currValue int64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	if !aggState.IsSet(index) || currValue < aggState.GetInt64(index) {
		aggState.SetInt64(index, currValue)
	}
	aggState.AddCount(index, 1)
	return nil
}

func (m *minAggregateFunction) EvalFloat64(currValue float64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	if !aggState.IsSet(index) || currValue < aggState.GetFloat64(index) {
		aggState.SetFloat64(index, currValue)
	}
	aggState.AddCount(index, 1)
	return nil
}

func (m *minAggregateFunction) EvalString(currValue string, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	if !aggState.IsSet(index) || currValue < aggState.GetString(index) {
		aggState.SetString(index, currValue)
	}
	aggState.AddCount(index, 1)
	return nil
}

func (m *minAggregateFunction) MergeState(from *AggState, to *AggState, index int) error {
	if !from.IsSet(index) {
		return nil
	}
	wasSet := to.IsSet(index)
	if !wasSet || from.GetInt64(index) < to.GetInt64(index) {
		to.SetInt64(index, from.GetInt64(index))
	}
	if !wasSet || from.GetFloat64(index) < to.GetFloat64(index) {
		to.SetFloat64(index, from.GetFloat64(index))
	}
	if !wasSet || from.GetString(index) < to.GetString(index) {
		to.SetString(index, from.GetString(index))
	}
	to.AddCount(index, from.Count(index))
	return nil
}

type maxAggregateFunction struct {
	aggregateFunctionBase
}

func (m *maxAggregateFunction) EvalInt64(currValue int64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	if !aggState.IsSet(index) || currValue > aggState.GetInt64(index) {
		aggState.SetInt64(index, currValue)
	}
	aggState.AddCount(index, 1)
	return nil
}

func (m *maxAggregateFunction) EvalFloat64(currValue float64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	if !aggState.IsSet(index) || currValue > aggState.GetFloat64(index) {
		aggState.SetFloat64(index, currValue)
	}
	aggState.AddCount(index, 1)
	return nil
}

func (m *maxAggregateFunction) EvalString(currValue string, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	if !aggState.IsSet(index) || currValue > aggState.GetString(index) {
		aggState.SetString(index, currValue)
	}
	aggState.AddCount(index, 1)
	return nil
}

func (m *maxAggregateFunction) MergeState(from *AggState, to *AggState, index int) error {
	if !from.IsSet(index) {
		return nil
	}
	wasSet := to.IsSet(index)
	if !wasSet || from.GetInt64(index) > to.GetInt64(index) {
		to.SetInt64(index, from.GetInt64(index))
	}
	if !wasSet || from.GetFloat64(index) > to.GetFloat64(index) {
		to.SetFloat64(index, from.GetFloat64(index))
	}
	if !wasSet || from.GetString(index) > to.GetString(index) {
		to.SetString(index, from.GetString(index))
	}
	to.AddCount(index, from.Count(index))
	return nil
}

// avgAggregateFunction accumulates sum and count and divides at result
// extraction time, so partial states merge exactly.
type avgAggregateFunction struct {
	aggregateFunctionBase
}

func (a *avgAggregateFunction) EvalInt64(currValue int64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	aggState.AddInt64(index, currValue)
	aggState.AddCount(index, 1)
	return nil
}

func (a *avgAggregateFunction) EvalFloat64(currValue float64, null bool, aggState *AggState, index int) error {
	if null {
		return nil
	}
	aggState.SetFloat64(index, aggState.GetFloat64(index)+currValue)
	aggState.AddCount(index, 1)
	return nil
}

func (a *avgAggregateFunction) EvalString(currValue string, null bool, aggState *AggState, index int) error {
	return errors.NewTypeMismatchError("numeric", "varchar")
}

func (a *avgAggregateFunction) MergeState(from *AggState, to *AggState, index int) error {
	if !from.IsSet(index) {
		return nil
	}
	to.mergeIntSumFrom(from, index)
	to.SetFloat64(index, to.GetFloat64(index)+from.GetFloat64(index))
	to.AddCount(index, from.Count(index))
	return nil
}
