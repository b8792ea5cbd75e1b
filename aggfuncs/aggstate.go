package aggfuncs

import (
	"math/big"
)

// AggState holds the accumulators for one group: one slot per aggregate in
// the query. Integer sums overflow into a big.Int accumulator rather than
// wrapping.
type AggState struct {
	i64    []int64
	big    []*big.Int // non-nil once the int64 slot overflowed
	f64    []float64
	str    []string
	counts []int64 // non-null values seen, drives COUNT and AVG
	set    []bool  // slot has absorbed at least one non-null value
	size   int
}

func NewAggState(size int) *AggState {
	return &AggState{
		i64:    make([]int64, size),
		big:    make([]*big.Int, size),
		f64:    make([]float64, size),
		str:    make([]string, size),
		counts: make([]int64, size),
		set:    make([]bool, size),
		size:   size,
	}
}

func (as *AggState) Size() int {
	return as.size
}

func (as *AggState) IsSet(index int) bool {
	return as.set[index]
}

func (as *AggState) Count(index int) int64 {
	return as.counts[index]
}

func (as *AggState) SetInt64(index int, val int64) {
	as.set[index] = true
	as.i64[index] = val
}

func (as *AggState) GetInt64(index int) int64 {
	return as.i64[index]
}

func (as *AggState) SetFloat64(index int, val float64) {
	as.set[index] = true
	as.f64[index] = val
}

func (as *AggState) GetFloat64(index int) float64 {
	return as.f64[index]
}

func (as *AggState) SetString(index int, val string) {
	as.set[index] = true
	as.str[index] = val
}

func (as *AggState) GetString(index int) string {
	return as.str[index]
}

// AddInt64 adds to the integer slot, promoting to the big accumulator on
// overflow.
func (as *AggState) AddInt64(index int, val int64) {
	as.set[index] = true
	if as.big[index] != nil {
		as.big[index].Add(as.big[index], big.NewInt(val))
		return
	}
	prev := as.i64[index]
	sum := prev + val
	// overflow iff operands share a sign and the result does not
	if (prev > 0 && val > 0 && sum < 0) || (prev < 0 && val < 0 && sum >= 0) {
		b := big.NewInt(prev)
		b.Add(b, big.NewInt(val))
		as.big[index] = b
		return
	}
	as.i64[index] = sum
}

// Overflowed reports whether the integer slot was promoted.
func (as *AggState) Overflowed(index int) bool {
	return as.big[index] != nil
}

// GetBig returns the promoted accumulator; only valid when Overflowed.
func (as *AggState) GetBig(index int) *big.Int {
	return as.big[index]
}

// AddCount adds n non-null observations to the count slot.
func (as *AggState) AddCount(index int, n int64) {
	as.counts[index] += n
	if n > 0 {
		as.set[index] = true
	}
}

// mergeIntSumFrom folds another state's integer sum slot into this one,
// respecting promotion on either side.
func (as *AggState) mergeIntSumFrom(other *AggState, index int) {
	if other.big[index] != nil {
		if as.big[index] == nil {
			as.big[index] = big.NewInt(as.i64[index])
		}
		as.big[index].Add(as.big[index], other.big[index])
		as.set[index] = as.set[index] || other.set[index]
		return
	}
	as.AddInt64(index, other.i64[index])
	as.set[index] = as.set[index] || other.set[index]
}
