package codec

import (
	"github.com/jaywalker76/LocustDB/common"
)

// estimates summarise the sampled value distribution codec selection works
// from. Statistics used for pruning are always exact; these are not.
type estimates struct {
	distinct     int
	avgRunLength float64
}

// minimum contiguous window inspected regardless of the sample fraction;
// strided samples would break up runs
const minSampleRows = 1024

func estimate(col *common.Column, opts Options) estimates {
	rc := col.RowCount()
	if rc == 0 {
		return estimates{}
	}
	window := int(float64(rc) * opts.SampleFraction)
	if window < minSampleRows {
		window = minSampleRows
	}
	if window > rc {
		window = rc
	}

	est := estimates{}
	runs := 1
	switch col.Type().Type {
	case common.TypeBigInt, common.TypeBoolean:
		seen := make(map[int64]struct{}, 64)
		vals := col.Int64s()
		for i := 0; i < window; i++ {
			if i > 0 && (vals[i] != vals[i-1] || col.IsNull(i) != col.IsNull(i-1)) {
				runs++
			}
			if len(seen) <= opts.MaxDictionarySize {
				seen[vals[i]] = struct{}{}
			}
		}
		est.distinct = scaleDistinct(len(seen), window, rc)
	case common.TypeDouble:
		vals := col.Float64s()
		for i := 1; i < window; i++ {
			if vals[i] != vals[i-1] || col.IsNull(i) != col.IsNull(i-1) {
				runs++
			}
		}
		est.distinct = rc // doubles are never dictionary encoded
	case common.TypeVarchar:
		seen := make(map[string]struct{}, 64)
		vals := col.Strings()
		for i := 0; i < window; i++ {
			if i > 0 && (vals[i] != vals[i-1] || col.IsNull(i) != col.IsNull(i-1)) {
				runs++
			}
			if len(seen) <= opts.MaxDictionarySize {
				seen[vals[i]] = struct{}{}
			}
		}
		est.distinct = scaleDistinct(len(seen), window, rc)
	}
	est.avgRunLength = float64(window) / float64(runs)
	return est
}

// scaleDistinct extrapolates a sampled distinct count to the full segment.
// A saturated sample (every sampled value distinct) scales linearly; a
// sample that repeats values is assumed to have seen most of the domain.
func scaleDistinct(sampled int, window int, rowCount int) int {
	if window >= rowCount || sampled < window/2 {
		return sampled
	}
	return int(float64(sampled) * float64(rowCount) / float64(window))
}
