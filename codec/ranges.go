package codec

import (
	"github.com/jaywalker76/LocustDB/common"
)

// Range bound checks shared by the filter paths. A nil bound is unbounded.

func int64InRange(v int64, lo, hi *common.Literal, loIncl, hiIncl bool) bool {
	if lo != nil {
		if loIncl {
			if v < lo.Int64 {
				return false
			}
		} else if v <= lo.Int64 {
			return false
		}
	}
	if hi != nil {
		if hiIncl {
			if v > hi.Int64 {
				return false
			}
		} else if v >= hi.Int64 {
			return false
		}
	}
	return true
}

func float64InRange(v float64, lo, hi *common.Literal, loIncl, hiIncl bool) bool {
	if lo != nil {
		if loIncl {
			if v < lo.Float {
				return false
			}
		} else if v <= lo.Float {
			return false
		}
	}
	if hi != nil {
		if hiIncl {
			if v > hi.Float {
				return false
			}
		} else if v >= hi.Float {
			return false
		}
	}
	return true
}

func stringInRange(v string, lo, hi *common.Literal, loIncl, hiIncl bool) bool {
	if lo != nil {
		if loIncl {
			if v < lo.String {
				return false
			}
		} else if v <= lo.String {
			return false
		}
	}
	if hi != nil {
		if hiIncl {
			if v > hi.String {
				return false
			}
		} else if v >= hi.String {
			return false
		}
	}
	return true
}
