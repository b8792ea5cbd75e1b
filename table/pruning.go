package table

import (
	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
)

// MatchResult is the three-valued outcome of checking a predicate against
// segment statistics. Pruning must be sound: DefinitelyExcluded is only
// returned when no row of the batch can match.
type MatchResult int

const (
	MaybeIncluded MatchResult = iota
	DefinitelyExcluded
)

// MatchesPredicate checks a bound predicate against a batch's per-column
// statistics without touching encoded bytes. The predicate must have its
// column indexes bound (planner output).
func MatchesPredicate(batch *Batch, pred *common.Predicate) MatchResult {
	if pred == nil {
		return MaybeIncluded
	}
	switch pred.Op {
	case common.OpAnd:
		// one excluded conjunct excludes the whole batch
		for _, c := range pred.Children {
			if MatchesPredicate(batch, c) == DefinitelyExcluded {
				return DefinitelyExcluded
			}
		}
		return MaybeIncluded
	case common.OpOr:
		for _, c := range pred.Children {
			if MatchesPredicate(batch, c) == MaybeIncluded {
				return MaybeIncluded
			}
		}
		return DefinitelyExcluded
	case common.OpNot:
		// statistics cannot soundly invert a maybe, so stay conservative
		return MaybeIncluded
	}
	return matchComparison(batch.Segment(pred.ColIndex).Stats, pred)
}

func matchComparison(stats codec.Stats, pred *common.Predicate) MatchResult {
	if !stats.HasValues {
		// all-null segments match no comparison
		return DefinitelyExcluded
	}
	switch pred.Op {
	case common.OpEq:
		if literalLess(pred.Literals[0], stats.Min) || literalLess(stats.Max, pred.Literals[0]) {
			return DefinitelyExcluded
		}
	case common.OpLt:
		if !literalLess(stats.Min, pred.Literals[0]) {
			return DefinitelyExcluded
		}
	case common.OpLe:
		if literalLess(pred.Literals[0], stats.Min) {
			return DefinitelyExcluded
		}
	case common.OpGt:
		if !literalLess(pred.Literals[0], stats.Max) {
			return DefinitelyExcluded
		}
	case common.OpGe:
		if literalLess(stats.Max, pred.Literals[0]) {
			return DefinitelyExcluded
		}
	case common.OpIn:
		for _, lit := range pred.Literals {
			if !literalLess(lit, stats.Min) && !literalLess(stats.Max, lit) {
				return MaybeIncluded
			}
		}
		return DefinitelyExcluded
	}
	// OpNe prunes only the degenerate all-equal batch
	if pred.Op == common.OpNe &&
		!literalLess(stats.Min, stats.Max) && !literalLess(stats.Max, stats.Min) &&
		!literalLess(stats.Min, pred.Literals[0]) && !literalLess(pred.Literals[0], stats.Min) &&
		stats.NullCount == 0 {
		return DefinitelyExcluded
	}
	return MaybeIncluded
}

// literalLess orders two literals of the same type. Used only for pruning,
// where the planner has already coerced literal types to the column type.
func literalLess(a, b common.Literal) bool {
	switch a.Type {
	case common.TypeBigInt:
		return a.Int64 < b.Int64
	case common.TypeDouble:
		return a.Float < b.Float
	case common.TypeVarchar:
		return a.String < b.String
	case common.TypeBoolean:
		return !a.Bool && b.Bool
	}
	return false
}

// Prune returns the batches of the table that survive the statistics
// check, preserving batch order.
func Prune(batches []*Batch, pred *common.Predicate) (surviving []*Batch, pruned int) {
	for _, b := range batches {
		if MatchesPredicate(b, pred) == DefinitelyExcluded {
			pruned++
			continue
		}
		surviving = append(surviving, b)
	}
	return surviving, pruned
}
