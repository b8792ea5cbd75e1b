package table

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
)

var testOptions = codec.Options{
	MaxDictionarySize: 1024,
	MinRunLength:      4,
	SampleFraction:    1.0,
}

func intColumn(vals ...interface{}) *common.Column {
	col := common.NewColumn(common.BigIntColumnType)
	for _, v := range vals {
		if v == nil {
			col.AppendNull()
			continue
		}
		col.AppendInt64(v.(int64))
	}
	return col
}

func intBatch(t *testing.T, ordinal uint64, vals ...interface{}) *Batch {
	t.Helper()
	batch, err := NewBatch(ordinal, []*codec.Segment{codec.Encode(intColumn(vals...), testOptions)})
	require.NoError(t, err)
	return batch
}

func rangeBatch(t *testing.T, ordinal uint64, from, count int64) *Batch {
	t.Helper()
	vals := make([]interface{}, count)
	for i := range vals {
		vals[i] = from + int64(i)
	}
	return intBatch(t, ordinal, vals...)
}

func bound(p *common.Predicate) *common.Predicate {
	p.ColIndex = 0
	for _, c := range p.Children {
		bound(c)
	}
	return p
}

func cmp(op common.PredicateOp, v int64) *common.Predicate {
	return bound(common.NewComparison(op, "x", common.Int64Literal(v)))
}

func survivors(t *testing.T, batches []*Batch, pred *common.Predicate) []uint64 {
	t.Helper()
	surviving, pruned := Prune(batches, pred)
	require.Equal(t, len(batches)-len(surviving), pruned)
	var ordinals []uint64
	for _, b := range surviving {
		ordinals = append(ordinals, b.Ordinal)
	}
	return ordinals
}

func TestPruneComparisons(t *testing.T) {
	batches := []*Batch{
		rangeBatch(t, 0, 0, 100),
		rangeBatch(t, 1, 100, 100),
		rangeBatch(t, 2, 200, 100),
	}
	tests := []struct {
		name string
		pred *common.Predicate
		want []uint64
	}{
		{"eq in middle", cmp(common.OpEq, 150), []uint64{1}},
		{"eq at batch min", cmp(common.OpEq, 200), []uint64{2}},
		{"eq below all", cmp(common.OpEq, -1), nil},
		{"eq above all", cmp(common.OpEq, 300), nil},
		{"lt at boundary", cmp(common.OpLt, 100), []uint64{0}},
		{"le at boundary", cmp(common.OpLe, 100), []uint64{0, 1}},
		{"gt at boundary", cmp(common.OpGt, 199), []uint64{2}},
		{"ge at boundary", cmp(common.OpGe, 199), []uint64{1, 2}},
		{"ge above all", cmp(common.OpGe, 1000), nil},
		{"ne never prunes mixed batches", cmp(common.OpNe, 150), []uint64{0, 1, 2}},
		{"in one hit", bound(common.NewIn("x", []common.Literal{
			common.Int64Literal(500), common.Int64Literal(150)})), []uint64{1}},
		{"in no hits", bound(common.NewIn("x", []common.Literal{
			common.Int64Literal(500), common.Int64Literal(700)})), nil},
		{"nil predicate keeps all", nil, []uint64{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, survivors(t, batches, tt.pred))
		})
	}
}

func TestPruneNeAllEqualBatch(t *testing.T) {
	allFives := intBatch(t, 0, int64(5), int64(5), int64(5), int64(5))
	require.Equal(t, DefinitelyExcluded, MatchesPredicate(allFives, cmp(common.OpNe, 5)))
	require.Equal(t, MaybeIncluded, MatchesPredicate(allFives, cmp(common.OpNe, 6)))

	// a null row does not equal 5, so the batch cannot be excluded
	withNull := intBatch(t, 1, int64(5), nil, int64(5), int64(5))
	require.Equal(t, MaybeIncluded, MatchesPredicate(withNull, cmp(common.OpNe, 5)))
}

func TestPruneAllNullSegment(t *testing.T) {
	allNull := intBatch(t, 0, nil, nil, nil)
	for _, op := range []common.PredicateOp{
		common.OpEq, common.OpNe, common.OpLt, common.OpLe, common.OpGt, common.OpGe,
	} {
		require.Equal(t, DefinitelyExcluded, MatchesPredicate(allNull, cmp(op, 0)), "op %s", op)
	}
	require.Equal(t, DefinitelyExcluded,
		MatchesPredicate(allNull, bound(common.NewIn("x", []common.Literal{common.Int64Literal(0)}))))
}

func TestPruneNotIsConservative(t *testing.T) {
	batch := rangeBatch(t, 0, 0, 100)
	// every row satisfies x < 1000, so NOT matches nothing, but statistics
	// cannot prove that and the batch must survive
	require.Equal(t, MaybeIncluded, MatchesPredicate(batch, bound(common.NewNot(cmp(common.OpLt, 1000)))))
	require.Equal(t, MaybeIncluded, MatchesPredicate(batch, bound(common.NewNot(cmp(common.OpEq, 5000)))))
}

func TestPruneAndOrComposition(t *testing.T) {
	batch := rangeBatch(t, 0, 100, 100)
	// one impossible conjunct excludes the whole conjunction
	require.Equal(t, DefinitelyExcluded,
		MatchesPredicate(batch, bound(common.NewAnd(cmp(common.OpGe, 100), cmp(common.OpGt, 500)))))
	require.Equal(t, MaybeIncluded,
		MatchesPredicate(batch, bound(common.NewAnd(cmp(common.OpGe, 100), cmp(common.OpLt, 150)))))
	// a disjunction survives while any arm can match
	require.Equal(t, MaybeIncluded,
		MatchesPredicate(batch, bound(common.NewOr(cmp(common.OpGt, 500), cmp(common.OpEq, 150)))))
	require.Equal(t, DefinitelyExcluded,
		MatchesPredicate(batch, bound(common.NewOr(cmp(common.OpGt, 500), cmp(common.OpLt, 0)))))
}

func TestNewBatchRejectsMisalignedSegments(t *testing.T) {
	three := codec.Encode(intColumn(int64(1), int64(2), int64(3)), testOptions)
	four := codec.Encode(intColumn(int64(1), int64(2), int64(3), int64(4)), testOptions)
	_, err := NewBatch(0, []*codec.Segment{three, four})
	require.Error(t, err)
	_, err = NewBatch(0, nil)
	require.Error(t, err)
}

// rowMatches evaluates a single-column predicate against decoded values.
// Null rows match no comparison.
func rowMatches(col *common.Column, row int, pred *common.Predicate) bool {
	switch pred.Op {
	case common.OpAnd:
		for _, c := range pred.Children {
			if !rowMatches(col, row, c) {
				return false
			}
		}
		return true
	case common.OpOr:
		for _, c := range pred.Children {
			if rowMatches(col, row, c) {
				return true
			}
		}
		return false
	case common.OpNot:
		return !rowMatches(col, row, pred.Children[0])
	}
	v, ok := col.GetInt64(row)
	if !ok {
		return false
	}
	switch pred.Op {
	case common.OpEq:
		return v == pred.Literals[0].Int64
	case common.OpNe:
		return v != pred.Literals[0].Int64
	case common.OpLt:
		return v < pred.Literals[0].Int64
	case common.OpLe:
		return v <= pred.Literals[0].Int64
	case common.OpGt:
		return v > pred.Literals[0].Int64
	case common.OpGe:
		return v >= pred.Literals[0].Int64
	case common.OpIn:
		for _, lit := range pred.Literals {
			if v == lit.Int64 {
				return true
			}
		}
	}
	return false
}

func randomPredicate(rnd *rand.Rand, depth int) *common.Predicate {
	if depth > 0 {
		switch rnd.Intn(4) {
		case 0:
			return common.NewAnd(randomPredicate(rnd, depth-1), randomPredicate(rnd, depth-1))
		case 1:
			return common.NewOr(randomPredicate(rnd, depth-1), randomPredicate(rnd, depth-1))
		case 2:
			return common.NewNot(randomPredicate(rnd, depth-1))
		}
	}
	ops := []common.PredicateOp{
		common.OpEq, common.OpNe, common.OpLt, common.OpLe, common.OpGt, common.OpGe,
	}
	if rnd.Intn(6) == 0 {
		lits := make([]common.Literal, 1+rnd.Intn(3))
		for i := range lits {
			lits[i] = common.Int64Literal(int64(rnd.Intn(60) - 30))
		}
		return common.NewIn("x", lits)
	}
	op := ops[rnd.Intn(len(ops))]
	return common.NewComparison(op, "x", common.Int64Literal(int64(rnd.Intn(60)-30)))
}

// Pruning soundness: a batch holding any row that satisfies the predicate
// must never be excluded. Cross-checks random predicates against a full
// scan of the decoded values.
func TestPruneSoundnessRandomized(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		var batches []*Batch
		var cols []*common.Column
		for b := 0; b < 4; b++ {
			rows := 1 + rnd.Intn(12)
			vals := make([]interface{}, rows)
			for i := range vals {
				if rnd.Intn(8) == 0 {
					continue // null
				}
				vals[i] = int64(rnd.Intn(60) - 30)
			}
			col := intColumn(vals...)
			batch, err := NewBatch(uint64(b), []*codec.Segment{codec.Encode(col, testOptions)})
			require.NoError(t, err)
			batches = append(batches, batch)
			cols = append(cols, col)
		}
		pred := bound(randomPredicate(rnd, 2))

		surviving, pruned := Prune(batches, pred)
		require.Equal(t, len(batches), len(surviving)+pruned)
		kept := make(map[uint64]bool, len(surviving))
		for _, b := range surviving {
			kept[b.Ordinal] = true
		}
		for b, col := range cols {
			for row := 0; row < col.RowCount(); row++ {
				if rowMatches(col, row, pred) {
					require.True(t, kept[uint64(b)],
						"batch %d row %d matches %s but was pruned", b, row, pred)
					break
				}
			}
		}
	}
}
