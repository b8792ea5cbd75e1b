package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaywalker76/LocustDB/aggfuncs"
	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/table"
)

var testOptions = codec.Options{
	MaxDictionarySize: 1024,
	MinRunLength:      4,
	SampleFraction:    1.0,
}

func intColumn(vals ...int64) *common.Column {
	col := common.NewColumn(common.BigIntColumnType)
	for _, v := range vals {
		col.AppendInt64(v)
	}
	return col
}

func stringColumn(vals ...string) *common.Column {
	col := common.NewColumn(common.VarcharColumnType)
	for _, v := range vals {
		col.AppendString(v)
	}
	return col
}

func makeBatch(t *testing.T, ordinal uint64, cols ...*common.Column) *table.Batch {
	t.Helper()
	segs := make([]*codec.Segment, len(cols))
	for i, col := range cols {
		segs[i] = codec.Encode(col, testOptions)
	}
	batch, err := table.NewBatch(ordinal, segs)
	require.NoError(t, err)
	return batch
}

func mustAgg(t *testing.T, funcType common.AggFuncType, arg ColRef, hasArg bool, name string) AggOp {
	t.Helper()
	argType := common.BigIntColumnType
	if hasArg {
		argType = arg.Type
	}
	f, err := aggfuncs.NewAggregateFunction(funcType, argType)
	require.NoError(t, err)
	return AggOp{FuncType: funcType, Arg: arg, HasArg: hasArg, Func: f, OutputName: name}
}

func boundGe(colIndex int, colName string, lit common.Literal) *common.Predicate {
	p := common.NewComparison(common.OpGe, colName, lit)
	p.ColIndex = colIndex
	return p
}

func xTableInfo() *common.TableInfo {
	return &common.TableInfo{
		Name:        "trips",
		ColumnNames: []string{"x"},
		ColumnTypes: []common.ColumnType{common.BigIntColumnType},
	}
}

func TestFilterAndProject(t *testing.T) {
	batch := makeBatch(t, 0, intColumn(0, 1, 2, 3, 4, 5, 6, 7, 8, 9))
	desc := &PipelineDesc{
		Table:  xTableInfo(),
		Output: []ColRef{{Name: "x", Index: 0, Type: common.BigIntColumnType}},
		Filter: boundGe(0, "x", common.Int64Literal(5)),
		Limit:  -1,
	}
	res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batch))
	require.NoError(t, err)
	require.Equal(t, 5, res.Rows.RowCount())
	for i := 0; i < 5; i++ {
		require.Equal(t, int64(5+i), res.Rows.GetRow(i).GetInt64(0))
	}
}

func TestFilterAndNotCombination(t *testing.T) {
	batch := makeBatch(t, 0, intColumn(0, 1, 2, 3, 4, 5, 6, 7, 8, 9))
	eq5 := common.NewComparison(common.OpEq, "x", common.Int64Literal(5))
	eq5.ColIndex = 0
	pred := common.NewAnd(boundGe(0, "x", common.Int64Literal(3)), common.NewNot(eq5))
	desc := &PipelineDesc{
		Table:  xTableInfo(),
		Output: []ColRef{{Name: "x", Index: 0, Type: common.BigIntColumnType}},
		Filter: pred,
		Limit:  -1,
	}
	res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batch))
	require.NoError(t, err)
	var got []int64
	for i := 0; i < res.Rows.RowCount(); i++ {
		got = append(got, res.Rows.GetRow(i).GetInt64(0))
	}
	require.Equal(t, []int64{3, 4, 6, 7, 8, 9}, got)
}

// Three delta-encoded batches of 100 ascending values; the filtered sum
// must come out the same no matter what order the partials arrive in.
func TestSumWithFilterAcrossBatches(t *testing.T) {
	var batches []*table.Batch
	for b := 0; b < 3; b++ {
		col := common.NewColumn(common.BigIntColumnType)
		for i := 0; i < 100; i++ {
			col.AppendInt64(int64(b*100 + i))
		}
		batch := makeBatch(t, uint64(b), col)
		require.Equal(t, codec.KindDelta, batch.Segments[0].Kind)
		batches = append(batches, batch)
	}
	xRef := ColRef{Name: "x", Index: 0, Type: common.BigIntColumnType}
	desc := &PipelineDesc{
		Table:  xTableInfo(),
		Filter: boundGe(0, "x", common.Int64Literal(150)),
		Aggs:   []AggOp{mustAgg(t, common.AggSum, xRef, true, "sum_0")},
		Limit:  -1,
	}
	var partials []*BatchResult
	// completion order deliberately scrambled
	for _, b := range []int{2, 0, 1} {
		res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batches[b]))
		require.NoError(t, err)
		partials = append(partials, res)
	}
	rows, err := MergeResults(desc, partials)
	require.NoError(t, err)
	require.Equal(t, 1, rows.RowCount())
	require.Equal(t, int64(33675), rows.GetRow(0).GetInt64(0))
}

func TestSumFastPathUnfiltered(t *testing.T) {
	batch := makeBatch(t, 0, intColumn(10, 20, 30, 40))
	xRef := ColRef{Name: "x", Index: 0, Type: common.BigIntColumnType}
	desc := &PipelineDesc{
		Table: xTableInfo(),
		Aggs:  []AggOp{mustAgg(t, common.AggSum, xRef, true, "sum_0")},
		Limit: -1,
	}
	res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batch))
	require.NoError(t, err)
	rows, err := MergeResults(desc, []*BatchResult{res})
	require.NoError(t, err)
	require.Equal(t, int64(100), rows.GetRow(0).GetInt64(0))
}

// An unfiltered sum whose true total exceeds int64 must not wrap silently:
// the encoded-form fast path refuses, the row-wise accumulation promotes,
// and result extraction reports the value as out of range.
func TestSumOverflowReportsOutOfRange(t *testing.T) {
	huge := int64(3000000000000000000)
	batch := makeBatch(t, 0, intColumn(huge, huge, huge, huge))
	require.Equal(t, codec.KindRunLength, batch.Segments[0].Kind)
	xRef := ColRef{Name: "x", Index: 0, Type: common.BigIntColumnType}
	desc := &PipelineDesc{
		Table: xTableInfo(),
		Aggs:  []AggOp{mustAgg(t, common.AggSum, xRef, true, "sum_0")},
		Limit: -1,
	}
	res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batch))
	require.NoError(t, err)
	_, err = MergeResults(desc, []*BatchResult{res})
	require.Equal(t, errors.ValueOutOfRange, errors.CodeOf(err))
}

func groupByDesc(t *testing.T) *PipelineDesc {
	info := &common.TableInfo{
		Name:        "events",
		ColumnNames: []string{"tag"},
		ColumnTypes: []common.ColumnType{common.VarcharColumnType},
	}
	return &PipelineDesc{
		Table:   info,
		GroupBy: []ColRef{{Name: "tag", Index: 0, Type: common.VarcharColumnType}},
		Aggs:    []AggOp{mustAgg(t, common.AggCount, ColRef{}, false, "count_0")},
		Limit:   -1,
	}
}

func TestGroupByDictionaryCounts(t *testing.T) {
	batch := makeBatch(t, 0, stringColumn("a", "b", "a", "c"))
	require.Equal(t, codec.KindDictionary, batch.Segments[0].Kind)
	desc := groupByDesc(t)
	res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batch))
	require.NoError(t, err)
	rows, err := MergeResults(desc, []*BatchResult{res})
	require.NoError(t, err)
	require.Equal(t, 3, rows.RowCount())
	counts := map[string]int64{}
	for i := 0; i < rows.RowCount(); i++ {
		row := rows.GetRow(i)
		counts[row.GetString(0)] = row.GetInt64(1)
	}
	require.Equal(t, map[string]int64{"a": 2, "b": 1, "c": 1}, counts)
	// first-occurrence order
	require.Equal(t, "a", rows.GetRow(0).GetString(0))
	require.Equal(t, "b", rows.GetRow(1).GetString(0))
	require.Equal(t, "c", rows.GetRow(2).GetString(0))
}

func TestGroupByMergeIndependentOfArrival(t *testing.T) {
	b0 := makeBatch(t, 0, stringColumn("a", "b"))
	b1 := makeBatch(t, 1, stringColumn("a", "c"))
	desc := groupByDesc(t)
	r0, err := ExecuteBatch(context.Background(), desc, NewBatchSource(b0))
	require.NoError(t, err)
	r1, err := ExecuteBatch(context.Background(), desc, NewBatchSource(b1))
	require.NoError(t, err)

	first, err := MergeResults(desc, []*BatchResult{r0, r1})
	require.NoError(t, err)
	second, err := MergeResults(desc, []*BatchResult{r1, r0})
	require.NoError(t, err)
	require.Equal(t, first.RowCount(), second.RowCount())
	for i := 0; i < first.RowCount(); i++ {
		require.Equal(t, first.GetRow(i).GetString(0), second.GetRow(i).GetString(0))
		require.Equal(t, first.GetRow(i).GetInt64(1), second.GetRow(i).GetInt64(1))
	}
	require.Equal(t, "a", first.GetRow(0).GetString(0))
	require.Equal(t, int64(2), first.GetRow(0).GetInt64(1))
}

func TestGroupByNullKeyFormsGroup(t *testing.T) {
	col := common.NewColumn(common.VarcharColumnType)
	col.AppendString("a")
	col.AppendNull()
	col.AppendString("a")
	col.AppendNull()
	batch := makeBatch(t, 0, col)
	desc := groupByDesc(t)
	res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batch))
	require.NoError(t, err)
	rows, err := MergeResults(desc, []*BatchResult{res})
	require.NoError(t, err)
	require.Equal(t, 2, rows.RowCount())
	require.Equal(t, "a", rows.GetRow(0).GetString(0))
	require.Equal(t, int64(2), rows.GetRow(0).GetInt64(1))
	require.True(t, rows.GetRow(1).IsNull(0))
	require.Equal(t, int64(2), rows.GetRow(1).GetInt64(1))
}

func TestOrderByLimitAcrossBatches(t *testing.T) {
	b0 := makeBatch(t, 0, intColumn(5, 1, 9, 5))
	b1 := makeBatch(t, 1, intColumn(7, 5, 2, 8))
	desc := &PipelineDesc{
		Table:   xTableInfo(),
		Output:  []ColRef{{Name: "x", Index: 0, Type: common.BigIntColumnType}},
		OrderBy: []OrderOp{{OutputIndex: 0, Descending: true}},
		Limit:   4,
	}
	r0, err := ExecuteBatch(context.Background(), desc, NewBatchSource(b0))
	require.NoError(t, err)
	r1, err := ExecuteBatch(context.Background(), desc, NewBatchSource(b1))
	require.NoError(t, err)
	require.Equal(t, 4, r0.Rows.RowCount())
	rows, err := MergeResults(desc, []*BatchResult{r1, r0})
	require.NoError(t, err)
	var got []int64
	for i := 0; i < rows.RowCount(); i++ {
		got = append(got, rows.GetRow(i).GetInt64(0))
	}
	require.Equal(t, []int64{9, 8, 7, 5}, got)
}

// Equal sort keys must resolve to original row order: batch ordinal first,
// then row position within the batch.
func TestOrderByTieBreakStable(t *testing.T) {
	b0 := makeBatch(t, 0, intColumn(5, 5), intColumn(100, 101))
	b1 := makeBatch(t, 1, intColumn(5, 5), intColumn(102, 103))
	info := &common.TableInfo{
		Name:        "trips",
		ColumnNames: []string{"k", "v"},
		ColumnTypes: []common.ColumnType{common.BigIntColumnType, common.BigIntColumnType},
	}
	desc := &PipelineDesc{
		Table: info,
		Output: []ColRef{
			{Name: "k", Index: 0, Type: common.BigIntColumnType},
			{Name: "v", Index: 1, Type: common.BigIntColumnType},
		},
		OrderBy: []OrderOp{{OutputIndex: 0}},
		Limit:   -1,
	}
	r0, err := ExecuteBatch(context.Background(), desc, NewBatchSource(b0))
	require.NoError(t, err)
	r1, err := ExecuteBatch(context.Background(), desc, NewBatchSource(b1))
	require.NoError(t, err)
	rows, err := MergeResults(desc, []*BatchResult{r1, r0})
	require.NoError(t, err)
	var got []int64
	for i := 0; i < rows.RowCount(); i++ {
		got = append(got, rows.GetRow(i).GetInt64(1))
	}
	require.Equal(t, []int64{100, 101, 102, 103}, got)
}

func TestTopNHeapSmallLimit(t *testing.T) {
	col := common.NewColumn(common.BigIntColumnType)
	for i := 99; i >= 0; i-- {
		col.AppendInt64(int64(i))
	}
	batch := makeBatch(t, 0, col)
	desc := &PipelineDesc{
		Table:   xTableInfo(),
		Output:  []ColRef{{Name: "x", Index: 0, Type: common.BigIntColumnType}},
		OrderBy: []OrderOp{{OutputIndex: 0}},
		Limit:   3,
	}
	res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batch))
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows.RowCount())
	var got []int64
	for i := 0; i < 3; i++ {
		got = append(got, res.Rows.GetRow(i).GetInt64(0))
	}
	require.Equal(t, []int64{0, 1, 2}, got)
}

func TestMinMaxAvgEndToEnd(t *testing.T) {
	batch := makeBatch(t, 0, intColumn(4, 8, 6))
	xRef := ColRef{Name: "x", Index: 0, Type: common.BigIntColumnType}
	desc := &PipelineDesc{
		Table: xTableInfo(),
		Aggs: []AggOp{
			mustAgg(t, common.AggMin, xRef, true, "min_0"),
			mustAgg(t, common.AggMax, xRef, true, "max_1"),
			mustAgg(t, common.AggAvg, xRef, true, "avg_2"),
		},
		Limit: -1,
	}
	res, err := ExecuteBatch(context.Background(), desc, NewBatchSource(batch))
	require.NoError(t, err)
	rows, err := MergeResults(desc, []*BatchResult{res})
	require.NoError(t, err)
	row := rows.GetRow(0)
	require.Equal(t, int64(4), row.GetInt64(0))
	require.Equal(t, int64(8), row.GetInt64(1))
	require.Equal(t, 6.0, row.GetFloat64(2))
}

func TestCancelledBetweenOperators(t *testing.T) {
	batch := makeBatch(t, 0, intColumn(1, 2, 3))
	desc := &PipelineDesc{
		Table:  xTableInfo(),
		Output: []ColRef{{Name: "x", Index: 0, Type: common.BigIntColumnType}},
		Limit:  -1,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ExecuteBatch(ctx, desc, NewBatchSource(batch))
	require.Error(t, err)
	require.Equal(t, errors.QueryCancelled, errors.CodeOf(err))
}
