package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaywalker76/LocustDB/cache"
	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/planner"
	"github.com/jaywalker76/LocustDB/storage"
	"github.com/jaywalker76/LocustDB/table"
)

var testOptions = codec.Options{
	MaxDictionarySize: 1024,
	MinRunLength:      4,
	SampleFraction:    1.0,
}

func sealInts(vals ...int64) *codec.Segment {
	col := common.NewColumn(common.BigIntColumnType)
	for _, v := range vals {
		col.AppendInt64(v)
	}
	return codec.Encode(col, testOptions)
}

func sealStrings(vals ...string) *codec.Segment {
	col := common.NewColumn(common.VarcharColumnType)
	for _, v := range vals {
		col.AppendString(v)
	}
	return codec.Encode(col, testOptions)
}

func ascendingInts(from, count int64) []int64 {
	vals := make([]int64, count)
	for i := range vals {
		vals[i] = from + int64(i)
	}
	return vals
}

func addBatch(t *testing.T, tbl *table.Table, store storage.SegmentStore, segments ...*codec.Segment) *table.Batch {
	t.Helper()
	batch, err := tbl.AddBatch(segments)
	require.NoError(t, err)
	for i := range segments {
		require.NoError(t, store.StoreSegment(tbl.SegmentID(i, batch), segments[i]))
	}
	return batch
}

// newTripsTable seals three delta batches of 100 ascending values each.
func newTripsTable(t *testing.T, store storage.SegmentStore) (*table.Table, *common.Schema) {
	t.Helper()
	info := &common.TableInfo{
		ID:          1,
		Name:        "trips",
		ColumnNames: []string{"x"},
		ColumnTypes: []common.ColumnType{common.BigIntColumnType},
	}
	tbl := table.NewTable(info)
	addBatch(t, tbl, store, sealInts(ascendingInts(0, 100)...))
	addBatch(t, tbl, store, sealInts(ascendingInts(100, 100)...))
	addBatch(t, tbl, store, sealInts(ascendingInts(200, 100)...))
	schema := common.NewSchema()
	schema.PutTable(info)
	return tbl, schema
}

func newScheduler(t *testing.T, store storage.SegmentStore, permits int) (*Scheduler, *cache.SegmentCache) {
	t.Helper()
	segCache := cache.New(8 * 1024 * 1024)
	sched, err := NewScheduler(4, permits, segCache, store)
	require.NoError(t, err)
	t.Cleanup(sched.Stop)
	return sched, segCache
}

func sumQueryPlan(t *testing.T, schema *common.Schema) *planner.Plan {
	t.Helper()
	plan, err := planner.NewPlanner(schema).Plan(&common.QueryDesc{
		TableName:  "trips",
		Aggregates: []common.AggDesc{{Func: common.AggSum, ColName: "x"}},
		Filter:     common.NewComparison(common.OpGe, "x", common.Int64Literal(150)),
		Limit:      -1,
	})
	require.NoError(t, err)
	return plan
}

func TestSumWithFilterAcrossBatches(t *testing.T) {
	store := storage.NewFakeStore()
	tbl, schema := newTripsTable(t, store)
	sched, _ := newScheduler(t, store, 2)

	res, err := sched.Execute(context.Background(), sumQueryPlan(t, schema), tbl)
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Empty(t, res.Warnings)
	require.Equal(t, StateDone, res.State)
	// the first batch has max 99 so stats alone exclude it
	require.Equal(t, 1, res.Pruned)
	require.Equal(t, []string{"sum_0"}, res.ColumnNames)
	require.Equal(t, 1, res.Rows.RowCount())
	require.Equal(t, int64(33675), res.Rows.GetRow(0).GetInt64(0))
}

func TestAllBatchesPruned(t *testing.T) {
	store := storage.NewFakeStore()
	tbl, schema := newTripsTable(t, store)
	sched, _ := newScheduler(t, store, 2)

	plan, err := planner.NewPlanner(schema).Plan(&common.QueryDesc{
		TableName:  "trips",
		Aggregates: []common.AggDesc{{Func: common.AggCount}},
		Filter:     common.NewComparison(common.OpGe, "x", common.Int64Literal(1000)),
		Limit:      -1,
	})
	require.NoError(t, err)

	res, err := sched.Execute(context.Background(), plan, tbl)
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Equal(t, 3, res.Pruned)
	require.Equal(t, StateDone, res.State)
	require.Equal(t, 1, res.Rows.RowCount())
	require.Equal(t, int64(0), res.Rows.GetRow(0).GetInt64(0))
}

func TestGroupByAcrossBatches(t *testing.T) {
	store := storage.NewFakeStore()
	info := &common.TableInfo{
		ID:          1,
		Name:        "events",
		ColumnNames: []string{"tag"},
		ColumnTypes: []common.ColumnType{common.VarcharColumnType},
	}
	tbl := table.NewTable(info)
	addBatch(t, tbl, store, sealStrings("a", "b", "a"))
	addBatch(t, tbl, store, sealStrings("c", "a"))
	schema := common.NewSchema()
	schema.PutTable(info)

	plan, err := planner.NewPlanner(schema).Plan(&common.QueryDesc{
		TableName:  "events",
		SelectCols: []string{"tag"},
		Aggregates: []common.AggDesc{{Func: common.AggCount}},
		GroupBy:    []string{"tag"},
		Limit:      -1,
	})
	require.NoError(t, err)

	sched, _ := newScheduler(t, store, 2)
	// groups surface in first-occurrence order over ordinal-ordered
	// batches, independent of which batch task finished first
	for i := 0; i < 5; i++ {
		res, err := sched.Execute(context.Background(), plan, tbl)
		require.NoError(t, err)
		require.True(t, res.Complete)
		require.Equal(t, 3, res.Rows.RowCount())
		require.Equal(t, "a", res.Rows.GetRow(0).GetString(0))
		require.Equal(t, int64(3), res.Rows.GetRow(0).GetInt64(1))
		require.Equal(t, "b", res.Rows.GetRow(1).GetString(0))
		require.Equal(t, int64(1), res.Rows.GetRow(1).GetInt64(1))
		require.Equal(t, "c", res.Rows.GetRow(2).GetString(0))
		require.Equal(t, int64(1), res.Rows.GetRow(2).GetInt64(1))
	}
}

func TestCorruptBatchExcludedWithWarning(t *testing.T) {
	store := storage.NewFakeStore()
	tbl, schema := newTripsTable(t, store)
	// flip a payload byte in the middle batch so reader open fails its
	// checksum
	middle := tbl.Batches()[1].Segment(0)
	middle.Payload[len(middle.Payload)-1] ^= 0xff

	sched, _ := newScheduler(t, store, 2)
	res, err := sched.Execute(context.Background(), sumQueryPlan(t, schema), tbl)
	require.NoError(t, err)
	require.False(t, res.Complete)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "batch 1 excluded")
	// only the last batch contributes: 200 + ... + 299
	require.Equal(t, int64(24950), res.Rows.GetRow(0).GetInt64(0))
}

func TestStoreFallbackWhenPayloadDropped(t *testing.T) {
	store := storage.NewFakeStore()
	tbl, schema := newTripsTable(t, store)
	// drop the in-memory payloads so every load goes through the store
	for _, batch := range tbl.Batches() {
		batch.Segment(0).Payload = nil
	}

	sched, _ := newScheduler(t, store, 2)
	res, err := sched.Execute(context.Background(), sumQueryPlan(t, schema), tbl)
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Equal(t, int64(33675), res.Rows.GetRow(0).GetInt64(0))
}

func TestPersistenceUnavailableAborts(t *testing.T) {
	store := storage.NewFakeStore()
	tbl, schema := newTripsTable(t, store)
	for _, batch := range tbl.Batches() {
		batch.Segment(0).Payload = nil
	}
	store.SetUnavailable(true)

	sched, _ := newScheduler(t, store, 2)
	_, err := sched.Execute(context.Background(), sumQueryPlan(t, schema), tbl)
	require.Equal(t, errors.PersistenceUnavailable, errors.CodeOf(err))
}

func TestCancelledContext(t *testing.T) {
	store := storage.NewFakeStore()
	tbl, schema := newTripsTable(t, store)
	sched, _ := newScheduler(t, store, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := sched.Execute(ctx, sumQueryPlan(t, schema), tbl)
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	require.False(t, res.Complete)
	// every batch task was cancelled before contributing, so the merge
	// is over zero partials
	require.NotNil(t, res.Rows)
	require.Equal(t, StateDone, res.State)
}

// cancellingStore serves the first surviving batch normally and cancels
// the query when the load for the last batch arrives.
type cancellingStore struct {
	storage.SegmentStore
	cancel context.CancelFunc
}

func (c *cancellingStore) LoadSegment(id table.SegmentID) (*codec.Segment, error) {
	if id.Partition == 2 {
		c.cancel()
		return nil, errors.NewQueryCancelledError()
	}
	return c.SegmentStore.LoadSegment(id)
}

func TestCancelledMidQueryReturnsPartials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{SegmentStore: storage.NewFakeStore(), cancel: cancel}
	tbl, schema := newTripsTable(t, store)
	for _, batch := range tbl.Batches() {
		batch.Segment(0).Payload = nil
	}

	segCache := cache.New(8 * 1024 * 1024)
	// a single worker runs the surviving batches in ordinal order, so
	// batch 1 finishes before the cancellation hits batch 2
	sched, err := NewScheduler(1, 2, segCache, store)
	require.NoError(t, err)
	t.Cleanup(sched.Stop)

	res, err := sched.Execute(ctx, sumQueryPlan(t, schema), tbl)
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	require.False(t, res.Complete)
	require.Equal(t, StateDone, res.State)
	// only batch 1 contributed: 150 + ... + 199
	require.Equal(t, 1, res.Rows.RowCount())
	require.Equal(t, int64(8725), res.Rows.GetRow(0).GetInt64(0))
}

func TestSegmentCacheReusedAcrossQueries(t *testing.T) {
	store := storage.NewFakeStore()
	tbl, schema := newTripsTable(t, store)
	sched, segCache := newScheduler(t, store, 2)

	plan := sumQueryPlan(t, schema)
	_, err := sched.Execute(context.Background(), plan, tbl)
	require.NoError(t, err)
	missesAfterFirst := segCache.Misses()
	require.Equal(t, int64(2), missesAfterFirst)

	_, err = sched.Execute(context.Background(), plan, tbl)
	require.NoError(t, err)
	require.Equal(t, missesAfterFirst, segCache.Misses())
	require.Equal(t, int64(2), segCache.Hits())
}

// countingStore records the maximum number of concurrent segment loads.
type countingStore struct {
	storage.SegmentStore
	inflight    int32
	maxInflight int32
}

func (c *countingStore) LoadSegment(id table.SegmentID) (*codec.Segment, error) {
	n := atomic.AddInt32(&c.inflight, 1)
	for {
		max := atomic.LoadInt32(&c.maxInflight)
		if n <= max || atomic.CompareAndSwapInt32(&c.maxInflight, max, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	defer atomic.AddInt32(&c.inflight, -1)
	return c.SegmentStore.LoadSegment(id)
}

func TestDecodePermitsBoundConcurrentLoads(t *testing.T) {
	store := &countingStore{SegmentStore: storage.NewFakeStore()}
	info := &common.TableInfo{
		ID:          1,
		Name:        "trips",
		ColumnNames: []string{"x"},
		ColumnTypes: []common.ColumnType{common.BigIntColumnType},
	}
	tbl := table.NewTable(info)
	for i := int64(0); i < 8; i++ {
		addBatch(t, tbl, store, sealInts(ascendingInts(i*100, 100)...))
	}
	for _, batch := range tbl.Batches() {
		batch.Segment(0).Payload = nil
	}
	schema := common.NewSchema()
	schema.PutTable(info)

	sched, _ := newScheduler(t, store, 1)
	plan, err := planner.NewPlanner(schema).Plan(&common.QueryDesc{
		TableName:  "trips",
		Aggregates: []common.AggDesc{{Func: common.AggSum, ColName: "x"}},
		Limit:      -1,
	})
	require.NoError(t, err)

	res, err := sched.Execute(context.Background(), plan, tbl)
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Equal(t, int32(1), atomic.LoadInt32(&store.maxInflight))
	// sum of 0..799
	require.Equal(t, int64(319600), res.Rows.GetRow(0).GetInt64(0))
}
