package storage

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

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

func sealIntSegment(vals ...int64) *codec.Segment {
	col := common.NewColumn(common.BigIntColumnType)
	for _, v := range vals {
		col.AppendInt64(v)
	}
	return codec.Encode(col, testOptions)
}

func testID(partition uint64) table.SegmentID {
	return table.SegmentID{TableName: "trips", Column: "x", Partition: partition}
}

func testStoreRoundTrip(t *testing.T, store SegmentStore) {
	t.Helper()
	seg := sealIntSegment(1, 2, 3, 4, 5)
	require.NoError(t, store.StoreSegment(testID(0), seg))

	loaded, err := store.LoadSegment(testID(0))
	require.NoError(t, err)
	require.Equal(t, seg.Kind, loaded.Kind)
	require.Equal(t, seg.RowCount, loaded.RowCount)
	require.Equal(t, seg.Checksum, loaded.Checksum)

	col, err := codec.Decode(loaded)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, col.Int64s())
}

func TestPebbleStoreRoundTrip(t *testing.T) {
	store, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()
	testStoreRoundTrip(t, store)
}

func TestPebbleStoreReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPebbleStore(dir)
	require.NoError(t, err)
	seg := sealIntSegment(7, 8, 9)
	require.NoError(t, store.StoreSegment(testID(3), seg))
	require.NoError(t, store.Close())

	reopened, err := NewPebbleStore(dir)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()
	loaded, err := reopened.LoadSegment(testID(3))
	require.NoError(t, err)
	col, err := codec.Decode(loaded)
	require.NoError(t, err)
	require.Equal(t, []int64{7, 8, 9}, col.Int64s())
}

func TestFakeStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewFakeStore())
}

func TestLoadMissingSegment(t *testing.T) {
	store := NewFakeStore()
	_, err := store.LoadSegment(testID(42))
	require.Equal(t, errors.SegmentNotFound, errors.CodeOf(err))
}

func TestFakeStoreUnavailable(t *testing.T) {
	store := NewFakeStore()
	require.NoError(t, store.StoreSegment(testID(0), sealIntSegment(1)))
	store.SetUnavailable(true)
	_, err := store.LoadSegment(testID(0))
	require.Equal(t, errors.PersistenceUnavailable, errors.CodeOf(err))
	err = store.StoreSegment(testID(1), sealIntSegment(2))
	require.Equal(t, errors.PersistenceUnavailable, errors.CodeOf(err))
}

func TestFakeStoreCorruption(t *testing.T) {
	store := NewFakeStore()
	require.NoError(t, store.StoreSegment(testID(0), sealIntSegment(1, 2, 3)))
	store.CorruptSegment(testID(0))
	seg, err := store.LoadSegment(testID(0))
	if err == nil {
		_, err = codec.Decode(seg)
	}
	require.Equal(t, errors.CorruptSegment, errors.CodeOf(err))
}

func tripsTableMeta(batchCount uint64) *StoredTable {
	return &StoredTable{
		Info: &common.TableInfo{
			ID:          1,
			Name:        "trips",
			ColumnNames: []string{"x", "fare", "tag"},
			ColumnTypes: []common.ColumnType{
				common.BigIntColumnType,
				common.DoubleColumnType,
				common.VarcharColumnType,
			},
		},
		BatchCount: batchCount,
	}
}

func testMetaRoundTrip(t *testing.T, store SegmentStore) {
	t.Helper()
	require.NoError(t, store.StoreTableMeta(tripsTableMeta(2)))
	require.NoError(t, store.StoreTableMeta(&StoredTable{
		Info: &common.TableInfo{
			ID:          2,
			Name:        "events",
			ColumnNames: []string{"flagged"},
			ColumnTypes: []common.ColumnType{common.BooleanColumnType},
		},
		BatchCount: 1,
	}))
	// upsert replaces the earlier entry
	require.NoError(t, store.StoreTableMeta(tripsTableMeta(3)))

	metas, err := store.LoadTableMetas()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	sort.Slice(metas, func(i, j int) bool { return metas[i].Info.Name < metas[j].Info.Name })
	require.Equal(t, "events", metas[0].Info.Name)
	require.Equal(t, uint64(1), metas[0].BatchCount)
	require.Equal(t, "trips", metas[1].Info.Name)
	require.Equal(t, uint64(3), metas[1].BatchCount)
	require.Equal(t, []string{"x", "fare", "tag"}, metas[1].Info.ColumnNames)
	require.Equal(t, common.DoubleColumnType, metas[1].Info.ColumnTypes[1])
}

func TestPebbleStoreTableMetas(t *testing.T) {
	store, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()
	testMetaRoundTrip(t, store)
}

func TestFakeStoreTableMetas(t *testing.T) {
	testMetaRoundTrip(t, NewFakeStore())
}

func TestTableMetasSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.StoreTableMeta(tripsTableMeta(5)))
	require.NoError(t, store.Close())

	reopened, err := NewPebbleStore(dir)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()
	metas, err := reopened.LoadTableMetas()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "trips", metas[0].Info.Name)
	require.Equal(t, uint64(5), metas[0].BatchCount)
}

func TestMetaKeysDisjointFromSegmentKeys(t *testing.T) {
	// segment keys lead with 's', metadata keys with 'm', so the catalog
	// scan never picks up segment payloads
	require.Equal(t, byte('s'), testID(0).Key()[0])
	require.Equal(t, byte('m'), metaKey("trips")[0])
}

func TestSegmentKeysDistinct(t *testing.T) {
	a := table.SegmentID{TableName: "t", Column: "ab", Partition: 1}
	b := table.SegmentID{TableName: "ta", Column: "b", Partition: 1}
	require.NotEqual(t, a.Key(), b.Key())
}
