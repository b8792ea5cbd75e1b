package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/conf"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/storage"
	"github.com/jaywalker76/LocustDB/table"
)

func tripsTable() *table.Table {
	return table.NewTable(&common.TableInfo{
		ID:          1,
		Name:        "trips",
		ColumnNames: []string{"x", "tag"},
		ColumnTypes: []common.ColumnType{common.BigIntColumnType, common.VarcharColumnType},
	})
}

func intCol(vals ...int64) *common.Column {
	col := common.NewColumn(common.BigIntColumnType)
	for _, v := range vals {
		col.AppendInt64(v)
	}
	return col
}

func strCol(vals ...string) *common.Column {
	col := common.NewColumn(common.VarcharColumnType)
	for _, v := range vals {
		col.AppendString(v)
	}
	return col
}

func TestIngestBatchSealsAndPersists(t *testing.T) {
	store := storage.NewFakeStore()
	ing := NewIngestor(conf.NewTestConfig(), store)
	tbl := tripsTable()

	batch, err := ing.IngestBatch(tbl, []*common.Column{
		intCol(0, 1, 2, 3, 4, 5, 6, 7),
		strCol("a", "a", "b", "a", "b", "a", "a", "b"),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), batch.Ordinal)
	require.Equal(t, 8, batch.RowCount)
	require.Equal(t, 8, tbl.RowCount())
	// ascending ints seal as delta, low-cardinality strings as dictionary
	require.Equal(t, codec.KindDelta, batch.Segment(0).Kind)
	require.Equal(t, codec.KindDictionary, batch.Segment(1).Kind)

	// segments written through the store before the batch is visible
	for i := 0; i < 2; i++ {
		loaded, err := store.LoadSegment(tbl.SegmentID(i, batch))
		require.NoError(t, err)
		col, err := codec.Decode(loaded)
		require.NoError(t, err)
		require.Equal(t, 8, col.RowCount())
	}
}

func TestIngestBatchOrdinalsIncrease(t *testing.T) {
	store := storage.NewFakeStore()
	ing := NewIngestor(conf.NewTestConfig(), store)
	tbl := tripsTable()

	for i := uint64(0); i < 3; i++ {
		batch, err := ing.IngestBatch(tbl, []*common.Column{
			intCol(1, 2),
			strCol("a", "b"),
		})
		require.NoError(t, err)
		require.Equal(t, i, batch.Ordinal)
	}
	require.Equal(t, 6, tbl.RowCount())
}

func TestIngestBatchTypeMismatch(t *testing.T) {
	ing := NewIngestor(conf.NewTestConfig(), storage.NewFakeStore())
	_, err := ing.IngestBatch(tripsTable(), []*common.Column{
		strCol("oops"),
		strCol("a"),
	})
	require.Equal(t, errors.TypeMismatch, errors.CodeOf(err))
}

func TestIngestBatchMisalignedColumns(t *testing.T) {
	ing := NewIngestor(conf.NewTestConfig(), storage.NewFakeStore())
	_, err := ing.IngestBatch(tripsTable(), []*common.Column{
		intCol(1, 2, 3),
		strCol("a", "b"),
	})
	require.Equal(t, errors.InvalidStatement, errors.CodeOf(err))
}

func TestIngestBatchWrongColumnCount(t *testing.T) {
	ing := NewIngestor(conf.NewTestConfig(), storage.NewFakeStore())
	_, err := ing.IngestBatch(tripsTable(), []*common.Column{intCol(1)})
	require.Equal(t, errors.InvalidStatement, errors.CodeOf(err))
}

func TestIngestBatchUnavailableStore(t *testing.T) {
	store := storage.NewFakeStore()
	store.SetUnavailable(true)
	ing := NewIngestor(conf.NewTestConfig(), store)
	_, err := ing.IngestBatch(tripsTable(), []*common.Column{
		intCol(1),
		strCol("a"),
	})
	require.Equal(t, errors.PersistenceUnavailable, errors.CodeOf(err))
}

func TestIngestBatchEmpty(t *testing.T) {
	ing := NewIngestor(conf.NewTestConfig(), storage.NewFakeStore())
	_, err := ing.IngestBatch(tripsTable(), []*common.Column{
		intCol(),
		strCol(),
	})
	require.Equal(t, errors.InvalidStatement, errors.CodeOf(err))
}
