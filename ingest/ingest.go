// Package ingest seals typed columnar data into immutable batches: one
// encoded segment per column, appended to the table and written through
// the persistence layer in the same step.
package ingest

import (
	log "github.com/sirupsen/logrus"

	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/conf"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/storage"
	"github.com/jaywalker76/LocustDB/table"
)

type Ingestor struct {
	opts  codec.Options
	store storage.SegmentStore
}

func NewIngestor(cfg conf.Config, store storage.SegmentStore) *Ingestor {
	return &Ingestor{
		opts: codec.Options{
			MaxDictionarySize: cfg.MaxDictionarySize,
			MinRunLength:      cfg.MinRunLength,
			SampleFraction:    cfg.SampleFraction,
		},
		store: store,
	}
}

// IngestBatch seals one segment per column and appends the batch to the
// table. Segments are persisted before the batch becomes visible to
// queries, so a loaded batch can always be served from the store.
func (in *Ingestor) IngestBatch(tbl *table.Table, cols []*common.Column) (*table.Batch, error) {
	if len(cols) != len(tbl.Info.ColumnTypes) {
		return nil, errors.NewInvalidStatementError(
			errors.Errorf("table %s has %d columns, batch has %d", tbl.Info.Name, len(tbl.Info.ColumnTypes), len(cols)).Error())
	}
	if len(cols) == 0 {
		return nil, errors.NewInvalidStatementError("batch has no columns")
	}
	rowCount := cols[0].RowCount()
	if rowCount == 0 {
		return nil, errors.NewInvalidStatementError("batch has no rows")
	}
	segments := make([]*codec.Segment, len(cols))
	for i, col := range cols {
		if col.Type().Type != tbl.Info.ColumnTypes[i].Type {
			return nil, errors.NewTypeMismatchError(tbl.Info.ColumnTypes[i].Type.String(), col.Type().Type.String())
		}
		if col.RowCount() != rowCount {
			return nil, errors.NewInvalidStatementError(
				errors.Errorf("column %s has %d rows, expected %d", tbl.Info.ColumnNames[i], col.RowCount(), rowCount).Error())
		}
		segments[i] = codec.Encode(col, in.opts)
	}
	batch, err := tbl.AddBatch(segments)
	if err != nil {
		return nil, err
	}
	for i := range segments {
		if err := in.store.StoreSegment(tbl.SegmentID(i, batch), segments[i]); err != nil {
			return nil, err
		}
	}
	log.Debugf("sealed batch %d of table %s: %d rows, %d segments",
		batch.Ordinal, tbl.Info.Name, rowCount, len(segments))
	return batch, nil
}
