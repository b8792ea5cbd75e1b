// Package table holds the storage model the planner and scheduler operate
// on: immutable segments grouped into batches, batches grouped into
// tables.
package table

import (
	"fmt"
	"sync"

	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

// SegmentID identifies one column's segment within one partition of a
// table. It doubles as the cache key and the persistence key.
type SegmentID struct {
	TableName string
	Column    string
	Partition uint64
}

func (id SegmentID) String() string {
	return fmt.Sprintf("%s/%s/%d", id.TableName, id.Column, id.Partition)
}

// Key encodes the id for the KV persistence layer. The leading byte
// namespaces segment keys apart from table metadata keys; the components
// are length-prefixed so keys can never collide across tables or columns.
func (id SegmentID) Key() []byte {
	buff := common.AppendStringToBufferLE([]byte{'s'}, id.TableName)
	buff = common.AppendStringToBufferLE(buff, id.Column)
	return common.AppendUint64ToBufferLE(buff, id.Partition)
}

// Batch is one table partition: a fixed group of aligned segments, one per
// column, sharing a row count and ordering. It is the unit of scheduling
// and of pruning.
type Batch struct {
	Ordinal  uint64
	RowCount int
	// segments aligned with the table's column order
	Segments []*codec.Segment
}

func NewBatch(ordinal uint64, segments []*codec.Segment) (*Batch, error) {
	if len(segments) == 0 {
		return nil, errors.Errorf("batch %d has no segments", ordinal)
	}
	rc := segments[0].RowCount
	for _, seg := range segments[1:] {
		if seg.RowCount != rc {
			return nil, errors.Errorf("batch %d has misaligned segments: %d vs %d rows", ordinal, seg.RowCount, rc)
		}
	}
	return &Batch{Ordinal: ordinal, RowCount: rc, Segments: segments}, nil
}

func (b *Batch) Segment(colIndex int) *codec.Segment {
	return b.Segments[colIndex]
}

// Table is an ordered, append-only sequence of batches plus its schema.
// Batches are immutable once added; concurrent readers take a snapshot of
// the batch list and are unaffected by later appends.
type Table struct {
	Info *common.TableInfo

	mu      sync.RWMutex
	batches []*Batch
	nextOrd uint64
}

func NewTable(info *common.TableInfo) *Table {
	return &Table{Info: info}
}

// AddBatch appends a sealed batch and returns its ordinal.
func (t *Table) AddBatch(segments []*codec.Segment) (*Batch, error) {
	if len(segments) != len(t.Info.ColumnTypes) {
		return nil, errors.Errorf("table %s expects %d segments per batch, got %d",
			t.Info.Name, len(t.Info.ColumnTypes), len(segments))
	}
	for i, seg := range segments {
		if seg.ColType.Type != t.Info.ColumnTypes[i].Type {
			return nil, errors.NewTypeMismatchError(t.Info.ColumnTypes[i].Type.String(), seg.ColType.Type.String())
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	batch, err := NewBatch(t.nextOrd, segments)
	if err != nil {
		return nil, err
	}
	t.nextOrd++
	t.batches = append(t.batches, batch)
	return batch, nil
}

// Batches returns a snapshot of the current batch list.
func (t *Table) Batches() []*Batch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Batch, len(t.batches))
	copy(out, t.batches)
	return out
}

func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, b := range t.batches {
		total += b.RowCount
	}
	return total
}

func (t *Table) SegmentID(colIndex int, batch *Batch) SegmentID {
	return SegmentID{
		TableName: t.Info.Name,
		Column:    t.Info.ColumnNames[colIndex],
		Partition: batch.Ordinal,
	}
}
