// Package storage is the persistence collaborator: sealed segments are
// written through at ingest and reloaded on cache misses, keyed by their
// table, column and partition.
package storage

import (
	"github.com/cockroachdb/pebble"

	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/table"
)

// SegmentStore persists encoded segments with their codec metadata.
// Implementations are safe for concurrent use.
type SegmentStore interface {
	// StoreSegment writes the sealed segment durably.
	StoreSegment(id table.SegmentID, seg *codec.Segment) error

	// LoadSegment reads a segment back. Fails with SegmentNotFound when the
	// key was never written and PersistenceUnavailable when the store
	// cannot serve reads.
	LoadSegment(id table.SegmentID) (*codec.Segment, error)

	// StoreTableMeta upserts a table's catalog entry.
	StoreTableMeta(st *StoredTable) error

	// LoadTableMetas returns every persisted catalog entry.
	LoadTableMetas() ([]*StoredTable, error)

	Close() error
}

type pebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens the segment store in the given directory.
func NewPebbleStore(dir string) (SegmentStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.NewPersistenceUnavailableError(err.Error())
	}
	return &pebbleStore{db: db}, nil
}

func (s *pebbleStore) StoreSegment(id table.SegmentID, seg *codec.Segment) error {
	if err := s.db.Set(id.Key(), seg.Serialize(nil), &pebble.WriteOptions{Sync: true}); err != nil {
		return errors.NewPersistenceUnavailableError(err.Error())
	}
	return nil
}

func (s *pebbleStore) LoadSegment(id table.SegmentID) (*codec.Segment, error) {
	v, closer, err := s.db.Get(id.Key())
	defer common.InvokeCloser(closer)
	if err == pebble.ErrNotFound {
		return nil, errors.NewSegmentNotFoundError(id.String())
	}
	if err != nil {
		return nil, errors.NewPersistenceUnavailableError(err.Error())
	}
	// the buffer is only valid until the closer runs
	seg, err := codec.DeserializeSegment(common.CopyByteSlice(v))
	if err != nil {
		return nil, err
	}
	return seg, nil
}

func (s *pebbleStore) StoreTableMeta(st *StoredTable) error {
	if err := s.db.Set(metaKey(st.Info.Name), serializeTableMeta(st), &pebble.WriteOptions{Sync: true}); err != nil {
		return errors.NewPersistenceUnavailableError(err.Error())
	}
	return nil
}

func (s *pebbleStore) LoadTableMetas() ([]*StoredTable, error) {
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{'m'},
		UpperBound: []byte{'m' + 1},
	})
	defer common.InvokeCloser(iter)
	var metas []*StoredTable
	for iter.First(); iter.Valid(); iter.Next() {
		st, err := deserializeTableMeta(common.CopyByteSlice(iter.Value()))
		if err != nil {
			return nil, err
		}
		metas = append(metas, st)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.NewPersistenceUnavailableError(err.Error())
	}
	return metas, nil
}

func (s *pebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
