package storage

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/jaywalker76/LocustDB/codec"
	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/table"
)

// FakeStore is the in-memory SegmentStore used by tests. It round-trips
// segments through their serialized form so serialization bugs surface in
// unit tests, and it can inject failures and payload corruption.
type FakeStore struct {
	mu    sync.RWMutex
	btree *btree.BTree

	unavailable bool
	corrupted   map[string]struct{}
	metas       map[string]*StoredTable
}

type kvWrapper struct {
	key   []byte
	value []byte
}

func (k *kvWrapper) Less(than btree.Item) bool {
	return bytes.Compare(k.key, than.(*kvWrapper).key) < 0
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		btree:     btree.New(3),
		corrupted: make(map[string]struct{}),
		metas:     make(map[string]*StoredTable),
	}
}

// SetUnavailable makes every subsequent operation fail with
// PersistenceUnavailable.
func (f *FakeStore) SetUnavailable(unavailable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = unavailable
}

// CorruptSegment flips bytes in the stored payload of the given id, so the
// next load fails its checksum.
func (f *FakeStore) CorruptSegment(id table.SegmentID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrupted[id.String()] = struct{}{}
}

func (f *FakeStore) StoreSegment(id table.SegmentID, seg *codec.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return errors.NewPersistenceUnavailableError("fake store unavailable")
	}
	f.btree.ReplaceOrInsert(&kvWrapper{key: id.Key(), value: seg.Serialize(nil)})
	return nil
}

func (f *FakeStore) LoadSegment(id table.SegmentID) (*codec.Segment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.unavailable {
		return nil, errors.NewPersistenceUnavailableError("fake store unavailable")
	}
	item := f.btree.Get(&kvWrapper{key: id.Key()})
	if item == nil {
		return nil, errors.NewSegmentNotFoundError(id.String())
	}
	buff := common.CopyByteSlice(item.(*kvWrapper).value)
	if _, ok := f.corrupted[id.String()]; ok && len(buff) > 0 {
		buff[len(buff)-1] ^= 0xff
	}
	seg, err := codec.DeserializeSegment(buff)
	if err != nil {
		return nil, err
	}
	return seg, nil
}

func (f *FakeStore) StoreTableMeta(st *StoredTable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return errors.NewPersistenceUnavailableError("fake store unavailable")
	}
	// Round-trip through the serialized form, same as segments, so encoding
	// bugs show up in tests that never touch Pebble.
	buff := serializeTableMeta(st)
	copied, err := deserializeTableMeta(buff)
	if err != nil {
		return err
	}
	f.metas[st.Info.Name] = copied
	return nil
}

func (f *FakeStore) LoadTableMetas() ([]*StoredTable, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.unavailable {
		return nil, errors.NewPersistenceUnavailableError("fake store unavailable")
	}
	metas := make([]*StoredTable, 0, len(f.metas))
	for _, st := range f.metas {
		metas = append(metas, st)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Info.Name < metas[j].Info.Name
	})
	return metas, nil
}

func (f *FakeStore) Close() error {
	return nil
}
