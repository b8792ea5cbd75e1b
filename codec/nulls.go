package codec

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jaywalker76/LocustDB/common"
)

// Every payload starts with a null prelude: a flag byte, then a bitmap of
// rowCount bits when any row is null. Null rows encode a placeholder value
// in the codec body; the bitmap is authoritative.

func appendNullPrelude(buff []byte, col *common.Column) []byte {
	rc := col.RowCount()
	hasNulls := false
	for i := 0; i < rc; i++ {
		if col.IsNull(i) {
			hasNulls = true
			break
		}
	}
	if !hasNulls {
		return append(buff, 0)
	}
	buff = append(buff, 1)
	bitmap := make([]byte, (rc+7)/8)
	for i := 0; i < rc; i++ {
		if col.IsNull(i) {
			bitmap[i>>3] |= 1 << uint(i&7)
		}
	}
	return append(buff, bitmap...)
}

// nullMask is the decoded prelude. nil bits means no row is null.
type nullMask struct {
	bits []byte
}

func readNullPrelude(payload []byte, rowCount int) (nullMask, int, error) {
	if len(payload) == 0 {
		return nullMask{}, 0, corrupt("empty payload")
	}
	if payload[0] == 0 {
		return nullMask{}, 1, nil
	}
	n := (rowCount + 7) / 8
	if len(payload) < 1+n {
		return nullMask{}, 0, corrupt("truncated null bitmap")
	}
	return nullMask{bits: payload[1 : 1+n]}, 1 + n, nil
}

func (m nullMask) isNull(row int) bool {
	if m.bits == nil {
		return false
	}
	return m.bits[row>>3]&(1<<uint(row&7)) != 0
}

func (m nullMask) any() bool {
	return m.bits != nil
}

// removeNulls clears null rows out of a filter result, since a comparison
// against a null value matches nothing.
func (m nullMask) removeNulls(out *roaring.Bitmap, rowCount int) {
	if m.bits == nil {
		return
	}
	for i := 0; i < rowCount; i++ {
		if m.isNull(i) {
			out.Remove(uint32(i))
		}
	}
}
