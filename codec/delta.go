package codec

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jaywalker76/LocustDB/common"
)

// Delta (frame-of-reference) encoding for narrow-range BIGINT columns: a
// base value (the observed minimum) plus per-row offsets bit-packed to the
// minimum width covering the observed range. Null rows encode offset zero.

func encodeDelta(col *common.Column, base int64, width int) []byte {
	buff := appendNullPrelude(nil, col)
	buff = common.AppendUint64ToBufferLE(buff, uint64(base))
	buff = append(buff, byte(width))
	rc := col.RowCount()
	offsets := make([]uint64, rc)
	vals := col.Int64s()
	for i := 0; i < rc; i++ {
		if col.IsNull(i) {
			continue
		}
		offsets[i] = uint64(vals[i] - base)
	}
	return packInto(buff, offsets, width)
}

type deltaReader struct {
	seg    *Segment
	nulls  nullMask
	base   int64
	width  int
	packed []byte
}

func newDeltaReader(seg *Segment) (*deltaReader, error) {
	if err := seg.checkType(common.TypeBigInt); err != nil {
		return nil, err
	}
	nulls, offset, err := readNullPrelude(seg.Payload, seg.RowCount)
	if err != nil {
		return nil, err
	}
	payload := seg.Payload
	if offset+9 > len(payload) {
		return nil, corrupt("truncated delta header")
	}
	baseU, offset := common.ReadUint64FromBufferLE(payload, offset)
	width := int(payload[offset])
	offset++
	if width > maxPackWidth {
		return nil, corrupt("delta width out of range")
	}
	packed := payload[offset:]
	if len(packed) < packedLen(seg.RowCount, width) {
		return nil, corrupt("truncated delta body")
	}
	return &deltaReader{seg: seg, nulls: nulls, base: int64(baseU), width: width, packed: packed}, nil
}

func (rd *deltaReader) int64At(row int) int64 {
	return rd.base + int64(unpackAt(rd.packed, rd.width, row))
}

func (rd *deltaReader) decode(col *common.Column) error {
	for row := 0; row < rd.seg.RowCount; row++ {
		if rd.nulls.isNull(row) {
			col.AppendNull()
		} else {
			col.AppendInt64(rd.int64At(row))
		}
	}
	return nil
}

func (rd *deltaReader) valueAt(row int) common.Literal {
	if rd.nulls.isNull(row) {
		return common.NullLiteral()
	}
	return common.Int64Literal(rd.int64At(row))
}

// rebase converts a signed value to its unsigned distance from the base.
// Exact for any int64 pair with v >= base, including distances past
// math.MaxInt64 where the signed subtraction would wrap.
func rebase(v, base int64) uint64 {
	return uint64(v) - uint64(base)
}

// filterEqual compares packed offsets directly against the rebased target;
// a target outside the encodable range matches nothing.
func (rd *deltaReader) filterEqual(lit common.Literal, out *roaring.Bitmap) error {
	if lit.Int64 < rd.base {
		return nil
	}
	want := rebase(lit.Int64, rd.base)
	if bitsFor(want) > rd.width {
		return nil
	}
	for row := 0; row < rd.seg.RowCount; row++ {
		if unpackAt(rd.packed, rd.width, row) == want && !rd.nulls.isNull(row) {
			out.Add(uint32(row))
		}
	}
	return nil
}

func (rd *deltaReader) filterRange(lo, hi *common.Literal, loIncl, hiIncl bool, out *roaring.Bitmap) error {
	// rebase the bounds once so the scan compares raw packed offsets
	var loOff, hiOff *uint64
	if lo != nil {
		b := lo.Int64
		if !loIncl {
			if b == math.MaxInt64 {
				// exclusive bound above every representable value
				return nil
			}
			b++
		}
		if b > rd.base {
			u := rebase(b, rd.base)
			loOff = &u
		}
	}
	if hi != nil {
		b := hi.Int64
		if !hiIncl {
			if b == math.MinInt64 {
				return nil
			}
			b--
		}
		if b < rd.base {
			return nil
		}
		u := rebase(b, rd.base)
		hiOff = &u
	}
	for row := 0; row < rd.seg.RowCount; row++ {
		v := unpackAt(rd.packed, rd.width, row)
		if loOff != nil && v < *loOff {
			continue
		}
		if hiOff != nil && v > *hiOff {
			continue
		}
		if !rd.nulls.isNull(row) {
			out.Add(uint32(row))
		}
	}
	return nil
}

// sum computes base*count + sum(offsets) without materializing any value.
// With nulls present the base contribution of each null row has to come
// back out, since the placeholder offset is zero, not the base.
func (rd *deltaReader) sum() (common.Literal, bool) {
	var offsetTotal int64
	var ok bool
	for row := 0; row < rd.seg.RowCount; row++ {
		if offsetTotal, ok = addInt64Checked(offsetTotal, int64(unpackAt(rd.packed, rd.width, row))); !ok {
			return common.Literal{}, false
		}
	}
	nonNull := int64(rd.seg.RowCount - rd.seg.Stats.NullCount)
	based, ok := mulInt64Checked(rd.base, nonNull)
	if !ok {
		return common.Literal{}, false
	}
	total, ok := addInt64Checked(based, offsetTotal)
	if !ok {
		return common.Literal{}, false
	}
	return common.Int64Literal(total), true
}
