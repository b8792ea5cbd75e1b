package codec

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jaywalker76/LocustDB/common"
)

// Dictionary encoding for low-cardinality VARCHAR and BIGINT columns: a
// distinct-value table in first-occurrence order plus per-row indices,
// bit-packed to the minimum width covering the table. When the segment
// contains nulls, the index one past the table length is the null slot.

// encodeDictionary returns ok=false if the distinct count exceeds maxSize,
// in which case the caller falls back to another codec.
func encodeDictionary(col *common.Column, maxSize int) ([]byte, bool) {
	rc := col.RowCount()
	hasNulls := false
	indices := make([]uint64, rc)

	var dictLen int
	var buff []byte
	switch col.Type().Type {
	case common.TypeVarchar:
		table := make(map[string]uint64, 64)
		var order []string
		vals := col.Strings()
		for i := 0; i < rc; i++ {
			if col.IsNull(i) {
				hasNulls = true
				continue
			}
			idx, ok := table[vals[i]]
			if !ok {
				idx = uint64(len(order))
				table[vals[i]] = idx
				order = append(order, vals[i])
				if len(order) > maxSize {
					return nil, false
				}
			}
			indices[i] = idx
		}
		dictLen = len(order)
		buff = appendNullPrelude(nil, col)
		buff = common.AppendUint32ToBufferLE(buff, uint32(dictLen))
		for _, v := range order {
			buff = common.AppendStringToBufferLE(buff, v)
		}
	case common.TypeBigInt:
		table := make(map[int64]uint64, 64)
		var order []int64
		vals := col.Int64s()
		for i := 0; i < rc; i++ {
			if col.IsNull(i) {
				hasNulls = true
				continue
			}
			idx, ok := table[vals[i]]
			if !ok {
				idx = uint64(len(order))
				table[vals[i]] = idx
				order = append(order, vals[i])
				if len(order) > maxSize {
					return nil, false
				}
			}
			indices[i] = idx
		}
		dictLen = len(order)
		buff = appendNullPrelude(nil, col)
		buff = common.AppendUint32ToBufferLE(buff, uint32(dictLen))
		for _, v := range order {
			buff = common.AppendUint64ToBufferLE(buff, uint64(v))
		}
	default:
		return nil, false
	}

	// null rows index one past the table so they can never collide with a
	// real value
	slots := dictLen
	if hasNulls {
		nullSlot := uint64(dictLen)
		for i := 0; i < rc; i++ {
			if col.IsNull(i) {
				indices[i] = nullSlot
			}
		}
		slots = dictLen + 1
	}
	width := bitsFor(uint64(slots))
	buff = append(buff, byte(width))
	buff = packInto(buff, indices, width)
	return buff, true
}

type dictReader struct {
	seg      *Segment
	nulls    nullMask
	dictStr  []string
	dictInt  []int64
	width    int
	packed   []byte
	nullSlot uint64 // == dict length when nulls present
}

func newDictReader(seg *Segment) (*dictReader, error) {
	nulls, offset, err := readNullPrelude(seg.Payload, seg.RowCount)
	if err != nil {
		return nil, err
	}
	payload := seg.Payload
	if offset+4 > len(payload) {
		return nil, corrupt("truncated dictionary header")
	}
	dictLen32, offset := common.ReadUint32FromBufferLE(payload, offset)
	dictLen := int(dictLen32)
	rd := &dictReader{seg: seg, nulls: nulls, nullSlot: uint64(dictLen)}
	switch seg.ColType.Type {
	case common.TypeVarchar:
		rd.dictStr = make([]string, dictLen)
		for i := 0; i < dictLen; i++ {
			if offset+4 > len(payload) {
				return nil, corrupt("truncated dictionary table")
			}
			rd.dictStr[i], offset = common.ReadStringFromBufferLE(payload, offset)
		}
	case common.TypeBigInt:
		if offset+dictLen*8 > len(payload) {
			return nil, corrupt("truncated dictionary table")
		}
		rd.dictInt = make([]int64, dictLen)
		for i := 0; i < dictLen; i++ {
			var u uint64
			u, offset = common.ReadUint64FromBufferLE(payload, offset)
			rd.dictInt[i] = int64(u)
		}
	default:
		return nil, corrupt("dictionary segment with non-dictionary type")
	}
	if offset >= len(payload) {
		return nil, corrupt("missing dictionary index width")
	}
	rd.width = int(payload[offset])
	offset++
	rd.packed = payload[offset:]
	if len(rd.packed) < packedLen(seg.RowCount, rd.width) {
		return nil, corrupt("truncated dictionary indices")
	}
	return rd, nil
}

// DictLen reports the size of the distinct-value table.
func (rd *dictReader) dictLen() int {
	if rd.dictStr != nil {
		return len(rd.dictStr)
	}
	return len(rd.dictInt)
}

func (rd *dictReader) indexAt(row int) uint64 {
	return unpackAt(rd.packed, rd.width, row)
}

func (rd *dictReader) decode(col *common.Column) error {
	for row := 0; row < rd.seg.RowCount; row++ {
		if rd.nulls.isNull(row) {
			col.AppendNull()
			continue
		}
		idx := rd.indexAt(row)
		if idx >= uint64(rd.dictLen()) {
			return corrupt("dictionary index out of range")
		}
		if rd.dictStr != nil {
			col.AppendString(rd.dictStr[idx])
		} else {
			col.AppendInt64(rd.dictInt[idx])
		}
	}
	return nil
}

func (rd *dictReader) valueAt(row int) common.Literal {
	if rd.nulls.isNull(row) {
		return common.NullLiteral()
	}
	idx := rd.indexAt(row)
	if rd.dictStr != nil {
		return common.StringLiteral(rd.dictStr[idx])
	}
	return common.Int64Literal(rd.dictInt[idx])
}

// filterEqual resolves the target against the dictionary table first; if
// the value is absent no row can match and the scan is skipped entirely.
func (rd *dictReader) filterEqual(lit common.Literal, out *roaring.Bitmap) error {
	target := -1
	if rd.dictStr != nil {
		for i, v := range rd.dictStr {
			if v == lit.String {
				target = i
				break
			}
		}
	} else {
		for i, v := range rd.dictInt {
			if v == lit.Int64 {
				target = i
				break
			}
		}
	}
	if target < 0 {
		return nil
	}
	want := uint64(target)
	for row := 0; row < rd.seg.RowCount; row++ {
		if rd.indexAt(row) == want && !rd.nulls.isNull(row) {
			out.Add(uint32(row))
		}
	}
	return nil
}

// filterRange precomputes which dictionary slots fall inside the range,
// then scans only the packed indices.
func (rd *dictReader) filterRange(lo, hi *common.Literal, loIncl, hiIncl bool, out *roaring.Bitmap) error {
	slots := rd.dictLen()
	inRange := make([]bool, slots+1) // +1 for the null slot, always false
	for i := 0; i < slots; i++ {
		if rd.dictStr != nil {
			inRange[i] = stringInRange(rd.dictStr[i], lo, hi, loIncl, hiIncl)
		} else {
			inRange[i] = int64InRange(rd.dictInt[i], lo, hi, loIncl, hiIncl)
		}
	}
	for row := 0; row < rd.seg.RowCount; row++ {
		if inRange[rd.indexAt(row)] && !rd.nulls.isNull(row) {
			out.Add(uint32(row))
		}
	}
	return nil
}

// sum counts occurrences per dictionary slot so each distinct value is
// multiplied rather than re-read per row.
func (rd *dictReader) sum() (common.Literal, bool) {
	if rd.dictInt == nil {
		return common.Literal{}, false
	}
	counts := make([]int64, rd.dictLen()+1)
	for row := 0; row < rd.seg.RowCount; row++ {
		counts[rd.indexAt(row)]++
	}
	var total int64
	for i, v := range rd.dictInt {
		weighted, ok := mulInt64Checked(v, counts[i])
		if !ok {
			return common.Literal{}, false
		}
		if total, ok = addInt64Checked(total, weighted); !ok {
			return common.Literal{}, false
		}
	}
	return common.Int64Literal(total), true
}
