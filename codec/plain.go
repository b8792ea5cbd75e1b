package codec

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jaywalker76/LocustDB/common"
)

// Fixed-width raw storage, the fallback when no structure is exploitable.
// BIGINT and DOUBLE at 8 bytes per row, BOOLEAN at 1 byte, VARCHAR
// length-prefixed.

func encodePlain(col *common.Column) []byte {
	buff := appendNullPrelude(nil, col)
	rc := col.RowCount()
	switch col.Type().Type {
	case common.TypeBigInt:
		for _, v := range col.Int64s() {
			buff = common.AppendUint64ToBufferLE(buff, uint64(v))
		}
	case common.TypeDouble:
		for _, v := range col.Float64s() {
			buff = common.AppendFloat64ToBufferLE(buff, v)
		}
	case common.TypeVarchar:
		for _, v := range col.Strings() {
			buff = common.AppendStringToBufferLE(buff, v)
		}
	case common.TypeBoolean:
		for i := 0; i < rc; i++ {
			v, _ := col.GetBool(i)
			b := byte(0)
			if v {
				b = 1
			}
			buff = append(buff, b)
		}
	}
	return buff
}

type plainReader struct {
	seg   *Segment
	nulls nullMask
	body  []byte
	// VARCHAR values are materialized on open since they are not fixed
	// width and cannot be random-accessed in place
	strings []string
}

func newPlainReader(seg *Segment) (*plainReader, error) {
	nulls, offset, err := readNullPrelude(seg.Payload, seg.RowCount)
	if err != nil {
		return nil, err
	}
	rd := &plainReader{seg: seg, nulls: nulls, body: seg.Payload[offset:]}
	switch seg.ColType.Type {
	case common.TypeBigInt, common.TypeDouble:
		if len(rd.body) < seg.RowCount*8 {
			return nil, corrupt("truncated fixed-width body")
		}
	case common.TypeBoolean:
		if len(rd.body) < seg.RowCount {
			return nil, corrupt("truncated boolean body")
		}
	case common.TypeVarchar:
		rd.strings = make([]string, seg.RowCount)
		off := 0
		for i := 0; i < seg.RowCount; i++ {
			if off+4 > len(rd.body) {
				return nil, corrupt("truncated varchar body")
			}
			l, _ := common.ReadUint32FromBufferLE(rd.body, off)
			if off+4+int(l) > len(rd.body) {
				return nil, corrupt("truncated varchar value")
			}
			rd.strings[i], off = common.ReadStringFromBufferLE(rd.body, off)
		}
	}
	return rd, nil
}

func (rd *plainReader) int64At(row int) int64 {
	u, _ := common.ReadUint64FromBufferLE(rd.body, row*8)
	return int64(u)
}

func (rd *plainReader) float64At(row int) float64 {
	f, _ := common.ReadFloat64FromBufferLE(rd.body, row*8)
	return f
}

func (rd *plainReader) decode(col *common.Column) error {
	for row := 0; row < rd.seg.RowCount; row++ {
		if rd.nulls.isNull(row) {
			col.AppendNull()
			continue
		}
		switch rd.seg.ColType.Type {
		case common.TypeBigInt:
			col.AppendInt64(rd.int64At(row))
		case common.TypeDouble:
			col.AppendFloat64(rd.float64At(row))
		case common.TypeVarchar:
			col.AppendString(rd.strings[row])
		case common.TypeBoolean:
			col.AppendBool(rd.body[row] != 0)
		}
	}
	return nil
}

func (rd *plainReader) valueAt(row int) common.Literal {
	if rd.nulls.isNull(row) {
		return common.NullLiteral()
	}
	switch rd.seg.ColType.Type {
	case common.TypeBigInt:
		return common.Int64Literal(rd.int64At(row))
	case common.TypeDouble:
		return common.FloatLiteral(rd.float64At(row))
	case common.TypeVarchar:
		return common.StringLiteral(rd.strings[row])
	default:
		return common.BoolLiteral(rd.body[row] != 0)
	}
}

func (rd *plainReader) filterEqual(lit common.Literal, out *roaring.Bitmap) error {
	rc := rd.seg.RowCount
	switch rd.seg.ColType.Type {
	case common.TypeBigInt:
		for row := 0; row < rc; row++ {
			if !rd.nulls.isNull(row) && rd.int64At(row) == lit.Int64 {
				out.Add(uint32(row))
			}
		}
	case common.TypeDouble:
		for row := 0; row < rc; row++ {
			if !rd.nulls.isNull(row) && rd.float64At(row) == lit.Float {
				out.Add(uint32(row))
			}
		}
	case common.TypeVarchar:
		for row := 0; row < rc; row++ {
			if !rd.nulls.isNull(row) && rd.strings[row] == lit.String {
				out.Add(uint32(row))
			}
		}
	case common.TypeBoolean:
		want := byte(0)
		if lit.Bool {
			want = 1
		}
		for row := 0; row < rc; row++ {
			if !rd.nulls.isNull(row) && rd.body[row] == want {
				out.Add(uint32(row))
			}
		}
	}
	return nil
}

func (rd *plainReader) filterRange(lo, hi *common.Literal, loIncl, hiIncl bool, out *roaring.Bitmap) error {
	rc := rd.seg.RowCount
	switch rd.seg.ColType.Type {
	case common.TypeBigInt:
		for row := 0; row < rc; row++ {
			if !rd.nulls.isNull(row) && int64InRange(rd.int64At(row), lo, hi, loIncl, hiIncl) {
				out.Add(uint32(row))
			}
		}
	case common.TypeDouble:
		for row := 0; row < rc; row++ {
			if !rd.nulls.isNull(row) && float64InRange(rd.float64At(row), lo, hi, loIncl, hiIncl) {
				out.Add(uint32(row))
			}
		}
	case common.TypeVarchar:
		for row := 0; row < rc; row++ {
			if !rd.nulls.isNull(row) && stringInRange(rd.strings[row], lo, hi, loIncl, hiIncl) {
				out.Add(uint32(row))
			}
		}
	default:
		return nil
	}
	return nil
}

func (rd *plainReader) sum() (common.Literal, bool) {
	switch rd.seg.ColType.Type {
	case common.TypeBigInt:
		var total int64
		var ok bool
		for row := 0; row < rd.seg.RowCount; row++ {
			if !rd.nulls.isNull(row) {
				if total, ok = addInt64Checked(total, rd.int64At(row)); !ok {
					return common.Literal{}, false
				}
			}
		}
		return common.Int64Literal(total), true
	case common.TypeDouble:
		var total float64
		for row := 0; row < rd.seg.RowCount; row++ {
			if !rd.nulls.isNull(row) {
				total += rd.float64At(row)
			}
		}
		return common.FloatLiteral(total), true
	}
	return common.Literal{}, false
}
