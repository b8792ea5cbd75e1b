package codec

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jaywalker76/LocustDB/common"
)

// Run-length encoding: (value, run length) pairs for columns with long
// runs of repeated values. Null rows encode a placeholder value and runs
// never span a null/non-null boundary.

func encodeRunLength(col *common.Column) []byte {
	buff := appendNullPrelude(nil, col)
	rc := col.RowCount()
	runStart := 0
	var runs []struct {
		start, length int
	}
	for i := 1; i <= rc; i++ {
		if i < rc && sameRunValue(col, i, i-1) {
			continue
		}
		runs = append(runs, struct{ start, length int }{runStart, i - runStart})
		runStart = i
	}
	buff = common.AppendUint32ToBufferLE(buff, uint32(len(runs)))
	for _, run := range runs {
		switch col.Type().Type {
		case common.TypeBigInt, common.TypeBoolean:
			v, _ := col.GetInt64(run.start)
			buff = common.AppendUint64ToBufferLE(buff, uint64(v))
		case common.TypeDouble:
			v, _ := col.GetFloat64(run.start)
			buff = common.AppendFloat64ToBufferLE(buff, v)
		case common.TypeVarchar:
			v, _ := col.GetString(run.start)
			buff = common.AppendStringToBufferLE(buff, v)
		}
		buff = common.AppendUint32ToBufferLE(buff, uint32(run.length))
	}
	return buff
}

func sameRunValue(col *common.Column, i, j int) bool {
	if col.IsNull(i) != col.IsNull(j) {
		return false
	}
	switch col.Type().Type {
	case common.TypeBigInt, common.TypeBoolean:
		a, _ := col.GetInt64(i)
		b, _ := col.GetInt64(j)
		return a == b
	case common.TypeDouble:
		a, _ := col.GetFloat64(i)
		b, _ := col.GetFloat64(j)
		return a == b
	case common.TypeVarchar:
		a, _ := col.GetString(i)
		b, _ := col.GetString(j)
		return a == b
	}
	return false
}

type rlRun struct {
	start  int
	length int
	i64    int64
	f64    float64
	str    string
}

type runLengthReader struct {
	seg   *Segment
	nulls nullMask
	runs  []rlRun
}

func newRunLengthReader(seg *Segment) (*runLengthReader, error) {
	nulls, offset, err := readNullPrelude(seg.Payload, seg.RowCount)
	if err != nil {
		return nil, err
	}
	payload := seg.Payload
	if offset+4 > len(payload) {
		return nil, corrupt("truncated run count")
	}
	runCount32, offset := common.ReadUint32FromBufferLE(payload, offset)
	runs := make([]rlRun, int(runCount32))
	rowsSeen := 0
	for i := range runs {
		run := &runs[i]
		switch seg.ColType.Type {
		case common.TypeBigInt, common.TypeBoolean:
			if offset+12 > len(payload) {
				return nil, corrupt("truncated run")
			}
			var u uint64
			u, offset = common.ReadUint64FromBufferLE(payload, offset)
			run.i64 = int64(u)
		case common.TypeDouble:
			if offset+12 > len(payload) {
				return nil, corrupt("truncated run")
			}
			run.f64, offset = common.ReadFloat64FromBufferLE(payload, offset)
		case common.TypeVarchar:
			if offset+4 > len(payload) {
				return nil, corrupt("truncated run")
			}
			run.str, offset = common.ReadStringFromBufferLE(payload, offset)
			if offset+4 > len(payload) {
				return nil, corrupt("truncated run length")
			}
		}
		var l uint32
		l, offset = common.ReadUint32FromBufferLE(payload, offset)
		run.start = rowsSeen
		run.length = int(l)
		rowsSeen += run.length
	}
	if rowsSeen != seg.RowCount {
		return nil, corrupt("run lengths disagree with sealed row count")
	}
	return &runLengthReader{seg: seg, nulls: nulls, runs: runs}, nil
}

func (rd *runLengthReader) decode(col *common.Column) error {
	for _, run := range rd.runs {
		for row := run.start; row < run.start+run.length; row++ {
			if rd.nulls.isNull(row) {
				col.AppendNull()
				continue
			}
			switch rd.seg.ColType.Type {
			case common.TypeBigInt:
				col.AppendInt64(run.i64)
			case common.TypeBoolean:
				col.AppendBool(run.i64 != 0)
			case common.TypeDouble:
				col.AppendFloat64(run.f64)
			case common.TypeVarchar:
				col.AppendString(run.str)
			}
		}
	}
	return nil
}

func (rd *runLengthReader) runFor(row int) *rlRun {
	// binary search over run start positions
	lo, hi := 0, len(rd.runs)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if rd.runs[mid].start <= row {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return &rd.runs[lo]
}

func (rd *runLengthReader) valueAt(row int) common.Literal {
	if rd.nulls.isNull(row) {
		return common.NullLiteral()
	}
	run := rd.runFor(row)
	switch rd.seg.ColType.Type {
	case common.TypeBigInt:
		return common.Int64Literal(run.i64)
	case common.TypeBoolean:
		return common.BoolLiteral(run.i64 != 0)
	case common.TypeDouble:
		return common.FloatLiteral(run.f64)
	default:
		return common.StringLiteral(run.str)
	}
}

// filterEqual adds whole runs at a time; matching rows arrive as ranges,
// never touching per-row values.
func (rd *runLengthReader) filterEqual(lit common.Literal, out *roaring.Bitmap) error {
	for _, run := range rd.runs {
		if rd.runMatchesEqual(&run, lit) {
			out.AddRange(uint64(run.start), uint64(run.start+run.length))
		}
	}
	rd.nulls.removeNulls(out, rd.seg.RowCount)
	return nil
}

func (rd *runLengthReader) runMatchesEqual(run *rlRun, lit common.Literal) bool {
	switch rd.seg.ColType.Type {
	case common.TypeBigInt:
		return run.i64 == lit.Int64
	case common.TypeBoolean:
		return (run.i64 != 0) == lit.Bool
	case common.TypeDouble:
		return run.f64 == lit.Float
	case common.TypeVarchar:
		return run.str == lit.String
	}
	return false
}

func (rd *runLengthReader) filterRange(lo, hi *common.Literal, loIncl, hiIncl bool, out *roaring.Bitmap) error {
	for _, run := range rd.runs {
		var match bool
		switch rd.seg.ColType.Type {
		case common.TypeBigInt:
			match = int64InRange(run.i64, lo, hi, loIncl, hiIncl)
		case common.TypeDouble:
			match = float64InRange(run.f64, lo, hi, loIncl, hiIncl)
		case common.TypeVarchar:
			match = stringInRange(run.str, lo, hi, loIncl, hiIncl)
		}
		if match {
			out.AddRange(uint64(run.start), uint64(run.start+run.length))
		}
	}
	rd.nulls.removeNulls(out, rd.seg.RowCount)
	return nil
}

// sum multiplies each run's value by its length. Null rows carry a zero
// placeholder so they contribute nothing.
func (rd *runLengthReader) sum() (common.Literal, bool) {
	switch rd.seg.ColType.Type {
	case common.TypeBigInt:
		var total int64
		for _, run := range rd.runs {
			weighted, ok := mulInt64Checked(run.i64, int64(run.length))
			if !ok {
				return common.Literal{}, false
			}
			if total, ok = addInt64Checked(total, weighted); !ok {
				return common.Literal{}, false
			}
		}
		return common.Int64Literal(total), true
	case common.TypeDouble:
		var total float64
		for _, run := range rd.runs {
			total += run.f64 * float64(run.length)
		}
		return common.FloatLiteral(total), true
	}
	return common.Literal{}, false
}
