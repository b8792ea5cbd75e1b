package codec

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

// reader is the shared decode/accessor contract over the closed set of
// codec kinds.
type reader interface {
	decode(col *common.Column) error
	valueAt(row int) common.Literal
	filterEqual(lit common.Literal, out *roaring.Bitmap) error
	filterRange(lo, hi *common.Literal, loIncl, hiIncl bool, out *roaring.Bitmap) error
	sum() (common.Literal, bool)
}

func newReader(seg *Segment) (reader, error) {
	switch seg.Kind {
	case KindPlain:
		return newPlainReader(seg)
	case KindDictionary:
		return newDictReader(seg)
	case KindRunLength:
		return newRunLengthReader(seg)
	case KindDelta:
		return newDeltaReader(seg)
	default:
		return nil, corrupt("unknown codec kind")
	}
}

// Reader gives narrow access to a sealed segment without a full decode:
// point lookups, predicate filters and sums run directly against the
// encoded representation wherever the codec permits. Open it once per
// segment and reuse it; parsing the payload header happens at open time.
type Reader struct {
	seg *Segment
	rd  reader
}

func OpenReader(seg *Segment) (*Reader, error) {
	if err := verify(seg); err != nil {
		return nil, err
	}
	rd, err := newReader(seg)
	if err != nil {
		return nil, err
	}
	return &Reader{seg: seg, rd: rd}, nil
}

func (r *Reader) Segment() *Segment {
	return r.seg
}

// Decode materializes the full column.
func (r *Reader) Decode() (*common.Column, error) {
	col := common.NewColumnWithCapacity(r.seg.ColType, r.seg.RowCount)
	if err := r.rd.decode(col); err != nil {
		return nil, err
	}
	if col.RowCount() != r.seg.RowCount {
		return nil, corrupt("decoded length disagrees with sealed row count")
	}
	return col, nil
}

// ValueAt returns the value of a single row without decoding the segment.
func (r *Reader) ValueAt(row int) (common.Literal, error) {
	if row < 0 || row >= r.seg.RowCount {
		return common.Literal{}, errors.Errorf("row %d out of range [0, %d)", row, r.seg.RowCount)
	}
	return r.rd.valueAt(row), nil
}

// FilterEqual returns the ascending, duplicate-free set of rows whose value
// equals the literal. Null rows never match.
func (r *Reader) FilterEqual(lit common.Literal) (*roaring.Bitmap, error) {
	if err := r.checkLiteral(lit); err != nil {
		return nil, err
	}
	out := roaring.New()
	if err := r.rd.filterEqual(lit, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FilterRange returns the set of rows whose value falls inside the given
// bounds. A nil bound is unbounded.
func (r *Reader) FilterRange(lo, hi *common.Literal, loIncl, hiIncl bool) (*roaring.Bitmap, error) {
	if lo != nil {
		if err := r.checkLiteral(*lo); err != nil {
			return nil, err
		}
	}
	if hi != nil {
		if err := r.checkLiteral(*hi); err != nil {
			return nil, err
		}
	}
	out := roaring.New()
	if err := r.rd.filterRange(lo, hi, loIncl, hiIncl, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DictCodes exposes the dictionary representation when the segment is
// dictionary encoded: per-row slot ids plus the distinct-value table in
// first-occurrence order. Rows whose slot equals len(table) are null.
// ok is false for every other codec kind.
func (r *Reader) DictCodes() (codes []uint64, table []common.Literal, ok bool) {
	rd, isDict := r.rd.(*dictReader)
	if !isDict {
		return nil, nil, false
	}
	codes = unpackAll(rd.packed, rd.width, r.seg.RowCount)
	table = make([]common.Literal, rd.dictLen())
	for i := range table {
		if rd.dictStr != nil {
			table[i] = common.StringLiteral(rd.dictStr[i])
		} else {
			table[i] = common.Int64Literal(rd.dictInt[i])
		}
	}
	return codes, table, true
}

// Sum aggregates the non-null values directly on the encoded form. ok is
// false when the codec/type combination has no direct computation, in
// which case the caller decodes and sums.
func (r *Reader) Sum() (common.Literal, bool) {
	return r.rd.sum()
}

func (r *Reader) checkLiteral(lit common.Literal) error {
	if lit.IsNull {
		return nil
	}
	want := r.seg.ColType.Type
	if lit.Type != want {
		return errors.NewTypeMismatchError(want.String(), lit.Type.String())
	}
	return nil
}
