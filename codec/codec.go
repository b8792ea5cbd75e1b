// Package codec implements the column compression codecs: dictionary,
// run-length, delta (frame-of-reference) and fixed-width raw. A sealed
// segment is self-describing: codec kind and parameters live in the
// payload, so decoding never needs to know which selection thresholds were
// in force at encode time.
package codec

import (
	"hash/crc32"
	"math"

	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

type Kind int

const (
	KindPlain Kind = iota
	KindDictionary
	KindRunLength
	KindDelta
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindDictionary:
		return "dictionary"
	case KindRunLength:
		return "runlength"
	case KindDelta:
		return "delta"
	}
	return "unknown"
}

// Options configure codec selection at encode time. They are advisory:
// whatever is chosen, the segment decodes without them.
type Options struct {
	MaxDictionarySize int
	MinRunLength      float64
	SampleFraction    float64
}

func DefaultOptions() Options {
	return Options{
		MaxDictionarySize: 1 << 16,
		MinRunLength:      4,
		SampleFraction:    0.05,
	}
}

// Segment is the immutable, compressed encoding of one column's values for
// one partition. Sealed once at encode time, then only read.
type Segment struct {
	ColType  common.ColumnType
	Kind     Kind
	RowCount int
	Stats    Stats
	Checksum uint32
	Payload  []byte
}

// Encode seals a column into a segment, choosing a codec from the observed
// value distribution. Encoding never fails: fixed-width raw is always a
// safe fallback.
func Encode(col *common.Column, opts Options) *Segment {
	stats := computeStats(col)
	rc := col.RowCount()

	est := estimate(col, opts)

	var kind Kind
	var payload []byte
	switch {
	case rc > 0 && est.avgRunLength >= opts.MinRunLength:
		kind = KindRunLength
		payload = encodeRunLength(col)
	case dictEligible(col.Type(), est, rc, opts):
		var ok bool
		payload, ok = encodeDictionary(col, opts.MaxDictionarySize)
		if ok {
			kind = KindDictionary
		} else {
			kind, payload = encodeIntFallback(col, stats)
		}
	case col.Type().Type == common.TypeBigInt:
		kind, payload = encodeIntFallback(col, stats)
	default:
		kind = KindPlain
		payload = encodePlain(col)
	}

	return &Segment{
		ColType:  col.Type(),
		Kind:     kind,
		RowCount: rc,
		Stats:    stats,
		Checksum: crc32.ChecksumIEEE(payload),
		Payload:  payload,
	}
}

// encodeIntFallback picks delta when the observed range bit-packs narrowly
// enough to be worthwhile, and raw fixed-width otherwise.
func encodeIntFallback(col *common.Column, stats Stats) (Kind, []byte) {
	if col.Type().Type == common.TypeBigInt && stats.HasValues {
		// two's complement subtraction yields the correct unsigned range
		// even when max-min overflows int64
		width := bitsFor(uint64(stats.Max.Int64) - uint64(stats.Min.Int64))
		if width <= maxPackWidth {
			return KindDelta, encodeDelta(col, stats.Min.Int64, width)
		}
	}
	return KindPlain, encodePlain(col)
}

func dictEligible(colType common.ColumnType, est estimates, rowCount int, opts Options) bool {
	if colType.Type != common.TypeVarchar && colType.Type != common.TypeBigInt {
		return false
	}
	return est.distinct <= opts.MaxDictionarySize && est.distinct < rowCount
}

// Decode reproduces the exact original value sequence. It fails with a
// CorruptSegment error if the checksum or the decoded row count disagree
// with the sealed metadata.
func Decode(seg *Segment) (*common.Column, error) {
	if err := verify(seg); err != nil {
		return nil, err
	}
	rd, err := newReader(seg)
	if err != nil {
		return nil, err
	}
	col := common.NewColumnWithCapacity(seg.ColType, seg.RowCount)
	if err := rd.decode(col); err != nil {
		return nil, err
	}
	if col.RowCount() != seg.RowCount {
		return nil, errors.NewLocustErrorf(errors.CorruptSegment,
			"Corrupt segment: decoded %d rows, sealed row count is %d", col.RowCount(), seg.RowCount)
	}
	return col, nil
}

func verify(seg *Segment) error {
	if crc32.ChecksumIEEE(seg.Payload) != seg.Checksum {
		return errors.NewLocustErrorf(errors.CorruptSegment, "Corrupt segment: payload checksum mismatch")
	}
	return nil
}

// Serialize flattens the segment, including its codec metadata, for the
// persistence layer.
func (seg *Segment) Serialize(buff []byte) []byte {
	buff = append(buff, byte(seg.ColType.Type), byte(seg.Kind))
	buff = common.AppendUint32ToBufferLE(buff, uint32(seg.RowCount))
	buff = common.AppendUint32ToBufferLE(buff, seg.Checksum)
	buff = seg.Stats.serialize(buff)
	buff = common.AppendUint32ToBufferLE(buff, uint32(len(seg.Payload)))
	return append(buff, seg.Payload...)
}

func DeserializeSegment(buff []byte) (*Segment, error) {
	if len(buff) < 10 {
		return nil, errors.NewLocustErrorf(errors.CorruptSegment, "Corrupt segment: truncated header")
	}
	seg := &Segment{}
	offset := 0
	seg.ColType = common.ColumnType{Type: common.Type(buff[offset])}
	seg.Kind = Kind(buff[offset+1])
	offset += 2
	var rc, plen uint32
	rc, offset = common.ReadUint32FromBufferLE(buff, offset)
	seg.RowCount = int(rc)
	seg.Checksum, offset = common.ReadUint32FromBufferLE(buff, offset)
	seg.Stats, offset = deserializeStats(buff, offset)
	plen, offset = common.ReadUint32FromBufferLE(buff, offset)
	if offset+int(plen) > len(buff) {
		return nil, errors.NewLocustErrorf(errors.CorruptSegment, "Corrupt segment: truncated payload")
	}
	seg.Payload = buff[offset : offset+int(plen)]
	return seg, nil
}

// MemSize estimates the resident bytes of the encoded segment.
func (seg *Segment) MemSize() int64 {
	return int64(len(seg.Payload)) + 64
}

// addInt64Checked reports whether the addition stayed within int64 range.
// The encoded-form sum fast paths bail out on overflow so the caller falls
// back to row-wise accumulation with wide promotion.
func addInt64Checked(a, b int64) (int64, bool) {
	sum := a + b
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
		return 0, false
	}
	return sum, true
}

func mulInt64Checked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		return 0, false
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

func corrupt(msg string) error {
	return errors.NewLocustErrorf(errors.CorruptSegment, "Corrupt segment: %s", msg)
}

func (seg *Segment) checkType(t common.Type) error {
	if seg.ColType.Type != t {
		return errors.NewTypeMismatchError(t.String(), seg.ColType.Type.String())
	}
	return nil
}
