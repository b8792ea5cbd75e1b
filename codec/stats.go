package codec

import (
	"github.com/jaywalker76/LocustDB/common"
)

// Stats are the per-segment statistics computed once at seal time and used
// by the planner to prune whole batches without touching encoded bytes.
// Min and Max cover non-null values only and are unset when every value is
// null.
type Stats struct {
	Min       common.Literal
	Max       common.Literal
	NullCount int
	HasValues bool // false when the segment is empty or all-null
}

func computeStats(col *common.Column) Stats {
	stats := Stats{}
	rc := col.RowCount()
	switch col.Type().Type {
	case common.TypeBigInt, common.TypeBoolean:
		var min, max int64
		for i := 0; i < rc; i++ {
			v, null := col.GetInt64(i)
			if null {
				stats.NullCount++
				continue
			}
			if !stats.HasValues || v < min {
				min = v
			}
			if !stats.HasValues || v > max {
				max = v
			}
			stats.HasValues = true
		}
		if stats.HasValues {
			stats.Min = common.Int64Literal(min)
			stats.Max = common.Int64Literal(max)
		}
	case common.TypeDouble:
		var min, max float64
		for i := 0; i < rc; i++ {
			v, null := col.GetFloat64(i)
			if null {
				stats.NullCount++
				continue
			}
			if !stats.HasValues || v < min {
				min = v
			}
			if !stats.HasValues || v > max {
				max = v
			}
			stats.HasValues = true
		}
		if stats.HasValues {
			stats.Min = common.FloatLiteral(min)
			stats.Max = common.FloatLiteral(max)
		}
	case common.TypeVarchar:
		var min, max string
		for i := 0; i < rc; i++ {
			v, null := col.GetString(i)
			if null {
				stats.NullCount++
				continue
			}
			if !stats.HasValues || v < min {
				min = v
			}
			if !stats.HasValues || v > max {
				max = v
			}
			stats.HasValues = true
		}
		if stats.HasValues {
			stats.Min = common.StringLiteral(min)
			stats.Max = common.StringLiteral(max)
		}
	}
	return stats
}

func (s *Stats) serialize(buff []byte) []byte {
	var flags byte
	if s.HasValues {
		flags = 1
	}
	buff = append(buff, flags)
	buff = common.AppendUint32ToBufferLE(buff, uint32(s.NullCount))
	if s.HasValues {
		buff = serializeLiteral(buff, s.Min)
		buff = serializeLiteral(buff, s.Max)
	}
	return buff
}

func deserializeStats(buff []byte, offset int) (Stats, int) {
	stats := Stats{}
	stats.HasValues = buff[offset] == 1
	offset++
	nc, offset := common.ReadUint32FromBufferLE(buff, offset)
	stats.NullCount = int(nc)
	if stats.HasValues {
		stats.Min, offset = deserializeLiteral(buff, offset)
		stats.Max, offset = deserializeLiteral(buff, offset)
	}
	return stats, offset
}

func serializeLiteral(buff []byte, lit common.Literal) []byte {
	buff = append(buff, byte(lit.Type))
	switch lit.Type {
	case common.TypeBigInt, common.TypeBoolean:
		buff = common.AppendUint64ToBufferLE(buff, uint64(lit.Int64))
	case common.TypeDouble:
		buff = common.AppendFloat64ToBufferLE(buff, lit.Float)
	case common.TypeVarchar:
		buff = common.AppendStringToBufferLE(buff, lit.String)
	}
	return buff
}

func deserializeLiteral(buff []byte, offset int) (common.Literal, int) {
	t := common.Type(buff[offset])
	offset++
	lit := common.Literal{Type: t}
	switch t {
	case common.TypeBigInt, common.TypeBoolean:
		var u uint64
		u, offset = common.ReadUint64FromBufferLE(buff, offset)
		lit.Int64 = int64(u)
		lit.Bool = lit.Int64 != 0
	case common.TypeDouble:
		lit.Float, offset = common.ReadFloat64FromBufferLE(buff, offset)
	case common.TypeVarchar:
		lit.String, offset = common.ReadStringFromBufferLE(buff, offset)
	}
	return lit, offset
}
