package codec

// Bit packing for non-negative integers at a fixed width. Values are laid
// out LSB-first across a byte slice; width 0 means every value is zero and
// no bytes are stored. Supported widths are 0 to 56: a value straddles at
// most 8 bytes so it can be assembled in a single uint64. Codec selection
// falls back to fixed-width storage when a wider range is observed.

const maxPackWidth = 56

// bitsFor returns the minimum width in bits needed to represent v.
func bitsFor(v uint64) int {
	width := 0
	for v != 0 {
		width++
		v >>= 1
	}
	return width
}

// packedLen returns the byte length needed to pack count values at the
// given width.
func packedLen(count int, width int) int {
	return (count*width + 7) / 8
}

// packInto packs values at the given width, appending to buff. All values
// must fit in width bits.
func packInto(buff []byte, values []uint64, width int) []byte {
	if width == 0 {
		return buff
	}
	out := make([]byte, packedLen(len(values), width))
	bitPos := 0
	for _, v := range values {
		bytePos := bitPos >> 3
		shift := uint(bitPos & 7)
		v <<= shift
		for b := 0; b < (width+int(shift)+7)/8; b++ {
			out[bytePos+b] |= byte(v)
			v >>= 8
		}
		bitPos += width
	}
	return append(buff, out...)
}

// unpackAt extracts the i-th value from a packed buffer.
func unpackAt(buff []byte, width int, i int) uint64 {
	if width == 0 {
		return 0
	}
	bitPos := i * width
	bytePos := bitPos >> 3
	shift := uint(bitPos & 7)
	var v uint64
	read := 0
	for b := 0; read < width+int(shift); b++ {
		v |= uint64(buff[bytePos+b]) << uint(8*b)
		read += 8
	}
	return (v >> shift) & mask(width)
}

// unpackAll extracts count values from a packed buffer.
func unpackAll(buff []byte, width int, count int) []uint64 {
	values := make([]uint64, count)
	if width == 0 {
		return values
	}
	for i := 0; i < count; i++ {
		values[i] = unpackAt(buff, width, i)
	}
	return values
}

func mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}
