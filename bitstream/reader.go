package bitstream

import (
	"math"
)

// Reader is a bit granular cursor over an immutable byte span.
//
// Bits are consumed least significant first within each byte, and bytes are
// consumed in order. The first failing read latches an error, after which
// every read returns the zero value and leaves the cursor where it is. Callers
// check Err at the boundaries of whatever unit of work they are decoding and
// abandon that unit on failure; there is no retry.
type Reader struct {
	buf  []byte
	pos  uint
	size uint
	err  error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, size: uint(len(buf)) * 8}
}

// Reset repositions the reader at the start of buf and clears any latched error.
func (r *Reader) Reset(buf []byte) {
	r.buf = buf
	r.pos = 0
	r.size = uint(len(buf)) * 8
	r.err = nil
}

// Err returns the first error encountered by any read.
func (r *Reader) Err() error { return r.err }

// Position returns the current cursor in bits from the start of the buffer.
func (r *Reader) Position() uint { return r.pos }

func (r *Reader) BitsRemaining() uint {
	return r.size - r.pos
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// need reports whether n more bits can be consumed, latching ErrTruncated if not.
func (r *Reader) need(n uint) bool {
	if r.err != nil {
		return false
	}
	if n > r.size-r.pos {
		r.fail(ErrTruncated)
		return false
	}
	return true
}

// ReadBits reads an unsigned value of n bits, 0 <= n <= 32.
func (r *Reader) ReadBits(n uint) uint32 {
	if n == 0 {
		return 0
	}
	if n > 32 {
		r.fail(ErrBitCount)
		return 0
	}
	if !r.need(n) {
		return 0
	}

	first := r.pos >> 3
	shift := r.pos & 7

	// At most 5 bytes cover 32 bits starting at any bit offset.
	var v uint64
	for i := uint(0); i*8 < shift+n; i++ {
		v |= uint64(r.buf[first+i]) << (8 * i)
	}
	v = (v >> shift) & (1<<n - 1)
	r.pos += n
	return uint32(v)
}

func (r *Reader) ReadBoolean() bool {
	if !r.need(1) {
		return false
	}
	b := r.buf[r.pos>>3]>>(r.pos&7)&1 == 1
	r.pos++
	return b
}

// ReadBytes reads n whole bytes. When the cursor is byte aligned the result
// aliases the underlying buffer.
func (r *Reader) ReadBytes(n int) []byte {
	if n < 0 {
		r.fail(ErrBitCount)
		return nil
	}
	if !r.need(uint(n) * 8) {
		return nil
	}
	if r.pos&7 == 0 {
		start := r.pos >> 3
		r.pos += uint(n) * 8
		return r.buf[start : start+uint(n)]
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.ReadBits(8))
	}
	return out
}

// ReadBitsAsBytes reads n bits into a freshly allocated, little endian packed
// byte slice. A trailing partial byte holds the remaining bits in its low
// positions.
func (r *Reader) ReadBitsAsBytes(n uint) []byte {
	if !r.need(n) {
		return nil
	}
	out := make([]byte, (n+7)/8)
	i := 0
	for ; n >= 8; n -= 8 {
		out[i] = byte(r.ReadBits(8))
		i++
	}
	if n > 0 {
		out[i] = byte(r.ReadBits(n))
	}
	return out
}

// ReadVarUint32 reads a base 128 varint, seven payload bits per group with
// the high bit of each group set while more groups follow.
func (r *Reader) ReadVarUint32() uint32 {
	var v uint32
	for shift := uint(0); ; shift += 7 {
		if shift >= 35 {
			r.fail(ErrVarintOverflow)
			return 0
		}
		b := r.ReadBits(8)
		if r.err != nil {
			return 0
		}
		v |= (b & 0x7f) << shift
		if b&0x80 == 0 {
			return v
		}
	}
}

func (r *Reader) ReadVarUint64() uint64 {
	var v uint64
	for shift := uint(0); ; shift += 7 {
		if shift >= 70 {
			r.fail(ErrVarintOverflow)
			return 0
		}
		b := r.ReadBits(8)
		if r.err != nil {
			return 0
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v
		}
	}
}

// ReadVarInt32 reads a zigzag encoded signed varint.
func (r *Reader) ReadVarInt32() int32 {
	u := r.ReadVarUint32()
	return int32(u>>1) ^ -int32(u&1)
}

func (r *Reader) ReadVarInt64() int64 {
	u := r.ReadVarUint64()
	return int64(u>>1) ^ -int64(u&1)
}

// ReadUBitVar reads the 6 bit prefixed variable integer used for inner
// message types and entity index deltas. Bits 4 and 5 of the prefix select
// how many further bits extend the low nibble.
func (r *Reader) ReadUBitVar() uint32 {
	v := r.ReadBits(6)
	switch v & 0x30 {
	case 0x10:
		v = (v & 0x0f) | r.ReadBits(4)<<4
	case 0x20:
		v = (v & 0x0f) | r.ReadBits(8)<<4
	case 0x30:
		v = (v & 0x0f) | r.ReadBits(28)<<4
	}
	return v
}

// ReadUBitVarFieldPath reads the unary-selected width integer carried as an
// operand by field path operations: 2, 4, 10, 17 or 31 bits.
func (r *Reader) ReadUBitVarFieldPath() uint32 {
	if r.ReadBoolean() {
		return r.ReadBits(2)
	}
	if r.ReadBoolean() {
		return r.ReadBits(4)
	}
	if r.ReadBoolean() {
		return r.ReadBits(10)
	}
	if r.ReadBoolean() {
		return r.ReadBits(17)
	}
	return r.ReadBits(31)
}

// ReadString reads a NUL terminated string. The terminator is consumed and
// not returned.
func (r *Reader) ReadString() string {
	var buf []byte
	for {
		b := byte(r.ReadBits(8))
		if r.err != nil {
			return ""
		}
		if b == 0 {
			return string(buf)
		}
		buf = append(buf, b)
	}
}

func (r *Reader) ReadLeUint64() uint64 {
	lo := r.ReadBits(32)
	hi := r.ReadBits(32)
	return uint64(hi)<<32 | uint64(lo)
}

// ReadFloat32 reads a raw IEEE 754 single.
func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadBits(32))
}

const (
	coordIntBits      = 14
	coordFracBits     = 5
	coordDenominator  = 1 << coordFracBits
	coordResolution   = 1.0 / coordDenominator
	normalFracBits    = 11
	normalDenominator = (1 << normalFracBits) - 1
	normalResolution  = 1.0 / normalDenominator
)

// ReadCoord reads a world coordinate: presence bits for the integer and
// fractional parts, a sign, a 14 bit integer offset by one and a 5 bit
// fraction.
func (r *Reader) ReadCoord() float32 {
	hasInt := r.ReadBoolean()
	hasFrac := r.ReadBoolean()
	if !hasInt && !hasFrac {
		return 0
	}
	negative := r.ReadBoolean()
	var intval, fracval uint32
	if hasInt {
		intval = r.ReadBits(coordIntBits) + 1
	}
	if hasFrac {
		fracval = r.ReadBits(coordFracBits)
	}
	v := float32(intval) + float32(fracval)*coordResolution
	if negative {
		v = -v
	}
	return v
}

// ReadAngle reads an n bit fraction of a full turn, in degrees.
func (r *Reader) ReadAngle(n uint) float32 {
	return float32(r.ReadBits(n)) * 360.0 / float32(uint64(1)<<n)
}

func (r *Reader) ReadNormal() float32 {
	negative := r.ReadBoolean()
	v := float32(r.ReadBits(normalFracBits)) * normalResolution
	if negative {
		v = -v
	}
	return v
}

// ReadNormalVec3 reads a unit vector whose z component is reconstructed from x and y.
func (r *Reader) ReadNormalVec3() [3]float32 {
	var v [3]float32
	hasX := r.ReadBoolean()
	hasY := r.ReadBoolean()
	if hasX {
		v[0] = r.ReadNormal()
	}
	if hasY {
		v[1] = r.ReadNormal()
	}
	negZ := r.ReadBoolean()
	if sum := v[0]*v[0] + v[1]*v[1]; sum < 1.0 {
		v[2] = float32(math.Sqrt(float64(1.0 - sum)))
	}
	if negZ {
		v[2] = -v[2]
	}
	return v
}
