package bitstream

import "math"

// Writer packs bits in the layout Reader consumes. It exists so encoders of
// synthetic streams and round trip checks share exactly one definition of
// every wire primitive.
type Writer struct {
	buf []byte
	n   uint
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the packed buffer. A trailing partial byte is zero padded.
func (w *Writer) Bytes() []byte { return w.buf }

// BitLen returns the number of bits written.
func (w *Writer) BitLen() uint { return w.n }

// WriteBits appends the low n bits of v, 0 <= n <= 32.
func (w *Writer) WriteBits(v uint32, n uint) {
	for i := uint(0); i < n; i++ {
		if w.n&7 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>i&1 == 1 {
			w.buf[w.n>>3] |= 1 << (w.n & 7)
		}
		w.n++
	}
}

func (w *Writer) WriteBoolean(b bool) {
	if b {
		w.WriteBits(1, 1)
		return
	}
	w.WriteBits(0, 1)
}

func (w *Writer) WriteBytes(b []byte) {
	for _, c := range b {
		w.WriteBits(uint32(c), 8)
	}
}

func (w *Writer) WriteVarUint32(v uint32) {
	w.WriteVarUint64(uint64(v))
}

func (w *Writer) WriteVarUint64(v uint64) {
	for v >= 0x80 {
		w.WriteBits(uint32(v&0x7f|0x80), 8)
		v >>= 7
	}
	w.WriteBits(uint32(v), 8)
}

func (w *Writer) WriteVarInt32(v int32) {
	w.WriteVarUint32(uint32(v<<1) ^ uint32(v>>31))
}

func (w *Writer) WriteVarInt64(v int64) {
	w.WriteVarUint64(uint64(v<<1) ^ uint64(v>>63))
}

func (w *Writer) WriteUBitVar(v uint32) {
	switch {
	case v < 1<<4:
		w.WriteBits(v, 6)
	case v < 1<<8:
		w.WriteBits(v&0x0f|0x10, 6)
		w.WriteBits(v>>4, 4)
	case v < 1<<12:
		w.WriteBits(v&0x0f|0x20, 6)
		w.WriteBits(v>>4, 8)
	default:
		w.WriteBits(v&0x0f|0x30, 6)
		w.WriteBits(v>>4, 28)
	}
}

func (w *Writer) WriteUBitVarFieldPath(v uint32) {
	switch {
	case v < 1<<2:
		w.WriteBoolean(true)
		w.WriteBits(v, 2)
	case v < 1<<4:
		w.WriteBits(0b10, 2)
		w.WriteBits(v, 4)
	case v < 1<<10:
		w.WriteBits(0b100, 3)
		w.WriteBits(v, 10)
	case v < 1<<17:
		w.WriteBits(0b1000, 4)
		w.WriteBits(v, 17)
	default:
		w.WriteBits(0, 4)
		w.WriteBits(v, 31)
	}
}

func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
	w.WriteBits(0, 8)
}

func (w *Writer) WriteLeUint64(v uint64) {
	w.WriteBits(uint32(v), 32)
	w.WriteBits(uint32(v>>32), 32)
}

func (w *Writer) WriteFloat32(f float32) {
	w.WriteBits(math.Float32bits(f), 32)
}

// WriteCode appends a huffman codeword, first walked bit first.
func (w *Writer) WriteCode(c Code) {
	w.WriteBits(c.Bits, c.Len)
}
