package bitstream

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBitsRoundTrip(t *testing.T) {
	for n := uint(1); n <= 32; n++ {
		t.Run(fmt.Sprintf("%d bits", n), func(t *testing.T) {
			max := uint32(1<<n - 1)
			values := []uint32{0, 1, max, max / 2, max / 3}

			w := NewWriter()
			// a 3 bit misalignment makes every value straddle byte boundaries
			w.WriteBits(0b101, 3)
			for _, v := range values {
				w.WriteBits(v, n)
			}

			r := NewReader(w.Bytes())
			assert.Equal(t, uint32(0b101), r.ReadBits(3))
			for _, v := range values {
				assert.Equal(t, v, r.ReadBits(n))
			}
			require.NoError(t, r.Err())
			assert.Less(t, r.BitsRemaining(), uint(8))
		})
	}
}

func TestReadBitsLSBFirst(t *testing.T) {
	r := NewReader([]byte{0b1010_0110, 0xff})
	assert.Equal(t, uint32(0b0110), r.ReadBits(4))
	assert.Equal(t, uint32(0b1010), r.ReadBits(4))
	assert.True(t, r.ReadBoolean())
	assert.Equal(t, uint(9), r.Position())
}

func TestReadBitsCountOutOfRange(t *testing.T) {
	r := NewReader(make([]byte, 8))
	assert.Equal(t, uint32(0), r.ReadBits(33))
	assert.ErrorIs(t, r.Err(), ErrBitCount)
}

func TestTruncationLatches(t *testing.T) {
	r := NewReader([]byte{0xff})
	assert.Equal(t, uint32(0x7f), r.ReadBits(7))
	assert.Equal(t, uint32(0), r.ReadBits(2))
	assert.ErrorIs(t, r.Err(), ErrTruncated)

	// once failed, every read yields the zero value
	assert.False(t, r.ReadBoolean())
	assert.Equal(t, uint32(0), r.ReadBits(1))
	assert.ErrorIs(t, r.Err(), ErrTruncated)
}

func TestVarUintRoundTrip(t *testing.T) {
	tests := []uint64{0, 1, 127, 128, 300, 16383, 16384, 1<<32 - 1, 1 << 35, math.MaxUint64}
	for _, v := range tests {
		t.Run(fmt.Sprintf("%d", v), func(t *testing.T) {
			w := NewWriter()
			w.WriteBoolean(true)
			w.WriteVarUint64(v)
			r := NewReader(w.Bytes())
			r.ReadBoolean()
			assert.Equal(t, v, r.ReadVarUint64())
			require.NoError(t, r.Err())

			if v <= math.MaxUint32 {
				w := NewWriter()
				w.WriteVarUint32(uint32(v))
				r := NewReader(w.Bytes())
				assert.Equal(t, uint32(v), r.ReadVarUint32())
				require.NoError(t, r.Err())
			}
		})
	}
}

func TestVarIntZigzagRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, -64, 100, -100, math.MaxInt32, math.MinInt32} {
		w := NewWriter()
		w.WriteVarInt32(v)
		r := NewReader(w.Bytes())
		assert.Equal(t, v, r.ReadVarInt32())
		require.NoError(t, r.Err())
	}
	for _, v := range []int64{0, -1, math.MaxInt64, math.MinInt64} {
		w := NewWriter()
		w.WriteVarInt64(v)
		r := NewReader(w.Bytes())
		assert.Equal(t, v, r.ReadVarInt64())
		require.NoError(t, r.Err())
	}
}

func TestVarUintTruncated(t *testing.T) {
	w := NewWriter()
	w.WriteVarUint32(1 << 30)
	full := w.Bytes()
	for cut := 0; cut < len(full); cut++ {
		r := NewReader(full[:cut])
		assert.Equal(t, uint32(0), r.ReadVarUint32())
		assert.ErrorIs(t, r.Err(), ErrTruncated)
	}
}

func TestVarUintOverflow(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	assert.Equal(t, uint32(0), r.ReadVarUint32())
	assert.ErrorIs(t, r.Err(), ErrVarintOverflow)
}

func TestUBitVarRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 3, 4, 15, 16, 255, 256, 1023, 1024, 4095, 4096, 1 << 17, 1 << 30} {
		w := NewWriter()
		w.WriteUBitVar(v)
		w.WriteUBitVarFieldPath(v)
		r := NewReader(w.Bytes())
		assert.Equal(t, v, r.ReadUBitVar(), "ubitvar %d", v)
		assert.Equal(t, v, r.ReadUBitVarFieldPath(), "fieldpath ubitvar %d", v)
		require.NoError(t, r.Err())
	}
}

func TestReadString(t *testing.T) {
	w := NewWriter()
	w.WriteBits(1, 1)
	w.WriteString("CCSTeam")
	w.WriteString("")
	r := NewReader(w.Bytes())
	r.ReadBoolean()
	assert.Equal(t, "CCSTeam", r.ReadString())
	assert.Equal(t, "", r.ReadString())
	require.NoError(t, r.Err())

	r = NewReader([]byte("no terminator"))
	assert.Equal(t, "", r.ReadString())
	assert.ErrorIs(t, r.Err(), ErrTruncated)
}

func TestReadBytes(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	assert.Equal(t, []byte{1, 2}, r.ReadBytes(2))

	w := NewWriter()
	w.WriteBits(1, 1)
	w.WriteBytes([]byte{0xde, 0xad})
	r = NewReader(w.Bytes())
	r.ReadBoolean()
	assert.Equal(t, []byte{0xde, 0xad}, r.ReadBytes(2))
	assert.Nil(t, r.ReadBytes(1))
	assert.ErrorIs(t, r.Err(), ErrTruncated)
}

func TestReadBitsAsBytes(t *testing.T) {
	w := NewWriter()
	w.WriteBits(0xabcd, 16)
	w.WriteBits(0b101, 3)
	r := NewReader(w.Bytes())
	assert.Equal(t, []byte{0xcd, 0xab, 0b101}, r.ReadBitsAsBytes(19))
	require.NoError(t, r.Err())
}

func TestFixedWidthPrimitives(t *testing.T) {
	w := NewWriter()
	w.WriteLeUint64(0x0123456789abcdef)
	w.WriteFloat32(-2.5)
	r := NewReader(w.Bytes())
	assert.Equal(t, uint64(0x0123456789abcdef), r.ReadLeUint64())
	assert.Equal(t, float32(-2.5), r.ReadFloat32())
	require.NoError(t, r.Err())
}

func TestReadCoord(t *testing.T) {
	w := NewWriter()
	// zero: neither part present
	w.WriteBits(0, 2)
	// -3.5: int and frac present, negative, int 3 stored as 2, frac 16/32
	w.WriteBits(0b11, 2)
	w.WriteBoolean(true)
	w.WriteBits(2, 14)
	w.WriteBits(16, 5)

	r := NewReader(w.Bytes())
	assert.Equal(t, float32(0), r.ReadCoord())
	assert.Equal(t, float32(-3.5), r.ReadCoord())
	require.NoError(t, r.Err())
}

func TestReadAngle(t *testing.T) {
	w := NewWriter()
	w.WriteBits(1<<7, 8)
	r := NewReader(w.Bytes())
	assert.Equal(t, float32(180), r.ReadAngle(8))
}

func TestClassIDBits(t *testing.T) {
	tests := []struct {
		maxClasses uint32
		want       uint
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{255, 8},
		{256, 9},
		{1024, 11},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d -> %d", tt.maxClasses, tt.want), func(t *testing.T) {
			want := uint(math.Ceil(math.Log2(float64(tt.maxClasses) + 1)))
			assert.Equal(t, want, tt.want)
			assert.Equal(t, tt.want, ClassIDBits(tt.maxClasses))
		})
	}
}
