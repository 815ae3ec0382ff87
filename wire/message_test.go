package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestParseScalars(t *testing.T) {
	b := NewBuilder().
		Uint32(1, 7).
		Int32(2, -5).
		Bool(3, true).
		Float32(4, 1.5).
		String(5, "de_mirage").
		Uint32(1, 9)

	m, err := Parse(b.Encode())
	require.NoError(t, err)

	// the last occurrence of a scalar wins
	assert.Equal(t, uint32(9), m.Uint32(1))
	assert.Equal(t, int32(-5), m.Int32(2))
	assert.True(t, m.Bool(3))
	assert.Equal(t, float32(1.5), m.Float32(4))
	assert.Equal(t, "de_mirage", m.String(5))
	assert.False(t, m.Has(6))
	assert.Equal(t, uint64(0), m.Uint64(6))
	assert.Nil(t, m.Bytes(1))
}

func TestParseRepeated(t *testing.T) {
	b := NewBuilder().
		Message(1, NewBuilder().String(1, "a")).
		PackedInt32s(2, []int32{1, 2, 3}).
		Message(1, NewBuilder().String(1, "b")).
		Int32(2, 4).
		String(3, "x").
		String(3, "y")

	m, err := Parse(b.Encode())
	require.NoError(t, err)

	subs, err := m.Messages(1)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "a", subs[0].String(1))
	assert.Equal(t, "b", subs[1].String(1))

	ids, err := m.Int32s(2)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4}, ids)

	assert.Equal(t, []string{"x", "y"}, m.Strings(3))

	_, err = m.Messages(2)
	assert.ErrorIs(t, err, ErrWireType)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated tag", data: []byte{0x80}},
		{name: "truncated varint", data: protowire.AppendTag(nil, 1, protowire.VarintType)},
		{name: "length beyond buffer", data: append(protowire.AppendTag(nil, 1, protowire.BytesType), 10, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseSkipsGroups(t *testing.T) {
	b := protowire.AppendTag(nil, 9, protowire.StartGroupType)
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 3)
	b = protowire.AppendTag(b, 9, protowire.EndGroupType)
	b = append(b, NewBuilder().Uint32(1, 2).Encode()...)

	m, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), m.Uint32(1))
}
