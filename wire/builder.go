package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Builder appends protobuf fields. It is used to produce synthetic demo
// messages; field numbers are the caller's business.
type Builder struct {
	b []byte
}

func NewBuilder() *Builder { return &Builder{} }

// Encode returns the encoded message.
func (b *Builder) Encode() []byte { return b.b }

// Raw appends already encoded fields.
func (b *Builder) Raw(encoded []byte) *Builder {
	b.b = append(b.b, encoded...)
	return b
}

func (b *Builder) Uint64(num protowire.Number, v uint64) *Builder {
	b.b = protowire.AppendTag(b.b, num, protowire.VarintType)
	b.b = protowire.AppendVarint(b.b, v)
	return b
}

func (b *Builder) Uint32(num protowire.Number, v uint32) *Builder {
	return b.Uint64(num, uint64(v))
}

// Int32 encodes v the way protobuf int32 fields are encoded: sign extended
// to 64 bits.
func (b *Builder) Int32(num protowire.Number, v int32) *Builder {
	return b.Uint64(num, uint64(int64(v)))
}

func (b *Builder) Bool(num protowire.Number, v bool) *Builder {
	return b.Uint64(num, protowire.EncodeBool(v))
}

func (b *Builder) Float32(num protowire.Number, v float32) *Builder {
	b.b = protowire.AppendTag(b.b, num, protowire.Fixed32Type)
	b.b = protowire.AppendFixed32(b.b, math.Float32bits(v))
	return b
}

func (b *Builder) Fixed64(num protowire.Number, v uint64) *Builder {
	b.b = protowire.AppendTag(b.b, num, protowire.Fixed64Type)
	b.b = protowire.AppendFixed64(b.b, v)
	return b
}

func (b *Builder) Bytes(num protowire.Number, v []byte) *Builder {
	b.b = protowire.AppendTag(b.b, num, protowire.BytesType)
	b.b = protowire.AppendBytes(b.b, v)
	return b
}

func (b *Builder) String(num protowire.Number, v string) *Builder {
	return b.Bytes(num, []byte(v))
}

// Message embeds sub as field num.
func (b *Builder) Message(num protowire.Number, sub *Builder) *Builder {
	return b.Bytes(num, sub.Encode())
}

// PackedInt32s encodes a repeated int32 field in packed form.
func (b *Builder) PackedInt32s(num protowire.Number, vs []int32) *Builder {
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	return b.Bytes(num, packed)
}
