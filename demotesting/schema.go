package demotesting

import (
	"github.com/dbalders/demoparser/bitstream"
	"github.com/dbalders/demoparser/wire"
)

// FieldSpec describes one field of a synthetic serializer.
type FieldSpec struct {
	Name           string
	VarType        string
	Encoder        string
	SerializerName string
	BitCount       int32
	Low            float32
	High           float32
	// HasHigh must be set for High to be sent; absent means 1.0
	HasHigh bool
	Flags   int32
}

// SchemaBuilder assembles a flattened serializer message, sharing a symbol
// table between serializers the way real send tables do.
type SchemaBuilder struct {
	symbols  []string
	symIndex map[string]int32
	msg      *wire.Builder
	fields   []*wire.Builder
	classes  []classSpec
}

type classSpec struct {
	id   int32
	name string
}

func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{symIndex: make(map[string]int32), msg: wire.NewBuilder()}
}

func (b *SchemaBuilder) sym(s string) int32 {
	if i, ok := b.symIndex[s]; ok {
		return i
	}
	i := int32(len(b.symbols))
	b.symbols = append(b.symbols, s)
	b.symIndex[s] = i
	return i
}

// Serializer appends a serializer made of fields, in order.
func (b *SchemaBuilder) Serializer(name string, version int32, fields ...FieldSpec) *SchemaBuilder {
	indices := make([]int32, 0, len(fields))
	for _, f := range fields {
		fb := wire.NewBuilder().
			Int32(1, b.sym(f.VarType)).
			Int32(2, b.sym(f.Name))
		if f.BitCount != 0 {
			fb.Int32(3, f.BitCount)
		}
		if f.Low != 0 {
			fb.Float32(4, f.Low)
		}
		if f.HasHigh {
			fb.Float32(5, f.High)
		}
		if f.Flags != 0 {
			fb.Int32(6, f.Flags)
		}
		if f.SerializerName != "" {
			fb.Int32(7, b.sym(f.SerializerName))
			fb.Int32(8, 0)
		}
		if f.Encoder != "" {
			fb.Int32(10, b.sym(f.Encoder))
		}
		indices = append(indices, int32(len(b.fields)))
		b.fields = append(b.fields, fb)
	}
	b.msg.Message(1, wire.NewBuilder().
		Int32(1, b.sym(name)).
		Int32(2, version).
		PackedInt32s(3, indices))
	return b
}

// Class declares a class using the serializer of the same name.
func (b *SchemaBuilder) Class(id int32, name string) *SchemaBuilder {
	b.classes = append(b.classes, classSpec{id: id, name: name})
	return b
}

// Flattened returns the flattened serializer message.
func (b *SchemaBuilder) Flattened() []byte {
	out := wire.NewBuilder().Raw(b.msg.Encode())
	for _, s := range b.symbols {
		out.String(2, s)
	}
	for _, f := range b.fields {
		out.Message(3, f)
	}
	return out.Encode()
}

// SendTables returns a send tables demo message: the flattened serializer
// behind a varint length prefix, carried in field 1.
func (b *SchemaBuilder) SendTables() []byte {
	flat := b.Flattened()
	w := bitstream.NewWriter()
	w.WriteVarUint32(uint32(len(flat)))
	w.WriteBytes(flat)
	return wire.NewBuilder().Bytes(1, w.Bytes()).Encode()
}

// ClassInfo returns a class info demo message for the declared classes.
func (b *SchemaBuilder) ClassInfo() []byte {
	out := wire.NewBuilder()
	for _, c := range b.classes {
		out.Message(1, wire.NewBuilder().
			Int32(1, c.id).
			String(2, c.name).
			String(3, c.name))
	}
	return out.Encode()
}

// MaxClasses is one past the highest declared class id.
func (b *SchemaBuilder) MaxClasses() uint32 {
	var n uint32
	for _, c := range b.classes {
		if uint32(c.id)+1 > n {
			n = uint32(c.id) + 1
		}
	}
	return n
}
