// Package wire is a small view over protobuf encoded messages.
//
// Demo messages are decoded field by field against known field numbers
// instead of through generated types, so a message from a newer protocol
// revision with extra fields still decodes.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrMalformed = errors.New("wire: malformed protobuf message")
	ErrWireType  = errors.New("wire: unexpected wire type")
)

type Field struct {
	Num  protowire.Number
	Type protowire.Type
	// Varint, Fixed32 or Fixed64 payload, by Type
	Scalar uint64
	// Length delimited payload, aliasing the parsed buffer
	Bytes []byte
}

// Message is a parsed protobuf message. Fields are kept in wire order.
type Message struct {
	fields []Field
}

// Parse splits b into its fields. Bytes fields alias b.
func Parse(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.Scalar = uint64(v)
		case protowire.Fixed64Type:
			f.Scalar, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		m.fields = append(m.fields, f)
	}
	return m, nil
}

// Fields returns every field in wire order.
func (m Message) Fields() []Field { return m.fields }

func (m Message) last(num protowire.Number) (Field, bool) {
	for i := len(m.fields) - 1; i >= 0; i-- {
		if m.fields[i].Num == num {
			return m.fields[i], true
		}
	}
	return Field{}, false
}

// Has reports whether field num is present.
func (m Message) Has(num protowire.Number) bool {
	_, ok := m.last(num)
	return ok
}

// Uint64 returns the last occurrence of a scalar field, or 0.
func (m Message) Uint64(num protowire.Number) uint64 {
	f, ok := m.last(num)
	if !ok || f.Type == protowire.BytesType {
		return 0
	}
	return f.Scalar
}

func (m Message) Uint32(num protowire.Number) uint32 { return uint32(m.Uint64(num)) }
func (m Message) Int32(num protowire.Number) int32   { return int32(m.Uint64(num)) }
func (m Message) Int64(num protowire.Number) int64   { return int64(m.Uint64(num)) }
func (m Message) Bool(num protowire.Number) bool     { return m.Uint64(num) != 0 }

func (m Message) Float32(num protowire.Number) float32 {
	return math.Float32frombits(uint32(m.Uint64(num)))
}

// Bytes returns the last occurrence of a length delimited field, or nil.
func (m Message) Bytes(num protowire.Number) []byte {
	f, ok := m.last(num)
	if !ok || f.Type != protowire.BytesType {
		return nil
	}
	return f.Bytes
}

func (m Message) String(num protowire.Number) string { return string(m.Bytes(num)) }

// Message parses the last occurrence of an embedded message field. A missing
// field yields an empty message.
func (m Message) Message(num protowire.Number) (Message, error) {
	return Parse(m.Bytes(num))
}

// Messages parses every occurrence of a repeated embedded message field.
func (m Message) Messages(num protowire.Number) ([]Message, error) {
	var out []Message
	for _, f := range m.fields {
		if f.Num != num {
			continue
		}
		if f.Type != protowire.BytesType {
			return nil, fmt.Errorf("%w: field %d is %v", ErrWireType, num, f.Type)
		}
		sub, err := Parse(f.Bytes)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", num, err)
		}
		out = append(out, sub)
	}
	return out, nil
}

// Strings returns every occurrence of a repeated string field.
func (m Message) Strings(num protowire.Number) []string {
	var out []string
	for _, f := range m.fields {
		if f.Num == num && f.Type == protowire.BytesType {
			out = append(out, string(f.Bytes))
		}
	}
	return out
}

// Uint64s returns a repeated varint field, accepting both the packed and the
// unpacked encoding, and a mix of the two.
func (m Message) Uint64s(num protowire.Number) ([]uint64, error) {
	var out []uint64
	for _, f := range m.fields {
		if f.Num != num {
			continue
		}
		switch f.Type {
		case protowire.VarintType:
			out = append(out, f.Scalar)
		case protowire.BytesType:
			b := f.Bytes
			for len(b) > 0 {
				v, n := protowire.ConsumeVarint(b)
				if n < 0 {
					return nil, fmt.Errorf("%w: packed field %d: %v", ErrMalformed, num, protowire.ParseError(n))
				}
				out = append(out, v)
				b = b[n:]
			}
		default:
			return nil, fmt.Errorf("%w: field %d is %v", ErrWireType, num, f.Type)
		}
	}
	return out, nil
}

// Int32s is Uint64s narrowed to int32.
func (m Message) Int32s(num protowire.Number) ([]int32, error) {
	vs, err := m.Uint64s(num)
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(vs))
	for i, v := range vs {
		out[i] = int32(v)
	}
	return out, nil
}
