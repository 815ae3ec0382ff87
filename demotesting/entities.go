package demotesting

import (
	"math"

	"github.com/dbalders/demoparser/bitstream"
	"github.com/dbalders/demoparser/fieldpath"
)

// Value writes one property value in its wire encoding.
type Value func(w *bitstream.Writer)

func Uint(v uint32) Value   { return func(w *bitstream.Writer) { w.WriteVarUint32(v) } }
func Uint64(v uint64) Value { return func(w *bitstream.Writer) { w.WriteVarUint64(v) } }
func Int(v int32) Value     { return func(w *bitstream.Writer) { w.WriteVarInt32(v) } }
func Bool(v bool) Value     { return func(w *bitstream.Writer) { w.WriteBoolean(v) } }
func String(s string) Value { return func(w *bitstream.Writer) { w.WriteString(s) } }

// Float writes an unscaled float.
func Float(f float32) Value { return func(w *bitstream.Writer) { w.WriteFloat32(f) } }

// Floats writes consecutive unscaled floats, as a vector without encoder.
func Floats(fs ...float32) Value {
	return func(w *bitstream.Writer) {
		for _, f := range fs {
			w.WriteFloat32(f)
		}
	}
}

// Coord writes a world coordinate with a whole and a 1/32 fractional part.
func Coord(f float32) Value {
	return func(w *bitstream.Writer) {
		if f == 0 {
			w.WriteBits(0, 2)
			return
		}
		abs := math.Abs(float64(f))
		whole := uint32(abs)
		frac := uint32(math.Round((abs - float64(whole)) * 32))
		w.WriteBoolean(whole != 0)
		w.WriteBoolean(frac != 0)
		w.WriteBoolean(f < 0)
		if whole != 0 {
			w.WriteBits(whole-1, 14)
		}
		if frac != 0 {
			w.WriteBits(frac, 5)
		}
	}
}

// Prop is one changed property of an entity record.
type Prop struct {
	Path  fieldpath.FieldPath
	Value Value
}

func P(v Value, indices ...int32) Prop {
	return Prop{Path: fieldpath.Of(indices...), Value: v}
}

// WriteProps writes a field path stream followed by the values, in path order.
func WriteProps(w *bitstream.Writer, props []Prop) {
	paths := make([]fieldpath.FieldPath, len(props))
	for i, p := range props {
		paths[i] = p.Path
	}
	if err := fieldpath.Encode(w, paths); err != nil {
		panic(err)
	}
	for _, p := range props {
		p.Value(w)
	}
}

// Props encodes props into a standalone buffer, as stored for baselines.
func Props(props ...Prop) []byte {
	w := bitstream.NewWriter()
	WriteProps(w, props)
	return w.Bytes()
}

// EntityStream writes the entity_data bitstream of a packet entities
// message.
type EntityStream struct {
	w         *bitstream.Writer
	last      int32
	classBits uint
	count     int
}

func NewEntityStream(classBits uint) *EntityStream {
	return &EntityStream{w: bitstream.NewWriter(), last: -1, classBits: classBits}
}

func (s *EntityStream) header(index int32, cmd uint32) {
	s.w.WriteUBitVar(uint32(index - s.last - 1))
	s.last = index
	s.w.WriteBits(cmd, 2)
	s.count++
}

// Create writes an enter record: class, serial, then the delta against the
// class baseline.
func (s *EntityStream) Create(index, classID int32, serial uint32, props ...Prop) *EntityStream {
	s.header(index, 0b10)
	s.w.WriteBits(uint32(classID), s.classBits)
	s.w.WriteBits(serial, 17)
	s.w.WriteVarUint32(0)
	WriteProps(s.w, props)
	return s
}

func (s *EntityStream) Update(index int32, props ...Prop) *EntityStream {
	s.header(index, 0b00)
	WriteProps(s.w, props)
	return s
}

func (s *EntityStream) Delete(index int32) *EntityStream {
	s.header(index, 0b11)
	return s
}

// Leave writes a leave-PVS record, which carries no data.
func (s *EntityStream) Leave(index int32) *EntityStream {
	s.header(index, 0b01)
	return s
}

// Count is the number of records written, the updated_entries of the message.
func (s *EntityStream) Count() int { return s.count }

func (s *EntityStream) Bytes() []byte { return s.w.Bytes() }
