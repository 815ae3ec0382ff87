package sendtables

import (
	"fmt"

	"github.com/dbalders/demoparser/bitstream"
	"github.com/dbalders/demoparser/wire"
	"google.golang.org/protobuf/encoding/protowire"
)

// CSVCMsg_FlattenedSerializer field numbers
const (
	flatSerializers protowire.Number = 1
	flatSymbols     protowire.Number = 2
	flatFields      protowire.Number = 3

	serNameSym    protowire.Number = 1
	serVersion    protowire.Number = 2
	serFieldIndex protowire.Number = 3

	fieldVarTypeSym        protowire.Number = 1
	fieldVarNameSym        protowire.Number = 2
	fieldBitCount          protowire.Number = 3
	fieldLowValue          protowire.Number = 4
	fieldHighValue         protowire.Number = 5
	fieldEncodeFlags       protowire.Number = 6
	fieldSerializerNameSym protowire.Number = 7
	fieldSerializerVersion protowire.Number = 8
	fieldSendNodeSym       protowire.Number = 9
	fieldVarEncoderSym     protowire.Number = 10
)

// CDemoClassInfo field numbers
const (
	classInfoClasses protowire.Number = 1

	classID          protowire.Number = 1
	classNetworkName protowire.Number = 2
)

// UnwrapSendTables strips the varint length prefix the send tables frame puts
// in front of the flattened serializer message.
func UnwrapSendTables(data []byte) ([]byte, error) {
	r := bitstream.NewReader(data)
	n := r.ReadVarUint32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("send tables length: %w", err)
	}
	start := int(r.Position() / 8)
	if uint64(len(data)-start) < uint64(n) {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrSendTablesTooShort, n, len(data)-start)
	}
	return data[start : start+int(n)], nil
}

type symbolTable []string

func (st symbolTable) lookup(m wire.Message, num protowire.Number) (string, error) {
	if !m.Has(num) {
		return "", nil
	}
	i := m.Int32(num)
	if i < 0 || int(i) >= len(st) {
		return "", fmt.Errorf("%w: %d of %d", ErrSymbolIndex, i, len(st))
	}
	return st[i], nil
}

// LoadFlattened registers every serializer of a flattened serializer
// message, then validates the resulting graph.
func (reg *Registry) LoadFlattened(data []byte) error {
	msg, err := wire.Parse(data)
	if err != nil {
		return fmt.Errorf("flattened serializer: %w", err)
	}
	symbols := symbolTable(msg.Strings(flatSymbols))

	fieldMsgs, err := msg.Messages(flatFields)
	if err != nil {
		return fmt.Errorf("flattened serializer fields: %w", err)
	}
	// fields are shared by index between serializers, so build each once
	fields := make([]*Field, len(fieldMsgs))
	for i, fm := range fieldMsgs {
		def, err := fieldDefFrom(symbols, fm)
		if err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
		if fields[i], err = reg.NewField(def); err != nil {
			return err
		}
	}

	serMsgs, err := msg.Messages(flatSerializers)
	if err != nil {
		return fmt.Errorf("flattened serializer serializers: %w", err)
	}
	for _, sm := range serMsgs {
		name, err := symbols.lookup(sm, serNameSym)
		if err != nil {
			return fmt.Errorf("serializer name: %w", err)
		}
		indices, err := sm.Int32s(serFieldIndex)
		if err != nil {
			return fmt.Errorf("serializer %s: %w", name, err)
		}
		s := &Serializer{Name: name, Version: sm.Int32(serVersion), Fields: make([]*Field, 0, len(indices))}
		for _, i := range indices {
			if i < 0 || int(i) >= len(fields) {
				return fmt.Errorf("%w: serializer %s field %d of %d", ErrFieldIndex, name, i, len(fields))
			}
			s.Fields = append(s.Fields, fields[i])
		}
		if err := reg.AddSerializer(s); err != nil {
			return err
		}
	}

	reg.log.Debugf("flattened serializer: %d symbols, %d fields, %d serializers, %d decoder patterns",
		len(symbols), len(fields), len(serMsgs), len(reg.patterns))
	return reg.Validate()
}

func fieldDefFrom(symbols symbolTable, fm wire.Message) (FieldDef, error) {
	var def FieldDef
	var err error
	lookups := []struct {
		dst *string
		num protowire.Number
	}{
		{&def.VarType, fieldVarTypeSym},
		{&def.Name, fieldVarNameSym},
		{&def.SerializerName, fieldSerializerNameSym},
		{&def.SendNode, fieldSendNodeSym},
		{&def.Encoder, fieldVarEncoderSym},
	}
	for _, l := range lookups {
		if *l.dst, err = symbols.lookup(fm, l.num); err != nil {
			return FieldDef{}, err
		}
	}
	def.BitCount = fm.Int32(fieldBitCount)
	def.LowValue = fm.Float32(fieldLowValue)
	def.HighValue = 1
	if fm.Has(fieldHighValue) {
		def.HighValue = fm.Float32(fieldHighValue)
	}
	def.EncodeFlags = fm.Int32(fieldEncodeFlags)
	def.SerializerVersion = fm.Int32(fieldSerializerVersion)
	return def, nil
}

// LoadClassInfo registers the classes of a class info message. Each class
// uses the serializer of the same name.
func (reg *Registry) LoadClassInfo(data []byte) error {
	msg, err := wire.Parse(data)
	if err != nil {
		return fmt.Errorf("class info: %w", err)
	}
	classes, err := msg.Messages(classInfoClasses)
	if err != nil {
		return fmt.Errorf("class info classes: %w", err)
	}
	for _, cm := range classes {
		name := cm.String(classNetworkName)
		if err := reg.RegisterClass(cm.Int32(classID), name, name); err != nil {
			return err
		}
	}
	reg.log.Debugf("class info: %d classes", len(classes))
	return nil
}
