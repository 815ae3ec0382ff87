package sendtables

import (
	"fmt"

	"github.com/dbalders/demoparser/bitstream"
)

// Kind selects how a Decoder turns bits into a value.
type Kind uint8

const (
	KindUnsigned Kind = iota
	KindUnsigned64
	KindFixed64
	KindSigned
	KindSigned64
	KindBool
	KindFloatNoScale
	KindFloatCoord
	KindFloatSimTime
	KindFloatQuantized
	KindVector
	KindVectorNormal
	KindQAnglePitchYaw
	KindQAngleFixed
	KindQAnglePrecise
	KindQAngleCoord
	KindString
	KindAmmo
)

var kindNames = [...]string{
	KindUnsigned:       "unsigned",
	KindUnsigned64:     "unsigned64",
	KindFixed64:        "fixed64",
	KindSigned:         "signed",
	KindSigned64:       "signed64",
	KindBool:           "bool",
	KindFloatNoScale:   "float-noscale",
	KindFloatCoord:     "float-coord",
	KindFloatSimTime:   "float-simtime",
	KindFloatQuantized: "float-quantized",
	KindVector:         "vector",
	KindVectorNormal:   "vector-normal",
	KindQAnglePitchYaw: "qangle-pitch-yaw",
	KindQAngleFixed:    "qangle-fixed",
	KindQAnglePrecise:  "qangle-precise",
	KindQAngleCoord:    "qangle-coord",
	KindString:         "string",
	KindAmmo:           "ammo",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// simulation times are sent as a tick count
const simTimeTick = 1.0 / 64

// Decoder turns the bits of one property value into a Go value. Decoders
// are immutable and shared by every field with the same encoding.
//
// Decode produces bool, int32, int64, uint32, uint64, float32, string or
// []float32 for vectors and angles.
type Decoder struct {
	Kind Kind

	// angle bit count for the qangle kinds
	bits uint
	// component count and component decoder for KindVector
	dims int
	elem *Decoder
	// parameters for KindFloatQuantized
	quant *QuantizedFloat
}

func (d *Decoder) String() string {
	switch d.Kind {
	case KindVector:
		return fmt.Sprintf("%s[%d](%s)", d.Kind, d.dims, d.elem)
	case KindFloatQuantized:
		return fmt.Sprintf("%s(%d bits, %v..%v, flags %d)", d.Kind, d.quant.BitCount, d.quant.Low, d.quant.High, d.quant.Flags)
	}
	return d.Kind.String()
}

// Decode reads one value. On a read failure the reader's sticky error is set
// and the returned value must be discarded.
func (d *Decoder) Decode(r *bitstream.Reader) any {
	switch d.Kind {
	case KindUnsigned:
		return r.ReadVarUint32()
	case KindUnsigned64:
		return r.ReadVarUint64()
	case KindFixed64:
		return r.ReadLeUint64()
	case KindSigned:
		return r.ReadVarInt32()
	case KindSigned64:
		return r.ReadVarInt64()
	case KindBool:
		return r.ReadBoolean()
	case KindFloatNoScale, KindFloatCoord, KindFloatSimTime, KindFloatQuantized:
		return d.decodeFloat(r)
	case KindVector:
		v := make([]float32, d.dims)
		for i := range v {
			v[i] = d.elem.decodeFloat(r)
		}
		return v
	case KindVectorNormal:
		v := r.ReadNormalVec3()
		return v[:]
	case KindQAnglePitchYaw:
		return []float32{r.ReadAngle(d.bits), r.ReadAngle(d.bits), 0}
	case KindQAngleFixed:
		return []float32{r.ReadAngle(d.bits), r.ReadAngle(d.bits), r.ReadAngle(d.bits)}
	case KindQAnglePrecise:
		return readQAngle(r, func() float32 { return r.ReadAngle(20) - 180 })
	case KindQAngleCoord:
		return readQAngle(r, r.ReadCoord)
	case KindString:
		return r.ReadString()
	case KindAmmo:
		return int32(r.ReadVarUint32()) - 1
	}
	return r.ReadVarUint32()
}

func (d *Decoder) decodeFloat(r *bitstream.Reader) float32 {
	switch d.Kind {
	case KindFloatCoord:
		return r.ReadCoord()
	case KindFloatSimTime:
		return float32(r.ReadVarUint32()) * simTimeTick
	case KindFloatQuantized:
		return d.quant.Decode(r)
	}
	return r.ReadFloat32()
}

// readQAngle reads three presence flags followed by each present component.
func readQAngle(r *bitstream.Reader, component func() float32) []float32 {
	var has [3]bool
	for i := range has {
		has[i] = r.ReadBoolean()
	}
	v := make([]float32, 3)
	for i := range v {
		if has[i] {
			v[i] = component()
		}
	}
	return v
}

// base decoders used by the container field models
var (
	presenceDecoder = &Decoder{Kind: KindBool}
	lengthDecoder   = &Decoder{Kind: KindUnsigned}
)

// encoding is everything about a field that decides its decoder.
type encoding struct {
	baseType  string
	varName   string
	encoder   string
	bitCount  int32
	low, high float32
	flags     int32
}

// decoders chosen by property name rather than type
var namedDecoders = map[string]bool{
	"m_iClip1":           true,
	"m_flSimulationTime": true,
	"m_flAnimTime":       true,
}

func (e encoding) pattern() string {
	name := ""
	if namedDecoders[e.varName] {
		name = e.varName
	}
	return fmt.Sprintf("%s|%s|%s|%d|%v|%v|%d", e.baseType, name, e.encoder, e.bitCount, e.low, e.high, e.flags)
}

// newDecoder builds the decoder for a value of e.baseType.
func newDecoder(e encoding) (*Decoder, error) {
	if e.varName == "m_iClip1" {
		return &Decoder{Kind: KindAmmo}, nil
	}
	switch e.baseType {
	case "bool":
		return &Decoder{Kind: KindBool}, nil
	case "int8", "int16", "int32":
		return &Decoder{Kind: KindSigned}, nil
	case "int64":
		return &Decoder{Kind: KindSigned64}, nil
	case "uint64", "CStrongHandle":
		if e.encoder == "fixed64" {
			return &Decoder{Kind: KindFixed64}, nil
		}
		return &Decoder{Kind: KindUnsigned64}, nil
	case "float32":
		return newFloatDecoder(e)
	case "CNetworkedQuantizedFloat":
		return newQuantizedDecoder(e)
	case "GameTime_t":
		return &Decoder{Kind: KindFloatNoScale}, nil
	case "Vector":
		return newVectorDecoder(e, 3)
	case "Vector2D":
		return newVectorDecoder(e, 2)
	case "Vector4D", "Quaternion":
		return newVectorDecoder(e, 4)
	case "QAngle":
		return newQAngleDecoder(e), nil
	case "char", "CUtlString", "CUtlSymbolLarge":
		return &Decoder{Kind: KindString}, nil
	}
	// uint8..uint32, Color, CUtlStringToken, handles, enums and anything else
	// integral
	return &Decoder{Kind: KindUnsigned}, nil
}

func newFloatDecoder(e encoding) (*Decoder, error) {
	switch {
	case e.encoder == "coord":
		return &Decoder{Kind: KindFloatCoord}, nil
	case e.encoder == "simtime", e.varName == "m_flSimulationTime", e.varName == "m_flAnimTime":
		return &Decoder{Kind: KindFloatSimTime}, nil
	case e.bitCount <= 0 || e.bitCount >= 32:
		return &Decoder{Kind: KindFloatNoScale}, nil
	}
	return newQuantizedDecoder(e)
}

func newQuantizedDecoder(e encoding) (*Decoder, error) {
	if e.bitCount <= 0 || e.bitCount >= 32 {
		return &Decoder{Kind: KindFloatNoScale}, nil
	}
	q, err := NewQuantizedFloat(e.bitCount, e.flags, e.low, e.high)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.varName, err)
	}
	return &Decoder{Kind: KindFloatQuantized, quant: q}, nil
}

func newVectorDecoder(e encoding, dims int) (*Decoder, error) {
	if dims == 3 && e.encoder == "normal" {
		return &Decoder{Kind: KindVectorNormal}, nil
	}
	elem, err := newFloatDecoder(e)
	if err != nil {
		return nil, err
	}
	return &Decoder{Kind: KindVector, dims: dims, elem: elem}, nil
}

func newQAngleDecoder(e encoding) *Decoder {
	switch {
	case e.encoder == "qangle_pitch_yaw":
		return &Decoder{Kind: KindQAnglePitchYaw, bits: uint(e.bitCount)}
	case e.encoder == "qangle_precise":
		return &Decoder{Kind: KindQAnglePrecise}
	case e.bitCount != 0:
		return &Decoder{Kind: KindQAngleFixed, bits: uint(e.bitCount)}
	}
	return &Decoder{Kind: KindQAngleCoord}
}
