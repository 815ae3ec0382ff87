package sendtables

import "fmt"

// FieldDef is one field as described by the schema messages.
type FieldDef struct {
	Name    string
	VarType string
	// SendNode is the network node path of the field, informational only
	SendNode string
	Encoder  string

	BitCount    int32
	LowValue    float32
	HighValue   float32
	EncodeFlags int32

	// SerializerName is set when the field embeds another serializer.
	SerializerName    string
	SerializerVersion int32
}

// Model is the shape a field's values take on the wire.
type Model uint8

const (
	// ModelSimple is a single value.
	ModelSimple Model = iota
	// ModelFixedArray is Count values of the base type, addressed by one
	// more path level.
	ModelFixedArray
	// ModelFixedTable is an optional embedded serializer: the field's own
	// value is a presence flag.
	ModelFixedTable
	// ModelVariableArray is a length followed by elements of the generic type.
	ModelVariableArray
	// ModelVariableTable is a length followed by elements that are each an
	// embedded serializer.
	ModelVariableTable
)

func (m Model) String() string {
	switch m {
	case ModelSimple:
		return "simple"
	case ModelFixedArray:
		return "fixed-array"
	case ModelFixedTable:
		return "fixed-table"
	case ModelVariableArray:
		return "variable-array"
	case ModelVariableTable:
		return "variable-table"
	}
	return fmt.Sprintf("Model(%d)", m)
}

// pointerTypes are embedded serializers sent as optional tables even when the
// type name carries no pointer marker.
var pointerTypes = map[string]bool{
	"PhysicsRagdollPose_t":       true,
	"CBodyComponent":             true,
	"CEntityIdentity":            true,
	"CPhysicsComponent":          true,
	"CRenderComponent":           true,
	"CDOTAGamerules":             true,
	"CDOTAGameManager":           true,
	"CDOTASpectatorGraphManager": true,
	"CPlayerLocalData":           true,
	"CPlayer_CameraServices":     true,
	"CDOTAGameRules":             true,
}

// Field is an immutable schema leaf with its decoders resolved.
type Field struct {
	FieldDef
	Type  FieldType
	Model Model

	// decoder reads the value of a simple field or a fixed array element
	decoder *Decoder
	// baseDecoder reads the table presence flag or the container length
	baseDecoder *Decoder
	// childDecoder reads one variable array element
	childDecoder *Decoder
}

func modelFor(def FieldDef, ft FieldType) Model {
	switch {
	case def.SerializerName != "":
		if ft.Pointer || pointerTypes[ft.BaseType] {
			return ModelFixedTable
		}
		return ModelVariableTable
	case ft.Count > 0 && ft.BaseType != "char":
		return ModelFixedArray
	case ft.BaseType == "CUtlVector", ft.BaseType == "CNetworkUtlVectorBase", ft.BaseType == "CUtlVectorEmbeddedNetworkVar":
		return ModelVariableArray
	}
	return ModelSimple
}

func (def FieldDef) encoding(baseType string) encoding {
	return encoding{
		baseType: baseType,
		varName:  def.Name,
		encoder:  def.Encoder,
		bitCount: def.BitCount,
		low:      def.LowValue,
		high:     def.HighValue,
		flags:    def.EncodeFlags,
	}
}
