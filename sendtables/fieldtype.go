package sendtables

import (
	"regexp"
	"strconv"
	"strings"
)

// FieldType is a parsed network variable type such as
// "CNetworkUtlVectorBase< CHandle< CBaseEntity > >", "uint8[4]" or
// "CBodyComponent*".
type FieldType struct {
	BaseType    string
	GenericType *FieldType
	Pointer     bool
	Count       int
}

var fieldTypeRe = regexp.MustCompile(`([^<\[\*]+)(<\s(.*)\s>)?(\*)?(\[(.*)\])?`)

// symbolic array sizes seen in type names
var itemCounts = map[string]int{
	"MAX_ITEM_STOCKS":             8,
	"MAX_ABILITY_DRAFT_ABILITIES": 48,
}

// unknownCount is used for array sizes that are neither numeric nor known.
const unknownCount = 1024

func ParseFieldType(name string) FieldType {
	m := fieldTypeRe.FindStringSubmatch(name)
	if m == nil {
		return FieldType{BaseType: strings.TrimSpace(name)}
	}
	ft := FieldType{
		BaseType: strings.TrimSpace(m[1]),
		Pointer:  m[4] == "*",
	}
	if m[3] != "" {
		g := ParseFieldType(m[3])
		ft.GenericType = &g
	}
	if m[6] != "" {
		if n, ok := itemCounts[m[6]]; ok {
			ft.Count = n
		} else if n, err := strconv.Atoi(m[6]); err == nil {
			ft.Count = n
		} else {
			ft.Count = unknownCount
		}
	}
	return ft
}

func (ft FieldType) String() string {
	var sb strings.Builder
	sb.WriteString(ft.BaseType)
	if ft.GenericType != nil {
		sb.WriteString("< ")
		sb.WriteString(ft.GenericType.String())
		sb.WriteString(" >")
	}
	if ft.Pointer {
		sb.WriteByte('*')
	}
	if ft.Count > 0 {
		sb.WriteByte('[')
		sb.WriteString(strconv.Itoa(ft.Count))
		sb.WriteByte(']')
	}
	return sb.String()
}
