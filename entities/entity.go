package entities

import (
	"sort"
	"strings"

	"github.com/dbalders/demoparser/fieldpath"
)

type State uint8

const (
	StateActive State = iota
	StateDeleted
)

func (s State) String() string {
	if s == StateDeleted {
		return "deleted"
	}
	return "active"
}

// HandleIndexMask extracts the entity index from an entity handle.
const HandleIndexMask = 0x3FFF

// HandleIndex returns the entity index an entity handle refers to.
func HandleIndex(handle uint32) int32 { return int32(handle & HandleIndexMask) }

// Entity is one networked object. Only properties that have been set, by the
// class baseline or by a delta, are present.
type Entity struct {
	ID        int32
	Serial    uint32
	ClassID   int32
	ClassName string
	State     State

	props  map[fieldpath.FieldPath]any
	byName map[string]fieldpath.FieldPath
}

func newEntity(id, classID int32, className string, serial uint32) *Entity {
	return &Entity{
		ID:        id,
		Serial:    serial,
		ClassID:   classID,
		ClassName: className,
		props:     make(map[fieldpath.FieldPath]any),
		byName:    make(map[string]fieldpath.FieldPath),
	}
}

func (e *Entity) set(fp fieldpath.FieldPath, name string, v any) {
	e.props[fp] = v
	e.byName[name] = fp
}

// seed copies every property of src into e.
func (e *Entity) seed(src *Entity) {
	for fp, v := range src.props {
		e.props[fp] = v
	}
	for name, fp := range src.byName {
		e.byName[name] = fp
	}
}

// Get returns a property by its full name, "Class.field.sub".
func (e *Entity) Get(name string) (any, bool) {
	fp, ok := e.byName[name]
	if !ok {
		return nil, false
	}
	return e.props[fp], true
}

// Property returns a property by its name without the class prefix.
func (e *Entity) Property(name string) (any, bool) {
	return e.Get(e.ClassName + "." + name)
}

// GetPath returns a property by field path.
func (e *Entity) GetPath(fp fieldpath.FieldPath) (any, bool) {
	v, ok := e.props[fp]
	return v, ok
}

// Len returns the number of properties set.
func (e *Entity) Len() int { return len(e.props) }

// Names returns the full names of all properties set, sorted.
func (e *Entity) Names() []string {
	names := make([]string, 0, len(e.byName))
	for n := range e.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies the property table, keyed by full name.
func (e *Entity) Snapshot() map[string]any {
	out := make(map[string]any, len(e.byName))
	for name, fp := range e.byName {
		out[name] = e.props[fp]
	}
	return out
}

// ShortName strips the class prefix from a full property name.
func ShortName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// World coordinates are sent as a cell index plus an offset inside the cell.
const (
	cellWidth   = 1 << 9
	worldOrigin = 16384
)

var positionAxes = [3]string{"X", "Y", "Z"}

// Position returns the world position of an entity with a body component.
func (e *Entity) Position() ([3]float32, bool) {
	var pos [3]float32
	for i, axis := range positionAxes {
		cell, ok := e.Property("CBodyComponent.m_cell" + axis)
		if !ok {
			return pos, false
		}
		vec, ok := e.Property("CBodyComponent.m_vec" + axis)
		if !ok {
			return pos, false
		}
		c, ok := cell.(uint32)
		if !ok {
			return pos, false
		}
		v, ok := vec.(float32)
		if !ok {
			return pos, false
		}
		pos[i] = float32(c)*cellWidth - worldOrigin + v
	}
	return pos, true
}
