package sendtables

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dbalders/demoparser/fieldpath"
)

// Serializer is a named, versioned, ordered list of fields.
type Serializer struct {
	Name    string
	Version int32
	Fields  []*Field
}

// Class binds a class id to its root serializer.
type Class struct {
	ID             int32
	Name           string
	SerializerName string
}

// Resolved is the outcome of resolving one field path of one class.
type Resolved struct {
	// Name is the dotted property name, prefixed by the class name.
	Name    string
	Decoder *Decoder
	Field   *Field
}

type resolveKey struct {
	classID int32
	fp      fieldpath.FieldPath
}

// Registry holds the schema of one demo: serializers, classes and the
// resolution cache. Serializers refer to each other by name and are looked
// up at resolution time.
//
// A Registry belongs to a single decode session and is not safe for
// concurrent use.
type Registry struct {
	log logger.Logger

	serializers map[string]*Serializer
	classes     map[int32]*Class
	byName      map[string]*Class

	// decoders deduplicated by encoding pattern
	patterns map[uint64][]patternDecoder
	cache    map[resolveKey]*Resolved
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		log:         log,
		serializers: make(map[string]*Serializer),
		classes:     make(map[int32]*Class),
		byName:      make(map[string]*Class),
		patterns:    make(map[uint64][]patternDecoder),
		cache:       make(map[resolveKey]*Resolved),
	}
}

type patternDecoder struct {
	pattern string
	decoder *Decoder
}

// decoderFor returns the shared decoder for e, building it on first use.
// Patterns whose hashes collide share a bucket.
func (reg *Registry) decoderFor(e encoding) (*Decoder, error) {
	pattern := e.pattern()
	key := xxhash.Sum64String(pattern)
	for _, pd := range reg.patterns[key] {
		if pd.pattern == pattern {
			return pd.decoder, nil
		}
	}
	d, err := newDecoder(e)
	if err != nil {
		return nil, err
	}
	reg.patterns[key] = append(reg.patterns[key], patternDecoder{pattern: pattern, decoder: d})
	return d, nil
}

// NewField parses the type of def and resolves its decoders.
func (reg *Registry) NewField(def FieldDef) (*Field, error) {
	ft := ParseFieldType(def.VarType)
	f := &Field{FieldDef: def, Type: ft, Model: modelFor(def, ft)}

	var err error
	switch f.Model {
	case ModelFixedTable:
		f.baseDecoder = presenceDecoder
	case ModelVariableTable:
		f.baseDecoder = lengthDecoder
	case ModelVariableArray:
		f.baseDecoder = lengthDecoder
		child := ft.BaseType
		if ft.GenericType != nil {
			child = ft.GenericType.BaseType
		}
		f.childDecoder, err = reg.decoderFor(def.encoding(child))
	default:
		f.decoder, err = reg.decoderFor(def.encoding(ft.BaseType))
	}
	if err != nil {
		return nil, fmt.Errorf("field %s %q: %w", def.Name, def.VarType, err)
	}
	return f, nil
}

// RegisterSerializer defines (or redefines) the serializer name. Redefining
// a serializer discards every cached resolution.
func (reg *Registry) RegisterSerializer(name string, version int32, defs []FieldDef) (*Serializer, error) {
	s := &Serializer{Name: name, Version: version, Fields: make([]*Field, 0, len(defs))}
	for _, def := range defs {
		f, err := reg.NewField(def)
		if err != nil {
			return nil, fmt.Errorf("serializer %s: %w", name, err)
		}
		s.Fields = append(s.Fields, f)
	}
	return s, reg.AddSerializer(s)
}

// AddSerializer registers an already built serializer. Fields may be shared
// between serializers.
func (reg *Registry) AddSerializer(s *Serializer) error {
	if _, ok := reg.serializers[s.Name]; ok {
		reg.log.Debugf("serializer %s redefined (version %d)", s.Name, s.Version)
		clear(reg.cache)
	}
	reg.serializers[s.Name] = s
	return nil
}

// RegisterClass binds id to the serializer named serializerName. A class id
// may only be registered once.
func (reg *Registry) RegisterClass(id int32, name, serializerName string) error {
	if c, ok := reg.classes[id]; ok {
		return fmt.Errorf("%w: %d is %s", ErrClassRedefined, id, c.Name)
	}
	c := &Class{ID: id, Name: name, SerializerName: serializerName}
	reg.classes[id] = c
	reg.byName[name] = c
	return nil
}

func (reg *Registry) Serializer(name string) (*Serializer, bool) {
	s, ok := reg.serializers[name]
	return s, ok
}

func (reg *Registry) Class(id int32) (*Class, bool) {
	c, ok := reg.classes[id]
	return c, ok
}

func (reg *Registry) ClassByName(name string) (*Class, bool) {
	c, ok := reg.byName[name]
	return c, ok
}

// NumClasses returns the number of registered classes.
func (reg *Registry) NumClasses() int { return len(reg.classes) }

// NumSerializers returns the number of registered serializers.
func (reg *Registry) NumSerializers() int { return len(reg.serializers) }

// Resolve maps a field path of class classID to the property it addresses.
// Results are cached for the lifetime of the registry, so resolving the same
// path twice returns the same *Resolved.
func (reg *Registry) Resolve(classID int32, fp fieldpath.FieldPath) (*Resolved, error) {
	key := resolveKey{classID: classID, fp: fp}
	if res, ok := reg.cache[key]; ok {
		return res, nil
	}

	c, ok := reg.classes[classID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClass, classID)
	}
	s, ok := reg.serializers[c.SerializerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s for class %s", ErrMissingSerializer, c.SerializerName, c.Name)
	}

	names := make([]string, 1, fp.Len()+2)
	names[0] = c.Name
	f, d, names, err := reg.resolveIn(s, fp, 0, names)
	if err != nil {
		return nil, fmt.Errorf("class %s path %s: %w", c.Name, fp, err)
	}
	res := &Resolved{Name: strings.Join(names, "."), Decoder: d, Field: f}
	reg.cache[key] = res
	return res, nil
}

// resolveIn resolves fp from level onwards against s.
func (reg *Registry) resolveIn(s *Serializer, fp fieldpath.FieldPath, level int, names []string) (*Field, *Decoder, []string, error) {
	idx := fp.Path[level]
	if idx < 0 || int(idx) >= len(s.Fields) {
		return nil, nil, nil, fmt.Errorf("%w: %d of %d in %s", ErrFieldIndex, idx, len(s.Fields), s.Name)
	}
	f := s.Fields[idx]
	names = append(names, f.Name)

	// levels remaining after the one selecting f
	rest := fp.Last - level

	switch f.Model {
	case ModelSimple:
		if rest != 0 {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrPathPastLeaf, f.Name)
		}
		return f, f.decoder, names, nil

	case ModelFixedArray:
		if rest > 1 {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrPathPastLeaf, f.Name)
		}
		if rest == 1 {
			elem := fp.Path[level+1]
			if elem < 0 || int(elem) >= f.Type.Count {
				return nil, nil, nil, fmt.Errorf("%w: element %d of %s[%d]", ErrFieldIndex, elem, f.Name, f.Type.Count)
			}
			names = append(names, elementName(elem))
		}
		return f, f.decoder, names, nil

	case ModelFixedTable:
		if rest == 0 {
			return f, f.baseDecoder, names, nil
		}
		sub, ok := reg.serializers[f.SerializerName]
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: %s referenced by %s", ErrMissingSerializer, f.SerializerName, f.Name)
		}
		return reg.resolveIn(sub, fp, level+1, names)

	case ModelVariableArray:
		switch rest {
		case 0:
			return f, f.baseDecoder, names, nil
		case 1:
			elem := fp.Path[level+1]
			if elem < 0 {
				return nil, nil, nil, fmt.Errorf("%w: element %d of %s", ErrFieldIndex, elem, f.Name)
			}
			return f, f.childDecoder, append(names, elementName(elem)), nil
		}
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrPathPastLeaf, f.Name)

	case ModelVariableTable:
		if rest == 0 {
			return f, f.baseDecoder, names, nil
		}
		elem := fp.Path[level+1]
		if elem < 0 {
			return nil, nil, nil, fmt.Errorf("%w: element %d of %s", ErrFieldIndex, elem, f.Name)
		}
		names = append(names, elementName(elem))
		if rest == 1 {
			return f, f.baseDecoder, names, nil
		}
		sub, ok := reg.serializers[f.SerializerName]
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: %s referenced by %s", ErrMissingSerializer, f.SerializerName, f.Name)
		}
		return reg.resolveIn(sub, fp, level+2, names)
	}
	return nil, nil, nil, fmt.Errorf("%w: field %s has model %s", ErrSchema, f.Name, f.Model)
}

func elementName(i int32) string { return fmt.Sprintf("%04d", i) }

// Validate rejects serializer graphs in which a serializer embeds itself,
// directly or through others. References to unknown serializers are left
// for resolution to report.
func (reg *Registry) Validate() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(reg.serializers))

	var visit func(s *Serializer, trail []string) error
	visit = func(s *Serializer, trail []string) error {
		switch state[s.Name] {
		case visiting:
			return fmt.Errorf("%w: %s", ErrSerializerCycle, strings.Join(append(trail, s.Name), " -> "))
		case done:
			return nil
		}
		state[s.Name] = visiting
		trail = append(trail, s.Name)
		for _, f := range s.Fields {
			if f.SerializerName == "" {
				continue
			}
			sub, ok := reg.serializers[f.SerializerName]
			if !ok {
				continue
			}
			if err := visit(sub, trail); err != nil {
				return err
			}
		}
		state[s.Name] = done
		return nil
	}

	for _, s := range reg.serializers {
		if err := visit(s, nil); err != nil {
			return err
		}
	}
	return nil
}
