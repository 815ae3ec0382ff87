package entities

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dbalders/demoparser/bitstream"
	"github.com/dbalders/demoparser/fieldpath"
	"github.com/dbalders/demoparser/sendtables"
)

// ErrDesync reports entity state that no longer matches the stream: an
// update or delete of an entity that was never created. Everything decoded
// after it is unreliable.
var ErrDesync = errors.New("entities: desync")

var (
	ErrNotActive    = fmt.Errorf("%w: entity not active", ErrDesync)
	ErrMissingClass = errors.New("entities: class id bit width not set")
)

// Observer is told about entity lifecycle events as they are applied.
// PropertyChanged is only reported for updates of existing entities;
// a created entity is reported once, complete, through EntityCreated.
type Observer interface {
	EntityCreated(e *Entity)
	PropertyChanged(e *Entity, name string, value any)
	EntityDeleted(e *Entity)
}

type StoreOptions struct {
	observer Observer
}

type StoreOption func(*StoreOptions)

func WithObserver(o Observer) StoreOption {
	return func(opts *StoreOptions) { opts.observer = o }
}

// Store owns every entity of one demo, the class baselines and the state
// needed to apply packet entity deltas. It is not safe for concurrent use.
type Store struct {
	StoreOptions
	log logger.Logger
	reg *sendtables.Registry

	entities map[int32]*Entity
	retired  []*Entity

	rawBaselines map[int32][]byte
	baselines    map[int32]*Entity

	classBits uint

	// scratch reused across deltas
	paths []fieldpath.FieldPath
}

func NewStore(log logger.Logger, reg *sendtables.Registry, opts ...StoreOption) *Store {
	s := &Store{
		log:          log,
		reg:          reg,
		entities:     make(map[int32]*Entity),
		rawBaselines: make(map[int32][]byte),
		baselines:    make(map[int32]*Entity),
	}
	for _, o := range opts {
		o(&s.StoreOptions)
	}
	return s
}

// SetClassBits sets the width of class ids in create records.
func (s *Store) SetClassBits(n uint) { s.classBits = n }

func (s *Store) ClassBits() uint { return s.classBits }

// SetBaseline records the encoded baseline of a class. A previously decoded
// baseline for the class is discarded.
func (s *Store) SetBaseline(classID int32, data []byte) {
	s.rawBaselines[classID] = data
	delete(s.baselines, classID)
}

// SetBaselineEntry accepts an instance baseline string table entry, whose
// key is the decimal class id.
func (s *Store) SetBaselineEntry(key string, value []byte) error {
	id, err := strconv.ParseInt(key, 10, 32)
	if err != nil {
		return fmt.Errorf("entities: baseline key %q: %w", key, err)
	}
	s.SetBaseline(int32(id), value)
	return nil
}

// baseline returns the decoded baseline of a class, decoding it on first
// use. A class without a baseline yields an empty one.
func (s *Store) baseline(classID int32, className string) (*Entity, error) {
	if b, ok := s.baselines[classID]; ok {
		return b, nil
	}
	b := newEntity(-1, classID, className, 0)
	if raw := s.rawBaselines[classID]; len(raw) > 0 {
		if err := s.applyDelta(b, bitstream.NewReader(raw), false); err != nil {
			return nil, fmt.Errorf("baseline for class %s: %w", className, err)
		}
	}
	s.baselines[classID] = b
	return b, nil
}

// Create makes a new active entity of classID seeded from the class
// baseline. An entity already active under id is retired first.
func (s *Store) Create(id, classID int32, serial uint32) (*Entity, error) {
	c, ok := s.reg.Class(classID)
	if !ok {
		return nil, fmt.Errorf("entity %d: %w: %d", id, sendtables.ErrUnknownClass, classID)
	}
	if old, ok := s.entities[id]; ok {
		s.log.Debugf("entity %d recreated as %s without delete", id, c.Name)
		s.retire(old)
	}
	b, err := s.baseline(classID, c.Name)
	if err != nil {
		return nil, err
	}
	e := newEntity(id, classID, c.Name, serial)
	e.seed(b)
	s.entities[id] = e
	return e, nil
}

// Update sets one property of an active entity.
func (s *Store) Update(id int32, fp fieldpath.FieldPath, value any) error {
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("%w: update of %d", ErrNotActive, id)
	}
	res, err := s.reg.Resolve(e.ClassID, fp)
	if err != nil {
		return err
	}
	e.set(fp, res.Name, value)
	if s.observer != nil {
		s.observer.PropertyChanged(e, res.Name, value)
	}
	return nil
}

// Delete removes an active entity. Its final state stays readable through
// DrainRetired.
func (s *Store) Delete(id int32) error {
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("%w: delete of %d", ErrNotActive, id)
	}
	s.retire(e)
	return nil
}

func (s *Store) retire(e *Entity) {
	delete(s.entities, e.ID)
	e.State = StateDeleted
	s.retired = append(s.retired, e)
	if s.observer != nil {
		s.observer.EntityDeleted(e)
	}
}

// Get returns an active entity.
func (s *Store) Get(id int32) (*Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// DrainRetired returns the entities deleted since the last call, each
// exactly once.
func (s *Store) DrainRetired() []*Entity {
	out := s.retired
	s.retired = nil
	return out
}

// Len returns the number of active entities.
func (s *Store) Len() int { return len(s.entities) }

// Range calls fn for every active entity until fn returns false.
func (s *Store) Range(fn func(e *Entity) bool) {
	for _, e := range s.entities {
		if !fn(e) {
			return
		}
	}
}

// applyDelta reads a field path stream followed by one value per path and
// applies the values to e.
func (s *Store) applyDelta(e *Entity, r *bitstream.Reader, notify bool) error {
	var err error
	s.paths, err = fieldpath.ReadAll(r, s.paths[:0])
	if err != nil {
		return fmt.Errorf("entity %d field paths: %w", e.ID, err)
	}
	for _, fp := range s.paths {
		res, err := s.reg.Resolve(e.ClassID, fp)
		if err != nil {
			return fmt.Errorf("entity %d: %w", e.ID, err)
		}
		v := res.Decoder.Decode(r)
		if err := r.Err(); err != nil {
			return fmt.Errorf("entity %d %s: %w", e.ID, res.Name, err)
		}
		e.set(fp, res.Name, v)
		if notify && s.observer != nil {
			s.observer.PropertyChanged(e, res.Name, v)
		}
	}
	return nil
}

// entity record commands, two bits following the index delta
const (
	cmdUpdate = 0b00
	cmdLeave  = 0b01
	cmdCreate = 0b10
	cmdDelete = 0b11

	serialBits = 17
)

// ReadPacket applies the updated entity records of one packet entities
// message. Any error leaves the reader at an unknown position, so the rest
// of the packet is abandoned.
func (s *Store) ReadPacket(data []byte, updated int) error {
	if s.classBits == 0 && s.reg.NumClasses() > 1 {
		return ErrMissingClass
	}
	r := bitstream.NewReader(data)
	index := int32(-1)
	for i := 0; i < updated; i++ {
		index += int32(r.ReadUBitVar()) + 1
		cmd := r.ReadBits(2)
		if err := r.Err(); err != nil {
			return fmt.Errorf("entity record %d header: %w", i, err)
		}

		switch cmd {
		case cmdCreate:
			classID := int32(r.ReadBits(s.classBits))
			serial := r.ReadBits(serialBits)
			r.ReadVarUint32()
			if err := r.Err(); err != nil {
				return fmt.Errorf("entity %d create header: %w", index, err)
			}
			e, err := s.Create(index, classID, serial)
			if err != nil {
				return err
			}
			if err := s.applyDelta(e, r, false); err != nil {
				return err
			}
			if s.observer != nil {
				s.observer.EntityCreated(e)
			}

		case cmdUpdate:
			e, ok := s.entities[index]
			if !ok {
				return fmt.Errorf("%w: update of %d", ErrNotActive, index)
			}
			if err := s.applyDelta(e, r, true); err != nil {
				return err
			}

		case cmdDelete:
			if err := s.Delete(index); err != nil {
				return err
			}

		case cmdLeave:
			// leaving the visible set changes nothing for a recorded demo
		}
	}
	return nil
}
