package demo

import (
	"fmt"

	"github.com/dbalders/demoparser/wire"
	"google.golang.org/protobuf/encoding/protowire"
)

// game event key value types
const (
	eventKeyString = 1
	eventKeyFloat  = 2
	eventKeyLong   = 3
	eventKeyShort  = 4
	eventKeyByte   = 5
	eventKeyBool   = 6
	eventKeyUint64 = 7
)

// value field of an event key, by key type
var eventValueFields = map[int32]protowire.Number{
	eventKeyString: 2,
	eventKeyFloat:  3,
	eventKeyLong:   4,
	eventKeyShort:  5,
	eventKeyByte:   6,
	eventKeyBool:   7,
	eventKeyUint64: 8,
}

type eventKey struct {
	name string
	typ  int32
}

type eventDescriptor struct {
	name string
	keys []eventKey
}

func parseEventList(msg []byte) (map[int32]eventDescriptor, error) {
	m, err := wire.Parse(msg)
	if err != nil {
		return nil, err
	}
	descs, err := m.Messages(eventListDescriptors)
	if err != nil {
		return nil, err
	}
	out := make(map[int32]eventDescriptor, len(descs))
	for _, d := range descs {
		keys, err := d.Messages(descriptorKeys)
		if err != nil {
			return nil, err
		}
		desc := eventDescriptor{name: d.String(descriptorName), keys: make([]eventKey, len(keys))}
		for i, k := range keys {
			desc.keys[i] = eventKey{name: k.String(keyName), typ: k.Int32(keyType)}
		}
		out[d.Int32(descriptorID)] = desc
	}
	return out, nil
}

// lookupEvent finds the descriptor of an event message. Events sent with
// their name but an unknown id get a descriptor without key names.
func lookupEvent(m wire.Message, descs map[int32]eventDescriptor) (eventDescriptor, bool) {
	d, ok := descs[m.Int32(eventID)]
	if !ok && m.Has(eventName) {
		return eventDescriptor{name: m.String(eventName)}, true
	}
	return d, ok
}

// decodeEvent pairs the key values of an event with the descriptor's key
// names.
func decodeEvent(m wire.Message, d eventDescriptor, tick int32) (GameEvent, error) {
	keys, err := m.Messages(eventKeys)
	if err != nil {
		return GameEvent{}, err
	}
	if len(keys) > len(d.keys) && len(d.keys) > 0 {
		return GameEvent{}, fmt.Errorf("%w: event %s has %d keys, descriptor %d",
			wire.ErrMalformed, d.name, len(keys), len(d.keys))
	}
	ev := GameEvent{Name: d.name, Tick: tick, Fields: make(map[string]any, len(keys))}
	for i, k := range keys {
		name := fmt.Sprintf("key%d", i)
		if i < len(d.keys) {
			name = d.keys[i].name
		}
		ev.Fields[name] = eventValue(k)
	}
	return ev, nil
}

func eventValue(k wire.Message) any {
	typ := k.Int32(keyType)
	switch typ {
	case eventKeyString:
		return k.String(eventValueFields[typ])
	case eventKeyFloat:
		return k.Float32(eventValueFields[typ])
	case eventKeyBool:
		return k.Bool(eventValueFields[typ])
	case eventKeyUint64:
		return k.Uint64(eventValueFields[typ])
	}
	if f, ok := eventValueFields[typ]; ok {
		return k.Int32(f)
	}
	// player and entity handle keys use the integer fields
	for _, f := range []protowire.Number{4, 5, 6} {
		if k.Has(f) {
			return k.Int32(f)
		}
	}
	return nil
}
