package stringtables

import (
	"fmt"

	"github.com/dbalders/demoparser/bitstream"
	"github.com/dbalders/demoparser/wire"
	"github.com/golang/snappy"
)

// keys recently seen in one table data blob, which later keys may extend
const keyHistorySize = 32

// Field numbers of the create and update string table messages.
const (
	createName            = 1
	createNumEntries      = 2
	createUserDataFixed   = 3
	createUserDataSize    = 4
	createUserDataBits    = 5
	createFlags           = 6
	createStringData      = 7
	createUncompressedLen = 8
	createDataCompressed  = 9
	createVarintBitCounts = 10

	updateTableID    = 1
	updateNumChanged = 2
	updateStringData = 3
)

// ParseEntries decodes count changed entries of t from a table data
// bitstream.
func ParseEntries(data []byte, count int, t *Table) ([]Entry, error) {
	r := bitstream.NewReader(data)
	out := make([]Entry, 0, count)
	history := make([]string, 0, keyHistorySize)
	index := int32(-1)

	for i := 0; i < count; i++ {
		if r.ReadBoolean() {
			index++
		} else {
			index = int32(r.ReadVarUint32()) + 1
		}

		var key string
		if r.ReadBoolean() {
			if r.ReadBoolean() {
				pos := int(r.ReadBits(5))
				size := int(r.ReadBits(5))
				if pos < len(history) {
					prefix := history[pos]
					if size < len(prefix) {
						prefix = prefix[:size]
					}
					key = prefix
				}
				key += r.ReadString()
			} else {
				key = r.ReadString()
			}
			if len(history) == keyHistorySize {
				copy(history, history[1:])
				history = history[:keyHistorySize-1]
			}
			history = append(history, key)
		}

		var value []byte
		if r.ReadBoolean() {
			var bitSize uint
			compressed := false
			if t.UserDataFixed {
				bitSize = uint(t.UserDataSizeBits)
			} else {
				if t.Flags&1 != 0 {
					compressed = r.ReadBoolean()
				}
				if t.VarintBitCounts {
					bitSize = uint(r.ReadUBitVar()) * 8
				} else {
					bitSize = uint(r.ReadBits(17)) * 8
				}
			}
			value = r.ReadBitsAsBytes(bitSize)
			if compressed && r.Err() == nil {
				v, err := snappy.Decode(nil, value)
				if err != nil {
					return nil, fmt.Errorf("%w: %s entry %d: %v", ErrDecompress, t.Name, index, err)
				}
				value = v
			}
		}

		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%s entry %d of %d: %w", t.Name, i, count, err)
		}
		out = append(out, Entry{Index: index, Key: key, Value: value})
	}
	return out, nil
}

// HandleCreate applies a create string table message and returns the new
// table with its initial entries.
func (s *Store) HandleCreate(msg []byte) (*Table, []Entry, error) {
	m, err := wire.Parse(msg)
	if err != nil {
		return nil, nil, err
	}
	tbl := &Table{
		Name:             m.String(createName),
		UserDataFixed:    m.Bool(createUserDataFixed),
		UserDataSize:     m.Int32(createUserDataSize),
		UserDataSizeBits: m.Int32(createUserDataBits),
		Flags:            m.Int32(createFlags),
		VarintBitCounts:  m.Bool(createVarintBitCounts),
	}
	data := m.Bytes(createStringData)
	if m.Bool(createDataCompressed) {
		if data, err = snappy.Decode(nil, data); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrDecompress, tbl.Name, err)
		}
		if want := m.Int32(createUncompressedLen); want != 0 && int(want) != len(data) {
			return nil, nil, fmt.Errorf("%w: %s: uncompressed %d bytes, announced %d", ErrMalformed, tbl.Name, len(data), want)
		}
	}
	entries, err := ParseEntries(data, int(m.Int32(createNumEntries)), tbl)
	if err != nil {
		return nil, nil, err
	}

	t := s.CreateTable(tbl.Name, entries)
	t.UserDataFixed = tbl.UserDataFixed
	t.UserDataSize = tbl.UserDataSize
	t.UserDataSizeBits = tbl.UserDataSizeBits
	t.Flags = tbl.Flags
	t.VarintBitCounts = tbl.VarintBitCounts
	s.log.Debugf("string table %s created: id %d, %d entries", t.Name, t.ID, len(entries))
	return t, entries, nil
}

// HandleUpdate applies an update string table message and returns the
// changed entries as stored after the update.
func (s *Store) HandleUpdate(msg []byte) (*Table, []Entry, error) {
	m, err := wire.Parse(msg)
	if err != nil {
		return nil, nil, err
	}
	id := int(m.Int32(updateTableID))
	t, ok := s.TableByID(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: id %d", ErrUnknownTable, id)
	}
	changed, err := ParseEntries(m.Bytes(updateStringData), int(m.Int32(updateNumChanged)), t)
	if err != nil {
		return nil, nil, err
	}
	for i, e := range changed {
		changed[i] = t.upsert(e)
	}
	return t, changed, nil
}
