package stringtables

import (
	"errors"
	"sort"

	"github.com/datatrails/go-datatrails-common/logger"
)

var (
	ErrUnknownTable = errors.New("stringtables: unknown table")
	ErrMalformed    = errors.New("stringtables: malformed table data")
	ErrDecompress   = errors.New("stringtables: value decompression failed")
)

// Names of the tables the decoder itself consumes.
const (
	InstanceBaseline = "instancebaseline"
	UserInfoTable    = "userinfo"
)

// Entry is one row of a string table.
type Entry struct {
	Index int32
	Key   string
	Value []byte
}

// Table is a named, index addressed set of entries. Indices are stable: an
// update inserts or overwrites a single index and never shifts another.
type Table struct {
	Name string
	ID   int

	// wire parameters announced when the table was created
	UserDataFixed    bool
	UserDataSize     int32
	UserDataSizeBits int32
	Flags            int32
	VarintBitCounts  bool

	entries map[int32]*Entry
}

func newTable(name string, id int) *Table {
	return &Table{Name: name, ID: id, entries: make(map[int32]*Entry)}
}

// Get returns the value at index.
func (t *Table) Get(index int32) ([]byte, bool) {
	e, ok := t.entries[index]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Entry returns the entry at index.
func (t *Table) Entry(index int32) (Entry, bool) {
	e, ok := t.entries[index]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (t *Table) Len() int { return len(t.entries) }

// Entries returns a copy of all entries ordered by index.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// upsert applies one changed entry. A change without a key keeps the key
// already stored at that index, and a change without a value keeps the value.
func (t *Table) upsert(in Entry) Entry {
	e, ok := t.entries[in.Index]
	if !ok {
		e = &Entry{Index: in.Index}
		t.entries[in.Index] = e
	}
	if in.Key != "" {
		e.Key = in.Key
	}
	if in.Value != nil {
		e.Value = in.Value
	}
	return *e
}

// Store holds the string tables of one demo, addressable by name and by the
// id the server assigned in creation order.
type Store struct {
	log    logger.Logger
	byName map[string]*Table
	byID   []*Table
}

func NewStore(log logger.Logger) *Store {
	return &Store{log: log, byName: make(map[string]*Table)}
}

// CreateTable makes a table holding exactly entries. An existing table of
// the same name is replaced and keeps its id.
func (s *Store) CreateTable(name string, entries []Entry) *Table {
	id := len(s.byID)
	if old, ok := s.byName[name]; ok {
		id = old.ID
		s.log.Debugf("string table %s recreated", name)
	}
	t := newTable(name, id)
	for _, e := range entries {
		t.upsert(e)
	}
	s.byName[name] = t
	if id == len(s.byID) {
		s.byID = append(s.byID, t)
	} else {
		s.byID[id] = t
	}
	return t
}

// UpdateTable sets a single entry of an existing table.
func (s *Store) UpdateTable(name string, index int32, key string, value []byte) error {
	t, ok := s.byName[name]
	if !ok {
		return ErrUnknownTable
	}
	t.upsert(Entry{Index: index, Key: key, Value: value})
	return nil
}

// Get returns the value stored at index of the named table.
func (s *Store) Get(name string, index int32) ([]byte, bool) {
	t, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return t.Get(index)
}

func (s *Store) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// TableByID returns the table created id'th, as referenced by update
// messages.
func (s *Store) TableByID(id int) (*Table, bool) {
	if id < 0 || id >= len(s.byID) {
		return nil, false
	}
	return s.byID[id], true
}

func (s *Store) Len() int { return len(s.byID) }
