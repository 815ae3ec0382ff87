package demotesting

import (
	"github.com/dbalders/demoparser/bitstream"
	"github.com/golang/snappy"
)

// TableFormat mirrors the wire parameters of a create string table message.
type TableFormat struct {
	UserDataFixed    bool
	UserDataSizeBits int32
	Flags            int32
	VarintBitCounts  bool
}

// TableEntry is one entry to encode. A nil Value is sent as "no value".
type TableEntry struct {
	Index    int32
	Key      string
	Value    []byte
	Compress bool
}

const tableKeyHistory = 32

// StringTableData encodes entries the way string table data is sent: keys
// that share a prefix with a recent key reference it through the history.
func StringTableData(f TableFormat, entries ...TableEntry) []byte {
	w := bitstream.NewWriter()
	last := int32(-1)
	var history []string

	for _, e := range entries {
		if e.Index == last+1 {
			w.WriteBoolean(true)
		} else {
			w.WriteBoolean(false)
			w.WriteVarUint32(uint32(e.Index - 1))
		}
		last = e.Index

		w.WriteBoolean(e.Key != "")
		if e.Key != "" {
			pos, size := historyMatch(history, e.Key)
			if size > 0 {
				w.WriteBoolean(true)
				w.WriteBits(uint32(pos), 5)
				w.WriteBits(uint32(size), 5)
				w.WriteString(e.Key[size:])
			} else {
				w.WriteBoolean(false)
				w.WriteString(e.Key)
			}
			if len(history) == tableKeyHistory {
				history = history[1:]
			}
			history = append(history, e.Key)
		}

		w.WriteBoolean(e.Value != nil)
		if e.Value == nil {
			continue
		}
		if f.UserDataFixed {
			writeFixedBits(w, e.Value, uint(f.UserDataSizeBits))
			continue
		}
		value := e.Value
		if f.Flags&1 != 0 {
			w.WriteBoolean(e.Compress)
			if e.Compress {
				value = snappy.Encode(nil, value)
			}
		}
		if f.VarintBitCounts {
			w.WriteUBitVar(uint32(len(value)))
		} else {
			w.WriteBits(uint32(len(value)), 17)
		}
		w.WriteBytes(value)
	}
	return w.Bytes()
}

// historyMatch finds the recent key sharing the longest prefix with key,
// of at least three and at most 31 bytes.
func historyMatch(history []string, key string) (int, int) {
	bestPos, bestLen := 0, 0
	for i, h := range history {
		n := 0
		for n < len(h) && n < len(key) && n < 31 && h[n] == key[n] {
			n++
		}
		if n > bestLen {
			bestPos, bestLen = i, n
		}
	}
	if bestLen < 3 {
		return 0, 0
	}
	return bestPos, bestLen
}

func writeFixedBits(w *bitstream.Writer, value []byte, n uint) {
	for i := 0; n > 0; i++ {
		k := uint(8)
		if n < 8 {
			k = n
		}
		var b byte
		if i < len(value) {
			b = value[i]
		}
		w.WriteBits(uint32(b), k)
		n -= k
	}
}
