package demotesting

import (
	"encoding/binary"

	"github.com/dbalders/demoparser/bitstream"
	"github.com/dbalders/demoparser/wire"
	"github.com/golang/snappy"
)

// XXX: duplicated from package demo, which imports this package in its tests
const (
	cmdStop         = 0
	cmdFileHeader   = 1
	cmdFileInfo     = 2
	cmdSyncTick     = 3
	cmdSendTables   = 4
	cmdClassInfo    = 5
	cmdPacket       = 7
	cmdSignonPacket = 8
	cmdFullPacket   = 13
	cmdCompressed   = 64

	msgSetConVar         = 6
	msgServerInfo        = 40
	msgCreateStringTable = 44
	msgUpdateStringTable = 45
	msgPacketEntities    = 55
	msgGameEventList     = 205
	msgGameEvent         = 207
)

var demoMagic = []byte("PBDEMS2\x00")

// DemoBuilder writes a synthetic demo file frame by frame.
type DemoBuilder struct {
	buf      []byte
	compress bool
}

func NewDemoBuilder() *DemoBuilder {
	b := &DemoBuilder{}
	b.buf = append(b.buf, demoMagic...)
	// two little endian offsets the decoder does not use
	b.buf = binary.LittleEndian.AppendUint32(b.buf, 0)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, 0)
	return b
}

// Compressed makes every following frame snappy compressed.
func (b *DemoBuilder) Compressed(on bool) *DemoBuilder {
	b.compress = on
	return b
}

// Frame appends a raw outer frame.
func (b *DemoBuilder) Frame(cmd uint32, tick int32, payload []byte) *DemoBuilder {
	if b.compress {
		cmd |= cmdCompressed
		payload = snappy.Encode(nil, payload)
	}
	b.buf = binary.AppendUvarint(b.buf, uint64(cmd))
	b.buf = binary.AppendUvarint(b.buf, uint64(uint32(tick)))
	b.buf = binary.AppendUvarint(b.buf, uint64(len(payload)))
	b.buf = append(b.buf, payload...)
	return b
}

// Header appends a file header frame.
func (b *DemoBuilder) Header(h HeaderSpec) *DemoBuilder {
	return b.Frame(cmdFileHeader, -1, wire.NewBuilder().
		String(1, "PBDEMS2").
		Int32(2, h.NetworkProtocol).
		String(3, h.ServerName).
		String(4, h.ClientName).
		String(5, h.MapName).
		String(6, "csgo").
		String(11, h.DemoVersionName).
		Int32(13, h.BuildNum).
		Encode())
}

type HeaderSpec struct {
	NetworkProtocol int32
	ServerName      string
	ClientName      string
	MapName         string
	DemoVersionName string
	BuildNum        int32
}

// Schema appends the send tables and class info frames of s.
func (b *DemoBuilder) Schema(s *SchemaBuilder) *DemoBuilder {
	b.Frame(cmdSendTables, -1, s.SendTables())
	return b.Frame(cmdClassInfo, -1, s.ClassInfo())
}

func (b *DemoBuilder) SyncTick(tick int32) *DemoBuilder {
	return b.Frame(cmdSyncTick, tick, nil)
}

// Packet appends a packet frame holding p's inner messages.
func (b *DemoBuilder) Packet(tick int32, p *Packet) *DemoBuilder {
	return b.Frame(cmdPacket, tick, wire.NewBuilder().Bytes(3, p.Bytes()).Encode())
}

// SignonPacket appends a signon packet frame holding p's inner messages.
func (b *DemoBuilder) SignonPacket(tick int32, p *Packet) *DemoBuilder {
	return b.Frame(cmdSignonPacket, tick, wire.NewBuilder().Bytes(3, p.Bytes()).Encode())
}

// FullPacket appends a full packet frame with no string table snapshot.
func (b *DemoBuilder) FullPacket(tick int32, p *Packet) *DemoBuilder {
	return b.Frame(cmdFullPacket, tick, wire.NewBuilder().
		Message(2, wire.NewBuilder().Bytes(3, p.Bytes())).
		Encode())
}

func (b *DemoBuilder) FileInfo(playbackTicks int32) *DemoBuilder {
	return b.Frame(cmdFileInfo, -1, wire.NewBuilder().Int32(2, playbackTicks).Encode())
}

func (b *DemoBuilder) Stop(tick int32) *DemoBuilder {
	return b.Frame(cmdStop, tick, nil)
}

func (b *DemoBuilder) Bytes() []byte { return b.buf }

// Packet collects the inner messages of one packet frame.
type Packet struct {
	w *bitstream.Writer
}

func NewPacket() *Packet { return &Packet{w: bitstream.NewWriter()} }

// Message appends one inner message.
func (p *Packet) Message(msgType uint32, payload []byte) *Packet {
	p.w.WriteUBitVar(msgType)
	p.w.WriteVarUint32(uint32(len(payload)))
	p.w.WriteBytes(payload)
	return p
}

func (p *Packet) ServerInfo(maxClasses uint32, tickInterval float32) *Packet {
	return p.Message(msgServerInfo, wire.NewBuilder().
		Int32(10, 10).
		Int32(11, int32(maxClasses)).
		Float32(13, tickInterval).
		String(15, "de_test").
		Encode())
}

// Entities appends a packet entities message carrying s.
func (p *Packet) Entities(s *EntityStream) *Packet {
	return p.Message(msgPacketEntities, wire.NewBuilder().
		Int32(1, 2048).
		Int32(2, int32(s.Count())).
		Bool(3, false).
		Bytes(7, s.Bytes()).
		Encode())
}

// CreateStringTable appends a create string table message.
func (p *Packet) CreateStringTable(name string, f TableFormat, entries ...TableEntry) *Packet {
	return p.Message(msgCreateStringTable, wire.NewBuilder().
		String(1, name).
		Int32(2, int32(len(entries))).
		Bool(3, f.UserDataFixed).
		Int32(4, (f.UserDataSizeBits+7)/8).
		Int32(5, f.UserDataSizeBits).
		Int32(6, f.Flags).
		Bytes(7, StringTableData(f, entries...)).
		Bool(10, f.VarintBitCounts).
		Encode())
}

// CompressedStringTable is CreateStringTable with the whole table data
// snappy compressed.
func (p *Packet) CompressedStringTable(name string, f TableFormat, entries ...TableEntry) *Packet {
	data := StringTableData(f, entries...)
	return p.Message(msgCreateStringTable, wire.NewBuilder().
		String(1, name).
		Int32(2, int32(len(entries))).
		Int32(6, f.Flags).
		Bytes(7, snappy.Encode(nil, data)).
		Int32(8, int32(len(data))).
		Bool(9, true).
		Bool(10, f.VarintBitCounts).
		Encode())
}

// UpdateStringTable appends an update for the table created id'th.
func (p *Packet) UpdateStringTable(tableID int32, f TableFormat, entries ...TableEntry) *Packet {
	return p.Message(msgUpdateStringTable, wire.NewBuilder().
		Int32(1, tableID).
		Int32(2, int32(len(entries))).
		Bytes(3, StringTableData(f, entries...)).
		Encode())
}

// UserInfo encodes a userinfo table value.
func UserInfo(name string, steamID uint64, userID int32) []byte {
	return wire.NewBuilder().
		String(1, name).
		Fixed64(2, steamID).
		Int32(3, userID).
		Fixed64(4, steamID).
		Encode()
}

// ConVars appends a set convar message.
func (p *Packet) ConVars(kv map[string]string) *Packet {
	cvars := wire.NewBuilder()
	for k, v := range kv {
		cvars.Message(1, wire.NewBuilder().String(1, k).String(2, v))
	}
	return p.Message(msgSetConVar, wire.NewBuilder().Message(1, cvars).Encode())
}

// EventKey is one key of a game event descriptor, with its wire type:
// 1 string, 2 float, 3 long, 4 short, 5 byte, 6 bool, 7 uint64.
type EventKey struct {
	Name string
	Type int32
}

type EventDescriptor struct {
	ID   int32
	Name string
	Keys []EventKey
}

func (p *Packet) GameEventList(descs ...EventDescriptor) *Packet {
	list := wire.NewBuilder()
	for _, d := range descs {
		db := wire.NewBuilder().Int32(1, d.ID).String(2, d.Name)
		for _, k := range d.Keys {
			db.Message(3, wire.NewBuilder().Int32(1, k.Type).String(2, k.Name))
		}
		list.Message(1, db)
	}
	return p.Message(msgGameEventList, list.Encode())
}

// GameEvent appends an event; values are given in descriptor key order and
// encoded by their Go type.
func (p *Packet) GameEvent(id int32, values ...any) *Packet {
	ev := wire.NewBuilder().Int32(2, id)
	for _, v := range values {
		kb := wire.NewBuilder()
		switch v := v.(type) {
		case string:
			kb.Int32(1, 1).String(2, v)
		case float32:
			kb.Int32(1, 2).Float32(3, v)
		case int32:
			kb.Int32(1, 3).Int32(4, v)
		case int16:
			kb.Int32(1, 4).Int32(5, int32(v))
		case uint8:
			kb.Int32(1, 5).Int32(6, int32(v))
		case bool:
			kb.Int32(1, 6).Bool(7, v)
		case uint64:
			kb.Int32(1, 7).Uint64(8, v)
		}
		ev.Message(3, kb)
	}
	return p.Message(msgGameEvent, ev.Encode())
}

// Bytes returns the packet data.
func (p *Packet) Bytes() []byte { return p.w.Bytes() }
