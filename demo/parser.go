// Package demo drives decoding of a Source 2 demo: it splits the file into
// frames, dispatches their messages to the schema registry, the string
// tables and the entity store, and collects the wanted output.
package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dbalders/demoparser/bitstream"
	"github.com/dbalders/demoparser/entities"
	"github.com/dbalders/demoparser/fieldpath"
	"github.com/dbalders/demoparser/sendtables"
	"github.com/dbalders/demoparser/stringtables"
	"github.com/dbalders/demoparser/wire"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dbalders/demoparser/demo"

// Parser holds the configuration for parsing demos. A Parser is safe for
// concurrent use; each Parse call decodes into its own state.
type Parser struct {
	ParserOptions
	log logger.Logger
}

func NewParser(log logger.Logger, opts ...ParserOption) *Parser {
	p := &Parser{log: log}
	for _, o := range opts {
		o(&p.ParserOptions)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// Parse decodes a complete demo held in data. On error the returned Output
// holds everything collected before the failure.
func (p *Parser) Parse(ctx context.Context, data []byte) (*Output, error) {
	id := uuid.New().String()
	ctx, span := p.tracer.Start(ctx, "demo.Parse", trace.WithAttributes(
		attribute.String("demo.session_id", id),
		attribute.Int("demo.bytes", len(data)),
	))
	defer span.End()

	start := time.Now()
	s := newSession(p, id)
	err := s.run(ctx, data)
	elapsed := time.Since(start)
	p.metrics.parsed(err, elapsed)

	span.SetAttributes(
		attribute.Int("demo.last_tick", int(s.out.LastTick)),
		attribute.Int("demo.warnings", len(s.out.Warnings)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return s.out, err
	}
	span.SetStatus(codes.Ok, "")
	p.log.Infof("demo %s: parsed %d bytes to tick %d in %v, %d warnings",
		id, len(data), s.out.LastTick, elapsed, len(s.out.Warnings))
	return s.out, nil
}

// session is the decoding state of one demo.
type session struct {
	*Parser
	id string

	reg    *sendtables.Registry
	store  *entities.Store
	tables *stringtables.Store
	events map[int32]eventDescriptor
	coll   *collector
	out    *Output

	tick   int32
	cmd    Command
	offset int
}

func newSession(p *Parser, id string) *session {
	s := &session{
		Parser: p,
		id:     id,
		reg:    sendtables.NewRegistry(p.log),
		tables: stringtables.NewStore(p.log),
		out:    newOutput(id),
	}
	s.coll = newCollector(&p.ParserOptions, s.out)
	s.store = entities.NewStore(p.log, s.reg, entities.WithObserver(s.coll))
	s.coll.store = s.store
	return s
}

func (s *session) run(ctx context.Context, data []byte) error {
	if len(data) < preambleSize || !HasMagic(data) {
		return ErrBadMagic
	}
	s.offset = preambleSize
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.offset == len(data) {
			s.warn("eof", fmt.Sprintf("demo ends at tick %d without a stop frame", s.tick))
			return nil
		}
		f, n, err := readFrame(data[s.offset:])
		if err != nil {
			return &ParseError{Command: f.cmd, Tick: s.tick, Offset: s.offset, Err: err}
		}
		s.cmd = f.cmd
		s.tick = f.tick
		if f.tick > s.out.LastTick {
			s.out.LastTick = f.tick
		}
		s.coll.tick = f.tick
		s.metrics.frame(f.cmd)

		stop, err := s.handleFrame(f)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		s.offset += n
	}
}

// fail wraps err with the location of the current frame.
func (s *session) fail(t MessageType, err error) error {
	return &ParseError{Command: s.cmd, MsgType: t, Tick: s.tick, Offset: s.offset, Err: err}
}

func (s *session) warn(kind, msg string) {
	s.metrics.warning(kind)
	s.out.Warnings = append(s.out.Warnings, msg)
	s.log.Infof("demo %s: %s", s.id, msg)
}

func (s *session) handleFrame(f frame) (bool, error) {
	switch f.cmd {
	case CmdStop:
		return true, nil

	case CmdFileHeader:
		if err := s.handleHeader(f.payload); err != nil {
			return false, s.fail(0, err)
		}
		return s.headerOnly, nil

	case CmdFileInfo:
		m, err := wire.Parse(f.payload)
		if err != nil {
			return false, s.fail(0, err)
		}
		s.out.Header.PlaybackTime = m.Float32(fileInfoPlaybackTime)
		s.out.Header.PlaybackTicks = m.Int32(fileInfoPlaybackTicks)

	case CmdSendTables:
		if s.skipEntities {
			return false, nil
		}
		m, err := wire.Parse(f.payload)
		if err != nil {
			return false, s.fail(0, err)
		}
		flat, err := sendtables.UnwrapSendTables(m.Bytes(sendTablesData))
		if err != nil {
			return false, s.fail(0, err)
		}
		if err := s.reg.LoadFlattened(flat); err != nil {
			return false, s.fail(0, err)
		}

	case CmdClassInfo:
		if s.skipEntities {
			return false, nil
		}
		if err := s.reg.LoadClassInfo(f.payload); err != nil {
			return false, s.fail(0, err)
		}

	case CmdPacket, CmdSignonPacket:
		m, err := wire.Parse(f.payload)
		if err != nil {
			return false, s.fail(0, err)
		}
		if err := s.handlePacket(m.Bytes(packetData)); err != nil {
			return false, err
		}
		s.coll.sample(s.store.DrainRetired())

	default:
		// full packets repeat state the frames before them already built
		s.log.Debugf("demo %s: skipping %s frame at tick %d", s.id, f.cmd, f.tick)
	}
	return false, nil
}

func (s *session) handleHeader(payload []byte) error {
	m, err := wire.Parse(payload)
	if err != nil {
		return err
	}
	h := &s.out.Header
	h.NetworkProtocol = m.Int32(fileHeaderNetworkProtocol)
	h.ServerName = m.String(fileHeaderServerName)
	h.ClientName = m.String(fileHeaderClientName)
	h.MapName = m.String(fileHeaderMapName)
	h.GameDirectory = m.String(fileHeaderGameDirectory)
	h.DemoVersionName = m.String(fileHeaderDemoVersionName)
	h.BuildNum = m.Int32(fileHeaderBuildNum)
	s.log.Debugf("demo %s: map %s, build %d", s.id, h.MapName, h.BuildNum)
	return nil
}

// handlePacket reads the inner messages of a packet frame.
func (s *session) handlePacket(data []byte) error {
	r := bitstream.NewReader(data)
	for r.BitsRemaining() > 8 {
		t := MessageType(r.ReadUBitVar())
		size := r.ReadVarUint32()
		buf := r.ReadBytes(int(size))
		if err := r.Err(); err != nil {
			return s.fail(t, err)
		}
		s.metrics.message(t)

		err := s.handleMessage(t, buf)
		if err == nil {
			continue
		}
		if errors.Is(err, entities.ErrDesync) || s.strictSchema {
			return s.fail(t, err)
		}
		s.warn(warningKind(err), s.fail(t, err).Error())
		if isTruncation(err) {
			// the rest of the frame was written against state this message
			// failed to apply
			return nil
		}
	}
	return nil
}

func warningKind(err error) string {
	switch {
	case errors.Is(err, sendtables.ErrSchema):
		return "schema"
	case isTruncation(err):
		return "truncated"
	}
	return "message"
}

func isTruncation(err error) bool {
	return errors.Is(err, bitstream.ErrTruncated) ||
		errors.Is(err, fieldpath.ErrPathDepth) ||
		errors.Is(err, fieldpath.ErrPathUnderflow)
}

func (s *session) handleMessage(t MessageType, msg []byte) error {
	switch t {
	case MsgPacketEntities:
		if s.skipEntities {
			return nil
		}
		if s.reg.NumClasses() == 0 {
			return ErrNoSchema
		}
		m, err := wire.Parse(msg)
		if err != nil {
			return err
		}
		return s.store.ReadPacket(m.Bytes(packetEntitiesData), int(m.Int32(packetEntitiesUpdated)))

	case MsgServerInfo:
		m, err := wire.Parse(msg)
		if err != nil {
			return err
		}
		maxClasses := m.Uint32(serverInfoMaxClasses)
		s.store.SetClassBits(bitstream.ClassIDBits(maxClasses))
		s.out.Header.TickInterval = m.Float32(serverInfoTickInterval)
		if s.out.Header.MapName == "" {
			s.out.Header.MapName = m.String(serverInfoMapName)
		}
		s.log.Debugf("demo %s: %d classes, class ids %d bits", s.id, maxClasses, s.store.ClassBits())

	case MsgCreateStringTable:
		t, entries, err := s.tables.HandleCreate(msg)
		if err != nil {
			return err
		}
		return s.tableChanged(t, entries)

	case MsgUpdateStringTable:
		t, entries, err := s.tables.HandleUpdate(msg)
		if err != nil {
			return err
		}
		return s.tableChanged(t, entries)

	case MsgGameEventList:
		descs, err := parseEventList(msg)
		if err != nil {
			return err
		}
		s.events = descs

	case MsgGameEvent:
		if s.wantedEvent == "" {
			return nil
		}
		return s.handleEvent(msg)

	case MsgSetConVar:
		return s.handleConVars(msg)
	}
	return nil
}

// tableChanged feeds string table entries the decoder depends on to their
// consumers.
func (s *session) tableChanged(t *stringtables.Table, entries []stringtables.Entry) error {
	switch t.Name {
	case stringtables.InstanceBaseline:
		for _, e := range entries {
			if e.Value == nil {
				continue
			}
			if err := s.store.SetBaselineEntry(e.Key, e.Value); err != nil {
				return err
			}
		}
	case stringtables.UserInfoTable:
		for _, e := range entries {
			if len(e.Value) == 0 {
				continue
			}
			info, err := stringtables.ParseUserInfo(e.Value)
			if err != nil {
				return err
			}
			s.addPlayer(e.Index, info)
		}
	}
	return nil
}

// addPlayer records a userinfo entry. A player's controller entity is its
// slot plus one.
func (s *session) addPlayer(slot int32, info stringtables.UserInfo) {
	p := Player{
		Slot:     slot,
		EntityID: slot + 1,
		Name:     info.Name,
		SteamID:  info.SteamID,
		UserID:   info.UserID,
		Bot:      info.FakePlayer,
	}
	s.coll.setPlayer(p.EntityID, p.SteamID)
	for i := range s.out.Players {
		if s.out.Players[i].Slot == slot {
			s.out.Players[i] = p
			return
		}
	}
	s.out.Players = append(s.out.Players, p)
}

func (s *session) handleEvent(msg []byte) error {
	m, err := wire.Parse(msg)
	if err != nil {
		return err
	}
	d, ok := lookupEvent(m, s.events)
	if !ok {
		s.log.Debugf("demo %s: event id %d without descriptor", s.id, m.Int32(eventID))
		return nil
	}
	if !s.eventWanted(d.name) || !s.tickWanted(s.tick) {
		return nil
	}
	ev, err := decodeEvent(m, d, s.tick)
	if err != nil {
		return err
	}
	s.out.GameEvents = append(s.out.GameEvents, ev)
	return nil
}

func (s *session) handleConVars(msg []byte) error {
	m, err := wire.Parse(msg)
	if err != nil {
		return err
	}
	cvars, err := m.Message(setConVarConVars)
	if err != nil {
		return err
	}
	list, err := cvars.Messages(conVarsCVars)
	if err != nil {
		return err
	}
	for _, cv := range list {
		s.out.ConVars[cv.String(conVarName)] = cv.String(conVarValue)
	}
	return nil
}
