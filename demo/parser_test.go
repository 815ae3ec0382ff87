package demo

import (
	"context"
	"errors"
	"testing"

	"github.com/dbalders/demoparser/bitstream"
	dt "github.com/dbalders/demoparser/demotesting"
	"github.com/dbalders/demoparser/entities"
	"github.com/dbalders/demoparser/sendtables"
	"github.com/dbalders/demoparser/stringtables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T, opts ...ParserOption) *Parser {
	tc := dt.NewTestContext(t, dt.TestConfig{TestLabelPrefix: "demo", LogLevel: "NOOP"})
	return NewParser(tc.GetLog(), opts...)
}

// healthSchema declares class 1 with a single scalar field.
func healthSchema() *dt.SchemaBuilder {
	return dt.NewSchemaBuilder().
		Serializer("CPlayer", 0, dt.FieldSpec{Name: "health", VarType: "int32"}).
		Class(1, "CPlayer")
}

// newTestDemo writes the header, schema and server info frames.
func newTestDemo(schema *dt.SchemaBuilder) *dt.DemoBuilder {
	return dt.NewDemoBuilder().
		Header(dt.HeaderSpec{MapName: "de_dust2", ServerName: "test server", BuildNum: 9842, NetworkProtocol: 14000}).
		Schema(schema).
		SignonPacket(0, dt.NewPacket().ServerInfo(schema.MaxClasses(), 1.0/64))
}

func entityStream(schema *dt.SchemaBuilder) *dt.EntityStream {
	return dt.NewEntityStream(bitstream.ClassIDBits(schema.MaxClasses()))
}

func healthDemo(compressed bool) []byte {
	schema := healthSchema()
	b := newTestDemo(schema).Compressed(compressed)
	b.Packet(5, dt.NewPacket().Entities(entityStream(schema).
		Create(7, 1, 1, dt.P(dt.Int(100), 0))))
	b.Packet(10, dt.NewPacket().Entities(entityStream(schema).
		Update(7, dt.P(dt.Int(85), 0))))
	return b.Stop(10).Bytes()
}

func TestParseHealthScenario(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		name := "plain"
		if compressed {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			p := newTestParser(t, WithWantedProps("health"))
			out, err := p.Parse(context.Background(), healthDemo(compressed))
			require.NoError(t, err)

			assert.Equal(t, []Row{
				{Tick: 5, EntityID: 7, Value: int32(100)},
				{Tick: 10, EntityID: 7, Value: int32(85)},
			}, out.Column("health"))
			assert.Len(t, out.Columns, 1)
			assert.Empty(t, out.Warnings)
			assert.Equal(t, int32(10), out.LastTick)
			assert.NotEmpty(t, out.SessionID)

			assert.Equal(t, "de_dust2", out.Header.MapName)
			assert.Equal(t, "test server", out.Header.ServerName)
			assert.Equal(t, int32(9842), out.Header.BuildNum)
			assert.Equal(t, float32(1.0/64), out.Header.TickInterval)
		})
	}
}

func TestParseFullNameAndAlias(t *testing.T) {
	p := newTestParser(t,
		WithWantedProps("CPlayer.health"),
		WithPropAlias("CPlayer.health", "hp"),
	)
	out, err := p.Parse(context.Background(), healthDemo(false))
	require.NoError(t, err)
	assert.Len(t, out.Column("hp"), 2)
	assert.Empty(t, out.Column("CPlayer.health"))
}

func TestParseWantedTicks(t *testing.T) {
	p := newTestParser(t, WithWantedProps("health"), WithWantedTicks(10))
	out, err := p.Parse(context.Background(), healthDemo(false))
	require.NoError(t, err)
	assert.Equal(t, []Row{{Tick: 10, EntityID: 7, Value: int32(85)}}, out.Column("health"))
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name         string
		opts         []ParserOption
		wantRows     int
		wantMap      string
		wantCounts   map[string]int
		wantLastTick int32
	}{
		{
			name:         "header only",
			opts:         []ParserOption{WithWantedProps("health"), WithHeaderOnly()},
			wantMap:      "de_dust2",
			wantLastTick: 0,
		},
		{
			name:         "without entities",
			opts:         []ParserOption{WithWantedProps("health"), WithoutEntities()},
			wantMap:      "de_dust2",
			wantLastTick: 10,
		},
		{
			name:         "count props",
			opts:         []ParserOption{WithCountProps()},
			wantMap:      "de_dust2",
			wantCounts:   map[string]int{"CPlayer.health": 2},
			wantLastTick: 10,
		},
		{
			name:         "wanted props",
			opts:         []ParserOption{WithWantedProps("health")},
			wantRows:     2,
			wantMap:      "de_dust2",
			wantLastTick: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser(t, tt.opts...)
			out, err := p.Parse(context.Background(), healthDemo(false))
			require.NoError(t, err)
			assert.Len(t, out.Column("health"), tt.wantRows)
			assert.Equal(t, tt.wantMap, out.Header.MapName)
			assert.Equal(t, tt.wantLastTick, out.LastTick)
			if tt.wantCounts != nil {
				assert.Equal(t, tt.wantCounts, out.PropCounts)
			} else {
				assert.Nil(t, out.PropCounts)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	schema := healthSchema()
	valid := healthDemo(false)

	tests := []struct {
		name    string
		data    func() []byte
		wantErr error
	}{
		{
			name:    "bad magic",
			data:    func() []byte { return []byte("HL2DEMO\x00 not a source 2 demo") },
			wantErr: ErrBadMagic,
		},
		{
			name:    "short preamble",
			data:    func() []byte { return valid[:10] },
			wantErr: ErrBadMagic,
		},
		{
			name:    "truncated frame",
			data:    func() []byte { return valid[:len(valid)-8] },
			wantErr: ErrTruncated,
		},
		{
			name: "update without create",
			data: func() []byte {
				return newTestDemo(schema).
					Packet(3, dt.NewPacket().Entities(entityStream(schema).Update(4, dt.P(dt.Int(1), 0)))).
					Stop(3).Bytes()
			},
			wantErr: entities.ErrDesync,
		},
		{
			name: "delete without create",
			data: func() []byte {
				return newTestDemo(schema).
					Packet(3, dt.NewPacket().Entities(entityStream(schema).Delete(4))).
					Stop(3).Bytes()
			},
			wantErr: entities.ErrDesync,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser(t, WithWantedProps("health"))
			_, err := p.Parse(context.Background(), tt.data())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseErrorLocation(t *testing.T) {
	schema := healthSchema()
	data := newTestDemo(schema).
		Packet(3, dt.NewPacket().Entities(entityStream(schema).Update(4, dt.P(dt.Int(1), 0)))).
		Stop(3).Bytes()

	p := newTestParser(t)
	out, err := p.Parse(context.Background(), data)
	require.Error(t, err)
	require.NotNil(t, out)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CmdPacket, perr.Command)
	assert.Equal(t, MsgPacketEntities, perr.MsgType)
	assert.Equal(t, int32(3), perr.Tick)
	assert.Greater(t, perr.Offset, preambleSize)
	assert.Contains(t, err.Error(), "packet/packet_entities at tick 3")
}

func TestParseSchemaErrorLeniency(t *testing.T) {
	schema := healthSchema()
	build := func() []byte {
		b := newTestDemo(schema)
		// field 3 does not exist; the whole entity message is skipped
		b.Packet(2, dt.NewPacket().Entities(entityStream(schema).
			Create(1, 1, 0, dt.P(dt.Int(5), 3))))
		b.Packet(4, dt.NewPacket().Entities(entityStream(schema).
			Create(2, 1, 0, dt.P(dt.Int(60), 0))))
		return b.Stop(4).Bytes()
	}

	t.Run("lenient", func(t *testing.T) {
		p := newTestParser(t, WithWantedProps("health"))
		out, err := p.Parse(context.Background(), build())
		require.NoError(t, err)
		require.Len(t, out.Warnings, 1)
		assert.Contains(t, out.Warnings[0], "field index")
		assert.Equal(t, []Row{{Tick: 4, EntityID: 2, Value: int32(60)}}, out.Column("health"))
	})

	t.Run("strict", func(t *testing.T) {
		p := newTestParser(t, WithWantedProps("health"), WithStrictSchema())
		_, err := p.Parse(context.Background(), build())
		assert.ErrorIs(t, err, sendtables.ErrSchema)
	})
}

func TestParseWithoutStop(t *testing.T) {
	schema := healthSchema()
	data := newTestDemo(schema).
		Packet(2, dt.NewPacket().Entities(entityStream(schema).Create(1, 1, 0, dt.P(dt.Int(5), 0)))).
		Bytes()

	p := newTestParser(t, WithWantedProps("health"))
	out, err := p.Parse(context.Background(), data)
	require.NoError(t, err)
	assert.Len(t, out.Column("health"), 1)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "without a stop frame")
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestParser(t)
	_, err := p.Parse(ctx, healthDemo(false))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseBaselines(t *testing.T) {
	schema := dt.NewSchemaBuilder().
		Serializer("CPlayer", 0,
			dt.FieldSpec{Name: "health", VarType: "int32"},
			dt.FieldSpec{Name: "armor", VarType: "int32"},
		).
		Class(1, "CPlayer")

	b := newTestDemo(schema)
	b.SignonPacket(0, dt.NewPacket().CreateStringTable(stringtables.InstanceBaseline, dt.TableFormat{},
		dt.TableEntry{Index: 0, Key: "1", Value: dt.Props(dt.P(dt.Int(100), 0), dt.P(dt.Int(50), 1))},
	))
	b.Packet(1, dt.NewPacket().Entities(entityStream(schema).Create(3, 1, 0, dt.P(dt.Int(90), 0))))
	// a changed baseline applies to entities created afterwards
	b.Packet(2, dt.NewPacket().UpdateStringTable(0, dt.TableFormat{},
		dt.TableEntry{Index: 0, Value: dt.Props(dt.P(dt.Int(100), 0), dt.P(dt.Int(0), 1))},
	))
	b.Packet(3, dt.NewPacket().Entities(entityStream(schema).Create(4, 1, 0)))

	p := newTestParser(t, WithWantedProps("health", "armor"))
	out, err := p.Parse(context.Background(), b.Stop(3).Bytes())
	require.NoError(t, err)

	assert.Equal(t, []Row{
		{Tick: 1, EntityID: 3, Value: int32(90)},
		{Tick: 3, EntityID: 4, Value: int32(100)},
	}, out.Column("health"))
	assert.Equal(t, []Row{
		{Tick: 1, EntityID: 3, Value: int32(50)},
		{Tick: 3, EntityID: 4, Value: int32(0)},
	}, out.Column("armor"))
}

func playerSchema() *dt.SchemaBuilder {
	return dt.NewSchemaBuilder().
		Serializer("CCSPlayerController", 0,
			dt.FieldSpec{Name: "m_steamID", VarType: "uint64"},
			dt.FieldSpec{Name: "m_iszPlayerName", VarType: "char[128]"},
		).
		Serializer("CCSPlayerPawn", 0,
			dt.FieldSpec{Name: "m_iHealth", VarType: "int32"},
			dt.FieldSpec{Name: "m_hController", VarType: "CHandle< CBasePlayerController >"},
		).
		Serializer("CChicken", 0,
			dt.FieldSpec{Name: "m_iHealth", VarType: "int32"},
		).
		Class(1, "CCSPlayerController").
		Class(2, "CCSPlayerPawn").
		Class(3, "CChicken")
}

func TestParsePlayerProps(t *testing.T) {
	schema := playerSchema()
	const steamID = 76561198000000042

	b := newTestDemo(schema)
	b.SignonPacket(0, dt.NewPacket().CreateStringTable(stringtables.UserInfoTable, dt.TableFormat{},
		dt.TableEntry{Index: 1, Key: "1", Value: dt.UserInfo("bob", 76561198000000007, 3)},
	))
	b.Packet(1, dt.NewPacket().Entities(entityStream(schema).
		Create(1, 1, 0, dt.P(dt.Uint64(steamID), 0), dt.P(dt.String("alice"), 1)).
		Create(2, 1, 0).
		Create(10, 2, 0, dt.P(dt.Int(100), 0), dt.P(dt.Uint(1|5<<14), 1)).
		Create(11, 2, 0, dt.P(dt.Int(100), 0), dt.P(dt.Uint(2), 1)).
		Create(20, 3, 0, dt.P(dt.Int(50), 0))))
	b.Packet(2, dt.NewPacket().Entities(entityStream(schema).
		Update(10, dt.P(dt.Int(73), 0))))

	p := newTestParser(t, WithWantedPlayerProps("m_iHealth"))
	out, err := p.Parse(context.Background(), b.Stop(2).Bytes())
	require.NoError(t, err)

	// the chicken is not a player
	assert.Equal(t, []Row{
		{Tick: 1, EntityID: 10, SteamID: steamID, Value: int32(100)},
		{Tick: 1, EntityID: 11, SteamID: 76561198000000007, Value: int32(100)},
		{Tick: 2, EntityID: 10, SteamID: steamID, Value: int32(73)},
	}, out.Column("m_iHealth"))

	require.Len(t, out.Players, 1)
	assert.Equal(t, Player{Slot: 1, EntityID: 2, Name: "bob", SteamID: 76561198000000007, UserID: 3}, out.Players[0])
}

func TestParseGameEvents(t *testing.T) {
	schema := healthSchema()
	b := newTestDemo(schema)
	b.SignonPacket(0, dt.NewPacket().GameEventList(
		dt.EventDescriptor{ID: 3, Name: "player_death", Keys: []dt.EventKey{
			{Name: "userid", Type: 4},
			{Name: "weapon", Type: 1},
			{Name: "headshot", Type: 6},
			{Name: "distance", Type: 2},
		}},
		dt.EventDescriptor{ID: 4, Name: "round_end", Keys: []dt.EventKey{{Name: "winner", Type: 5}}},
	))
	b.Packet(8, dt.NewPacket().
		GameEvent(3, int16(2), "ak47", true, float32(12.5)).
		GameEvent(4, uint8(3)))
	data := b.Stop(8).Bytes()

	t.Run("wanted event", func(t *testing.T) {
		p := newTestParser(t, WithWantedEvent("player_death"))
		out, err := p.Parse(context.Background(), data)
		require.NoError(t, err)
		assert.Equal(t, []GameEvent{{
			Name: "player_death",
			Tick: 8,
			Fields: map[string]any{
				"userid":   int32(2),
				"weapon":   "ak47",
				"headshot": true,
				"distance": float32(12.5),
			},
		}}, out.GameEvents)
	})

	t.Run("all events", func(t *testing.T) {
		p := newTestParser(t, WithWantedEvent("all"))
		out, err := p.Parse(context.Background(), data)
		require.NoError(t, err)
		require.Len(t, out.GameEvents, 2)
		assert.Equal(t, map[string]any{"winner": int32(3)}, out.GameEvents[1].Fields)
	})

	t.Run("no event wanted", func(t *testing.T) {
		p := newTestParser(t)
		out, err := p.Parse(context.Background(), data)
		require.NoError(t, err)
		assert.Empty(t, out.GameEvents)
	})
}

func TestParseConVars(t *testing.T) {
	schema := healthSchema()
	b := newTestDemo(schema)
	b.SignonPacket(0, dt.NewPacket().ConVars(map[string]string{"mp_roundtime": "1.92"}))
	b.Packet(1, dt.NewPacket().ConVars(map[string]string{"mp_c4timer": "40"}))

	p := newTestParser(t)
	out, err := p.Parse(context.Background(), b.Stop(1).Bytes())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mp_roundtime": "1.92", "mp_c4timer": "40"}, out.ConVars)
}

func TestParseProjectiles(t *testing.T) {
	schema := dt.NewSchemaBuilder().
		Serializer("CBodyComponent", 0,
			dt.FieldSpec{Name: "m_cellX", VarType: "uint16"},
			dt.FieldSpec{Name: "m_cellY", VarType: "uint16"},
			dt.FieldSpec{Name: "m_cellZ", VarType: "uint16"},
			dt.FieldSpec{Name: "m_vecX", VarType: "CNetworkedQuantizedFloat"},
			dt.FieldSpec{Name: "m_vecY", VarType: "CNetworkedQuantizedFloat"},
			dt.FieldSpec{Name: "m_vecZ", VarType: "CNetworkedQuantizedFloat"},
		).
		Serializer("CCSPlayerController", 0, dt.FieldSpec{Name: "m_steamID", VarType: "uint64"}).
		Serializer("CCSPlayerPawn", 0, dt.FieldSpec{Name: "m_hController", VarType: "CHandle< CBasePlayerController >"}).
		Serializer("CSmokeGrenadeProjectile", 0,
			dt.FieldSpec{Name: "CBodyComponent", VarType: "CBodyComponent", SerializerName: "CBodyComponent"},
			dt.FieldSpec{Name: "m_hThrower", VarType: "CHandle< CCSPlayerPawn >"},
		).
		Class(1, "CCSPlayerController").
		Class(2, "CCSPlayerPawn").
		Class(3, "CSmokeGrenadeProjectile")

	body := func(cx, cy, cz uint32, x, y, z float32) []dt.Prop {
		return []dt.Prop{
			dt.P(dt.Uint(cx), 0, 0), dt.P(dt.Uint(cy), 0, 1), dt.P(dt.Uint(cz), 0, 2),
			dt.P(dt.Float(x), 0, 3), dt.P(dt.Float(y), 0, 4), dt.P(dt.Float(z), 0, 5),
		}
	}

	b := newTestDemo(schema)
	b.Packet(1, dt.NewPacket().Entities(entityStream(schema).
		Create(1, 1, 0, dt.P(dt.Uint64(99), 0)).
		Create(5, 2, 0, dt.P(dt.Uint(1), 0)).
		Create(30, 3, 0, append(body(32, 33, 32, 10, 20, 1.5), dt.P(dt.Uint(5), 1))...)))
	b.Packet(2, dt.NewPacket().Entities(entityStream(schema).
		Update(30, dt.P(dt.Float(50), 0, 3))))
	b.Packet(3, dt.NewPacket().Entities(entityStream(schema).Delete(30)))
	b.Packet(4, dt.NewPacket())
	data := b.Stop(4).Bytes()

	p := newTestParser(t, WithProjectiles())
	out, err := p.Parse(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, []Projectile{
		{Tick: 1, EntityID: 30, SteamID: 99, X: 10, Y: 532, Z: 1.5, GrenadeType: "CSmokeGrenadeProjectile"},
		{Tick: 2, EntityID: 30, SteamID: 99, X: 50, Y: 532, Z: 1.5, GrenadeType: "CSmokeGrenadeProjectile"},
		{Tick: 3, EntityID: 30, SteamID: 99, X: 50, Y: 532, Z: 1.5, GrenadeType: "CSmokeGrenadeProjectile"},
	}, out.Projectiles)

	p = newTestParser(t)
	out, err = p.Parse(context.Background(), data)
	require.NoError(t, err)
	assert.Empty(t, out.Projectiles)

	// a projectile deleted by a later frame of an already sampled tick still
	// gets its final position
	b = newTestDemo(schema)
	b.Packet(1, dt.NewPacket().Entities(entityStream(schema).
		Create(1, 1, 0, dt.P(dt.Uint64(99), 0)).
		Create(5, 2, 0, dt.P(dt.Uint(1), 0)).
		Create(30, 3, 0, append(body(32, 33, 32, 10, 20, 1.5), dt.P(dt.Uint(5), 1))...)))
	b.Packet(2, dt.NewPacket().Entities(entityStream(schema).
		Update(30, dt.P(dt.Float(50), 0, 3))))
	b.Packet(2, dt.NewPacket().
		Entities(entityStream(schema).Update(30, dt.P(dt.Float(60), 0, 3))).
		Entities(entityStream(schema).Delete(30)))

	p = newTestParser(t, WithProjectiles())
	out, err = p.Parse(context.Background(), b.Stop(2).Bytes())
	require.NoError(t, err)
	assert.Equal(t, []Projectile{
		{Tick: 1, EntityID: 30, SteamID: 99, X: 10, Y: 532, Z: 1.5, GrenadeType: "CSmokeGrenadeProjectile"},
		{Tick: 2, EntityID: 30, SteamID: 99, X: 50, Y: 532, Z: 1.5, GrenadeType: "CSmokeGrenadeProjectile"},
		{Tick: 2, EntityID: 30, SteamID: 99, X: 60, Y: 532, Z: 1.5, GrenadeType: "CSmokeGrenadeProjectile"},
	}, out.Projectiles)
}

func TestParseTeams(t *testing.T) {
	schema := dt.NewSchemaBuilder().
		Serializer("CCSTeam", 0,
			dt.FieldSpec{Name: "m_iTeamNum", VarType: "uint8"},
			dt.FieldSpec{Name: "m_szTeamname", VarType: "char[129]"},
		).
		Class(1, "CCSTeam")

	b := newTestDemo(schema)
	b.Packet(1, dt.NewPacket().Entities(entityStream(schema).
		Create(60, 1, 0, dt.P(dt.Uint(1), 0), dt.P(dt.String("Spectator"), 1)).
		Create(61, 1, 0, dt.P(dt.Uint(2), 0), dt.P(dt.String("TERRORIST"), 1)).
		Create(62, 1, 0, dt.P(dt.Uint(0), 0))))
	// the team number of a team entity may arrive after it was created
	b.Packet(2, dt.NewPacket().Entities(entityStream(schema).
		Update(62, dt.P(dt.Uint(3), 0), dt.P(dt.String("CT"), 1))))

	p := newTestParser(t, WithWantedProps("m_szTeamname"))
	out, err := p.Parse(context.Background(), b.Stop(2).Bytes())
	require.NoError(t, err)

	assert.Equal(t, Teams{Team1: 60, Team2: 61, Team3: 62}, out.Teams)
	id, ok := out.Teams.EntityID(3)
	assert.True(t, ok)
	assert.Equal(t, int32(62), id)
	_, ok = out.Teams.EntityID(4)
	assert.False(t, ok)

	// team names resolve through the recorded ids
	names := map[int32]any{}
	for _, row := range out.Column("m_szTeamname") {
		names[row.EntityID] = row.Value
	}
	assert.Equal(t, "CT", names[out.Teams.Team3])
	assert.Equal(t, "TERRORIST", names[out.Teams.Team2])
}

func TestParseSkipsFullPackets(t *testing.T) {
	schema := healthSchema()
	b := newTestDemo(schema)
	b.Packet(1, dt.NewPacket().Entities(entityStream(schema).Create(7, 1, 0, dt.P(dt.Int(100), 0))))
	b.FullPacket(2, dt.NewPacket().Entities(entityStream(schema).Create(7, 1, 0, dt.P(dt.Int(100), 0))))
	b.FileInfo(2)

	p := newTestParser(t, WithWantedProps("health"))
	out, err := p.Parse(context.Background(), b.Stop(2).Bytes())
	require.NoError(t, err)
	assert.Len(t, out.Column("health"), 1)
	assert.Equal(t, int32(2), out.Header.PlaybackTicks)
}
