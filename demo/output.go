package demo

import (
	"reflect"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	"github.com/fxamacker/cbor/v2"
)

// Row is one observed value of a wanted property.
type Row struct {
	Tick     int32  `cbor:"1,keyasint"`
	EntityID int32  `cbor:"2,keyasint"`
	SteamID  uint64 `cbor:"3,keyasint,omitempty"`
	Value    any    `cbor:"4,keyasint"`
}

type Header struct {
	NetworkProtocol int32   `cbor:"1,keyasint,omitempty"`
	ServerName      string  `cbor:"2,keyasint,omitempty"`
	ClientName      string  `cbor:"3,keyasint,omitempty"`
	MapName         string  `cbor:"4,keyasint,omitempty"`
	GameDirectory   string  `cbor:"5,keyasint,omitempty"`
	DemoVersionName string  `cbor:"6,keyasint,omitempty"`
	BuildNum        int32   `cbor:"7,keyasint,omitempty"`
	PlaybackTime    float32 `cbor:"8,keyasint,omitempty"`
	PlaybackTicks   int32   `cbor:"9,keyasint,omitempty"`
	TickInterval    float32 `cbor:"10,keyasint,omitempty"`
}

type GameEvent struct {
	Name   string         `cbor:"1,keyasint"`
	Tick   int32          `cbor:"2,keyasint"`
	Fields map[string]any `cbor:"3,keyasint"`
}

// Projectile is one sample of a thrown grenade.
type Projectile struct {
	Tick        int32   `cbor:"1,keyasint"`
	EntityID    int32   `cbor:"2,keyasint"`
	SteamID     uint64  `cbor:"3,keyasint,omitempty"`
	X           float32 `cbor:"4,keyasint"`
	Y           float32 `cbor:"5,keyasint"`
	Z           float32 `cbor:"6,keyasint"`
	GrenadeType string  `cbor:"7,keyasint"`
}

type Player struct {
	Slot     int32  `cbor:"1,keyasint"`
	EntityID int32  `cbor:"2,keyasint"`
	Name     string `cbor:"3,keyasint"`
	SteamID  uint64 `cbor:"4,keyasint"`
	UserID   int32  `cbor:"5,keyasint"`
	Bot      bool   `cbor:"6,keyasint,omitempty"`
}

// Output is everything collected from one demo. Columns are keyed by the
// wanted property name, or its alias.
type Output struct {
	SessionID   string            `cbor:"1,keyasint"`
	Header      Header            `cbor:"2,keyasint"`
	Columns     map[string][]Row  `cbor:"3,keyasint,omitempty"`
	GameEvents  []GameEvent       `cbor:"4,keyasint,omitempty"`
	Projectiles []Projectile      `cbor:"5,keyasint,omitempty"`
	PropCounts  map[string]int    `cbor:"6,keyasint,omitempty"`
	ConVars     map[string]string `cbor:"7,keyasint,omitempty"`
	Players     []Player          `cbor:"8,keyasint,omitempty"`
	Warnings    []string          `cbor:"9,keyasint,omitempty"`
	LastTick    int32             `cbor:"10,keyasint"`
	Teams       Teams             `cbor:"11,keyasint"`
}

// Teams holds the entity ids of the team entities by team number. Zero
// means the team entity was never seen.
type Teams struct {
	Team1 int32 `cbor:"1,keyasint,omitempty"`
	Team2 int32 `cbor:"2,keyasint,omitempty"`
	Team3 int32 `cbor:"3,keyasint,omitempty"`
}

// EntityID returns the entity id of team number n.
func (t Teams) EntityID(n int) (int32, bool) {
	var id int32
	switch n {
	case 1:
		id = t.Team1
	case 2:
		id = t.Team2
	case 3:
		id = t.Team3
	}
	return id, id != 0
}

func (t *Teams) set(n int, entityID int32) {
	switch n {
	case 1:
		t.Team1 = entityID
	case 2:
		t.Team2 = entityID
	case 3:
		t.Team3 = entityID
	}
}

func newOutput(sessionID string) *Output {
	return &Output{
		SessionID: sessionID,
		Columns:   make(map[string][]Row),
		ConVars:   make(map[string]string),
	}
}

// Column returns the rows collected for a wanted property.
func (o *Output) Column(name string) []Row { return o.Columns[name] }

// NewOutputCodec returns the codec used to export outputs. Floats keep
// their width and nested maps decode with string keys.
func NewOutputCodec() (dtcbor.CBORCodec, error) {
	enc := dtcbor.NewDeterministicEncOpts()
	enc.ShortestFloat = cbor.ShortestFloatNone
	dec := dtcbor.NewDeterministicDecOpts()
	dec.DefaultMapType = reflect.TypeOf(map[string]any(nil))
	codec, err := dtcbor.NewCBORCodec(enc, dec)
	if err != nil {
		return dtcbor.CBORCodec{}, err
	}
	return codec, nil
}

func EncodeOutput(codec dtcbor.CBORCodec, out *Output) ([]byte, error) {
	return codec.MarshalCBOR(out)
}

func DecodeOutput(codec dtcbor.CBORCodec, data []byte) (*Output, error) {
	var out Output
	if err := codec.UnmarshalInto(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
