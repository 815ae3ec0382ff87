package entities

import (
	"testing"

	"github.com/dbalders/demoparser/fieldpath"
	"github.com/stretchr/testify/assert"
)

func bodyEntity(props map[string]any) *Entity {
	e := newEntity(30, 3, "CSmokeGrenadeProjectile", 0)
	i := int32(0)
	for name, v := range props {
		e.set(fieldpath.Of(0, i), "CSmokeGrenadeProjectile.CBodyComponent."+name, v)
		i++
	}
	return e
}

func TestEntityPosition(t *testing.T) {
	full := map[string]any{
		"m_cellX": uint32(32), "m_cellY": uint32(33), "m_cellZ": uint32(31),
		"m_vecX": float32(10), "m_vecY": float32(20), "m_vecZ": float32(500),
	}
	tests := []struct {
		name   string
		props  map[string]any
		want   [3]float32
		wantOK bool
	}{
		{"cell and offset", full, [3]float32{10, 532, -12}, true},
		{"missing axis", map[string]any{"m_cellX": uint32(32), "m_vecX": float32(1)}, [3]float32{}, false},
		{"wrong type", map[string]any{
			"m_cellX": int32(32), "m_cellY": uint32(33), "m_cellZ": uint32(31),
			"m_vecX": float32(10), "m_vecY": float32(20), "m_vecZ": float32(500),
		}, [3]float32{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bodyEntity(tt.props).Position()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEntityNames(t *testing.T) {
	e := newEntity(1, 1, "CCSPlayerPawn", 0)
	e.set(fieldpath.Of(1), "CCSPlayerPawn.m_iHealth", int32(100))
	e.set(fieldpath.Of(0), "CCSPlayerPawn.m_ArmorValue", int32(50))

	assert.Equal(t, []string{"CCSPlayerPawn.m_ArmorValue", "CCSPlayerPawn.m_iHealth"}, e.Names())
	v, ok := e.Property("m_iHealth")
	assert.True(t, ok)
	assert.Equal(t, int32(100), v)
	v, ok = e.GetPath(fieldpath.Of(0))
	assert.True(t, ok)
	assert.Equal(t, int32(50), v)
	assert.Equal(t, map[string]any{
		"CCSPlayerPawn.m_ArmorValue": int32(50),
		"CCSPlayerPawn.m_iHealth":    int32(100),
	}, e.Snapshot())
	assert.Equal(t, "m_iHealth", ShortName("CCSPlayerPawn.m_iHealth"))
	assert.Equal(t, "plain", ShortName("plain"))
}
