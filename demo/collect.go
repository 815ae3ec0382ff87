package demo

import (
	"sort"
	"strings"

	"github.com/dbalders/demoparser/entities"
)

const (
	classPlayerPawn       = "CCSPlayerPawn"
	classPlayerController = "CCSPlayerController"
	classTeam             = "CCSTeam"

	propSteamID    = "m_steamID"
	propController = "m_hController"
	propTeamNum    = "m_iTeamNum"
)

// handle props that name the thrower of a projectile, in preference order
var projectileOwnerProps = []string{"m_hThrower", "m_hOwnerEntity"}

type wantedProp struct {
	column string
	player bool
}

// collector turns entity events into output rows. It implements
// entities.Observer.
type collector struct {
	opts  *ParserOptions
	out   *Output
	store *entities.Store
	tick  int32

	wanted      map[string]wantedProp
	steamIDs    map[int32]uint64
	projectiles map[int32]*entities.Entity
	sampledTick int32
	sampled     bool
}

func newCollector(opts *ParserOptions, out *Output) *collector {
	c := &collector{
		opts:        opts,
		out:         out,
		wanted:      make(map[string]wantedProp),
		steamIDs:    make(map[int32]uint64),
		projectiles: make(map[int32]*entities.Entity),
	}
	for _, name := range opts.wantedProps {
		c.want(name, false)
	}
	for _, name := range opts.wantedPlayerProps {
		c.want(name, true)
	}
	if opts.countProps {
		out.PropCounts = make(map[string]int)
	}
	return c
}

func (c *collector) want(name string, player bool) {
	column := name
	if alias, ok := c.opts.aliases[name]; ok {
		column = alias
	}
	c.wanted[name] = wantedProp{column: column, player: player}
}

func isPlayerClass(name string) bool {
	return name == classPlayerPawn || name == classPlayerController
}

// match finds the want-list entry for a full property name.
func (c *collector) match(e *entities.Entity, name string) (wantedProp, bool) {
	w, ok := c.wanted[name]
	if !ok {
		w, ok = c.wanted[entities.ShortName(name)]
	}
	if !ok || (w.player && !isPlayerClass(e.ClassName)) {
		return wantedProp{}, false
	}
	return w, true
}

func (c *collector) EntityCreated(e *entities.Entity) {
	c.opts.metrics.entityOp("create")
	if strings.Contains(e.ClassName, "Projectile") && c.opts.projectiles {
		c.projectiles[e.ID] = e
	}
	for _, name := range e.Names() {
		v, _ := e.Get(name)
		c.observe(e, name, v)
	}
}

func (c *collector) PropertyChanged(e *entities.Entity, name string, value any) {
	c.opts.metrics.entityOp("update")
	c.observe(e, name, value)
}

func (c *collector) EntityDeleted(e *entities.Entity) {
	c.opts.metrics.entityOp("delete")
}

func (c *collector) observe(e *entities.Entity, name string, value any) {
	if c.out.PropCounts != nil {
		c.out.PropCounts[name]++
	}
	if e.ClassName == classPlayerController && entities.ShortName(name) == propSteamID {
		if id, ok := value.(uint64); ok {
			c.steamIDs[e.ID] = id
		}
	}
	if e.ClassName == classTeam && entities.ShortName(name) == propTeamNum {
		c.observeTeam(e, value)
	}
	w, ok := c.match(e, name)
	if !ok || !c.opts.tickWanted(c.tick) {
		return
	}
	row := Row{Tick: c.tick, EntityID: e.ID, Value: value}
	if w.player {
		row.SteamID = c.steamIDOf(e)
	}
	c.out.Columns[w.column] = append(c.out.Columns[w.column], row)
}

func (c *collector) observeTeam(e *entities.Entity, value any) {
	var n int
	switch v := value.(type) {
	case uint32:
		n = int(v)
	case int32:
		n = int(v)
	default:
		return
	}
	c.out.Teams.set(n, e.ID)
}

// setPlayer records the steam id of the controller in entity id.
func (c *collector) setPlayer(entityID int32, steamID uint64) {
	if steamID != 0 {
		c.steamIDs[entityID] = steamID
	}
}

// steamIDOf returns the steam id of a controller, of the controller owning
// a pawn, or zero.
func (c *collector) steamIDOf(e *entities.Entity) uint64 {
	switch e.ClassName {
	case classPlayerController:
		return c.steamIDs[e.ID]
	case classPlayerPawn:
		h, ok := e.Property(propController)
		if !ok {
			return 0
		}
		if handle, ok := h.(uint32); ok {
			return c.steamIDs[entities.HandleIndex(handle)]
		}
	}
	return 0
}

// ownerSteamID follows a projectile's thrower handle to a player.
func (c *collector) ownerSteamID(e *entities.Entity) uint64 {
	for _, prop := range projectileOwnerProps {
		h, ok := e.Property(prop)
		if !ok {
			continue
		}
		handle, ok := h.(uint32)
		if !ok {
			continue
		}
		owner, ok := c.store.Get(entities.HandleIndex(handle))
		if !ok {
			continue
		}
		return c.steamIDOf(owner)
	}
	return 0
}

// sample records the position of every live projectile once per tick, and
// the final position of each projectile retired since the last call.
func (c *collector) sample(retired []*entities.Entity) {
	if !c.opts.projectiles {
		return
	}
	var batch []*entities.Entity
	for _, e := range retired {
		if c.projectiles[e.ID] == e {
			delete(c.projectiles, e.ID)
			batch = append(batch, e)
		}
	}
	if !c.opts.tickWanted(c.tick) {
		c.sampled, c.sampledTick = true, c.tick
		return
	}
	// live projectiles are sampled once per tick, retired ones always
	if !c.sampled || c.sampledTick != c.tick {
		c.sampled, c.sampledTick = true, c.tick
		for _, e := range c.projectiles {
			batch = append(batch, e)
		}
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
	for _, e := range batch {
		pos, ok := e.Position()
		if !ok {
			continue
		}
		c.out.Projectiles = append(c.out.Projectiles, Projectile{
			Tick:        c.tick,
			EntityID:    e.ID,
			SteamID:     c.ownerSteamID(e),
			X:           pos[0],
			Y:           pos[1],
			Z:           pos[2],
			GrenadeType: e.ClassName,
		})
	}
}
