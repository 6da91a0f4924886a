// Package agenttest provides an in-memory game server for driving the agent
// in tests.
package agenttest

import (
	"context"
	"sort"
	"sync"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/agent/sensing"
	"parcelbot.ai/internal/grid"
)

// Game is a single-player view of a match. Every action emits the sensing
// events a real server would push.
type Game struct {
	Events chan sensing.Event

	// OnMove runs before the n-th move attempt (1-based) is applied.
	OnMove func(g *Game, n int)
	// RejectMoves rejects that many upcoming moves.
	RejectMoves int

	mu        sync.Mutex
	m         *grid.Map
	id        string
	pos       grid.Position
	score     int
	parcels   map[string]*beliefs.Parcel
	others    map[string]grid.Position
	moves     []grid.Position
	attempts  int
	delivered []string
}

func NewGame(m *grid.Map, id string, start grid.Position) *Game {
	return &Game{
		Events:  make(chan sensing.Event, 1024),
		m:       m,
		id:      id,
		pos:     start,
		parcels: make(map[string]*beliefs.Parcel),
		others:  make(map[string]grid.Position),
	}
}

// Start emits the session opening: welcome, own state, agents, parcels.
func (g *Game) Start(cfg beliefs.Game) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emit(sensing.Welcome{AgentID: g.id, Name: g.id, Map: g.m, Game: cfg})
	g.emitState()
}

func (g *Game) AddParcel(id string, p grid.Position, reward float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.parcels[id] = &beliefs.Parcel{ID: id, Pos: p, Reward: reward}
	g.emitParcels()
}

// PlaceAgent puts another agent on p.
func (g *Game) PlaceAgent(id string, p grid.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.others[id] = p
	g.emitAgents()
}

func (g *Game) RemoveAgent(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.others, id)
	g.emitAgents()
}

// TakeParcel hands a parcel to another agent.
func (g *Game) TakeParcel(id, by string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.parcels[id]; ok {
		p.CarriedBy = by
	}
	g.emitParcels()
}

func (g *Game) Position() grid.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pos
}

// Moves lists the positions reached by accepted moves.
func (g *Game) Moves() []grid.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]grid.Position(nil), g.moves...)
}

func (g *Game) Delivered() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.delivered...)
}

func (g *Game) Score() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.score
}

func (g *Game) Carrying(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.parcels[id]
	return ok && p.CarriedBy == g.id
}

func (g *Game) Move(ctx context.Context, d grid.Direction) (grid.Position, bool, error) {
	if err := ctx.Err(); err != nil {
		return grid.Position{}, false, err
	}
	g.mu.Lock()
	g.attempts++
	n := g.attempts
	g.mu.Unlock()
	if g.OnMove != nil {
		g.OnMove(g, n)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	to := g.pos.Add(d)
	if g.RejectMoves > 0 || !g.free(to) {
		if g.RejectMoves > 0 {
			g.RejectMoves--
		}
		return g.pos, false, nil
	}
	g.pos = to
	g.moves = append(g.moves, to)
	for _, p := range g.parcels {
		if p.CarriedBy == g.id {
			p.Pos = to
		}
	}
	g.emitState()
	return to, true, nil
}

func (g *Game) free(p grid.Position) bool {
	if !g.m.InBounds(p) || !g.m.Tile(p).Passable() {
		return false
	}
	for _, o := range g.others {
		if o == p {
			return false
		}
	}
	return true
}

func (g *Game) Pickup(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for id, p := range g.parcels {
		if p.CarriedBy == "" && p.Pos == g.pos {
			p.CarriedBy = g.id
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	g.emitParcels()
	return ids, nil
}

func (g *Game) Putdown(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for id, p := range g.parcels {
		if p.CarriedBy != g.id {
			continue
		}
		if g.m.IsDelivery(g.pos) {
			g.score += int(p.Reward)
			delete(g.parcels, id)
		} else {
			p.CarriedBy = ""
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if g.m.IsDelivery(g.pos) {
		g.delivered = append(g.delivered, ids...)
	} else {
		ids = nil
	}
	g.emitParcels()
	return ids, nil
}

func (g *Game) emitState() {
	g.emit(sensing.You{ID: g.id, Name: g.id, X: float64(g.pos.X), Y: float64(g.pos.Y), Score: g.score})
	g.emitAgents()
	g.emitParcels()
}

func (g *Game) emitParcels() {
	ps := make([]beliefs.Parcel, 0, len(g.parcels))
	for _, p := range g.parcels {
		ps = append(ps, *p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	g.emit(sensing.ParcelsSensed{Parcels: ps})
}

func (g *Game) emitAgents() {
	ids := make([]string, 0, len(g.others))
	for id := range g.others {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	as := make([]beliefs.Player, 0, len(ids))
	for _, id := range ids {
		p := g.others[id]
		as = append(as, beliefs.Player{ID: id, Name: id, X: float64(p.X), Y: float64(p.Y)})
	}
	g.emit(sensing.AgentsSensed{Agents: as})
}

// emit never blocks; a test that overflows the buffer loses events.
func (g *Game) emit(ev sensing.Event) {
	select {
	case g.Events <- ev:
	default:
	}
}
