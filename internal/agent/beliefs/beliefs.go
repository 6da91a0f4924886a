// Package beliefs holds what the agent currently knows about the game: its own
// state, the parcels it has seen and the other agents in view.
//
// Beliefs has a single writer, the agent loop, and is not safe for concurrent
// use.
package beliefs

import (
	"math"
	"time"

	"parcelbot.ai/internal/grid"
)

type Parcel struct {
	ID        string        `json:"id"`
	Pos       grid.Position `json:"pos"`
	Reward    float64       `json:"reward"`
	CarriedBy string        `json:"carried_by,omitempty"`

	seenAt time.Time
}

type Player struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score int     `json:"score"`
}

// Tiles returns the tiles a player occupies. A player caught between two tiles
// occupies both.
func (p Player) Tiles() []grid.Position {
	x0, x1 := int(math.Floor(p.X)), int(math.Ceil(p.X))
	y0, y1 := int(math.Floor(p.Y)), int(math.Ceil(p.Y))
	out := []grid.Position{{X: x0, Y: y0}}
	if x1 != x0 {
		out = append(out, grid.Position{X: x1, Y: y0})
	}
	if y1 != y0 {
		out = append(out, grid.Position{X: x0, Y: y1})
	}
	return out
}

type Self struct {
	ID    string
	Name  string
	Pos   grid.Position
	Score int
	Known bool
}

// Game holds the server-side parameters that drive utility estimates.
type Game struct {
	// DecayInterval is the period after which every parcel loses one reward
	// point. Zero means parcels never decay.
	DecayInterval       time.Duration
	MovementDuration    time.Duration
	Capacity            int
	ObservationDistance int
	// MatchDuration of zero means the match has no deadline.
	MatchDuration time.Duration
}

// RewardFloor is the reward at or below which a parcel is forgotten.
const RewardFloor = 0

type Beliefs struct {
	Self     Self
	Game     Game
	MatchEnd time.Time

	parcels map[string]*Parcel
	players map[string]Player

	now func() time.Time
}

func New(now func() time.Time) *Beliefs {
	if now == nil {
		now = time.Now
	}
	return &Beliefs{
		parcels: make(map[string]*Parcel),
		players: make(map[string]Player),
		now:     now,
	}
}

func (b *Beliefs) Now() time.Time { return b.now() }

// SetGame applies the game parameters and starts the match clock.
func (b *Beliefs) SetGame(g Game) {
	b.Game = g
	if g.MatchDuration > 0 {
		b.MatchEnd = b.now().Add(g.MatchDuration)
	} else {
		b.MatchEnd = time.Time{}
	}
}

// Remaining is the time left in the match, or +Inf when there is no deadline.
func (b *Beliefs) Remaining() time.Duration {
	if b.MatchEnd.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return b.MatchEnd.Sub(b.now())
}

// UpdateSelf records the agent's own position. Fractional coordinates mean a
// move is in flight and are rounded to the nearest tile.
func (b *Beliefs) UpdateSelf(id, name string, x, y float64, score int) (moved bool) {
	pos := grid.Position{X: int(math.Round(x)), Y: int(math.Round(y))}
	moved = !b.Self.Known || pos != b.Self.Pos
	b.Self = Self{ID: id, Name: name, Pos: pos, Score: score, Known: true}
	return moved
}

func (b *Beliefs) SetPosition(p grid.Position) (moved bool) {
	moved = p != b.Self.Pos
	b.Self.Pos = p
	b.Self.Known = true
	return moved
}
