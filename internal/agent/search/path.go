package search

import "parcelbot.ai/internal/grid"

// Path is an ordered walk over the grid. Positions[0] is the start and
// Moves[i] leads from Positions[i] to Positions[i+1].
//
// The zero Path means "unreachable". A path whose start equals its end has a
// single position and no moves.
type Path struct {
	Positions []grid.Position  `json:"positions"`
	Moves     []grid.Direction `json:"moves"`
}

func (p Path) Reachable() bool { return len(p.Positions) > 0 }

// Len is the number of moves.
func (p Path) Len() int { return len(p.Moves) }

func (p Path) Start() grid.Position {
	if len(p.Positions) == 0 {
		return grid.Position{}
	}
	return p.Positions[0]
}

func (p Path) Final() grid.Position {
	if len(p.Positions) == 0 {
		return grid.Position{}
	}
	return p.Positions[len(p.Positions)-1]
}

// From returns the remaining walk starting at Positions[i].
func (p Path) From(i int) Path {
	if i <= 0 {
		return p
	}
	if i >= len(p.Positions) {
		return Path{}
	}
	return Path{Positions: p.Positions[i:], Moves: p.Moves[i:]}
}

// FromPositions derives moves for a walk of adjacent positions. It returns the
// zero Path if two consecutive positions are not adjacent.
func FromPositions(ps []grid.Position) Path {
	if len(ps) == 0 {
		return Path{}
	}
	moves := make([]grid.Direction, 0, len(ps)-1)
	for i := 1; i < len(ps); i++ {
		d, ok := grid.DirectionTo(ps[i-1], ps[i])
		if !ok {
			return Path{}
		}
		moves = append(moves, d)
	}
	return Path{Positions: ps, Moves: moves}
}
