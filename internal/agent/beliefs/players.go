package beliefs

import (
	"sort"

	"parcelbot.ai/internal/grid"
)

// SensePlayers replaces the set of visible agents. The agent itself is
// filtered out.
func (b *Beliefs) SensePlayers(seen []Player) {
	b.players = make(map[string]Player, len(seen))
	for _, p := range seen {
		if p.ID == b.Self.ID {
			continue
		}
		b.players[p.ID] = p
	}
}

func (b *Beliefs) Players() []Player {
	out := make([]Player, 0, len(b.players))
	for _, p := range b.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Occupied reports whether another visible agent stands on p.
func (b *Beliefs) Occupied(p grid.Position) bool {
	for _, pl := range b.players {
		for _, t := range pl.Tiles() {
			if t == p {
				return true
			}
		}
	}
	return false
}
