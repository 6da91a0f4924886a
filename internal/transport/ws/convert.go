package ws

import (
	"fmt"
	"time"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/agent/sensing"
	"parcelbot.ai/internal/grid"
	"parcelbot.ai/internal/protocol"
)

func welcomeEvent(w protocol.WelcomeMsg) (sensing.Welcome, error) {
	if len(w.Map.Tiles) != w.Map.Width {
		return sensing.Welcome{}, fmt.Errorf("map: %d columns, width %d", len(w.Map.Tiles), w.Map.Width)
	}
	tiles := make([][]grid.Tile, len(w.Map.Tiles))
	for x, col := range w.Map.Tiles {
		if len(col) != w.Map.Height {
			return sensing.Welcome{}, fmt.Errorf("map: column %d has %d tiles, height %d", x, len(col), w.Map.Height)
		}
		tiles[x] = make([]grid.Tile, len(col))
		for y, code := range col {
			if code < protocol.TileWall || code > protocol.TileWalkable {
				return sensing.Welcome{}, fmt.Errorf("map: bad tile %d at (%d,%d)", code, x, y)
			}
			tiles[x][y] = grid.Tile(code)
		}
	}
	m, err := grid.NewMap(tiles)
	if err != nil {
		return sensing.Welcome{}, fmt.Errorf("map: %w", err)
	}
	return sensing.Welcome{
		AgentID: w.AgentID,
		Name:    w.Name,
		Map:     m,
		Game: beliefs.Game{
			DecayInterval:       time.Duration(w.Game.DecayIntervalMs) * time.Millisecond,
			MovementDuration:    time.Duration(w.Game.MovementDurationMs) * time.Millisecond,
			Capacity:            w.Game.Capacity,
			ObservationDistance: w.Game.ObservationDistance,
			MatchDuration:       time.Duration(w.Game.MatchDurationMs) * time.Millisecond,
		},
	}, nil
}

func youEvent(m protocol.YouMsg) sensing.You {
	return sensing.You{ID: m.ID, Name: m.Name, X: m.X, Y: m.Y, Score: m.Score}
}

func parcelsEvent(m protocol.ParcelsMsg) sensing.ParcelsSensed {
	out := make([]beliefs.Parcel, 0, len(m.Parcels))
	for _, p := range m.Parcels {
		out = append(out, beliefs.Parcel{
			ID:        p.ID,
			Pos:       grid.Position{X: p.X, Y: p.Y},
			Reward:    p.Reward,
			CarriedBy: p.CarriedBy,
		})
	}
	return sensing.ParcelsSensed{Parcels: out}
}

func agentsEvent(m protocol.AgentsMsg) sensing.AgentsSensed {
	out := make([]beliefs.Player, 0, len(m.Agents))
	for _, a := range m.Agents {
		out = append(out, beliefs.Player{ID: a.ID, Name: a.Name, X: a.X, Y: a.Y, Score: a.Score})
	}
	return sensing.AgentsSensed{Agents: out}
}
