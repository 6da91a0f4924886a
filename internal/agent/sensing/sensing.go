// Package sensing defines what the agent core consumes from a game session:
// pushed observations and the primitive actions.
package sensing

import (
	"context"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/grid"
)

type Event interface{ event() }

// Welcome opens a session with the map and the game parameters.
type Welcome struct {
	AgentID string
	Name    string
	Map     *grid.Map
	Game    beliefs.Game
}

// You reports the agent's own state. Coordinates are fractional while a move
// is in flight.
type You struct {
	ID    string
	Name  string
	X, Y  float64
	Score int
}

type ParcelsSensed struct {
	Parcels []beliefs.Parcel
}

type AgentsSensed struct {
	Agents []beliefs.Player
}

func (Welcome) event()       {}
func (You) event()           {}
func (ParcelsSensed) event() {}
func (AgentsSensed) event()  {}

// Actuator performs primitive actions. Each call is one server round trip.
type Actuator interface {
	// Move reports the resulting position, or false when the move was rejected.
	Move(ctx context.Context, d grid.Direction) (grid.Position, bool, error)
	// Pickup returns the ids of the parcels picked up.
	Pickup(ctx context.Context) ([]string, error)
	// Putdown returns the ids of the parcels delivered.
	Putdown(ctx context.Context) ([]string, error)
}
