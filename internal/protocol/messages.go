package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	AgentName       string     `json:"agent_name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	AgentID         string     `json:"agent_id"`
	Name            string     `json:"name,omitempty"`
	Map             MapInfo    `json:"map"`
	Game            GameParams `json:"game"`
}

// MapInfo lists the map column by column: Tiles[x][y] is one of the Tile*
// codes.
type MapInfo struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Tiles  [][]int `json:"tiles"`
}

// Tile codes.
const (
	TileWall     = 0
	TileSpawner  = 1
	TileDelivery = 2
	TileWalkable = 3
)

type GameParams struct {
	DecayIntervalMs     int64 `json:"decay_interval_ms"`
	MovementDurationMs  int64 `json:"movement_duration_ms"`
	Capacity            int   `json:"capacity"`
	ObservationDistance int   `json:"observation_distance"`
	MatchDurationMs     int64 `json:"match_duration_ms,omitempty"`
}

// YOU (server -> client)
type YouMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Score           int     `json:"score"`
}

// PARCELS (server -> client)
type ParcelsMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Parcels         []ParcelObs `json:"parcels"`
}

type ParcelObs struct {
	ID        string  `json:"id"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Reward    float64 `json:"reward"`
	CarriedBy string  `json:"carried_by,omitempty"`
}

// AGENTS (server -> client)
type AgentsMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Agents          []AgentObs `json:"agents"`
}

type AgentObs struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score int     `json:"score"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Action          string `json:"action"`
	Direction       string `json:"direction,omitempty"`
}

// ACK (server -> client) answers one ACT.
type AckMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	AckFor          string   `json:"ack_for"`
	Accepted        bool     `json:"accepted"`
	Code            string   `json:"code,omitempty"`
	Message         string   `json:"message,omitempty"`
	X               int      `json:"x"`
	Y               int      `json:"y"`
	Parcels         []string `json:"parcels,omitempty"`
}
