package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeYou     = "YOU"
	TypeParcels = "PARCELS"
	TypeAgents  = "AGENTS"
	TypeAct     = "ACT"
	TypeAck     = "ACK"
)

// Primitive actions carried by ACT.
const (
	ActionMove    = "move"
	ActionPickup  = "pickup"
	ActionPutdown = "putdown"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
