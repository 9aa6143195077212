// Package protocol defines the wire messages exchanged between two battle
// peers through the relay, the game_action names, and the rejection codes
// shared by intent validation and the network layer.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeCreateLobby  = "create_lobby"
	TypeLobbyCreated = "lobby_created"
	TypeJoinLobby    = "join_lobby"
	TypeGameStart    = "game_start"
	TypeGameAction   = "game_action"
	TypeErrorMessage = "error_message"
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
