package protocol

import (
	"encoding/json"
	"fmt"

	"neontactics.gg/internal/sim/grid"
)

// Game action names carried by game_action. The first block is the minimal
// set a peer must understand; the second covers the full battle surface
// (abilities, shop, talents, editor tooling) using the same envelope.
const (
	ActionMove      = "MOVE"
	ActionAttack    = "ATTACK"
	ActionTeleport  = "TELEPORT"
	ActionSkipTurn  = "SKIP_TURN"
	ActionPlaceUnit = "PLACE_UNIT"
	ActionSyncState = "SYNC_STATE"

	ActionAbility     = "ABILITY"
	ActionPlaceWall   = "PLACE_WALL"
	ActionShopBuy     = "SHOP_BUY"
	ActionShopRefund  = "SHOP_REFUND"
	ActionShopReroll  = "SHOP_REROLL"
	ActionTalentPick  = "TALENT_PICK"
	ActionTerrainEdit = "TERRAIN_EDIT"
	ActionMassRetreat = "MASS_RETREAT"
)

// create_lobby (peer -> relay)
type CreateLobbyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MapID           string `json:"mapId"`
}

// lobby_created (relay -> peer)
type LobbyCreatedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoomID          string `json:"roomId"`
	MapID           string `json:"mapId"`
}

// join_lobby (peer -> relay)
type JoinLobbyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoomID          string `json:"roomId"`
}

// game_start (relay -> both peers)
type GameStartMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RoomID          string    `json:"roomId"`
	Players         [2]string `json:"players"`
	MapID           string    `json:"mapId"`
}

// game_action (peer -> relay -> other peer). Data is one of the *Data
// payloads below, selected by Action. Digest carries the sender's
// pre-intent state digest so the receiver can detect divergence.
type GameActionMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	RoomID          string          `json:"roomId"`
	PlayerID        string          `json:"playerId"`
	Action          string          `json:"action"`
	Data            json.RawMessage `json:"data,omitempty"`
	Digest          string          `json:"digest,omitempty"`
}

// error_message (either direction): fatal notice to the receiving peer.
type ErrorMessageMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message"`
}

type MoveData struct {
	UnitID string     `json:"unitId"`
	Path   []grid.Pos `json:"path"`
}

type AttackData struct {
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId"`
}

type TeleportData struct {
	UnitID string   `json:"unitId"`
	To     grid.Pos `json:"to"`
}

type PlaceUnitData struct {
	CardID   string   `json:"cardId"`
	UnitType string   `json:"unitType"`
	Pos      grid.Pos `json:"position"`
}

// SyncStateData carries a full zstd+gob snapshot, base64-encoded.
type SyncStateData struct {
	Snapshot string `json:"snapshot"`
}

// AbilityData commits a targeted ability. UnitID names the caster for unit
// abilities; CardID names the consumed deck card for action-card abilities
// (ion cannon, forward base).
type AbilityData struct {
	UnitID string   `json:"unitId,omitempty"`
	CardID string   `json:"cardId,omitempty"`
	Kind   string   `json:"kind"`
	Target grid.Pos `json:"target"`
}

type PlaceWallData struct {
	UnitID string   `json:"unitId"`
	Pos    grid.Pos `json:"position"`
}

type ShopBuyData struct {
	Slot int `json:"slot"`
}

type ShopRefundData struct {
	Slot int `json:"slot"`
}

type TalentPickData struct {
	TalentID string `json:"talentId"`
}

type TerrainEditData struct {
	Tool      string   `json:"tool"`
	Pos       grid.Pos `json:"position"`
	Brush     int      `json:"brush,omitempty"`
	TileType  string   `json:"tileType,omitempty"`
	Elevation int      `json:"elevation,omitempty"`
	Rotation  int      `json:"rotation,omitempty"`
	Zone      string   `json:"zone,omitempty"`
}

type MassRetreatData struct {
	Target grid.Pos `json:"target"`
}

// EncodeAction marshals a typed payload into a game_action envelope.
func EncodeAction(roomID, playerID, action string, data any, digest string) (GameActionMsg, error) {
	msg := GameActionMsg{
		Type:            TypeGameAction,
		ProtocolVersion: Version,
		RoomID:          roomID,
		PlayerID:        playerID,
		Action:          action,
		Digest:          digest,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return msg, fmt.Errorf("encode %s: %w", action, err)
		}
		msg.Data = raw
	}
	return msg, nil
}
