package protocol

const (
	// Transport/lobby layer.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRoomNotFound    = "E_ROOM_NOT_FOUND"
	ErrRoomFull        = "E_ROOM_FULL"

	// Intent validation layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNotYourTurn   = "E_NOT_YOUR_TURN"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrBlocked       = "E_BLOCKED"
	ErrOutOfRange    = "E_OUT_OF_RANGE"
	ErrNoLOS         = "E_NO_LOS"
	ErrMode          = "E_MODE"
	ErrStale         = "E_STALE"
	ErrTrust         = "E_TRUST"
	ErrGameOver      = "E_GAME_OVER"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrRoomNotFound:    {},
	ErrRoomFull:        {},
	ErrBadRequest:      {},
	ErrNotYourTurn:     {},
	ErrNoResource:      {},
	ErrInvalidTarget:   {},
	ErrBlocked:         {},
	ErrOutOfRange:      {},
	ErrNoLOS:           {},
	ErrMode:            {},
	ErrStale:           {},
	ErrTrust:           {},
	ErrGameOver:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
