// Package relay implements the lobby/forwarding server between two battle
// peers. It never simulates: it pairs peers into rooms and moves
// game_action frames between them verbatim, so the peers alone decide what
// a legal battle is.
package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"neontactics.gg/internal/protocol"
)

// Hooks lets the relay binary observe room traffic (journaling, the match
// index) without the transport layer knowing about persistence. All
// callbacks run on the reading peer's goroutine.
type Hooks interface {
	MatchStarted(roomID, mapID string, players [2]string)
	ActionForwarded(roomID string, msg protocol.GameActionMsg)
	MatchEnded(roomID string)
}

// NopHooks is the default when the binary wires nothing in.
type NopHooks struct{}

func (NopHooks) MatchStarted(string, string, [2]string)         {}
func (NopHooks) ActionForwarded(string, protocol.GameActionMsg) {}
func (NopHooks) MatchEnded(string)                              {}

// MapChecker validates that a requested map exists before a lobby opens.
type MapChecker interface {
	HasMap(id string) bool
}

// AnyMap accepts every map id.
type AnyMap struct{}

func (AnyMap) HasMap(string) bool { return true }

type Server struct {
	log   *log.Logger
	maps  MapChecker
	hooks Hooks

	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	id      string
	mapID   string
	host    *client
	guest   *client
	started bool
}

type client struct {
	playerID string
	out      chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.done) }) }

// send queues a frame; a peer that cannot keep up is cut off rather than
// allowed to stall its opponent.
func (c *client) send(b []byte) {
	select {
	case c.out <- b:
	case <-c.done:
	default:
		c.close()
	}
}

func NewServer(logger *log.Logger, maps MapChecker, hooks Hooks) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if maps == nil {
		maps = AnyMap{}
	}
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Server{
		log:   logger,
		maps:  maps,
		hooks: hooks,
		rooms: map[string]*room{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{
			playerID: uuid.NewString(),
			out:      make(chan []byte, 64),
			done:     make(chan struct{}),
		}

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-c.done:
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						c.close()
						return
					}
				}
			}
		}()

		s.readLoop(conn, c)

		c.close()
		s.detach(c)
	}
}

func (s *Server) readLoop(conn *websocket.Conn, c *client) {
	for {
		select {
		case <-c.done:
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			s.sendError(c, protocol.ErrProtoBadRequest, "unparseable message")
			continue
		}
		if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
			s.sendError(c, protocol.ErrProtoBadRequest, "unsupported protocol_version "+base.ProtocolVersion)
			continue
		}

		switch base.Type {
		case protocol.TypeCreateLobby:
			var msg protocol.CreateLobbyMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.sendError(c, protocol.ErrProtoBadRequest, "bad create_lobby")
				continue
			}
			s.createLobby(c, msg)
		case protocol.TypeJoinLobby:
			var msg protocol.JoinLobbyMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.sendError(c, protocol.ErrProtoBadRequest, "bad join_lobby")
				continue
			}
			s.joinLobby(c, msg)
		case protocol.TypeGameAction:
			var msg protocol.GameActionMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.sendError(c, protocol.ErrProtoBadRequest, "bad game_action")
				continue
			}
			s.forward(c, raw, msg)
		case protocol.TypeErrorMessage:
			// Peer-to-peer notices (divergence reports) pass through.
			s.forwardRaw(c, raw)
		default:
			s.sendError(c, protocol.ErrProtoBadRequest, "unknown message type "+base.Type)
		}
	}
}

func (s *Server) createLobby(c *client, msg protocol.CreateLobbyMsg) {
	if !s.maps.HasMap(msg.MapID) {
		s.sendError(c, protocol.ErrProtoBadRequest, "unknown map "+msg.MapID)
		return
	}

	s.mu.Lock()
	if s.roomOfLocked(c) != nil {
		s.mu.Unlock()
		s.sendError(c, protocol.ErrProtoBadRequest, "already in a room")
		return
	}
	rm := &room{id: uuid.NewString(), mapID: msg.MapID, host: c}
	s.rooms[rm.id] = rm
	s.mu.Unlock()

	s.log.Printf("room %s created (map %s)", rm.id, rm.mapID)
	s.sendJSON(c, protocol.LobbyCreatedMsg{
		Type:            protocol.TypeLobbyCreated,
		ProtocolVersion: protocol.Version,
		RoomID:          rm.id,
		MapID:           rm.mapID,
	})
}

func (s *Server) joinLobby(c *client, msg protocol.JoinLobbyMsg) {
	s.mu.Lock()
	rm := s.rooms[msg.RoomID]
	switch {
	case rm == nil:
		s.mu.Unlock()
		s.sendError(c, protocol.ErrRoomNotFound, "no such room "+msg.RoomID)
		return
	case rm.guest != nil || rm.started:
		s.mu.Unlock()
		s.sendError(c, protocol.ErrRoomFull, "room already has two peers")
		return
	case rm.host == c:
		s.mu.Unlock()
		s.sendError(c, protocol.ErrProtoBadRequest, "cannot join your own room")
		return
	}
	rm.guest = c
	rm.started = true
	players := [2]string{rm.host.playerID, rm.guest.playerID}
	s.mu.Unlock()

	s.log.Printf("room %s started: %s vs %s", rm.id, players[0], players[1])
	start := protocol.GameStartMsg{
		Type:            protocol.TypeGameStart,
		ProtocolVersion: protocol.Version,
		RoomID:          rm.id,
		Players:         players,
		MapID:           rm.mapID,
	}
	b, err := json.Marshal(start)
	if err != nil {
		return
	}
	rm.host.send(b)
	rm.guest.send(b)
	s.hooks.MatchStarted(rm.id, rm.mapID, players)
}

// forward relays a validated game_action frame to the sender's opponent.
// The relay checks envelope identity only; battle legality is the peers'
// business.
func (s *Server) forward(c *client, raw []byte, msg protocol.GameActionMsg) {
	s.mu.Lock()
	rm := s.rooms[msg.RoomID]
	if rm == nil || !rm.started {
		s.mu.Unlock()
		s.sendError(c, protocol.ErrRoomNotFound, "no started room "+msg.RoomID)
		return
	}
	if rm.host != c && rm.guest != c {
		s.mu.Unlock()
		s.sendError(c, protocol.ErrProtoBadRequest, "not a member of room "+msg.RoomID)
		return
	}
	if msg.PlayerID != c.playerID {
		s.mu.Unlock()
		s.sendError(c, protocol.ErrTrust, "playerId does not match connection")
		return
	}
	other := rm.host
	if c == rm.host {
		other = rm.guest
	}
	s.mu.Unlock()

	other.send(raw)
	s.hooks.ActionForwarded(rm.id, msg)
}

func (s *Server) forwardRaw(c *client, raw []byte) {
	s.mu.Lock()
	rm := s.roomOfLocked(c)
	var other *client
	if rm != nil {
		if c == rm.host {
			other = rm.guest
		} else {
			other = rm.host
		}
	}
	s.mu.Unlock()
	if other != nil {
		other.send(raw)
	}
}

// detach removes the client's room; the remaining peer gets a fatal notice.
// Battles do not survive a dropped peer, resumption is a resync on a new
// room.
func (s *Server) detach(c *client) {
	s.mu.Lock()
	rm := s.roomOfLocked(c)
	if rm == nil {
		s.mu.Unlock()
		return
	}
	delete(s.rooms, rm.id)
	var other *client
	if c == rm.host {
		other = rm.guest
	} else {
		other = rm.host
	}
	started := rm.started
	s.mu.Unlock()

	s.log.Printf("room %s torn down", rm.id)
	// The survivor is told, not disconnected: it may want to open a new
	// lobby on the same connection.
	if other != nil {
		s.sendError(other, protocol.ErrRoomNotFound, "peer disconnected")
	}
	if started {
		s.hooks.MatchEnded(rm.id)
	}
}

func (s *Server) roomOfLocked(c *client) *room {
	for _, rm := range s.rooms {
		if rm.host == c || rm.guest == c {
			return rm
		}
	}
	return nil
}

// RoomCount reports open rooms, for the status endpoint.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Server) sendError(c *client, code, message string) {
	s.sendJSON(c, protocol.ErrorMessageMsg{
		Type:            protocol.TypeErrorMessage,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

func (s *Server) sendJSON(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.send(b)
}
