// Package peer is the websocket client side of the relay protocol: dial,
// open or join a lobby, then exchange game_action frames. The replication
// session consumes the decoded message stream from Recv.
package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"neontactics.gg/internal/protocol"
)

// Message is one decoded relay frame. Exactly one pointer is set, selected
// by Type.
type Message struct {
	Type string

	LobbyCreated *protocol.LobbyCreatedMsg
	GameStart    *protocol.GameStartMsg
	GameAction   *protocol.GameActionMsg
	Error        *protocol.ErrorMessageMsg
}

type Conn struct {
	ws *websocket.Conn

	sendMu sync.Mutex
	recv   chan Message
	errCh  chan error
	closed sync.Once
}

func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Conn{
		ws:    ws,
		recv:  make(chan Message, 64),
		errCh: make(chan error, 1),
	}
	go c.readLoop()
	return c, nil
}

// Recv is the decoded inbound stream. It is closed when the connection
// dies; Err then reports why.
func (c *Conn) Recv() <-chan Message { return c.recv }

func (c *Conn) Err() error {
	select {
	case err := <-c.errCh:
		return err
	default:
		return nil
	}
}

func (c *Conn) Close() error {
	var err error
	c.closed.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.recv)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case c.errCh <- err:
			default:
			}
			return
		}
		msg, err := decode(raw)
		if err != nil {
			// A relay speaking something unintelligible is fatal.
			select {
			case c.errCh <- err:
			default:
			}
			return
		}
		c.recv <- msg
	}
}

func decode(raw []byte) (Message, error) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return Message{}, fmt.Errorf("bad frame: %w", err)
	}
	msg := Message{Type: base.Type}
	switch base.Type {
	case protocol.TypeLobbyCreated:
		msg.LobbyCreated = &protocol.LobbyCreatedMsg{}
		err = json.Unmarshal(raw, msg.LobbyCreated)
	case protocol.TypeGameStart:
		msg.GameStart = &protocol.GameStartMsg{}
		err = json.Unmarshal(raw, msg.GameStart)
	case protocol.TypeGameAction:
		msg.GameAction = &protocol.GameActionMsg{}
		err = json.Unmarshal(raw, msg.GameAction)
	case protocol.TypeErrorMessage:
		msg.Error = &protocol.ErrorMessageMsg{}
		err = json.Unmarshal(raw, msg.Error)
	default:
		return msg, fmt.Errorf("unknown frame type %q", base.Type)
	}
	if err != nil {
		return Message{}, fmt.Errorf("bad %s frame: %w", base.Type, err)
	}
	return msg, nil
}

func (c *Conn) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// CreateLobby asks the relay for a fresh room on the given map. The reply
// arrives on Recv as lobby_created.
func (c *Conn) CreateLobby(mapID string) error {
	return c.sendJSON(protocol.CreateLobbyMsg{
		Type:            protocol.TypeCreateLobby,
		ProtocolVersion: protocol.Version,
		MapID:           mapID,
	})
}

// JoinLobby enters an existing room; both peers then receive game_start.
func (c *Conn) JoinLobby(roomID string) error {
	return c.sendJSON(protocol.JoinLobbyMsg{
		Type:            protocol.TypeJoinLobby,
		ProtocolVersion: protocol.Version,
		RoomID:          roomID,
	})
}

func (c *Conn) SendAction(msg protocol.GameActionMsg) error {
	return c.sendJSON(msg)
}

// SendError reports a fatal condition (divergence, trust failure) to the
// opponent through the relay.
func (c *Conn) SendError(code, message string) error {
	return c.sendJSON(protocol.ErrorMessageMsg{
		Type:            protocol.TypeErrorMessage,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}
