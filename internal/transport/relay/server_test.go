package relay

import (
	"context"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/transport/peer"
)

type recordingHooks struct {
	mu      sync.Mutex
	started []string
	actions []string
	ended   []string
}

func (h *recordingHooks) MatchStarted(roomID, mapID string, players [2]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, roomID)
}

func (h *recordingHooks) ActionForwarded(roomID string, msg protocol.GameActionMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, msg.Action)
}

func (h *recordingHooks) MatchEnded(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, roomID)
}

type onlySkirmish struct{}

func (onlySkirmish) HasMap(id string) bool { return id == "skirmish" }

func startRelay(t *testing.T, hooks Hooks) (*Server, string) {
	t.Helper()
	srv := NewServer(log.New(testWriter{t}, "[relay] ", 0), onlySkirmish{}, hooks)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func dialPeer(t *testing.T, url string) *peer.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := peer.Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func recvMessage(t *testing.T, c *peer.Conn) peer.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Recv():
		if !ok {
			t.Fatalf("connection closed: %v", c.Err())
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return peer.Message{}
}

func TestRoomLifecycleAndForwarding(t *testing.T) {
	hooks := &recordingHooks{}
	srv, url := startRelay(t, hooks)

	host := dialPeer(t, url)
	guest := dialPeer(t, url)

	if err := host.CreateLobby("skirmish"); err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}
	created := recvMessage(t, host)
	if created.LobbyCreated == nil {
		t.Fatalf("expected lobby_created, got %s", created.Type)
	}
	roomID := created.LobbyCreated.RoomID
	if roomID == "" || created.LobbyCreated.MapID != "skirmish" {
		t.Fatalf("lobby_created = %+v", created.LobbyCreated)
	}
	if srv.RoomCount() != 1 {
		t.Fatalf("rooms = %d, want 1", srv.RoomCount())
	}

	if err := guest.JoinLobby(roomID); err != nil {
		t.Fatalf("JoinLobby: %v", err)
	}
	hostStart := recvMessage(t, host)
	guestStart := recvMessage(t, guest)
	if hostStart.GameStart == nil || guestStart.GameStart == nil {
		t.Fatalf("expected game_start on both peers, got %s / %s", hostStart.Type, guestStart.Type)
	}
	if hostStart.GameStart.Players != guestStart.GameStart.Players {
		t.Fatal("peers disagree on the player pair")
	}
	hostID := hostStart.GameStart.Players[0]

	// Host forwards an action; only the guest receives it.
	action, err := protocol.EncodeAction(roomID, hostID, protocol.ActionSkipTurn, nil, "digest-1")
	if err != nil {
		t.Fatalf("EncodeAction: %v", err)
	}
	if err := host.SendAction(action); err != nil {
		t.Fatalf("SendAction: %v", err)
	}
	fwd := recvMessage(t, guest)
	if fwd.GameAction == nil || fwd.GameAction.Action != protocol.ActionSkipTurn {
		t.Fatalf("guest got %+v", fwd)
	}
	if fwd.GameAction.Digest != "digest-1" {
		t.Fatal("digest not forwarded verbatim")
	}

	// Host drops; the guest is notified and the room disappears.
	host.Close()
	notice := recvMessage(t, guest)
	if notice.Error == nil || notice.Error.Code != protocol.ErrRoomNotFound {
		t.Fatalf("expected peer-disconnected notice, got %+v", notice)
	}
	deadline := time.Now().Add(3 * time.Second)
	for srv.RoomCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room not torn down")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.started) != 1 || len(hooks.ended) != 1 {
		t.Fatalf("hooks: started %v ended %v", hooks.started, hooks.ended)
	}
	if len(hooks.actions) != 1 || hooks.actions[0] != protocol.ActionSkipTurn {
		t.Fatalf("hooks.actions = %v", hooks.actions)
	}
}

func TestJoinUnknownRoomRejected(t *testing.T) {
	_, url := startRelay(t, nil)
	c := dialPeer(t, url)
	if err := c.JoinLobby("nope"); err != nil {
		t.Fatalf("JoinLobby: %v", err)
	}
	msg := recvMessage(t, c)
	if msg.Error == nil || msg.Error.Code != protocol.ErrRoomNotFound {
		t.Fatalf("got %+v, want %s", msg, protocol.ErrRoomNotFound)
	}
}

func TestCreateLobbyChecksMapLibrary(t *testing.T) {
	_, url := startRelay(t, nil)
	c := dialPeer(t, url)
	if err := c.CreateLobby("no-such-map"); err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}
	msg := recvMessage(t, c)
	if msg.Error == nil || msg.Error.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("got %+v, want %s", msg, protocol.ErrProtoBadRequest)
	}
}

func TestForwardRejectsSpoofedPlayerID(t *testing.T) {
	_, url := startRelay(t, nil)
	host := dialPeer(t, url)
	guest := dialPeer(t, url)

	if err := host.CreateLobby("skirmish"); err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}
	roomID := recvMessage(t, host).LobbyCreated.RoomID
	if err := guest.JoinLobby(roomID); err != nil {
		t.Fatalf("JoinLobby: %v", err)
	}
	start := recvMessage(t, host)
	recvMessage(t, guest)

	// The host signs the action with the guest's identity.
	spoofed, err := protocol.EncodeAction(roomID, start.GameStart.Players[1], protocol.ActionSkipTurn, nil, "")
	if err != nil {
		t.Fatalf("EncodeAction: %v", err)
	}
	if err := host.SendAction(spoofed); err != nil {
		t.Fatalf("SendAction: %v", err)
	}
	msg := recvMessage(t, host)
	if msg.Error == nil || msg.Error.Code != protocol.ErrTrust {
		t.Fatalf("got %+v, want %s", msg, protocol.ErrTrust)
	}

	// A room with only two roles cannot misdeliver: the guest saw nothing.
	select {
	case got := <-guest.Recv():
		t.Fatalf("guest received %+v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFullRoomRejectsThirdPeer(t *testing.T) {
	_, url := startRelay(t, nil)
	host := dialPeer(t, url)
	guest := dialPeer(t, url)
	third := dialPeer(t, url)

	if err := host.CreateLobby("skirmish"); err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}
	roomID := recvMessage(t, host).LobbyCreated.RoomID
	if err := guest.JoinLobby(roomID); err != nil {
		t.Fatalf("JoinLobby: %v", err)
	}
	recvMessage(t, host)
	recvMessage(t, guest)

	if err := third.JoinLobby(roomID); err != nil {
		t.Fatalf("JoinLobby: %v", err)
	}
	msg := recvMessage(t, third)
	if msg.Error == nil || msg.Error.Code != protocol.ErrRoomFull {
		t.Fatalf("got %+v, want %s", msg, protocol.ErrRoomFull)
	}
}
