package replication

import (
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/game"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/sim/terrain"
	"neontactics.gg/internal/sim/tuning"
	"neontactics.gg/internal/transport/peer"
)

const (
	hostID  = "p-host"
	guestID = "p-guest"
)

// pipeEnd is an in-memory Wire: frames sent on one end arrive on the other.
type pipeEnd struct {
	in    chan peer.Message
	other *pipeEnd
}

func newPipe() (*pipeEnd, *pipeEnd) {
	a := &pipeEnd{in: make(chan peer.Message, 128)}
	b := &pipeEnd{in: make(chan peer.Message, 128)}
	a.other, b.other = b, a
	return a, b
}

func (p *pipeEnd) Recv() <-chan peer.Message { return p.in }

func (p *pipeEnd) SendAction(msg protocol.GameActionMsg) error {
	m := msg
	p.other.in <- peer.Message{Type: protocol.TypeGameAction, GameAction: &m}
	return nil
}

func (p *pipeEnd) SendError(code, message string) error {
	p.other.in <- peer.Message{Type: protocol.TypeErrorMessage, Error: &protocol.ErrorMessageMsg{
		Type: protocol.TypeErrorMessage, ProtocolVersion: protocol.Version, Code: code, Message: message,
	}}
	return nil
}

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	return cats
}

func testMap() *mapfile.Map {
	m := terrain.NewFlat(grid.Bounds{Width: 8, Height: 8})
	for x := 0; x < 8; x++ {
		a, _ := m.At(grid.Pos{X: x, Z: 0})
		a.LandingZone = hostID
		m.Set(grid.Pos{X: x, Z: 0}, a)
		b, _ := m.At(grid.Pos{X: x, Z: 7})
		b.LandingZone = guestID
		m.Set(grid.Pos{X: x, Z: 7}, b)
	}
	return &mapfile.Map{Terrain: m, Units: []mapfile.UnitPlacement{
		{ID: "h1", PlayerID: hostID, Type: "TROOPER", Position: grid.Pos{X: 1, Z: 0}},
		{ID: "g1", PlayerID: guestID, Type: "TROOPER", Position: grid.Pos{X: 1, Z: 7}},
	}}
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(logWriter{t}, "", 0)
}

type logWriter struct{ t *testing.T }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// startPair wires a host and a guest session together and runs both.
func startPair(t *testing.T) (host, guest *Session) {
	t.Helper()
	hostWire, guestWire := newPipe()
	start := protocol.GameStartMsg{
		Type:            protocol.TypeGameStart,
		ProtocolVersion: protocol.Version,
		RoomID:          "room-1",
		Players:         [2]string{hostID, guestID},
		MapID:           "test",
	}
	cats := loadCats(t)
	tun := tuning.Default()

	host, err := NewHost(hostWire, testLogger(t), start, 42, tun, cats, testMap())
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = host.Run(ctx) }()

	// The bootstrap snapshot is the first frame the guest side sees.
	var boot peer.Message
	select {
	case boot = <-guestWire.in:
	case <-time.After(5 * time.Second):
		t.Fatal("no bootstrap SYNC_STATE from host")
	}
	if boot.GameAction == nil || boot.GameAction.Action != protocol.ActionSyncState {
		t.Fatalf("first frame = %+v, want SYNC_STATE", boot)
	}

	guest, err = NewGuest(guestWire, testLogger(t), start, boot.GameAction.Data, tun, cats)
	if err != nil {
		t.Fatalf("NewGuest: %v", err)
	}
	go func() { _ = guest.Run(ctx) }()
	return host, guest
}

// eventually polls a cross-replica condition; the tick clocks free-run, so
// assertions go through engine reads, never digests.
func eventually(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", desc)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionsStayInLockstep(t *testing.T) {
	host, guest := startPair(t)

	if host.LocalID() != hostID || guest.LocalID() != guestID {
		t.Fatalf("identities: host %s guest %s", host.LocalID(), guest.LocalID())
	}

	// Host moves, then ends its turn; the guest replica follows.
	var unitID string
	host.Engine().Do(func(st *game.State) {
		st.EachUnit(func(u *game.Unit) {
			if u.Player == hostID {
				unitID = u.ID
			}
		})
	})
	res := host.Submit(game.Intent{Action: protocol.ActionMove, Move: &protocol.MoveData{
		UnitID: unitID, Path: []grid.Pos{{X: 1, Z: 1}, {X: 1, Z: 2}},
	}})
	if !res.OK {
		t.Fatalf("local move rejected: %s %s", res.Code, res.Message)
	}
	eventually(t, "guest to replay the move", func() bool {
		var pos grid.Pos
		guest.Engine().Do(func(st *game.State) { pos = st.Unit(unitID).Pos })
		return pos == (grid.Pos{X: 1, Z: 2})
	})

	if res := host.Submit(game.Intent{Action: protocol.ActionSkipTurn}); !res.OK {
		t.Fatalf("skip rejected: %s", res.Code)
	}
	eventually(t, "turn handoff on the guest", func() bool {
		var cur string
		guest.Engine().Do(func(st *game.State) { cur = st.CurrentTurn() })
		return cur == guestID
	})

	// Now the guest acts and the host replica follows, shop draw included.
	if res := guest.Submit(game.Intent{Action: protocol.ActionShopReroll}); !res.OK {
		t.Fatalf("guest reroll rejected: %s", res.Code)
	}
	var guestOffers []string
	guest.Engine().Do(func(st *game.State) {
		for _, o := range st.Player(guestID).Shop.Offers {
			guestOffers = append(guestOffers, o.Type)
		}
	})
	eventually(t, "host to replay the reroll with the same draws", func() bool {
		var hostOffers []string
		host.Engine().Do(func(st *game.State) {
			for _, o := range st.Player(guestID).Shop.Offers {
				hostOffers = append(hostOffers, o.Type)
			}
		})
		if len(hostOffers) != len(guestOffers) {
			return false
		}
		for i := range hostOffers {
			if hostOffers[i] != guestOffers[i] {
				return false
			}
		}
		return true
	})
}

func TestGuestBootstrapsFromHostSnapshot(t *testing.T) {
	host, guest := startPair(t)

	var hostUnits, guestUnits int
	host.Engine().Do(func(st *game.State) { st.EachUnit(func(*game.Unit) { hostUnits++ }) })
	guest.Engine().Do(func(st *game.State) { st.EachUnit(func(*game.Unit) { guestUnits++ }) })
	if hostUnits != 2 || guestUnits != 2 {
		t.Fatalf("units: host %d guest %d, want 2 each", hostUnits, guestUnits)
	}

	var cur string
	guest.Engine().Do(func(st *game.State) { cur = st.CurrentTurn() })
	if cur != hostID {
		t.Fatalf("restored current turn = %s, want %s", cur, hostID)
	}
}

// TestTamperedRemoteIntentTriggersResync injects an illegal move as if the
// guest's client were hacked: the host must reject it, flag the breach and
// push a fresh snapshot instead of applying it.
func TestTamperedRemoteIntentTriggersResync(t *testing.T) {
	hostWire, guestWire := newPipe()
	start := protocol.GameStartMsg{
		Type: protocol.TypeGameStart, ProtocolVersion: protocol.Version,
		RoomID: "room-2", Players: [2]string{hostID, guestID}, MapID: "test",
	}
	cats := loadCats(t)
	tun := tuning.Default()

	host, err := NewHost(hostWire, testLogger(t), start, 7, tun, cats, testMap())
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = host.Run(ctx) }()

	// Swallow the bootstrap snapshot; this test plays the guest's wire by
	// hand.
	select {
	case <-guestWire.in:
	case <-time.After(5 * time.Second):
		t.Fatal("no bootstrap snapshot")
	}

	// A guest unit ordered around on the host's turn.
	var guestUnit string
	host.Engine().Do(func(st *game.State) {
		st.EachUnit(func(u *game.Unit) {
			if u.Player == guestID {
				guestUnit = u.ID
			}
		})
	})
	tampered, err := protocol.EncodeAction("room-2", guestID, protocol.ActionMove,
		protocol.MoveData{UnitID: guestUnit, Path: []grid.Pos{{X: 1, Z: 6}}}, "")
	if err != nil {
		t.Fatalf("EncodeAction: %v", err)
	}
	if err := guestWire.SendAction(tampered); err != nil {
		t.Fatalf("SendAction: %v", err)
	}

	sawTrust, sawSync := false, false
	deadline := time.After(5 * time.Second)
	for !(sawTrust && sawSync) {
		select {
		case msg := <-guestWire.in:
			switch {
			case msg.Error != nil && msg.Error.Code == protocol.ErrTrust:
				sawTrust = true
			case msg.GameAction != nil && msg.GameAction.Action == protocol.ActionSyncState:
				sawSync = true
			}
		case <-deadline:
			t.Fatalf("trust=%v sync=%v after tampered intent", sawTrust, sawSync)
		}
	}

	// The host replica is untouched.
	host.Engine().Do(func(st *game.State) {
		if pos := st.Unit(guestUnit).Pos; pos != (grid.Pos{X: 1, Z: 7}) {
			t.Errorf("tampered move applied: guest unit at %s", pos)
		}
	})
}
