package gametest

import (
	"testing"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/game"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/sim/tuning"
)

// newReplayEngine builds an engine for StepOnce-driven replays. The returned
// state handle is safe to read here because no Run loop owns it.
func newReplayEngine(t *testing.T, seed int64, m *mapfile.Map) (*game.Engine, *game.State) {
	t.Helper()
	st, err := game.NewState(game.Config{
		Seed:    seed,
		Players: [2]string{PlayerA, PlayerB},
		Tuning:  tuning.Default(),
		Cats:    LoadCatalogs(t),
		Map:     m,
	})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return game.NewEngine(st, nil), st
}

// TestColdReplayMatchesLiveSession runs a session through an engine and then
// replays the recorded wire messages on a fresh engine, expecting the same
// digest after every step. This is the journal replay contract: actions plus
// the starting seed fully determine the battle.
func TestColdReplayMatchesLiveSession(t *testing.T) {
	arena := func() *mapfile.Map {
		return Arena(8,
			Place(PlayerA, "TROOPER", 1, 0),
			Place(PlayerB, "SNIPER", 1, 7),
		)
	}

	record := func(player, action string, data any) protocol.GameActionMsg {
		msg, err := protocol.EncodeAction("room-1", player, action, data, "")
		if err != nil {
			t.Fatalf("EncodeAction %s: %v", action, err)
		}
		return msg
	}
	script := []protocol.GameActionMsg{
		record(PlayerA, protocol.ActionShopReroll, nil),
		record(PlayerA, protocol.ActionShopBuy, protocol.ShopBuyData{Slot: 1}),
		record(PlayerA, protocol.ActionSkipTurn, nil),
		record(PlayerB, protocol.ActionShopReroll, nil),
		record(PlayerB, protocol.ActionSkipTurn, nil),
		record(PlayerA, protocol.ActionSkipTurn, nil),
		record(PlayerB, protocol.ActionSkipTurn, nil),
	}

	run := func(src game.Source) []string {
		eng, _ := newReplayEngine(t, 99, arena())
		digests := make([]string, 0, len(script))
		for _, msg := range script {
			in, err := game.DecodeIntent(msg, src)
			if err != nil {
				t.Fatalf("DecodeIntent %s: %v", msg.Action, err)
			}
			reply := make(chan game.Applied, 1)
			_, digest := eng.StepOnce([]game.Envelope{{Intent: in, Reply: reply}})
			if res := (<-reply).Result; !res.OK {
				t.Fatalf("%s %s rejected: %s %s", src, msg.Action, res.Code, res.Message)
			}
			digests = append(digests, digest)
		}
		return digests
	}

	live := run(game.SourceLocal)
	replayed := run(game.SourceRemote)
	for i := range live {
		if live[i] != replayed[i] {
			t.Fatalf("digest diverged at step %d (%s):\n live %s\ncold %s",
				i, script[i].Action, live[i], replayed[i])
		}
	}
}

// TestReplayRejectsTamperedAction proves the replay path validates: a
// recorded move whose path was inflated past the unit's budget is rejected
// and leaves the unit where it was.
func TestReplayRejectsTamperedAction(t *testing.T) {
	eng, st := newReplayEngine(t, 5, Arena(8,
		Place(PlayerA, "SNIPER", 0, 0),
		Place(PlayerB, "TROOPER", 0, 7),
	))

	var unitID string
	st.EachUnit(func(u *game.Unit) {
		if u.Player == PlayerA {
			unitID = u.ID
		}
	})

	// SNIPER moves 3; a five step path cannot have come from a legal client.
	tampered := protocol.MoveData{UnitID: unitID, Path: []grid.Pos{
		{X: 1, Z: 0}, {X: 2, Z: 0}, {X: 3, Z: 0}, {X: 4, Z: 0}, {X: 5, Z: 0},
	}}
	msg, err := protocol.EncodeAction("room-1", PlayerA, protocol.ActionMove, tampered, "")
	if err != nil {
		t.Fatalf("EncodeAction: %v", err)
	}
	in, err := game.DecodeIntent(msg, game.SourceRemote)
	if err != nil {
		t.Fatalf("DecodeIntent: %v", err)
	}

	reply := make(chan game.Applied, 1)
	eng.StepOnce([]game.Envelope{{Intent: in, Reply: reply}})
	got := <-reply
	if got.Result.OK {
		t.Fatal("tampered move accepted")
	}
	if got.Result.Code != protocol.ErrNoResource {
		t.Fatalf("code = %s, want %s", got.Result.Code, protocol.ErrNoResource)
	}
	if u := st.Unit(unitID); u.Pos != (grid.Pos{X: 0, Z: 0}) {
		t.Fatalf("unit moved to %s on a rejected intent", u.Pos)
	}
}
