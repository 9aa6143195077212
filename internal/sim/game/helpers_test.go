package game

import (
	"testing"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/sim/terrain"
	"neontactics.gg/internal/sim/tuning"
)

const (
	alice = "alice"
	bob   = "bob"
)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	return cats
}

// flatArena builds a size x size flat map with alice's landing zone along
// z=0 and bob's along z=size-1.
func flatArena(size int, units ...mapfile.UnitPlacement) *mapfile.Map {
	m := terrain.NewFlat(grid.Bounds{Width: size, Height: size})
	for x := 0; x < size; x++ {
		tileA, _ := m.At(grid.Pos{X: x, Z: 0})
		tileA.LandingZone = alice
		m.Set(grid.Pos{X: x, Z: 0}, tileA)

		tileB, _ := m.At(grid.Pos{X: x, Z: size - 1})
		tileB.LandingZone = bob
		m.Set(grid.Pos{X: x, Z: size - 1}, tileB)
	}
	return &mapfile.Map{Terrain: m, Units: units}
}

func place(player, unitType string, x, z int) mapfile.UnitPlacement {
	return mapfile.UnitPlacement{PlayerID: player, Type: unitType, Position: grid.Pos{X: x, Z: z}}
}

func newTestState(t *testing.T, seed int64, m *mapfile.Map) *State {
	t.Helper()
	return newTestStateTuned(t, seed, m, tuning.Default())
}

func newTestStateTuned(t *testing.T, seed int64, m *mapfile.Map, tun tuning.Tuning) *State {
	t.Helper()
	st, err := NewState(Config{
		Seed:    seed,
		Players: [2]string{alice, bob},
		Tuning:  tun,
		Cats:    loadCats(t),
		Map:     m,
	})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return st
}

// findUnit locates the player's first unit of the given type, in id order.
func findUnit(t *testing.T, s *State, player, unitType string) *Unit {
	t.Helper()
	for _, id := range s.sortedUnitIDs() {
		u := s.units[id]
		if u.Player == player && u.Type == unitType {
			return u
		}
	}
	t.Fatalf("no %s unit for %s", unitType, player)
	return nil
}

func mustApply(t *testing.T, s *State, in Intent) {
	t.Helper()
	if res := s.Apply(in); !res.OK {
		t.Fatalf("apply %s for %s: %s %s", in.Action, in.Player, res.Code, res.Message)
	}
}

func mustReject(t *testing.T, s *State, in Intent, wantCode string) {
	t.Helper()
	res := s.Apply(in)
	if res.OK {
		t.Fatalf("apply %s for %s: expected rejection %s, got ok", in.Action, in.Player, wantCode)
	}
	if res.Code != wantCode {
		t.Fatalf("apply %s for %s: code = %s, want %s (%s)", in.Action, in.Player, res.Code, wantCode, res.Message)
	}
}

func skipTurn(t *testing.T, s *State, player string) {
	t.Helper()
	mustApply(t, s, Intent{Player: player, Action: protocol.ActionSkipTurn})
}

// eastPath builds n single-cell steps east of from.
func eastPath(from grid.Pos, n int) []grid.Pos {
	out := make([]grid.Pos, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, grid.Pos{X: from.X + i, Z: from.Z})
	}
	return out
}
