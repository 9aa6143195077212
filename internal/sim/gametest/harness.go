// Package gametest drives two battle replicas through exported APIs only,
// the way the replication layer does in production: every local intent is
// re-applied on the peer replica and the state digests are compared after
// each step. Tests living here cannot reach into game internals, which
// keeps them honest about the public surface.
package gametest

import (
	"testing"

	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/game"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/sim/terrain"
	"neontactics.gg/internal/sim/tuning"
)

const (
	PlayerA = "alice"
	PlayerB = "bob"
)

type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs

	// Local and Peer are the two replicas of the same battle.
	Local *game.State
	Peer  *game.State
}

func LoadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	return cats
}

// Arena builds a flat size x size map with a landing strip per player and
// the given unit placements.
func Arena(size int, units ...mapfile.UnitPlacement) *mapfile.Map {
	m := terrain.NewFlat(grid.Bounds{Width: size, Height: size})
	for x := 0; x < size; x++ {
		a, _ := m.At(grid.Pos{X: x, Z: 0})
		a.LandingZone = PlayerA
		m.Set(grid.Pos{X: x, Z: 0}, a)
		b, _ := m.At(grid.Pos{X: x, Z: size - 1})
		b.LandingZone = PlayerB
		m.Set(grid.Pos{X: x, Z: size - 1}, b)
	}
	return &mapfile.Map{Terrain: m, Units: units}
}

func Place(player, unitType string, x, z int) mapfile.UnitPlacement {
	return mapfile.UnitPlacement{PlayerID: player, Type: unitType, Position: grid.Pos{X: x, Z: z}}
}

func NewHarness(t *testing.T, seed int64, m *mapfile.Map) *Harness {
	t.Helper()
	cats := LoadCatalogs(t)
	build := func() *game.State {
		st, err := game.NewState(game.Config{
			Seed:    seed,
			Players: [2]string{PlayerA, PlayerB},
			Tuning:  tuning.Default(),
			Cats:    cats,
			Map:     m,
		})
		if err != nil {
			t.Fatalf("NewState: %v", err)
		}
		return st
	}
	h := &Harness{T: t, Cats: cats, Local: build(), Peer: build()}
	h.AssertConverged("initial")
	return h
}

// Play applies the intent on the local replica and replays it on the peer,
// insisting both replicas agree on the outcome and the resulting digest.
func (h *Harness) Play(in game.Intent) game.Result {
	h.T.Helper()
	local := in
	local.Source = game.SourceLocal
	remote := in
	remote.Source = game.SourceRemote

	r1 := h.Local.Apply(local)
	r2 := h.Peer.Apply(remote)
	if r1.OK != r2.OK || r1.Code != r2.Code {
		h.T.Fatalf("replicas disagree on %s: %+v vs %+v", in.Action, r1, r2)
	}
	h.AssertConverged(in.Action)
	return r1
}

// MustPlay is Play that fails the test on rejection.
func (h *Harness) MustPlay(in game.Intent) {
	h.T.Helper()
	if res := h.Play(in); !res.OK {
		h.T.Fatalf("%s for %s rejected: %s %s", in.Action, in.Player, res.Code, res.Message)
	}
}

// Advance moves both sim clocks forward together.
func (h *Harness) Advance(ticks int) {
	h.T.Helper()
	h.Local.AdvanceTicks(ticks)
	h.Peer.AdvanceTicks(ticks)
	h.AssertConverged("tick advance")
}

func (h *Harness) AssertConverged(context string) {
	h.T.Helper()
	if d1, d2 := h.Local.Digest(), h.Peer.Digest(); d1 != d2 {
		h.T.Fatalf("replicas diverged after %s:\n local %s\n  peer %s", context, d1, d2)
	}
}

// Unit finds the player's first unit of the type on the local replica.
func (h *Harness) Unit(player, unitType string) *game.Unit {
	h.T.Helper()
	var found *game.Unit
	h.Local.EachUnit(func(u *game.Unit) {
		if found == nil && u.Player == player && u.Type == unitType {
			found = u
		}
	})
	if found == nil {
		h.T.Fatalf("no %s unit for %s", unitType, player)
	}
	return found
}

// ResolveTicks is the attack resolve delay in ticks.
func (h *Harness) ResolveTicks() int {
	return int(h.Local.Tuning().Ticks(h.Local.Tuning().AttackResolveMs))
}
