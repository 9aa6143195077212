package game

import (
	"neontactics.gg/internal/sim/grid"
)

// Fog of war: each player's revealed set is the union of everything their
// units have ever seen. Reveal sets only grow during normal play; the sole
// legal shrink is explicit tile deletion in the map editor. A full rescan
// per mutation is fine at battle scale.

// recomputeFog reveals every in-bounds tile within vision radius of any of
// the player's living units.
func (s *State) recomputeFog() {
	r := s.tun.VisionRadius
	for _, p := range s.players {
		for _, u := range s.units {
			if u.Player != p.ID || !u.Alive() {
				continue
			}
			s.revealAround(p, u, r)
		}
	}
}

func (s *State) revealAround(p *Player, u *Unit, radius int) {
	cx, cz := grid.Center(u.Pos, u.Stats.Size)
	lo := u.Pos.Add(grid.Pos{X: -radius, Z: -radius})
	hi := grid.Pos{X: u.Pos.X + u.Stats.Size - 1 + radius, Z: u.Pos.Z + u.Stats.Size - 1 + radius}
	rsq := float64(radius) * float64(radius)
	for z := lo.Z; z <= hi.Z; z++ {
		for x := lo.X; x <= hi.X; x++ {
			c := grid.Pos{X: x, Z: z}
			if !s.terrain.Bounds().Contains(c) {
				continue
			}
			dx := float64(x) - cx
			dz := float64(z) - cz
			if dx*dx+dz*dz > rsq {
				continue
			}
			p.Revealed[c] = struct{}{}
		}
	}
}

// forgetTile is the explicit-deletion shrink: the coordinate disappears
// from every player's revealed set together with its tile.
func (s *State) forgetTile(c grid.Pos) {
	for _, p := range s.players {
		delete(p.Revealed, c)
	}
}

// RevealedCount reports the size of a player's revealed set; fog
// monotonicity tests watch it.
func (s *State) RevealedCount(player string) int {
	p := s.players[player]
	if p == nil {
		return 0
	}
	return len(p.Revealed)
}

// Revealed reports whether the player has revealed the coordinate.
func (s *State) Revealed(player string, c grid.Pos) bool {
	p := s.players[player]
	if p == nil {
		return false
	}
	_, okCell := p.Revealed[c]
	return okCell
}
