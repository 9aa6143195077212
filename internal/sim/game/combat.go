package game

import (
	"math"
	"sort"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/grid"
)

// Combat is two-phase: a validated commit sets facing and the attack
// target, then a scheduled resolve applies damage after the tuned delay.
// Resolution re-schedules itself while the attacker has strikes left and a
// valid target, which is what chains multi-strike and auto-engagement.

// CanAttack checks attack legality only: footprint-Chebyshev distance
// within range and an unobstructed sampled line of sight.
func (s *State) CanAttack(attacker, target *Unit) Result {
	if attacker.Stats.Attack <= 0 {
		return fail(protocol.ErrInvalidTarget, "unit cannot attack")
	}
	dist := grid.FootprintChebyshev(attacker.Pos, attacker.Stats.Size, target.Pos, target.Stats.Size)
	if dist > attacker.Stats.Range {
		return fail(protocol.ErrOutOfRange, "target out of range")
	}
	if !s.lineOfSight(attacker, target) {
		return fail(protocol.ErrNoLOS, "no line of sight")
	}
	return ok("")
}

// lineOfSight samples the segment between footprint centers at fixed
// density. A sampled cell under any LOS-blocking unit's footprint, other
// than the attacker's or target's own, obstructs the shot.
func (s *State) lineOfSight(attacker, target *Unit) bool {
	ax, az := grid.Center(attacker.Pos, attacker.Stats.Size)
	bx, bz := grid.Center(target.Pos, target.Stats.Size)
	dist := math.Hypot(bx-ax, bz-az)
	if dist == 0 {
		return true
	}
	samples := int(dist*float64(s.tun.LOSSampleDiv)) + 1
	for i := 1; i < samples; i++ {
		t := float64(i) / float64(samples)
		cell := grid.Pos{
			X: int(math.Round(ax + (bx-ax)*t)),
			Z: int(math.Round(az + (bz-az)*t)),
		}
		id, busy := s.occupancy[cell]
		if !busy || id == attacker.ID || id == target.ID {
			continue
		}
		if blocker := s.units[id]; blocker != nil && blocker.Stats.BlocksLOS {
			return false
		}
	}
	return true
}

// faceToward turns the unit toward a point; combat sets facing when an
// attack commits.
func (u *Unit) faceToward(p grid.Pos) {
	dx := p.X - u.Pos.X
	dz := p.Z - u.Pos.Z
	var d grid.Dir
	if absI(dx) >= absI(dz) {
		if dx >= 0 {
			d = grid.East
		} else {
			d = grid.West
		}
	} else {
		if dz >= 0 {
			d = grid.North
		} else {
			d = grid.South
		}
	}
	u.Rotation = int(d)
}

func absI(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// commitAttack starts the two-phase attack; validation already passed.
func (s *State) commitAttack(attacker, target *Unit) {
	attacker.faceToward(target.Pos)
	attacker.AttackTarget = target.ID
	attacker.AutoAttackTarget = target.ID
	s.sched.schedule(s.tick+s.tun.Ticks(s.tun.AttackResolveMs), evAttackResolve, attacker.ID)
	s.logf(attacker.Player, "%s attacks %s", attacker.Type, target.Type)
}

// resolveAttack fires when the commit delay elapses. The target may have
// died or moved since; resolution re-validates before applying damage.
func (s *State) resolveAttack(attacker *Unit) {
	targetID := attacker.AttackTarget
	attacker.AttackTarget = ""
	if !attacker.Alive() || attacker.hasEffect(EffectFrozen) {
		return
	}
	target := s.units[targetID]
	if target == nil || !target.Alive() {
		attacker.AutoAttackTarget = ""
		return
	}
	if !s.CanAttack(attacker, target).OK {
		return
	}

	s.applyDamage(target, s.effectiveAttack(attacker), false)
	attacker.Status.AttacksUsed++

	// Multi-strike: keep swinging while strikes remain and the target holds.
	if attacker.Status.AttacksUsed < attacker.Stats.MaxAttacks && target.Alive() {
		attacker.AttackTarget = target.ID
		s.sched.schedule(s.tick+s.tun.Ticks(s.tun.AttackResolveMs), evAttackResolve, attacker.ID)
	}
}

func (s *State) effectiveAttack(u *Unit) int {
	atk := u.Stats.Attack
	if p := s.players[u.Player]; p != nil {
		for _, id := range p.Talents {
			atk += s.cats.Talents.ByID[id].AttackBonus
		}
	}
	return atk
}

// applyDamage reduces hp, clamped at zero. immediate selects synchronous
// death removal (area damage cascades) over the scheduled corpse delay.
func (s *State) applyDamage(target *Unit, amount int, immediate bool) {
	if amount <= 0 || !target.Alive() {
		return
	}
	if target.hasEffect(EffectInvulnerable) {
		return
	}
	target.Stats.HP -= amount
	if target.Stats.HP <= 0 {
		target.Stats.HP = 0
		s.killUnit(target, immediate)
	}
}

// Heal restores hp up to the max; exported for the test harness.
func (s *State) heal(target *Unit, amount int) {
	target.Stats.HP += amount
	if target.Stats.HP > target.Stats.MaxHP {
		target.Stats.HP = target.Stats.MaxHP
	}
}

// killUnit flags the corpse and voids everything the unit still had
// scheduled. Removal either cascades now (area damage) or waits out the
// death sequencing delay.
func (s *State) killUnit(u *Unit, immediate bool) {
	u.Status.Dead = true
	s.sched.cancelUnit(u.ID)
	s.logf(u.Player, "%s destroyed", u.Type)
	if immediate {
		s.removeDead(u)
		return
	}
	s.sched.schedule(s.tick+s.tun.Ticks(s.tun.DeathRemovalMs), evDeathRemoval, u.ID)
}

func (s *State) removeDead(u *Unit) {
	s.dropUnit(u)
	s.recomputeFog()
	s.checkWin()
}

// areaDamage hits every unit within a Euclidean radius of the center,
// skipping excluded ids and invulnerable units. Death removal cascades
// synchronously, then the win condition is checked once.
func (s *State) areaDamage(center grid.Pos, radius float64, amount int, exclude map[string]bool) {
	for _, id := range s.sortedUnitIDs() {
		u := s.units[id]
		if u == nil || !u.Alive() || exclude[id] {
			continue
		}
		cx, cz := grid.Center(u.Pos, u.Stats.Size)
		dx := cx - float64(center.X)
		dz := cz - float64(center.Z)
		if math.Hypot(dx, dz) > radius {
			continue
		}
		s.applyDamage(u, amount, true)
	}
	s.checkWin()
}

func (s *State) sortedUnitIDs() []string {
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// checkWin runs after any mutation able to eliminate a player's last unit
// or card. A player is out when they have no living units and nothing left
// to deploy.
func (s *State) checkWin() {
	if s.over {
		return
	}
	for _, id := range s.order {
		if s.playerEliminated(id) {
			s.over = true
			s.winner = s.other(id)
			s.logf(s.winner, "%s wins the battle", s.winner)
			return
		}
	}
}

func (s *State) playerEliminated(player string) bool {
	for _, u := range s.units {
		if u.Player == player && u.Alive() {
			return false
		}
	}
	p := s.players[player]
	for _, c := range p.Deck {
		if c.Category == catalogs.CategoryUnit {
			return false
		}
	}
	if len(p.Shop.Stock) > 0 || len(p.Shop.Pending) > 0 {
		return false
	}
	return true
}
