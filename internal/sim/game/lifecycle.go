package game

import "neontactics.gg/internal/sim/grid"

// End-of-turn processing, in fixed order: auto-attacks drain to quiescence,
// effects tick, structure auras and talent passives apply, the round rolls
// over after the second player, control hands off, and a talent draft opens
// on the configured round milestones.

func (s *State) endTurn(p *Player) Result {
	// (a) Resolve queued attacks to quiescence before anything expires.
	s.flushPendingAttacks()
	s.autoAttackCycle()

	// (b) Effect durations and structure auras for the acting player.
	s.tickEffects(p)
	s.applyStructureAuras(p)

	// (c) Passive talent effects.
	s.applyTalentPassives(p)

	// (d) Round rollover after the second player's turn.
	newRound := false
	if p.ID == s.order[1] {
		s.round++
		newRound = true
		for _, id := range s.sortedUnitIDs() {
			if u := s.units[id]; u != nil && u.Alive() {
				u.Level++
			}
		}
		for _, pid := range s.order {
			pl := s.players[pid]
			s.processDeliveries(pl)
			income := s.tun.Economy.IncomePerRound + s.talentIncome(pl)
			pl.Credits += income
		}
		s.logf("", "round %d begins", s.round)
	}

	// (e) Handoff: flip the turn and zero the new player's counters.
	next := s.players[s.other(p.ID)]
	s.current = next.ID
	s.turn++
	for _, u := range s.units {
		if u.Player != next.ID {
			continue
		}
		u.Status.StepsTaken = 0
		u.Status.AttacksUsed = 0
		u.MovePath = nil
	}
	p.Mode = ModeNormal{}
	p.SelectedUnit = ""
	p.SelectedCard = ""
	s.invalidatePreviews()
	s.logf(next.ID, "turn passes to %s", next.ID)

	// (f) Draft milestone: every draft-period rounds.
	if newRound && s.round%s.tun.Draft.PeriodRounds == 0 {
		s.startDraft()
	}

	s.checkWin()
	return ok("turn ended")
}

// flushPendingAttacks resolves every scheduled attack immediately instead
// of waiting out the remaining delay; chained re-schedules resolve too.
func (s *State) flushPendingAttacks() {
	for {
		idx := -1
		for i, ev := range s.sched.pending {
			if ev.Kind == evAttackResolve {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		ev := s.sched.pending[idx]
		s.sched.pending = append(s.sched.pending[:idx], s.sched.pending[idx+1:]...)
		if u := s.units[ev.Unit]; u != nil {
			s.resolveAttack(u)
		}
	}
}

// autoAttackCycle re-engages every unit holding a persisted target until a
// full pass produces no attack. Deaths use the normal removal delay; the
// cycle keys off Alive so corpses stop participating immediately.
func (s *State) autoAttackCycle() {
	for {
		progress := false
		for _, id := range s.sortedUnitIDs() {
			u := s.units[id]
			if u == nil || !u.Alive() || u.AutoAttackTarget == "" {
				continue
			}
			if u.hasEffect(EffectFrozen) || u.Status.AttacksUsed >= u.Stats.MaxAttacks {
				continue
			}
			target := s.units[u.AutoAttackTarget]
			if target == nil || !target.Alive() || target.Player == u.Player {
				u.AutoAttackTarget = ""
				continue
			}
			if !s.CanAttack(u, target).OK {
				continue
			}
			u.faceToward(target.Pos)
			s.applyDamage(target, s.effectiveAttack(u), false)
			u.Status.AttacksUsed++
			progress = true
		}
		if !progress {
			return
		}
	}
}

// tickEffects decrements every effect on the acting player's units and
// removes those reaching zero. Durations never go negative.
func (s *State) tickEffects(p *Player) {
	for _, id := range s.sortedUnitIDs() {
		u := s.units[id]
		if u == nil || u.Player != p.ID {
			continue
		}
		kept := u.Effects[:0]
		for _, e := range u.Effects {
			e.Duration--
			if e.Duration > 0 {
				kept = append(kept, e)
				continue
			}
			s.logf(p.ID, "%s: %s wore off", u.Type, e.Name)
		}
		u.Effects = kept
	}
}

// applyStructureAuras feeds energy to friendly units adjacent to a charger
// structure.
func (s *State) applyStructureAuras(p *Player) {
	for _, id := range s.sortedUnitIDs() {
		structure := s.units[id]
		if structure == nil || structure.Player != p.ID || !structure.Alive() {
			continue
		}
		def := s.def(structure)
		if def.ChargerAura <= 0 {
			continue
		}
		for _, otherID := range s.sortedUnitIDs() {
			u := s.units[otherID]
			if u == nil || u.ID == structure.ID || u.Player != p.ID || !u.Alive() {
				continue
			}
			if u.Stats.MaxEnergy <= 0 {
				continue
			}
			if grid.FootprintChebyshev(structure.Pos, structure.Stats.Size, u.Pos, u.Stats.Size) != 1 {
				continue
			}
			u.Stats.Energy += def.ChargerAura
			if u.Stats.Energy > u.Stats.MaxEnergy {
				u.Stats.Energy = u.Stats.MaxEnergy
			}
		}
	}
}
