package game

import (
	"testing"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/tuning"
)

func TestTurnHandoffResetsCounters(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	))
	u := findUnit(t, s, alice, "TROOPER")

	mustApply(t, s, moveIntent(alice, u.ID, eastPath(u.Pos, 3)))
	skipTurn(t, s, alice)
	if s.CurrentTurn() != bob {
		t.Fatalf("current = %q, want %q", s.CurrentTurn(), bob)
	}
	if u.Status.StepsTaken != 3 {
		t.Fatalf("alice's counters reset too early")
	}

	mustReject(t, s, moveIntent(alice, u.ID, eastPath(u.Pos, 1)), protocol.ErrNotYourTurn)

	skipTurn(t, s, bob)
	if s.CurrentTurn() != alice {
		t.Fatalf("turn should return to alice")
	}
	if u.Status.StepsTaken != 0 {
		t.Fatalf("StepsTaken = %d after handoff, want 0", u.Status.StepsTaken)
	}
}

func TestRoundRolloverIncomeAndLevels(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	))
	u := findUnit(t, s, alice, "TROOPER")
	creditsBefore := s.Player(alice).Credits

	skipTurn(t, s, alice)
	if s.Round() != 1 {
		t.Fatalf("round rolled over after the first player's turn")
	}
	skipTurn(t, s, bob)
	if s.Round() != 2 {
		t.Fatalf("round = %d, want 2", s.Round())
	}
	if u.Level != 2 {
		t.Fatalf("level = %d, want 2", u.Level)
	}
	if want := creditsBefore + s.Tuning().Economy.IncomePerRound; s.Player(alice).Credits != want {
		t.Fatalf("credits = %d, want %d", s.Player(alice).Credits, want)
	}
}

func TestEffectTicksAtOwnersTurnEnd(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "CRYO", 2, 2),
		place(alice, "TROOPER", 2, 4),
		place(bob, "TROOPER", 4, 2),
		place(bob, "SNIPER", 9, 9),
	))
	cryo := findUnit(t, s, alice, "CRYO")
	victim := findUnit(t, s, bob, "TROOPER")

	mustApply(t, s, Intent{Player: alice, Action: protocol.ActionAbility, Ability: &protocol.AbilityData{
		UnitID: cryo.ID, Kind: "FREEZE", Target: victim.Pos,
	}})
	if !victim.hasEffect(EffectFrozen) {
		t.Fatalf("victim not frozen")
	}

	// The frozen unit cannot act on its own turn.
	skipTurn(t, s, alice)
	mustReject(t, s, moveIntent(bob, victim.ID, eastPath(victim.Pos, 1)), protocol.ErrBlocked)

	// Durations tick at the owner's turn end and expire exactly at zero.
	skipTurn(t, s, bob)
	if !victim.hasEffect(EffectFrozen) {
		t.Fatalf("effect expired a turn early")
	}
	skipTurn(t, s, alice)
	skipTurn(t, s, bob)
	if victim.hasEffect(EffectFrozen) {
		t.Fatalf("effect should have worn off")
	}

	skipTurn(t, s, alice)
	mustApply(t, s, moveIntent(bob, victim.ID, eastPath(victim.Pos, 1)))
}

func TestAutoAttackRunsAtTurnEnd(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TANK", 3, 2),
	))
	attacker := findUnit(t, s, alice, "TROOPER")
	tank := findUnit(t, s, bob, "TANK")

	mustApply(t, s, attackIntent(alice, attacker.ID, tank.ID))
	s.AdvanceTicks(resolveTicks(s))
	hpAfterFirst := tank.Stats.HP

	// The persisted target re-engages when alice's next turn ends, without
	// a fresh attack intent.
	skipTurn(t, s, alice)
	skipTurn(t, s, bob)
	skipTurn(t, s, alice)
	if tank.Stats.HP >= hpAfterFirst {
		t.Fatalf("auto-attack did not fire: hp %d -> %d", hpAfterFirst, tank.Stats.HP)
	}
}

func TestPendingAttackFlushesAtTurnEnd(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TANK", 3, 2),
	))
	attacker := findUnit(t, s, alice, "TROOPER")
	tank := findUnit(t, s, bob, "TANK")

	mustApply(t, s, attackIntent(alice, attacker.ID, tank.ID))
	// End the turn before the resolve delay elapses: the strike must land
	// anyway, not be lost.
	skipTurn(t, s, alice)
	if tank.Stats.HP != tank.Stats.MaxHP-s.effectiveAttack(attacker) {
		t.Fatalf("committed attack lost at turn end: hp = %d", tank.Stats.HP)
	}
}

func TestChargerAuraFeedsAdjacentUnits(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "CHARGER", 2, 2),
		place(alice, "MEDIC", 3, 2),
		place(bob, "TROOPER", 9, 9),
	))
	medic := findUnit(t, s, alice, "MEDIC")
	medic.Stats.Energy = 0

	skipTurn(t, s, alice)
	if medic.Stats.Energy != 2 {
		t.Fatalf("energy = %d, want 2 from the charger aura", medic.Stats.Energy)
	}
}

func TestDraftOpensAtRoundMilestone(t *testing.T) {
	tun := tuning.Default()
	tun.Draft.PeriodRounds = 2
	s := newTestStateTuned(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	), tun)

	skipTurn(t, s, alice)
	skipTurn(t, s, bob)
	if s.Round() != 2 || !s.DraftActive() {
		t.Fatalf("round = %d, draft = %v; want round 2 with an active draft", s.Round(), s.DraftActive())
	}

	// Everything except picks is suspended, for both players.
	u := findUnit(t, s, alice, "TROOPER")
	mustReject(t, s, moveIntent(alice, u.ID, eastPath(u.Pos, 1)), protocol.ErrMode)
	mustReject(t, s, Intent{Player: alice, Action: protocol.ActionSkipTurn}, protocol.ErrMode)

	offersA := s.DraftOffers(alice)
	offersB := s.DraftOffers(bob)
	if len(offersA) != tun.Draft.Choices || len(offersB) != tun.Draft.Choices {
		t.Fatalf("offers = %d/%d, want %d each", len(offersA), len(offersB), tun.Draft.Choices)
	}

	mustReject(t, s, Intent{Player: alice, Action: protocol.ActionTalentPick, TalentPick: &protocol.TalentPickData{TalentID: "NOT_OFFERED"}}, protocol.ErrInvalidTarget)

	mustApply(t, s, Intent{Player: alice, Action: protocol.ActionTalentPick, TalentPick: &protocol.TalentPickData{TalentID: offersA[0]}})
	if !s.DraftActive() {
		t.Fatalf("draft must stay open until every player picked")
	}
	mustApply(t, s, Intent{Player: bob, Action: protocol.ActionTalentPick, TalentPick: &protocol.TalentPickData{TalentID: offersB[0]}})
	if s.DraftActive() {
		t.Fatalf("draft should close after the last pick")
	}
	if !s.Player(alice).hasTalent(offersA[0]) {
		t.Fatalf("alice's pick not recorded")
	}
}

func TestDraftOffersExcludeOwnedTalents(t *testing.T) {
	tun := tuning.Default()
	tun.Draft.PeriodRounds = 2
	s := newTestStateTuned(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 9, 9),
	), tun)
	s.Player(alice).Talents = []string{"COMMERCE"}

	skipTurn(t, s, alice)
	skipTurn(t, s, bob)
	for _, id := range s.DraftOffers(alice) {
		if id == "COMMERCE" {
			t.Fatalf("draft offered a talent alice already owns")
		}
	}
}

func TestTalentPassives(t *testing.T) {
	s := newTestState(t, 1, flatArena(12,
		place(alice, "TROOPER", 2, 2),
		place(bob, "TROOPER", 3, 2),
	))
	s.Player(alice).Talents = []string{"REGENERATION", "WEAPON_LABS", "COMMERCE"}
	u := findUnit(t, s, alice, "TROOPER")
	target := findUnit(t, s, bob, "TROOPER")
	u.Stats.HP = 5

	// Attack bonus applies on resolution.
	mustApply(t, s, attackIntent(alice, u.ID, target.ID))
	s.AdvanceTicks(resolveTicks(s))
	if want := target.Stats.MaxHP - (u.Stats.Attack + 1); target.Stats.HP != want {
		t.Fatalf("hp = %d, want %d with the attack bonus", target.Stats.HP, want)
	}

	// HP regen at turn end, income at round rollover.
	credits := s.Player(alice).Credits
	skipTurn(t, s, alice)
	if u.Stats.HP != 6 {
		t.Fatalf("hp = %d, want 6 after regen", u.Stats.HP)
	}
	skipTurn(t, s, bob)
	if want := credits + s.Tuning().Economy.IncomePerRound + 2; s.Player(alice).Credits != want {
		t.Fatalf("credits = %d, want %d with trade routes", s.Player(alice).Credits, want)
	}
}

func TestMassRetreatMovesEveryEligibleUnit(t *testing.T) {
	s := newTestState(t, 1, flatArena(14,
		place(alice, "TROOPER", 2, 2),
		place(alice, "SNIPER", 4, 2),
		place(alice, "WALL", 6, 2),
		place(bob, "TROOPER", 11, 11),
	))
	trooper := findUnit(t, s, alice, "TROOPER")
	sniper := findUnit(t, s, alice, "SNIPER")
	wall := findUnit(t, s, alice, "WALL")

	mustApply(t, s, Intent{Player: alice, Action: protocol.ActionMassRetreat, MassRetreat: &protocol.MassRetreatData{
		Target: grid.Pos{X: 3, Z: 6},
	}})
	if trooper.Status.StepsTaken == 0 || sniper.Status.StepsTaken == 0 {
		t.Fatalf("mobile units should have moved: %d/%d steps", trooper.Status.StepsTaken, sniper.Status.StepsTaken)
	}
	if (wall.Pos != grid.Pos{X: 6, Z: 2}) {
		t.Fatalf("structures never retreat, wall moved to %s", wall.Pos)
	}
}
