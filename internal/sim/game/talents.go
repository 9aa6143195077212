package game

import (
	"neontactics.gg/internal/protocol"
)

// Draft is the talent-draft sub-state entered when the round counter
// reaches a multiple of the draft period. Normal intents are suspended
// until every player has picked.
type Draft struct {
	Round  int
	Offers map[string][]string
	Picked map[string]bool
}

// DraftActive reports whether play is suspended on a talent draft.
func (s *State) DraftActive() bool { return s.draft != nil }

// DraftOffers returns the player's current draft choices, nil outside a
// draft.
func (s *State) DraftOffers(player string) []string {
	if s.draft == nil {
		return nil
	}
	return s.draft.Offers[player]
}

// startDraft draws the configured number of talents per player, in player
// order, from the shared RNG. Duplicates of already-owned talents are
// filtered by drawing without replacement from the remaining pool.
func (s *State) startDraft() {
	d := &Draft{
		Round:  s.round,
		Offers: make(map[string][]string, 2),
		Picked: make(map[string]bool, 2),
	}
	for _, id := range s.order {
		p := s.players[id]
		pool := make([]string, 0, len(s.cats.Talents.Order))
		for _, t := range s.cats.Talents.Order {
			if !p.hasTalent(t) {
				pool = append(pool, t)
			}
		}
		n := s.tun.Draft.Choices
		if n > len(pool) {
			n = len(pool)
		}
		offers := make([]string, 0, n)
		for i := 0; i < n; i++ {
			j := s.rng.Intn(len(pool))
			offers = append(offers, pool[j])
			pool = append(pool[:j], pool[j+1:]...)
		}
		if len(offers) == 0 {
			d.Picked[id] = true
		}
		d.Offers[id] = offers
	}
	if d.Picked[s.order[0]] && d.Picked[s.order[1]] {
		// Nothing left to draft for anyone.
		return
	}
	s.draft = d
	s.logf("", "talent draft: round %d", s.round)
}

func (s *State) talentPick(p *Player, talentID string) Result {
	if s.draft == nil {
		return fail(protocol.ErrMode, "no talent draft in progress")
	}
	if s.draft.Picked[p.ID] {
		return fail(protocol.ErrMode, "already picked")
	}
	found := false
	for _, t := range s.draft.Offers[p.ID] {
		if t == talentID {
			found = true
			break
		}
	}
	if !found {
		return fail(protocol.ErrInvalidTarget, "talent not offered")
	}
	p.Talents = append(p.Talents, talentID)
	s.draft.Picked[p.ID] = true
	s.logf(p.ID, "picked talent %s", s.cats.Talents.ByID[talentID].Name)

	if s.draft.Picked[s.order[0]] && s.draft.Picked[s.order[1]] {
		s.draft = nil
		s.logf("", "talent draft complete")
	}
	return ok("picked " + talentID)
}

// applyTalentPassives runs the acting player's passive talent effects at
// turn end: hp regen auras, energy regen, per-round income handled in the
// round rollover.
func (s *State) applyTalentPassives(p *Player) {
	hpRegen := 0
	energyRegen := 0
	for _, id := range p.Talents {
		def := s.cats.Talents.ByID[id]
		hpRegen += def.HPRegen
		energyRegen += def.EnergyRegen
	}
	if hpRegen == 0 && energyRegen == 0 {
		return
	}
	for _, id := range s.sortedUnitIDs() {
		u := s.units[id]
		if u == nil || u.Player != p.ID || !u.Alive() {
			continue
		}
		if hpRegen > 0 {
			s.heal(u, hpRegen)
		}
		if energyRegen > 0 && u.Stats.MaxEnergy > 0 {
			u.Stats.Energy += energyRegen
			if u.Stats.Energy > u.Stats.MaxEnergy {
				u.Stats.Energy = u.Stats.MaxEnergy
			}
		}
	}
}

func (s *State) talentIncome(p *Player) int {
	income := 0
	for _, id := range p.Talents {
		income += s.cats.Talents.ByID[id].Income
	}
	return income
}
