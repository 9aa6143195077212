package game

import (
	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/path"
	"neontactics.gg/internal/sim/terrain"
)

// Ability commits. Targeting modes collect the click; by the time an
// ability intent reaches Apply it carries a concrete target and is
// validated and costed here, the same for local play and replay.

const frozenDuration = 2

func (s *State) applyAbility(p *Player, data protocol.AbilityData) Result {
	switch data.Kind {
	case catalogs.AbilityIonCannon, catalogs.AbilityForwardBase:
		return s.applyActionCard(p, data)
	}

	u, res := s.ownUnit(p, data.UnitID)
	if !res.OK {
		return res
	}
	def := s.def(u)
	if def.Ability != data.Kind {
		return fail(protocol.ErrInvalidTarget, "unit lacks ability "+data.Kind)
	}
	if u.Stats.Energy < def.AbilityCost {
		return fail(protocol.ErrNoResource, "not enough energy")
	}

	switch data.Kind {
	case catalogs.AbilityHeal:
		return s.castHeal(p, u, def, data.Target)
	case catalogs.AbilityRestoreEnergy:
		return s.castRestoreEnergy(p, u, def, data.Target)
	case catalogs.AbilityFreeze:
		return s.castFreeze(p, u, def, data.Target)
	case catalogs.AbilityMindControl:
		return s.castMindControl(p, u, def, data.Target)
	case catalogs.AbilitySummon:
		return s.castSummon(p, u, def, data.Target)
	case catalogs.AbilityTeleport:
		return s.applyTeleport(p, protocol.TeleportData{UnitID: u.ID, To: data.Target})
	case catalogs.AbilityDetonate:
		return s.castDetonate(p, u, def)
	}
	return fail(protocol.ErrBadRequest, "unknown ability "+data.Kind)
}

func (s *State) targetInRange(u *Unit, def catalogs.UnitDef, target grid.Pos) (*Unit, Result) {
	victim := s.UnitAt(target)
	if victim == nil || !victim.Alive() {
		return nil, fail(protocol.ErrInvalidTarget, "no unit there")
	}
	if grid.FootprintChebyshev(u.Pos, u.Stats.Size, victim.Pos, victim.Stats.Size) > def.AbilityRange {
		return nil, fail(protocol.ErrOutOfRange, "target out of range")
	}
	return victim, ok("")
}

func (s *State) castHeal(p *Player, u *Unit, def catalogs.UnitDef, target grid.Pos) Result {
	victim, res := s.targetInRange(u, def, target)
	if !res.OK {
		return res
	}
	if victim.Player != p.ID {
		return fail(protocol.ErrInvalidTarget, "can only heal your own units")
	}
	if victim.Stats.HP >= victim.Stats.MaxHP {
		return fail(protocol.ErrInvalidTarget, "target at full health")
	}
	u.Stats.Energy -= def.AbilityCost
	s.heal(victim, def.AbilityAmount)
	s.logf(p.ID, "%s healed %s for %d", u.Type, victim.Type, def.AbilityAmount)
	return ok("healed")
}

func (s *State) castRestoreEnergy(p *Player, u *Unit, def catalogs.UnitDef, target grid.Pos) Result {
	victim, res := s.targetInRange(u, def, target)
	if !res.OK {
		return res
	}
	if victim.Player != p.ID {
		return fail(protocol.ErrInvalidTarget, "can only restore your own units")
	}
	if victim.Stats.MaxEnergy <= 0 {
		return fail(protocol.ErrInvalidTarget, "target has no energy pool")
	}
	u.Stats.Energy -= def.AbilityCost
	victim.Stats.Energy += def.AbilityAmount
	if victim.Stats.Energy > victim.Stats.MaxEnergy {
		victim.Stats.Energy = victim.Stats.MaxEnergy
	}
	s.logf(p.ID, "%s restored %d energy to %s", u.Type, def.AbilityAmount, victim.Type)
	return ok("restored")
}

func (s *State) castFreeze(p *Player, u *Unit, def catalogs.UnitDef, target grid.Pos) Result {
	victim, res := s.targetInRange(u, def, target)
	if !res.OK {
		return res
	}
	if victim.Player == p.ID {
		return fail(protocol.ErrInvalidTarget, "cannot freeze your own unit")
	}
	if victim.hasEffect(EffectFrozen) {
		return fail(protocol.ErrInvalidTarget, "already frozen")
	}
	u.Stats.Energy -= def.AbilityCost
	victim.Effects = append(victim.Effects, Effect{
		Name:        EffectFrozen,
		Description: "Cannot move, attack or cast",
		Icon:        "frozen",
		Duration:    frozenDuration,
		MaxDuration: frozenDuration,
	})
	// A frozen unit loses any committed or persisted attack.
	victim.AttackTarget = ""
	victim.AutoAttackTarget = ""
	s.sched.cancelUnitKind(victim.ID, evAttackResolve)
	s.logf(p.ID, "%s froze %s", u.Type, victim.Type)
	return ok("frozen")
}

func (s *State) castMindControl(p *Player, u *Unit, def catalogs.UnitDef, target grid.Pos) Result {
	victim, res := s.targetInRange(u, def, target)
	if !res.OK {
		return res
	}
	if victim.Player == p.ID {
		return fail(protocol.ErrInvalidTarget, "already yours")
	}
	if u.Status.MindControlTarget != "" {
		return fail(protocol.ErrBlocked, "already controlling a unit")
	}
	if victim.Status.OriginalPlayer != "" {
		return fail(protocol.ErrInvalidTarget, "target is already controlled")
	}
	u.Stats.Energy -= def.AbilityCost
	// The pairing is set together and only ever cleared together.
	u.Status.MindControlTarget = victim.ID
	victim.Status.OriginalPlayer = victim.Player
	victim.Player = p.ID
	victim.AttackTarget = ""
	victim.AutoAttackTarget = ""
	s.sched.cancelUnitKind(victim.ID, evAttackResolve)
	s.recomputeFog()
	s.logf(p.ID, "%s seized control of %s", u.Type, victim.Type)
	return ok("controlled")
}

func (s *State) castSummon(p *Player, u *Unit, def catalogs.UnitDef, target grid.Pos) Result {
	summonDef, okDef := s.cats.Units.ByType[def.SummonType]
	if !okDef {
		return fail(protocol.ErrInternal, "summon type missing from catalog")
	}
	if grid.FootprintChebyshev(u.Pos, u.Stats.Size, target, summonDef.Size) > def.AbilityRange {
		return fail(protocol.ErrOutOfRange, "summon target out of range")
	}
	if res := s.landingFree(p, target, summonDef.Size, ""); !res.OK {
		return res
	}
	u.Stats.Energy -= def.AbilityCost
	spawned := s.buildUnit(p.ID, summonDef)
	spawned.Pos = target
	if err := s.insertUnit(spawned); err != nil {
		// landingFree vouched for the cells; a failure here is a bug.
		return fail(protocol.ErrInternal, err.Error())
	}
	s.recomputeFog()
	s.logf(p.ID, "%s summoned %s at %s", u.Type, summonDef.Type, target)
	return ok("summoned")
}

func (s *State) castDetonate(p *Player, u *Unit, def catalogs.UnitDef) Result {
	u.Stats.Energy -= def.AbilityCost
	center := u.Pos
	s.logf(p.ID, "%s detonated", u.Type)
	// The bomber dies in its own blast; no exclusions.
	s.areaDamage(center, float64(def.AbilityRadius), def.AbilityAmount, nil)
	if u.Alive() {
		s.killUnit(u, true)
		s.checkWin()
	}
	return ok("detonated")
}

// applyActionCard consumes an ACTION card from the deck: ion cannon strike
// or forward base.
func (s *State) applyActionCard(p *Player, data protocol.AbilityData) Result {
	i, card, found := p.card(data.CardID)
	if !found {
		s.logf(p.ID, "referenced missing card %s", data.CardID)
		return fail(protocol.ErrInvalidTarget, "no such card")
	}
	def := s.cats.Units.ByType[card.Type]
	if def.Ability != data.Kind {
		return fail(protocol.ErrInvalidTarget, "card does not provide "+data.Kind)
	}
	if !s.Revealed(p.ID, data.Target) {
		return fail(protocol.ErrBlocked, "target not revealed")
	}

	switch data.Kind {
	case catalogs.AbilityIonCannon:
		p.removeCard(i)
		s.logf(p.ID, "ion cannon strike at %s", data.Target)
		s.areaDamage(data.Target, float64(def.AbilityRadius), def.AbilityAmount, nil)
		return ok("ion cannon fired")
	case catalogs.AbilityForwardBase:
		res := s.paintLandingZone(p, data.Target, def.AbilityRadius)
		if !res.OK {
			return res
		}
		p.removeCard(i)
		s.logf(p.ID, "forward base established at %s", data.Target)
		return ok("forward base placed")
	}
	return fail(protocol.ErrBadRequest, "unknown action card "+data.Kind)
}

// paintLandingZone tags revealed tiles around the center as the player's
// deployment zone.
func (s *State) paintLandingZone(p *Player, center grid.Pos, radius int) Result {
	painted := 0
	for z := center.Z - radius; z <= center.Z+radius; z++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			c := grid.Pos{X: x, Z: z}
			t, okTile := s.terrain.At(c)
			if !okTile || !s.Revealed(p.ID, c) {
				continue
			}
			t.LandingZone = p.ID
			s.terrain.Set(c, t)
			painted++
		}
	}
	if painted == 0 {
		return fail(protocol.ErrBlocked, "no revealed tiles to claim")
	}
	return ok("")
}

func (s *State) applyPlaceWall(p *Player, data protocol.PlaceWallData) Result {
	u, res := s.ownUnit(p, data.UnitID)
	if !res.OK {
		return res
	}
	def := s.def(u)
	if def.Ability != catalogs.AbilityWall {
		return fail(protocol.ErrInvalidTarget, "unit cannot build walls")
	}
	if u.Stats.Energy < def.AbilityCost {
		return fail(protocol.ErrNoResource, "not enough energy")
	}
	wallDef, okDef := s.cats.Units.ByType["WALL"]
	if !okDef {
		return fail(protocol.ErrInternal, "wall type missing from catalog")
	}
	if grid.FootprintChebyshev(u.Pos, u.Stats.Size, data.Pos, wallDef.Size) > def.AbilityRange {
		return fail(protocol.ErrOutOfRange, "wall out of reach")
	}
	if res := s.landingFree(p, data.Pos, wallDef.Size, ""); !res.OK {
		return res
	}
	u.Stats.Energy -= def.AbilityCost
	wall := s.buildUnit(p.ID, wallDef)
	wall.Pos = data.Pos
	if err := s.insertUnit(wall); err != nil {
		return fail(protocol.ErrInternal, err.Error())
	}
	s.recomputeFog()
	s.logf(p.ID, "%s raised a wall at %s", u.Type, data.Pos)
	return ok("wall placed")
}

// applyMassRetreat routes every mobile unit of the player toward the rally
// point, each spending its remaining movement along its own shortest path.
func (s *State) applyMassRetreat(p *Player, data protocol.MassRetreatData) Result {
	if !s.Revealed(p.ID, data.Target) {
		return fail(protocol.ErrBlocked, "rally point not revealed")
	}
	moved := 0
	for _, id := range s.sortedUnitIDs() {
		u := s.units[id]
		if u == nil || u.Player != p.ID || !u.Alive() {
			continue
		}
		if s.def(u).Structure || u.hasEffect(EffectFrozen) || u.Status.TeleportLocked || u.AttackTarget != "" {
			continue
		}
		budget := u.Stats.Movement - u.Status.StepsTaken
		if budget <= 0 {
			continue
		}
		route := s.routeToward(u, data.Target)
		if len(route) == 0 {
			continue
		}
		if len(route) > budget {
			route = route[:budget]
		}
		s.moveOccupancy(u, route[len(route)-1])
		u.Status.StepsTaken += len(route)
		u.MovePath = append([]grid.Pos(nil), route...)
		s.collectAt(u)
		moved++
	}
	if moved == 0 {
		return fail(protocol.ErrBlocked, "no unit could move")
	}
	s.recomputeFog()
	s.logf(p.ID, "mass retreat toward %s (%d units)", data.Target, moved)
	return ok("retreating")
}

func (s *State) applyTerrainEdit(p *Player, data protocol.TerrainEditData) Result {
	brush := data.Brush
	if brush < 1 {
		brush = 1
	}
	edited := 0
	for _, c := range grid.Footprint(data.Pos, brush) {
		if !s.terrain.Bounds().Contains(c) {
			continue
		}
		switch data.Tool {
		case "SET_TILE":
			typ, err := terrain.ParseTileType(data.TileType)
			if err != nil {
				return fail(protocol.ErrBadRequest, err.Error())
			}
			existing, _ := s.terrain.At(c)
			s.terrain.Set(c, terrain.Tile{
				Type:        typ,
				Elevation:   data.Elevation,
				Rotation:    ((data.Rotation % 4) + 4) % 4,
				LandingZone: existing.LandingZone,
			})
			edited++
		case "DELETE_TILE":
			if _, busy := s.occupancy[c]; busy {
				// Never pull the ground out from under a unit.
				continue
			}
			s.terrain.Delete(c)
			s.forgetTile(c)
			delete(s.collectibles, c)
			edited++
		case "SET_ZONE":
			t, okTile := s.terrain.At(c)
			if !okTile {
				continue
			}
			t.LandingZone = data.Zone
			s.terrain.Set(c, t)
			edited++
		case "CLEAR_ZONE":
			t, okTile := s.terrain.At(c)
			if !okTile {
				continue
			}
			t.LandingZone = ""
			s.terrain.Set(c, t)
			edited++
		default:
			return fail(protocol.ErrBadRequest, "unknown terrain tool "+data.Tool)
		}
	}
	if edited == 0 {
		return fail(protocol.ErrBlocked, "nothing edited")
	}
	s.invalidatePreviews()
	s.logf(p.ID, "terrain edit %s at %s (%d tiles)", data.Tool, data.Pos, edited)
	return ok("edited")
}

// routeToward finds a path from the unit to the rally point, falling back
// to the nearest reachable cell in expanding rings around it so units pile
// up next to an occupied target instead of standing still.
func (s *State) routeToward(u *Unit, target grid.Pos) []grid.Pos {
	env := s.moveEnv(u)
	if route := path.Find(env, u.Pos, target, u.Stats.Size); route != nil {
		return route
	}
	for ring := 1; ring <= 3; ring++ {
		var best []grid.Pos
		for dz := -ring; dz <= ring; dz++ {
			for dx := -ring; dx <= ring; dx++ {
				if maxInt(absI(dx), absI(dz)) != ring {
					continue
				}
				goal := grid.Pos{X: target.X + dx, Z: target.Z + dz}
				route := path.Find(env, u.Pos, goal, u.Stats.Size)
				if route == nil {
					continue
				}
				if best == nil || len(route) < len(best) {
					best = route
				}
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}
