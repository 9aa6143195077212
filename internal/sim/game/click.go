package game

import (
	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/grid"
)

// The interaction state machine: one mode value governs what the player's
// next click means. Clicks resolve into intents and commit through Apply,
// so everything a click can do is also what a replayed intent can do.

// ClickTile interprets a tile click for the player. It returns the result
// plus the intents actually committed, which the replication session
// forwards to the peer. Dispatch order: terrain editing intercepts
// unconditionally, then turn/draft restrictions, then the active mode, and
// only in NORMAL mode does the click fall through to default semantics.
func (s *State) ClickTile(player string, pos grid.Pos) (Result, []Intent) {
	p := s.players[player]
	if p == nil {
		return fail(protocol.ErrBadRequest, "unknown player"), nil
	}

	// (1) Dev tooling intercepts everything.
	if mode, editing := p.Mode.(ModeTerrainEdit); editing {
		in := Intent{Player: player, Action: protocol.ActionTerrainEdit, TerrainEdit: &protocol.TerrainEditData{
			Tool:      mode.Brush.Tool,
			Pos:       pos,
			Brush:     mode.Brush.Size,
			TileType:  mode.Brush.TileType,
			Elevation: mode.Brush.Elevation,
			Rotation:  mode.Brush.Rotation,
			Zone:      mode.Brush.Zone,
		}}
		return s.commitClick(in)
	}

	// (2) Turn ownership and play restrictions.
	if s.over {
		return fail(protocol.ErrGameOver, "battle is over"), nil
	}
	if s.draft != nil {
		return fail(protocol.ErrMode, "talent draft in progress"), nil
	}
	if player != s.current {
		return fail(protocol.ErrNotYourTurn, "not your turn"), nil
	}

	// (3) Mode-specific handlers.
	switch mode := p.Mode.(type) {
	case ModeWallPlacement:
		in := Intent{Player: player, Action: protocol.ActionPlaceWall, PlaceWall: &protocol.PlaceWallData{
			UnitID: mode.SourceUnit, Pos: pos,
		}}
		res, committed := s.commitClick(in)
		if res.OK {
			mode.Remaining--
			if mode.Remaining <= 0 {
				p.Mode = ModeNormal{}
			} else {
				p.Mode = mode
			}
		}
		return res, committed
	case ModeAbilitySummon:
		in := s.abilityIntent(player, mode.SourceUnit, catalogs.AbilitySummon, pos)
		res, committed := s.commitClick(in)
		if res.OK {
			mode.Remaining--
			if mode.Remaining <= 0 {
				p.Mode = ModeNormal{}
			} else {
				p.Mode = mode
			}
		}
		return res, committed
	case ModeAbilityTeleport:
		in := Intent{Player: player, Action: protocol.ActionTeleport, Teleport: &protocol.TeleportData{
			UnitID: mode.SourceUnit, To: pos,
		}}
		return s.terminalClick(p, in)
	case ModeAbilityFreeze:
		return s.terminalClick(p, s.abilityIntent(player, mode.SourceUnit, catalogs.AbilityFreeze, pos))
	case ModeAbilityHeal:
		return s.terminalClick(p, s.abilityIntent(player, mode.SourceUnit, catalogs.AbilityHeal, pos))
	case ModeAbilityRestoreEnergy:
		return s.terminalClick(p, s.abilityIntent(player, mode.SourceUnit, catalogs.AbilityRestoreEnergy, pos))
	case ModeAbilityMindControl:
		return s.terminalClick(p, s.abilityIntent(player, mode.SourceUnit, catalogs.AbilityMindControl, pos))
	case ModeIonCannonTargeting:
		in := Intent{Player: player, Action: protocol.ActionAbility, Ability: &protocol.AbilityData{
			CardID: mode.CardID, Kind: catalogs.AbilityIonCannon, Target: pos,
		}}
		res, committed := s.terminalClick(p, in)
		if res.OK {
			p.SelectedCard = ""
		}
		return res, committed
	case ModeForwardBaseTargeting:
		in := Intent{Player: player, Action: protocol.ActionAbility, Ability: &protocol.AbilityData{
			CardID: mode.CardID, Kind: catalogs.AbilityForwardBase, Target: pos,
		}}
		res, committed := s.terminalClick(p, in)
		if res.OK {
			p.SelectedCard = ""
		}
		return res, committed
	case ModeMassRetreatTargeting:
		in := Intent{Player: player, Action: protocol.ActionMassRetreat, MassRetreat: &protocol.MassRetreatData{Target: pos}}
		return s.terminalClick(p, in)
	}

	// (4) NORMAL fallthrough: select, attack, move, or place.
	return s.normalClick(p, pos)
}

func (s *State) abilityIntent(player, unitID, kind string, target grid.Pos) Intent {
	return Intent{Player: player, Action: protocol.ActionAbility, Ability: &protocol.AbilityData{
		UnitID: unitID, Kind: kind, Target: target,
	}}
}

func (s *State) commitClick(in Intent) (Result, []Intent) {
	res := s.Apply(in)
	if !res.OK {
		return res, nil
	}
	return res, []Intent{in}
}

// terminalClick commits a targeting mode's final click; success returns the
// player to NORMAL.
func (s *State) terminalClick(p *Player, in Intent) (Result, []Intent) {
	res, committed := s.commitClick(in)
	if res.OK {
		p.Mode = ModeNormal{}
	}
	return res, committed
}

func (s *State) normalClick(p *Player, pos grid.Pos) (Result, []Intent) {
	clicked := s.UnitAt(pos)

	// Own unit: select it.
	if clicked != nil && clicked.Player == p.ID && clicked.Alive() {
		p.SelectedUnit = clicked.ID
		p.SelectedCard = ""
		return ok("selected " + clicked.Type), nil
	}

	// Enemy unit with one of ours selected: attack.
	if clicked != nil && clicked.Player != p.ID && p.SelectedUnit != "" {
		in := Intent{Player: p.ID, Action: protocol.ActionAttack, Attack: &protocol.AttackData{
			AttackerID: p.SelectedUnit, TargetID: clicked.ID,
		}}
		return s.commitClick(in)
	}

	// Selected card onto an empty tile: deploy.
	if p.SelectedCard != "" {
		in := Intent{Player: p.ID, Action: protocol.ActionPlaceUnit, PlaceUnit: &protocol.PlaceUnitData{
			CardID: p.SelectedCard, Pos: pos,
		}}
		res, committed := s.commitClick(in)
		if res.OK {
			p.SelectedCard = ""
		}
		return res, committed
	}

	// Selected unit onto an empty tile: commit the previewed move.
	if p.SelectedUnit != "" {
		route := s.PreviewMove(p.ID, p.SelectedUnit, pos)
		if len(route) == 0 {
			return fail(protocol.ErrBlocked, "unreachable"), nil
		}
		in := Intent{Player: p.ID, Action: protocol.ActionMove, Move: &protocol.MoveData{
			UnitID: p.SelectedUnit, Path: route,
		}}
		return s.commitClick(in)
	}

	return fail(protocol.ErrInvalidTarget, "nothing there"), nil
}

// ActivateAbility moves the player from NORMAL into the targeting mode of
// the unit's ability, after checking the unit can pay for at least one
// cast. Detonation has no target and commits immediately.
func (s *State) ActivateAbility(player, unitID string) (Result, []Intent) {
	p := s.players[player]
	if p == nil {
		return fail(protocol.ErrBadRequest, "unknown player"), nil
	}
	if s.over || s.draft != nil {
		return fail(protocol.ErrMode, "not available now"), nil
	}
	if player != s.current {
		return fail(protocol.ErrNotYourTurn, "not your turn"), nil
	}
	if _, isNormal := p.Mode.(ModeNormal); !isNormal {
		return fail(protocol.ErrMode, "finish or cancel the current action first"), nil
	}
	u, res := s.ownUnit(p, unitID)
	if !res.OK {
		return res, nil
	}
	def := s.def(u)
	if def.Ability == catalogs.AbilityNone {
		return fail(protocol.ErrInvalidTarget, "unit has no ability"), nil
	}
	if u.Stats.Energy < def.AbilityCost {
		return fail(protocol.ErrNoResource, "not enough energy"), nil
	}

	switch def.Ability {
	case catalogs.AbilityWall:
		p.Mode = ModeWallPlacement{SourceUnit: u.ID, Remaining: maxInt(def.AbilityCount, 1)}
	case catalogs.AbilitySummon:
		p.Mode = ModeAbilitySummon{SourceUnit: u.ID, Remaining: maxInt(def.AbilityCount, 1)}
	case catalogs.AbilityTeleport:
		p.Mode = ModeAbilityTeleport{SourceUnit: u.ID}
	case catalogs.AbilityFreeze:
		p.Mode = ModeAbilityFreeze{SourceUnit: u.ID}
	case catalogs.AbilityHeal:
		p.Mode = ModeAbilityHeal{SourceUnit: u.ID}
	case catalogs.AbilityRestoreEnergy:
		p.Mode = ModeAbilityRestoreEnergy{SourceUnit: u.ID}
	case catalogs.AbilityMindControl:
		p.Mode = ModeAbilityMindControl{SourceUnit: u.ID}
	case catalogs.AbilityDetonate:
		return s.commitClick(s.abilityIntent(player, u.ID, catalogs.AbilityDetonate, u.Pos))
	default:
		return fail(protocol.ErrInvalidTarget, "ability has no targeting mode"), nil
	}
	return ok("targeting " + def.Ability), nil
}

// ActivateCard selects a deck card. UNIT cards arm placement; ACTION cards
// open their targeting mode.
func (s *State) ActivateCard(player, cardID string) Result {
	p := s.players[player]
	if p == nil {
		return fail(protocol.ErrBadRequest, "unknown player")
	}
	if s.over || s.draft != nil {
		return fail(protocol.ErrMode, "not available now")
	}
	if player != s.current {
		return fail(protocol.ErrNotYourTurn, "not your turn")
	}
	_, card, found := p.card(cardID)
	if !found {
		return fail(protocol.ErrInvalidTarget, "no such card")
	}
	switch card.Category {
	case catalogs.CategoryUnit:
		p.SelectedCard = cardID
		p.SelectedUnit = ""
		return ok("selected " + card.Type)
	case catalogs.CategoryAction:
		def := s.cats.Units.ByType[card.Type]
		switch def.Ability {
		case catalogs.AbilityIonCannon:
			p.Mode = ModeIonCannonTargeting{CardID: cardID}
		case catalogs.AbilityForwardBase:
			p.Mode = ModeForwardBaseTargeting{CardID: cardID}
		default:
			return fail(protocol.ErrInvalidTarget, "card has no targeting mode")
		}
		p.SelectedCard = cardID
		return ok("targeting " + card.Type)
	}
	return fail(protocol.ErrInternal, "bad card category")
}

// EnterTerrainEdit arms the map editor brush; it works regardless of turn.
func (s *State) EnterTerrainEdit(player string, brush TerrainBrush) Result {
	p := s.players[player]
	if p == nil {
		return fail(protocol.ErrBadRequest, "unknown player")
	}
	p.Mode = ModeTerrainEdit{Brush: brush}
	return ok("terrain editing")
}

// EnterMassRetreat opens rally-point targeting.
func (s *State) EnterMassRetreat(player string) Result {
	p := s.players[player]
	if p == nil {
		return fail(protocol.ErrBadRequest, "unknown player")
	}
	if player != s.current {
		return fail(protocol.ErrNotYourTurn, "not your turn")
	}
	if _, isNormal := p.Mode.(ModeNormal); !isNormal {
		return fail(protocol.ErrMode, "finish or cancel the current action first")
	}
	p.Mode = ModeMassRetreatTargeting{}
	return ok("pick a rally point")
}

// Cancel returns the player to NORMAL mode. Nothing already committed is
// refunded; an in-progress multi-step placement simply stops accepting
// further segments.
func (s *State) Cancel(player string) Result {
	p := s.players[player]
	if p == nil {
		return fail(protocol.ErrBadRequest, "unknown player")
	}
	p.Mode = ModeNormal{}
	p.SelectedCard = ""
	return ok("canceled")
}

// PlayerMode exposes the active mode for the UI and tests.
func (s *State) PlayerMode(player string) Mode {
	p := s.players[player]
	if p == nil {
		return nil
	}
	return p.Mode
}
