package game

import (
	"encoding/json"
	"fmt"

	"neontactics.gg/internal/protocol"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/grid"
)

// Source tags where an intent came from. Remote intents run through exactly
// the same validation as local ones; the tag exists for logging and so the
// replication session knows what to forward.
type Source int

const (
	SourceLocal Source = iota
	SourceRemote
)

func (src Source) String() string {
	if src == SourceRemote {
		return "remote"
	}
	return "local"
}

// Intent is one requested mutation. Exactly one payload pointer matching
// Action is set.
type Intent struct {
	Player string
	Source Source
	Action string

	Move        *protocol.MoveData
	Attack      *protocol.AttackData
	Teleport    *protocol.TeleportData
	PlaceUnit   *protocol.PlaceUnitData
	Ability     *protocol.AbilityData
	PlaceWall   *protocol.PlaceWallData
	ShopBuy     *protocol.ShopBuyData
	ShopRefund  *protocol.ShopRefundData
	TalentPick  *protocol.TalentPickData
	TerrainEdit *protocol.TerrainEditData
	MassRetreat *protocol.MassRetreatData
}

// DecodeIntent unpacks a game_action envelope into an Intent for replay.
func DecodeIntent(msg protocol.GameActionMsg, src Source) (Intent, error) {
	in := Intent{Player: msg.PlayerID, Source: src, Action: msg.Action}
	unpack := func(v any) error {
		if len(msg.Data) == 0 {
			return fmt.Errorf("%s: missing data", msg.Action)
		}
		if err := json.Unmarshal(msg.Data, v); err != nil {
			return fmt.Errorf("%s: %w", msg.Action, err)
		}
		return nil
	}
	var err error
	switch msg.Action {
	case protocol.ActionMove:
		in.Move = &protocol.MoveData{}
		err = unpack(in.Move)
	case protocol.ActionAttack:
		in.Attack = &protocol.AttackData{}
		err = unpack(in.Attack)
	case protocol.ActionTeleport:
		in.Teleport = &protocol.TeleportData{}
		err = unpack(in.Teleport)
	case protocol.ActionSkipTurn, protocol.ActionShopReroll:
		// No payload.
	case protocol.ActionPlaceUnit:
		in.PlaceUnit = &protocol.PlaceUnitData{}
		err = unpack(in.PlaceUnit)
	case protocol.ActionAbility:
		in.Ability = &protocol.AbilityData{}
		err = unpack(in.Ability)
	case protocol.ActionPlaceWall:
		in.PlaceWall = &protocol.PlaceWallData{}
		err = unpack(in.PlaceWall)
	case protocol.ActionShopBuy:
		in.ShopBuy = &protocol.ShopBuyData{}
		err = unpack(in.ShopBuy)
	case protocol.ActionShopRefund:
		in.ShopRefund = &protocol.ShopRefundData{}
		err = unpack(in.ShopRefund)
	case protocol.ActionTalentPick:
		in.TalentPick = &protocol.TalentPickData{}
		err = unpack(in.TalentPick)
	case protocol.ActionTerrainEdit:
		in.TerrainEdit = &protocol.TerrainEditData{}
		err = unpack(in.TerrainEdit)
	case protocol.ActionMassRetreat:
		in.MassRetreat = &protocol.MassRetreatData{}
		err = unpack(in.MassRetreat)
	default:
		err = fmt.Errorf("unknown action %q", msg.Action)
	}
	return in, err
}

// Payload returns the wire payload matching the intent's action.
func (in Intent) Payload() any {
	switch in.Action {
	case protocol.ActionMove:
		return in.Move
	case protocol.ActionAttack:
		return in.Attack
	case protocol.ActionTeleport:
		return in.Teleport
	case protocol.ActionPlaceUnit:
		return in.PlaceUnit
	case protocol.ActionAbility:
		return in.Ability
	case protocol.ActionPlaceWall:
		return in.PlaceWall
	case protocol.ActionShopBuy:
		return in.ShopBuy
	case protocol.ActionShopRefund:
		return in.ShopRefund
	case protocol.ActionTalentPick:
		return in.TalentPick
	case protocol.ActionTerrainEdit:
		return in.TerrainEdit
	case protocol.ActionMassRetreat:
		return in.MassRetreat
	}
	return nil
}

// Apply is the single validated mutation path: every intent, local or
// replayed from the peer, passes the same ownership, resource and legality
// checks. Failures leave the state unchanged apart from a log entry.
func (s *State) Apply(in Intent) Result {
	res := s.apply(in)
	if !res.OK {
		s.tracef("%s %s from %s rejected: %s %s", in.Source, in.Action, in.Player, res.Code, res.Message)
	}
	return res
}

func (s *State) apply(in Intent) Result {
	p := s.players[in.Player]
	if p == nil {
		return fail(protocol.ErrBadRequest, "unknown player "+in.Player)
	}
	if s.over {
		return fail(protocol.ErrGameOver, "battle is over")
	}

	// Terrain editing is dev tooling and bypasses turn order.
	if in.Action == protocol.ActionTerrainEdit {
		if in.TerrainEdit == nil {
			return fail(protocol.ErrBadRequest, "missing terrain edit data")
		}
		return s.applyTerrainEdit(p, *in.TerrainEdit)
	}

	// During a draft only picks are accepted.
	if s.draft != nil {
		if in.Action != protocol.ActionTalentPick {
			return fail(protocol.ErrMode, "talent draft in progress")
		}
		if in.TalentPick == nil {
			return fail(protocol.ErrBadRequest, "missing talent pick data")
		}
		return s.talentPick(p, in.TalentPick.TalentID)
	}
	if in.Action == protocol.ActionTalentPick {
		return fail(protocol.ErrMode, "no talent draft in progress")
	}

	// Turn ownership holds for every remaining action, replayed intents
	// included.
	if in.Player != s.current {
		return fail(protocol.ErrNotYourTurn, "not your turn")
	}

	switch in.Action {
	case protocol.ActionMove:
		if in.Move == nil {
			return fail(protocol.ErrBadRequest, "missing move data")
		}
		return s.applyMove(p, *in.Move)
	case protocol.ActionAttack:
		if in.Attack == nil {
			return fail(protocol.ErrBadRequest, "missing attack data")
		}
		return s.applyAttack(p, *in.Attack)
	case protocol.ActionTeleport:
		if in.Teleport == nil {
			return fail(protocol.ErrBadRequest, "missing teleport data")
		}
		return s.applyTeleport(p, *in.Teleport)
	case protocol.ActionSkipTurn:
		return s.endTurn(p)
	case protocol.ActionPlaceUnit:
		if in.PlaceUnit == nil {
			return fail(protocol.ErrBadRequest, "missing placement data")
		}
		return s.applyPlaceUnit(p, *in.PlaceUnit)
	case protocol.ActionAbility:
		if in.Ability == nil {
			return fail(protocol.ErrBadRequest, "missing ability data")
		}
		return s.applyAbility(p, *in.Ability)
	case protocol.ActionPlaceWall:
		if in.PlaceWall == nil {
			return fail(protocol.ErrBadRequest, "missing wall data")
		}
		return s.applyPlaceWall(p, *in.PlaceWall)
	case protocol.ActionShopBuy:
		if in.ShopBuy == nil {
			return fail(protocol.ErrBadRequest, "missing shop data")
		}
		return s.shopBuy(p, in.ShopBuy.Slot)
	case protocol.ActionShopRefund:
		if in.ShopRefund == nil {
			return fail(protocol.ErrBadRequest, "missing shop data")
		}
		return s.shopRefund(p, in.ShopRefund.Slot)
	case protocol.ActionShopReroll:
		return s.shopReroll(p)
	case protocol.ActionMassRetreat:
		if in.MassRetreat == nil {
			return fail(protocol.ErrBadRequest, "missing retreat data")
		}
		return s.applyMassRetreat(p, *in.MassRetreat)
	}
	return fail(protocol.ErrBadRequest, "unknown action "+in.Action)
}

// ownUnit resolves a unit id that must belong to the player and be able to
// act. A missing id is a structural inconsistency: rejected and logged,
// never a silent no-op.
func (s *State) ownUnit(p *Player, id string) (*Unit, Result) {
	u := s.units[id]
	if u == nil {
		s.logf(p.ID, "referenced missing unit %s", id)
		return nil, fail(protocol.ErrInvalidTarget, "no such unit "+id)
	}
	if u.Player != p.ID {
		return nil, fail(protocol.ErrInvalidTarget, "unit not yours")
	}
	if !u.Alive() {
		return nil, fail(protocol.ErrInvalidTarget, "unit is destroyed")
	}
	if u.hasEffect(EffectFrozen) {
		return nil, fail(protocol.ErrBlocked, "unit is frozen")
	}
	if u.Status.TeleportLocked {
		return nil, fail(protocol.ErrBlocked, "unit is rematerializing")
	}
	return u, ok("")
}

func (s *State) applyMove(p *Player, data protocol.MoveData) Result {
	u, res := s.ownUnit(p, data.UnitID)
	if !res.OK {
		return res
	}
	if u.AttackTarget != "" {
		return fail(protocol.ErrBlocked, "unit is mid-attack")
	}
	if len(data.Path) == 0 {
		return fail(protocol.ErrBadRequest, "empty path")
	}
	budget := u.Stats.Movement - u.Status.StepsTaken
	if len(data.Path) > budget {
		return fail(protocol.ErrNoResource, "not enough movement")
	}

	env := s.moveEnv(u)
	cur := u.Pos
	for i, next := range data.Path {
		d, okStep := stepDir(cur, next)
		if !okStep {
			return fail(protocol.ErrBadRequest, fmt.Sprintf("path step %d is not a cardinal step", i))
		}
		if !s.terrain.FootprintStepLegal(cur, u.Stats.Size, d) {
			return fail(protocol.ErrBlocked, fmt.Sprintf("illegal edge transition at step %d", i))
		}
		for _, c := range grid.Footprint(next, u.Stats.Size) {
			if !s.terrain.Bounds().Contains(c) {
				return fail(protocol.ErrBlocked, "path leaves the map")
			}
			if env.Blocked(c) {
				return fail(protocol.ErrBlocked, fmt.Sprintf("cell %s is blocked", c))
			}
			if _, okTile := s.terrain.At(c); !okTile {
				return fail(protocol.ErrBlocked, fmt.Sprintf("cell %s is void", c))
			}
		}
		cur = next
	}

	s.moveOccupancy(u, cur)
	u.Status.StepsTaken += len(data.Path)
	u.MovePath = append([]grid.Pos(nil), data.Path...)
	s.collectAt(u)
	s.recomputeFog()
	s.logf(p.ID, "%s moved to %s", u.Type, cur)
	return ok("moved")
}

func stepDir(from, to grid.Pos) (grid.Dir, bool) {
	for _, d := range grid.Dirs {
		if from.Step(d) == to {
			return d, true
		}
	}
	return 0, false
}

func (s *State) applyAttack(p *Player, data protocol.AttackData) Result {
	attacker, res := s.ownUnit(p, data.AttackerID)
	if !res.OK {
		return res
	}
	if attacker.AttackTarget != "" {
		return fail(protocol.ErrBlocked, "attack already committed")
	}
	if attacker.Status.AttacksUsed >= attacker.Stats.MaxAttacks {
		return fail(protocol.ErrNoResource, "no attacks left")
	}
	target := s.units[data.TargetID]
	if target == nil || !target.Alive() {
		s.logf(p.ID, "referenced missing unit %s", data.TargetID)
		return fail(protocol.ErrInvalidTarget, "no such target")
	}
	if target.Player == p.ID {
		return fail(protocol.ErrInvalidTarget, "cannot attack your own unit")
	}
	if res := s.CanAttack(attacker, target); !res.OK {
		return res
	}
	s.commitAttack(attacker, target)
	return ok("attack committed")
}

func (s *State) applyTeleport(p *Player, data protocol.TeleportData) Result {
	u, res := s.ownUnit(p, data.UnitID)
	if !res.OK {
		return res
	}
	def := s.def(u)
	if def.Ability != catalogs.AbilityTeleport {
		return fail(protocol.ErrInvalidTarget, "unit cannot teleport")
	}
	if u.Stats.Energy < def.AbilityCost {
		return fail(protocol.ErrNoResource, "not enough energy")
	}
	if grid.FootprintChebyshev(u.Pos, u.Stats.Size, data.To, u.Stats.Size) > def.AbilityRange {
		return fail(protocol.ErrOutOfRange, "teleport out of range")
	}
	if res := s.landingFree(p, data.To, u.Stats.Size, u.ID); !res.OK {
		return res
	}

	u.Stats.Energy -= def.AbilityCost
	s.moveOccupancy(u, data.To)
	u.Status.TeleportLocked = true
	s.sched.schedule(s.tick+s.tun.Ticks(s.tun.TeleportLockMs), evTeleportUnlock, u.ID)
	s.collectAt(u)
	s.recomputeFog()
	s.logf(p.ID, "%s teleported to %s", u.Type, data.To)
	return ok("teleported")
}

// landingFree validates a footprint destination for placement/teleport:
// revealed to the player, every cell present and unoccupied, one standing
// height. ignore names a unit whose current footprint does not block, for
// movers that vacate it in the same mutation.
func (s *State) landingFree(p *Player, anchor grid.Pos, size int, ignore string) Result {
	if !s.terrain.Bounds().ContainsFootprint(anchor, size) {
		return fail(protocol.ErrBlocked, "outside the map")
	}
	for _, c := range grid.Footprint(anchor, size) {
		if _, revealed := p.Revealed[c]; !revealed {
			return fail(protocol.ErrBlocked, "destination not revealed")
		}
		if _, okTile := s.terrain.At(c); !okTile {
			return fail(protocol.ErrBlocked, "destination tile is void")
		}
		if id, busy := s.occupancy[c]; busy && id != ignore {
			return fail(protocol.ErrBlocked, "destination occupied")
		}
	}
	if _, okHeight := s.terrain.FootprintHeight(anchor, size); !okHeight {
		return fail(protocol.ErrBlocked, "uneven destination")
	}
	return ok("")
}

func (s *State) applyPlaceUnit(p *Player, data protocol.PlaceUnitData) Result {
	var def catalogs.UnitDef
	switch {
	case data.CardID != "":
		i, card, found := p.card(data.CardID)
		if !found {
			s.logf(p.ID, "referenced missing card %s", data.CardID)
			return fail(protocol.ErrInvalidTarget, "no such card")
		}
		if card.Category != catalogs.CategoryUnit {
			return fail(protocol.ErrInvalidTarget, "card is not a unit")
		}
		def = s.cats.Units.ByType[card.Type]
		if res := s.placeNewUnit(p, def, data.Pos); !res.OK {
			return res
		}
		p.removeCard(i)
	case data.UnitType != "":
		stockIdx := p.stockIndex(data.UnitType)
		if stockIdx < 0 {
			return fail(protocol.ErrInvalidTarget, "not in stock: "+data.UnitType)
		}
		def = s.cats.Units.ByType[data.UnitType]
		if res := s.placeNewUnit(p, def, data.Pos); !res.OK {
			return res
		}
		p.Shop.Stock = append(p.Shop.Stock[:stockIdx], p.Shop.Stock[stockIdx+1:]...)
	default:
		return fail(protocol.ErrBadRequest, "missing cardId or unitType")
	}
	s.logf(p.ID, "deployed %s at %s", def.Type, data.Pos)
	return ok("deployed " + def.Type)
}

// placeNewUnit validates the landing cell and spawns the unit. Deployment
// requires a landing zone owned by the player under the anchor.
func (s *State) placeNewUnit(p *Player, def catalogs.UnitDef, anchor grid.Pos) Result {
	if def.Type == "" {
		return fail(protocol.ErrInternal, "unit type missing from catalog")
	}
	owner, zoned := s.terrain.LandingZone(anchor)
	if !zoned || owner != p.ID {
		return fail(protocol.ErrBlocked, "not your landing zone")
	}
	if res := s.landingFree(p, anchor, maxInt(def.Size, 1), ""); !res.OK {
		return res
	}
	u := s.buildUnit(p.ID, def)
	u.Pos = anchor
	if err := s.insertUnit(u); err != nil {
		return fail(protocol.ErrBlocked, err.Error())
	}
	s.collectAt(u)
	s.recomputeFog()
	return ok("")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
