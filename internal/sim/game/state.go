package game

import (
	"fmt"
	"math/rand"

	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/sim/path"
	"neontactics.gg/internal/sim/terrain"
	"neontactics.gg/internal/sim/tuning"
)

type Config struct {
	Seed    int64
	Players [2]string
	Tuning  tuning.Tuning
	Cats    *catalogs.Catalogs
	Map     *mapfile.Map
}

// State is the canonical battle aggregate. It is never shared across
// goroutines: the engine goroutine owns it exclusively and the replication
// layer mutates it only through Apply, the same path local input uses.
type State struct {
	cfg  Config
	tun  tuning.Tuning
	cats *catalogs.Catalogs
	rng  *rand.Rand

	tick  uint64
	turn  int
	round int
	// current is the player whose turn it is; exactly one at any time.
	current string
	order   [2]string
	players map[string]*Player

	units     map[string]*Unit
	occupancy map[grid.Pos]string
	terrain   *terrain.Model

	collectibles map[grid.Pos]Collectible

	sched scheduler
	draft *Draft

	winner string
	over   bool

	log   []LogEntry
	trace []string

	nextUnit uint64
	nextCard uint64

	previews map[string]*path.Previewer
}

func NewState(cfg Config) (*State, error) {
	if cfg.Cats == nil {
		return nil, fmt.Errorf("game: nil catalogs")
	}
	if cfg.Map == nil {
		return nil, fmt.Errorf("game: nil map")
	}
	if cfg.Players[0] == "" || cfg.Players[1] == "" || cfg.Players[0] == cfg.Players[1] {
		return nil, fmt.Errorf("game: need two distinct player ids")
	}
	tun := cfg.Tuning
	if tun.TickRateHz == 0 {
		tun = tuning.Default()
	}

	s := &State{
		cfg:          cfg,
		tun:          tun,
		cats:         cfg.Cats,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		round:        1,
		current:      cfg.Players[0],
		order:        cfg.Players,
		players:      make(map[string]*Player, 2),
		units:        make(map[string]*Unit),
		occupancy:    make(map[grid.Pos]string),
		terrain:      cfg.Map.Terrain.Clone(),
		collectibles: make(map[grid.Pos]Collectible),
		previews:     make(map[string]*path.Previewer),
	}

	for _, id := range cfg.Players {
		p := &Player{
			ID:       id,
			Credits:  tun.Economy.StartingCredits,
			Revealed: make(map[grid.Pos]struct{}),
			Mode:     ModeNormal{},
			Unlocked: append([]string(nil), s.cats.Units.StartingDeck...),
		}
		for _, typ := range s.cats.Units.StartingDeck {
			def, ok := s.cats.Units.ByType[typ]
			if !ok {
				return nil, fmt.Errorf("game: starting deck type %q not in catalog", typ)
			}
			p.Deck = append(p.Deck, s.newCard(def))
		}
		s.players[id] = p
		s.rollOffers(p)
		s.previews[id] = &path.Previewer{}
	}

	for _, placement := range cfg.Map.Units {
		def, okDef := s.cats.Units.ByType[placement.Type]
		if !okDef {
			return nil, fmt.Errorf("game: map unit type %q not in catalog", placement.Type)
		}
		if _, okPlayer := s.players[placement.PlayerID]; !okPlayer {
			return nil, fmt.Errorf("game: map unit %q owned by unknown player %q", placement.ID, placement.PlayerID)
		}
		u := s.buildUnit(placement.PlayerID, def)
		u.Pos = placement.Position
		u.Rotation = placement.Rotation
		if placement.Level > 0 {
			u.Level = placement.Level
		}
		if err := s.insertUnit(u); err != nil {
			return nil, fmt.Errorf("game: map unit %q: %w", placement.ID, err)
		}
	}
	for _, c := range cfg.Map.Collectibles {
		s.collectibles[c.Position] = Collectible{Type: c.Type, Amount: c.Amount}
	}

	s.recomputeFog()
	return s, nil
}

func (s *State) Tick() uint64        { return s.tick }
func (s *State) Turn() int           { return s.turn }
func (s *State) Round() int          { return s.round }
func (s *State) CurrentTurn() string { return s.current }
func (s *State) Winner() string      { return s.winner }
func (s *State) Over() bool          { return s.over }
func (s *State) Players() [2]string  { return s.order }

func (s *State) Tuning() tuning.Tuning { return s.tun }

func (s *State) Player(id string) *Player { return s.players[id] }

func (s *State) Unit(id string) *Unit { return s.units[id] }

// EachUnit visits every unit in deterministic id order.
func (s *State) EachUnit(fn func(*Unit)) {
	for _, id := range s.sortedUnitIDs() {
		fn(s.units[id])
	}
}

func (s *State) Terrain() *terrain.Model { return s.terrain }

// UnitAt returns the unit whose footprint covers p. A destroyed unit keeps
// its tiles until its removal timer fires, so the result may be dead.
func (s *State) UnitAt(p grid.Pos) *Unit {
	id, okCell := s.occupancy[p]
	if !okCell {
		return nil
	}
	return s.units[id]
}

func (s *State) Log() []LogEntry { return s.log }

func (s *State) other(player string) string {
	if player == s.order[0] {
		return s.order[1]
	}
	return s.order[0]
}

func (s *State) logf(player, format string, args ...any) {
	s.log = append(s.log, LogEntry{
		Turn:   s.turn,
		Round:  s.round,
		Player: player,
		Text:   fmt.Sprintf(format, args...),
	})
}

func (s *State) tracef(format string, args ...any) {
	s.trace = append(s.trace, fmt.Sprintf("t%d ", s.tick)+fmt.Sprintf(format, args...))
}

func (s *State) newCard(def catalogs.UnitDef) Card {
	s.nextCard++
	return Card{
		ID:       fmt.Sprintf("C%d", s.nextCard),
		Category: def.Category,
		Type:     def.Type,
		Cost:     def.Cost,
	}
}

func (s *State) buildUnit(player string, def catalogs.UnitDef) *Unit {
	s.nextUnit++
	return &Unit{
		ID:     fmt.Sprintf("U%d", s.nextUnit),
		Player: player,
		Type:   def.Type,
		Level:  1,
		Stats: Stats{
			HP:         def.HP,
			MaxHP:      def.HP,
			Energy:     def.Energy,
			MaxEnergy:  def.Energy,
			Attack:     def.Attack,
			Range:      def.Range,
			Movement:   def.Movement,
			Size:       def.Size,
			MaxAttacks: def.MaxAttacks,
			BlocksLOS:  def.BlocksLOS,
		},
	}
}

func (s *State) def(u *Unit) catalogs.UnitDef {
	return s.cats.Units.ByType[u.Type]
}

// insertUnit claims the unit's footprint cells. It fails without mutating
// anything when a cell is void or already occupied.
func (s *State) insertUnit(u *Unit) error {
	cells := grid.Footprint(u.Pos, u.Stats.Size)
	for _, c := range cells {
		if _, okTile := s.terrain.At(c); !okTile {
			return fmt.Errorf("cell %s is void", c)
		}
		if other, busy := s.occupancy[c]; busy {
			return fmt.Errorf("cell %s occupied by %s", c, other)
		}
	}
	if _, okHeight := s.terrain.FootprintHeight(u.Pos, u.Stats.Size); !okHeight {
		return fmt.Errorf("mixed-height footprint at %s", u.Pos)
	}
	for _, c := range cells {
		s.occupancy[c] = u.ID
	}
	s.units[u.ID] = u
	return nil
}

// moveOccupancy relocates the unit's footprint. The destination must have
// been validated by the caller.
func (s *State) moveOccupancy(u *Unit, to grid.Pos) {
	for _, c := range grid.Footprint(u.Pos, u.Stats.Size) {
		delete(s.occupancy, c)
	}
	u.Pos = to
	for _, c := range grid.Footprint(u.Pos, u.Stats.Size) {
		s.occupancy[c] = u.ID
	}
	s.invalidatePreviews()
}

// dropUnit removes the unit and everything referencing it: occupancy,
// scheduled events, mind-control pairings, selections.
func (s *State) dropUnit(u *Unit) {
	for _, c := range grid.Footprint(u.Pos, u.Stats.Size) {
		if s.occupancy[c] == u.ID {
			delete(s.occupancy, c)
		}
	}
	delete(s.units, u.ID)
	s.sched.cancelUnit(u.ID)
	s.unwindMindControl(u)
	for _, p := range s.players {
		if p.SelectedUnit == u.ID {
			p.SelectedUnit = ""
		}
	}
	s.invalidatePreviews()
}

// unwindMindControl restores a victim to its original owner when either
// side of the pairing dies. Both fields clear together.
func (s *State) unwindMindControl(gone *Unit) {
	if gone.Status.MindControlTarget != "" {
		if victim := s.units[gone.Status.MindControlTarget]; victim != nil && victim.Status.OriginalPlayer != "" {
			victim.Player = victim.Status.OriginalPlayer
			victim.Status.OriginalPlayer = ""
		}
		gone.Status.MindControlTarget = ""
	}
	if gone.Status.OriginalPlayer != "" {
		for _, u := range s.units {
			if u.Status.MindControlTarget == gone.ID {
				u.Status.MindControlTarget = ""
			}
		}
		gone.Player = gone.Status.OriginalPlayer
		gone.Status.OriginalPlayer = ""
	}
}

func (s *State) invalidatePreviews() {
	for _, pv := range s.previews {
		pv.Invalidate()
	}
}

// moveEnv builds the pathfinding environment for one moving unit: cells are
// blocked when unrevealed to its owner or occupied by any other unit.
func (s *State) moveEnv(u *Unit) path.Env {
	p := s.players[u.Player]
	return path.Env{
		Terrain: s.terrain,
		Blocked: func(c grid.Pos) bool {
			if _, revealed := p.Revealed[c]; !revealed {
				return true
			}
			if id, busy := s.occupancy[c]; busy && id != u.ID {
				return true
			}
			return false
		},
	}
}

// PreviewMove memoizes the path preview for the player's selected unit; an
// unchanged (unit, position, steps, target) signature is served from cache.
func (s *State) PreviewMove(player string, unitID string, target grid.Pos) []grid.Pos {
	u := s.units[unitID]
	if u == nil || !u.Alive() || u.Player != player {
		return nil
	}
	key := path.PreviewKey{UnitID: u.ID, From: u.Pos, Steps: u.Status.StepsTaken, Target: target}
	full := s.previews[player].Path(s.moveEnv(u), key, u.Stats.Size)
	budget := u.Stats.Movement - u.Status.StepsTaken
	if budget < 0 {
		budget = 0
	}
	if len(full) > budget {
		full = full[:budget]
	}
	return full
}

// collectAt picks up any collectible the footprint now covers.
func (s *State) collectAt(u *Unit) {
	for _, c := range grid.Footprint(u.Pos, u.Stats.Size) {
		item, found := s.collectibles[c]
		if !found {
			continue
		}
		delete(s.collectibles, c)
		if p := s.players[u.Player]; p != nil {
			p.Credits += item.Amount
			s.logf(u.Player, "%s collected %d credits", u.Type, item.Amount)
		}
	}
}

// step advances the sim clock one tick and dispatches due timer events.
func (s *State) step() {
	s.tick++
	for _, ev := range s.sched.popDue(s.tick) {
		s.dispatchEvent(ev)
	}
}

func (s *State) dispatchEvent(ev scheduledEvent) {
	u := s.units[ev.Unit]
	if u == nil {
		// Cancellation on removal should make this unreachable; log it
		// rather than ignore it silently.
		s.tracef("event %s for missing unit %s", ev.Kind, ev.Unit)
		return
	}
	switch ev.Kind {
	case evAttackResolve:
		s.resolveAttack(u)
	case evDeathRemoval:
		s.removeDead(u)
	case evTeleportUnlock:
		u.Status.TeleportLocked = false
	}
}

// AdvanceTicks steps the sim clock n times. Tests and replays use it to
// fast-forward through timer delays.
func (s *State) AdvanceTicks(n int) {
	for i := 0; i < n; i++ {
		s.step()
	}
}
