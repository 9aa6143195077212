package game

import (
	"fmt"
	"math/rand"

	"neontactics.gg/internal/persistence/snapshot"
	"neontactics.gg/internal/sim/catalogs"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/path"
	"neontactics.gg/internal/sim/terrain"
	"neontactics.gg/internal/sim/tuning"
)

// ExportForSync captures the state for a peer and reseeds the local draw
// stream to the one Restore derives from the snapshot. Without the reseed
// the exporter keeps a stream already advanced past the restorer's, and
// every shared draw after the sync diverges.
func (s *State) ExportForSync(roomID string) snapshot.GameV1 {
	snap := s.Export(roomID)
	s.rng = rand.New(rand.NewSource(s.cfg.Seed ^ int64(s.tick)))
	return snap
}

// Export captures the complete simulation state. Interaction modes,
// selections, and path previews are presentation state and stay out; a
// restored peer rebuilds them locally.
func (s *State) Export(roomID string) snapshot.GameV1 {
	snap := snapshot.GameV1{
		Header:       snapshot.Header{Version: 1, RoomID: roomID, Tick: s.tick},
		Seed:         s.cfg.Seed,
		Turn:         s.turn,
		Round:        s.round,
		Current:      s.current,
		Order:        s.order,
		Winner:       s.winner,
		Over:         s.over,
		NextUnit:     s.nextUnit,
		NextCard:     s.nextCard,
		Bounds:       s.terrain.Bounds(),
		NextTimerSeq: s.sched.nextSeq,
	}

	s.terrain.ForEach(func(p grid.Pos, t terrain.Tile) {
		snap.Tiles = append(snap.Tiles, snapshot.TileV1{
			X: p.X, Z: p.Z,
			Type:      uint8(t.Type),
			Elevation: t.Elevation,
			Rotation:  t.Rotation,
			Zone:      t.LandingZone,
		})
	})

	for _, id := range s.order {
		p := s.players[id]
		pv := snapshot.PlayerV1{
			ID:       p.ID,
			Credits:  p.Credits,
			Talents:  append([]string(nil), p.Talents...),
			Unlocked: append([]string(nil), p.Unlocked...),
			Offers:   exportShop(p.Shop.Offers),
			Stock:    exportShop(p.Shop.Stock),
			Pending:  exportShop(p.Shop.Pending),
		}
		for _, c := range p.Deck {
			pv.Deck = append(pv.Deck, snapshot.CardV1{ID: c.ID, Category: c.Category, Type: c.Type, Cost: c.Cost})
		}
		for c := range p.Revealed {
			pv.Revealed = append(pv.Revealed, c)
		}
		sortPositions(pv.Revealed)
		snap.Players = append(snap.Players, pv)
	}

	for _, id := range s.sortedUnitIDs() {
		u := s.units[id]
		uv := snapshot.UnitV1{
			ID: u.ID, Player: u.Player, Pos: u.Pos, Type: u.Type,
			Level: u.Level, Rotation: u.Rotation,

			HP: u.Stats.HP, MaxHP: u.Stats.MaxHP,
			Energy: u.Stats.Energy, MaxEnergy: u.Stats.MaxEnergy,
			Attack: u.Stats.Attack, Range: u.Stats.Range,
			Movement: u.Stats.Movement, Size: u.Stats.Size,
			MaxAttacks: u.Stats.MaxAttacks, BlocksLOS: u.Stats.BlocksLOS,

			StepsTaken:        u.Status.StepsTaken,
			AttacksUsed:       u.Status.AttacksUsed,
			MindControlTarget: u.Status.MindControlTarget,
			OriginalPlayer:    u.Status.OriginalPlayer,
			TeleportLocked:    u.Status.TeleportLocked,
			Dead:              u.Status.Dead,

			AttackTarget:     u.AttackTarget,
			AutoAttackTarget: u.AutoAttackTarget,
		}
		for _, e := range u.Effects {
			uv.Effects = append(uv.Effects, snapshot.EffectV1{
				Name: e.Name, Description: e.Description, Icon: e.Icon,
				Duration: e.Duration, MaxDuration: e.MaxDuration,
			})
		}
		snap.Units = append(snap.Units, uv)
	}

	keys := make([]grid.Pos, 0, len(s.collectibles))
	for k := range s.collectibles {
		keys = append(keys, k)
	}
	sortPositions(keys)
	for _, k := range keys {
		c := s.collectibles[k]
		snap.Collectibles = append(snap.Collectibles, snapshot.CollectibleV1{Pos: k, Type: c.Type, Amount: c.Amount})
	}

	for _, ev := range s.sched.pending {
		snap.Timers = append(snap.Timers, snapshot.TimerV1{Due: ev.Due, Seq: ev.Seq, Kind: uint8(ev.Kind), Unit: ev.Unit})
	}

	if s.draft != nil {
		d := &snapshot.DraftV1{Round: s.draft.Round, Offers: map[string][]string{}, Picked: map[string]bool{}}
		for pid, offers := range s.draft.Offers {
			d.Offers[pid] = append([]string(nil), offers...)
		}
		for pid, picked := range s.draft.Picked {
			d.Picked[pid] = picked
		}
		snap.Draft = d
	}

	for _, e := range s.log {
		snap.Log = append(snap.Log, snapshot.LogV1{Turn: e.Turn, Round: e.Round, Player: e.Player, Text: e.Text})
	}

	return snap
}

func exportShop(items []ShopItem) []snapshot.ShopV1 {
	out := make([]snapshot.ShopV1, 0, len(items))
	for _, it := range items {
		out = append(out, snapshot.ShopV1{Type: it.Type, Cost: it.Cost, DeliveryTurns: it.DeliveryTurns, PurchaseRound: it.PurchaseRound})
	}
	return out
}

// Restore rebuilds a State from a snapshot. The RNG is reseeded from
// (seed, tick), so both peers restoring the same snapshot draw the same
// stream from that point on.
func Restore(snap snapshot.GameV1, tun tuning.Tuning, cats *catalogs.Catalogs) (*State, error) {
	if cats == nil {
		return nil, fmt.Errorf("game: nil catalogs")
	}
	if len(snap.Players) != 2 {
		return nil, fmt.Errorf("game: snapshot has %d players, need 2", len(snap.Players))
	}
	if tun.TickRateHz == 0 {
		tun = tuning.Default()
	}

	model := terrain.New(snap.Bounds)
	for _, tv := range snap.Tiles {
		model.Set(grid.Pos{X: tv.X, Z: tv.Z}, terrain.Tile{
			Type:        terrain.TileType(tv.Type),
			Elevation:   tv.Elevation,
			Rotation:    tv.Rotation,
			LandingZone: tv.Zone,
		})
	}

	s := &State{
		cfg:          Config{Seed: snap.Seed, Players: snap.Order, Tuning: tun, Cats: cats},
		tun:          tun,
		cats:         cats,
		rng:          rand.New(rand.NewSource(snap.Seed ^ int64(snap.Header.Tick))),
		tick:         snap.Header.Tick,
		turn:         snap.Turn,
		round:        snap.Round,
		current:      snap.Current,
		order:        snap.Order,
		winner:       snap.Winner,
		over:         snap.Over,
		nextUnit:     snap.NextUnit,
		nextCard:     snap.NextCard,
		players:      make(map[string]*Player, 2),
		units:        make(map[string]*Unit, len(snap.Units)),
		occupancy:    make(map[grid.Pos]string),
		terrain:      model,
		collectibles: make(map[grid.Pos]Collectible, len(snap.Collectibles)),
		previews:     make(map[string]*path.Previewer),
	}
	s.sched.nextSeq = snap.NextTimerSeq

	for _, pv := range snap.Players {
		p := &Player{
			ID:       pv.ID,
			Credits:  pv.Credits,
			Talents:  append([]string(nil), pv.Talents...),
			Unlocked: append([]string(nil), pv.Unlocked...),
			Shop: Shop{
				Offers:  restoreShop(pv.Offers),
				Stock:   restoreShop(pv.Stock),
				Pending: restoreShop(pv.Pending),
			},
			Revealed: make(map[grid.Pos]struct{}, len(pv.Revealed)),
			Mode:     ModeNormal{},
		}
		for _, c := range pv.Deck {
			p.Deck = append(p.Deck, Card{ID: c.ID, Category: c.Category, Type: c.Type, Cost: c.Cost})
		}
		for _, c := range pv.Revealed {
			p.Revealed[c] = struct{}{}
		}
		s.players[pv.ID] = p
		s.previews[pv.ID] = &path.Previewer{}
	}

	for _, uv := range snap.Units {
		if _, okDef := cats.Units.ByType[uv.Type]; !okDef {
			return nil, fmt.Errorf("game: snapshot unit %s has unknown type %q", uv.ID, uv.Type)
		}
		u := &Unit{
			ID: uv.ID, Player: uv.Player, Pos: uv.Pos, Type: uv.Type,
			Level: uv.Level, Rotation: uv.Rotation,
			Stats: Stats{
				HP: uv.HP, MaxHP: uv.MaxHP,
				Energy: uv.Energy, MaxEnergy: uv.MaxEnergy,
				Attack: uv.Attack, Range: uv.Range,
				Movement: uv.Movement, Size: uv.Size,
				MaxAttacks: uv.MaxAttacks, BlocksLOS: uv.BlocksLOS,
			},
			Status: Status{
				StepsTaken:        uv.StepsTaken,
				AttacksUsed:       uv.AttacksUsed,
				MindControlTarget: uv.MindControlTarget,
				OriginalPlayer:    uv.OriginalPlayer,
				TeleportLocked:    uv.TeleportLocked,
				Dead:              uv.Dead,
			},
			AttackTarget:     uv.AttackTarget,
			AutoAttackTarget: uv.AutoAttackTarget,
		}
		for _, e := range uv.Effects {
			u.Effects = append(u.Effects, Effect{
				Name: e.Name, Description: e.Description, Icon: e.Icon,
				Duration: e.Duration, MaxDuration: e.MaxDuration,
			})
		}
		s.units[u.ID] = u
		for _, c := range grid.Footprint(u.Pos, u.Stats.Size) {
			if other, busy := s.occupancy[c]; busy {
				return nil, fmt.Errorf("game: snapshot units %s and %s overlap at %s", other, u.ID, c)
			}
			s.occupancy[c] = u.ID
		}
	}

	for _, cv := range snap.Collectibles {
		s.collectibles[cv.Pos] = Collectible{Type: cv.Type, Amount: cv.Amount}
	}

	for _, tv := range snap.Timers {
		s.sched.pending = append(s.sched.pending, scheduledEvent{Due: tv.Due, Seq: tv.Seq, Kind: eventKind(tv.Kind), Unit: tv.Unit})
	}
	s.sched.sortPending()

	if snap.Draft != nil {
		s.draft = &Draft{Round: snap.Draft.Round, Offers: map[string][]string{}, Picked: map[string]bool{}}
		for pid, offers := range snap.Draft.Offers {
			s.draft.Offers[pid] = append([]string(nil), offers...)
		}
		for pid, picked := range snap.Draft.Picked {
			s.draft.Picked[pid] = picked
		}
	}

	for _, e := range snap.Log {
		s.log = append(s.log, LogEntry{Turn: e.Turn, Round: e.Round, Player: e.Player, Text: e.Text})
	}

	return s, nil
}

func restoreShop(items []snapshot.ShopV1) []ShopItem {
	out := make([]ShopItem, 0, len(items))
	for _, it := range items {
		out = append(out, ShopItem{Type: it.Type, Cost: it.Cost, DeliveryTurns: it.DeliveryTurns, PurchaseRound: it.PurchaseRound})
	}
	return out
}
