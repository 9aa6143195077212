package game

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"neontactics.gg/internal/sim/grid"
)

// Digest hashes the full simulation-relevant state at the current tick.
// Peers exchange it with every forwarded action; a mismatch means the
// replicas diverged and triggers a resync. All map iteration is over
// sorted keys so the same state always hashes the same.
func (s *State) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	s.digestHeader(h, &tmp)
	s.digestPlayers(h, &tmp)
	s.digestUnits(h, &tmp)
	s.digestBoard(h, &tmp)
	s.digestTimers(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (s *State) digestHeader(h hash.Hash, tmp *[8]byte) {
	digestU64(h, tmp, s.tick)
	digestI64(h, tmp, s.cfg.Seed)
	digestI64(h, tmp, int64(s.turn))
	digestI64(h, tmp, int64(s.round))
	digestStr(h, tmp, s.current)
	digestStr(h, tmp, s.winner)
	h.Write([]byte{boolByte(s.over)})
	digestU64(h, tmp, s.nextUnit)
	digestU64(h, tmp, s.nextCard)
}

func (s *State) digestPlayers(h hash.Hash, tmp *[8]byte) {
	for _, id := range s.order {
		p := s.players[id]
		digestStr(h, tmp, p.ID)
		digestI64(h, tmp, int64(p.Credits))

		digestI64(h, tmp, int64(len(p.Deck)))
		for _, c := range p.Deck {
			digestStr(h, tmp, c.ID)
			digestStr(h, tmp, c.Type)
			digestI64(h, tmp, int64(c.Cost))
		}
		digestStrs(h, tmp, p.Talents)
		digestStrs(h, tmp, p.Unlocked)

		digestItems(h, tmp, p.Shop.Offers)
		digestItems(h, tmp, p.Shop.Stock)
		digestItems(h, tmp, p.Shop.Pending)

		digestPosSet(h, tmp, p.Revealed)
	}
}

func (s *State) digestUnits(h hash.Hash, tmp *[8]byte) {
	ids := s.sortedUnitIDs()
	digestI64(h, tmp, int64(len(ids)))
	for _, id := range ids {
		u := s.units[id]
		digestStr(h, tmp, u.ID)
		digestStr(h, tmp, u.Player)
		digestStr(h, tmp, u.Type)
		digestI64(h, tmp, int64(u.Pos.X))
		digestI64(h, tmp, int64(u.Pos.Z))
		digestI64(h, tmp, int64(u.Level))
		digestI64(h, tmp, int64(u.Rotation))

		st := u.Stats
		for _, v := range []int{st.HP, st.MaxHP, st.Energy, st.MaxEnergy, st.Attack, st.Range, st.Movement, st.Size, st.MaxAttacks} {
			digestI64(h, tmp, int64(v))
		}
		h.Write([]byte{boolByte(st.BlocksLOS)})

		digestI64(h, tmp, int64(u.Status.StepsTaken))
		digestI64(h, tmp, int64(u.Status.AttacksUsed))
		digestStr(h, tmp, u.Status.MindControlTarget)
		digestStr(h, tmp, u.Status.OriginalPlayer)
		h.Write([]byte{boolByte(u.Status.TeleportLocked), boolByte(u.Status.Dead)})

		digestI64(h, tmp, int64(len(u.Effects)))
		for _, e := range u.Effects {
			digestStr(h, tmp, e.Name)
			digestI64(h, tmp, int64(e.Duration))
		}

		digestStr(h, tmp, u.AttackTarget)
		digestStr(h, tmp, u.AutoAttackTarget)
	}
}

func (s *State) digestBoard(h hash.Hash, tmp *[8]byte) {
	digestStr(h, tmp, s.terrain.Digest())

	keys := make([]grid.Pos, 0, len(s.collectibles))
	for k := range s.collectibles {
		keys = append(keys, k)
	}
	sortPositions(keys)
	digestI64(h, tmp, int64(len(keys)))
	for _, k := range keys {
		c := s.collectibles[k]
		digestI64(h, tmp, int64(k.X))
		digestI64(h, tmp, int64(k.Z))
		digestStr(h, tmp, c.Type)
		digestI64(h, tmp, int64(c.Amount))
	}
}

func (s *State) digestTimers(h hash.Hash, tmp *[8]byte) {
	digestI64(h, tmp, int64(len(s.sched.pending)))
	for _, ev := range s.sched.pending {
		digestU64(h, tmp, ev.Due)
		digestU64(h, tmp, ev.Seq)
		h.Write([]byte{byte(ev.Kind)})
		digestStr(h, tmp, ev.Unit)
	}

	if s.draft == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	digestI64(h, tmp, int64(s.draft.Round))
	for _, id := range s.order {
		digestStrs(h, tmp, s.draft.Offers[id])
		h.Write([]byte{boolByte(s.draft.Picked[id])})
	}
}

func digestU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestU64(h, tmp, uint64(v))
}

func digestStr(h hash.Hash, tmp *[8]byte, v string) {
	digestI64(h, tmp, int64(len(v)))
	h.Write([]byte(v))
}

func digestStrs(h hash.Hash, tmp *[8]byte, vs []string) {
	digestI64(h, tmp, int64(len(vs)))
	for _, v := range vs {
		digestStr(h, tmp, v)
	}
}

func digestItems(h hash.Hash, tmp *[8]byte, items []ShopItem) {
	digestI64(h, tmp, int64(len(items)))
	for _, it := range items {
		digestStr(h, tmp, it.Type)
		digestI64(h, tmp, int64(it.Cost))
		digestI64(h, tmp, int64(it.DeliveryTurns))
		digestI64(h, tmp, int64(it.PurchaseRound))
	}
}

func digestPosSet(h hash.Hash, tmp *[8]byte, set map[grid.Pos]struct{}) {
	keys := make([]grid.Pos, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sortPositions(keys)
	digestI64(h, tmp, int64(len(keys)))
	for _, k := range keys {
		digestI64(h, tmp, int64(k.X))
		digestI64(h, tmp, int64(k.Z))
	}
}

func sortPositions(ps []grid.Pos) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Z != ps[j].Z {
			return ps[i].Z < ps[j].Z
		}
		return ps[i].X < ps[j].X
	})
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
