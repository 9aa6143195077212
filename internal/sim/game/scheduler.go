package game

import "sort"

// Timer-deferred resolutions (attack resolve, death removal, teleport
// unlock) are explicit scheduled events on the sim clock, keyed by unit id
// so removing a unit mid-flight cleanly voids everything it had pending.
// Wall-clock time never drives the simulation.

type eventKind uint8

const (
	evAttackResolve eventKind = iota + 1
	evDeathRemoval
	evTeleportUnlock
)

func (k eventKind) String() string {
	switch k {
	case evAttackResolve:
		return "ATTACK_RESOLVE"
	case evDeathRemoval:
		return "DEATH_REMOVAL"
	case evTeleportUnlock:
		return "TELEPORT_UNLOCK"
	}
	return "UNKNOWN"
}

type scheduledEvent struct {
	Due  uint64
	Seq  uint64
	Kind eventKind
	Unit string
}

type scheduler struct {
	pending []scheduledEvent
	nextSeq uint64
}

func (s *scheduler) schedule(due uint64, kind eventKind, unit string) {
	s.pending = append(s.pending, scheduledEvent{Due: due, Seq: s.nextSeq, Kind: kind, Unit: unit})
	s.nextSeq++
	s.sortPending()
}

func (s *scheduler) sortPending() {
	sort.Slice(s.pending, func(i, j int) bool {
		if s.pending[i].Due != s.pending[j].Due {
			return s.pending[i].Due < s.pending[j].Due
		}
		return s.pending[i].Seq < s.pending[j].Seq
	})
}

// cancelUnit voids every pending event for the unit.
func (s *scheduler) cancelUnit(unit string) {
	kept := s.pending[:0]
	for _, ev := range s.pending {
		if ev.Unit != unit {
			kept = append(kept, ev)
		}
	}
	s.pending = kept
}

// cancelUnitKind voids pending events of one kind for the unit.
func (s *scheduler) cancelUnitKind(unit string, kind eventKind) {
	kept := s.pending[:0]
	for _, ev := range s.pending {
		if ev.Unit != unit || ev.Kind != kind {
			kept = append(kept, ev)
		}
	}
	s.pending = kept
}

// popDue removes and returns events due at or before tick, in (due, seq)
// order.
func (s *scheduler) popDue(tick uint64) []scheduledEvent {
	n := 0
	for n < len(s.pending) && s.pending[n].Due <= tick {
		n++
	}
	if n == 0 {
		return nil
	}
	due := make([]scheduledEvent, n)
	copy(due, s.pending[:n])
	s.pending = append(s.pending[:0], s.pending[n:]...)
	return due
}

func (s *scheduler) hasPending(unit string, kind eventKind) bool {
	for _, ev := range s.pending {
		if ev.Unit == unit && ev.Kind == kind {
			return true
		}
	}
	return false
}
