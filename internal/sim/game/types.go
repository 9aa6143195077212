// Package game holds the battle simulation: the canonical state aggregate,
// the single validated intent path that mutates it, the interaction state
// machine interpreting clicks, combat resolution, and the per-turn
// lifecycle. One goroutine owns a State; the engine serializes every
// mutation through its inbox.
package game

import (
	"neontactics.gg/internal/sim/grid"
)

// Result is the outcome of one intent. Failures leave state untouched and
// carry a protocol error code plus a human-readable message; the message
// doubles as the transient status line shown to the player.
type Result struct {
	OK      bool
	Code    string
	Message string
}

func ok(msg string) Result         { return Result{OK: true, Message: msg} }
func fail(code, msg string) Result { return Result{Code: code, Message: msg} }

// Stats are the static combat numbers of a unit, copied from its catalog
// definition at creation so level-ups and effects can adjust them per unit.
type Stats struct {
	HP         int
	MaxHP      int
	Energy     int
	MaxEnergy  int
	Attack     int
	Range      int
	Movement   int
	Size       int
	MaxAttacks int
	BlocksLOS  bool
}

// Status is the transient per-turn bookkeeping of a unit.
type Status struct {
	StepsTaken  int
	AttacksUsed int

	// Mind control pairing: set and cleared together, never independently.
	// MindControlTarget on the hacker, OriginalPlayer on the victim.
	MindControlTarget string
	OriginalPlayer    string

	// TeleportLocked blocks re-triggering while the arrival lock timer runs.
	TeleportLocked bool

	// Dead marks a corpse awaiting its scheduled removal.
	Dead bool
}

// Effect is a timed modifier on a unit. Duration is decremented once per
// owning player's turn end and the effect is removed exactly at zero.
type Effect struct {
	Name        string
	Description string
	Icon        string
	Duration    int
	MaxDuration int
}

// Effect names with simulation semantics.
const (
	EffectFrozen       = "FROZEN"
	EffectInvulnerable = "INVULNERABLE"
)

type Unit struct {
	ID     string
	Player string
	Pos    grid.Pos
	Type   string
	Level  int
	// Rotation is the facing the renderer draws; combat sets it toward the
	// target when an attack commits.
	Rotation int

	Stats   Stats
	Status  Status
	Effects []Effect

	// MovePath is the committed path still being walked by the renderer.
	// The simulation applies moves atomically; the path is presentation
	// state carried for the peer.
	MovePath []grid.Pos

	// AttackTarget is set while a committed attack awaits its resolve
	// timer. AutoAttackTarget persists after resolution and feeds the
	// end-of-turn auto-attack cycle.
	AttackTarget     string
	AutoAttackTarget string
}

func (u *Unit) hasEffect(name string) bool {
	for _, e := range u.Effects {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Alive reports whether the unit still participates in the simulation.
func (u *Unit) Alive() bool { return !u.Status.Dead && u.Stats.HP > 0 }

// Card is a deck entry: a deployable unit or a one-shot action.
type Card struct {
	ID       string
	Category string
	Type     string
	Cost     int
}

// ShopItem is either an offer, a delivered stock entry, or a pending order.
// Which of the three it is follows from the container holding it.
type ShopItem struct {
	Type          string
	Cost          int
	DeliveryTurns int
	PurchaseRound int
}

type Shop struct {
	Offers  []ShopItem
	Stock   []ShopItem
	Pending []ShopItem
}

type Player struct {
	ID      string
	Credits int
	Deck    []Card
	Talents []string
	// Unlocked is the unit pool shop offers draw from.
	Unlocked []string
	Shop     Shop

	Revealed map[grid.Pos]struct{}

	Mode         Mode
	SelectedUnit string
	SelectedCard string
}

func (p *Player) card(id string) (int, Card, bool) {
	for i, c := range p.Deck {
		if c.ID == id {
			return i, c, true
		}
	}
	return 0, Card{}, false
}

func (p *Player) removeCard(i int) {
	p.Deck = append(p.Deck[:i], p.Deck[i+1:]...)
}

func (p *Player) hasTalent(id string) bool {
	for _, t := range p.Talents {
		if t == id {
			return true
		}
	}
	return false
}

// Collectible is a credits pickup placed by the map editor; a unit whose
// footprint covers it collects it on arrival.
type Collectible struct {
	Type   string
	Amount int
}

// LogEntry is one line of the in-game action log.
type LogEntry struct {
	Turn   int
	Round  int
	Player string
	Text   string
}
