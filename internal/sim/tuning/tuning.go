package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning carries every numeric knob of the battle simulation. Durations are
// configured in milliseconds and converted to ticks at load so the sim never
// touches wall-clock time.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	AttackResolveMs int `yaml:"attack_resolve_ms"`
	DeathRemovalMs  int `yaml:"death_removal_ms"`
	TeleportLockMs  int `yaml:"teleport_lock_ms"`

	VisionRadius int `yaml:"vision_radius"`
	LOSSampleDiv int `yaml:"los_samples_per_tile"`

	Economy Economy `yaml:"economy"`
	Draft   Draft   `yaml:"draft"`
}

type Economy struct {
	StartingCredits int `yaml:"starting_credits"`
	IncomePerRound  int `yaml:"income_per_round"`
	ShopSlots       int `yaml:"shop_slots"`
	RerollCost      int `yaml:"reroll_cost"`
	MaxStock        int `yaml:"max_stock"`
	OverflowDelay   int `yaml:"overflow_delay_turns"`
}

type Draft struct {
	PeriodRounds int `yaml:"period_rounds"`
	Choices      int `yaml:"choices"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t.withDefaults(), nil
}

// Default returns the stock tuning used when no config file is supplied
// (tests, embedded replays).
func Default() Tuning {
	return Tuning{}.withDefaults()
}

func (t Tuning) withDefaults() Tuning {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.AttackResolveMs <= 0 {
		t.AttackResolveMs = 600
	}
	if t.DeathRemovalMs <= 0 {
		t.DeathRemovalMs = 1000
	}
	if t.TeleportLockMs <= 0 {
		t.TeleportLockMs = 400
	}
	if t.VisionRadius <= 0 {
		t.VisionRadius = 7
	}
	if t.LOSSampleDiv <= 0 {
		t.LOSSampleDiv = 4
	}
	if t.Economy.StartingCredits <= 0 {
		t.Economy.StartingCredits = 10
	}
	if t.Economy.IncomePerRound <= 0 {
		t.Economy.IncomePerRound = 3
	}
	if t.Economy.ShopSlots <= 0 {
		t.Economy.ShopSlots = 3
	}
	if t.Economy.RerollCost <= 0 {
		t.Economy.RerollCost = 1
	}
	if t.Economy.MaxStock <= 0 {
		t.Economy.MaxStock = 6
	}
	if t.Economy.OverflowDelay <= 0 {
		t.Economy.OverflowDelay = 1
	}
	if t.Draft.PeriodRounds <= 0 {
		t.Draft.PeriodRounds = 10
	}
	if t.Draft.Choices <= 0 {
		t.Draft.Choices = 3
	}
	return t
}

// Ticks converts a millisecond duration into a tick count, rounding up so a
// configured delay never fires early. The minimum is one tick.
func (t Tuning) Ticks(ms int) uint64 {
	if ms <= 0 {
		return 1
	}
	tickMs := 1000 / t.TickRateHz
	n := (ms + tickMs - 1) / tickMs
	if n < 1 {
		n = 1
	}
	return uint64(n)
}
