// Package catalogs loads the static unit and talent definitions a battle is
// parameterized by. Both peers must load identical catalogs; the digests are
// compared at session start.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

type Catalogs struct {
	Units   UnitCatalog
	Talents TalentCatalog
}

// Card categories.
const (
	CategoryUnit   = "UNIT"
	CategoryAction = "ACTION"
)

// Ability kinds, matched to the interaction modes they open.
const (
	AbilityNone          = ""
	AbilitySummon        = "SUMMON"
	AbilityTeleport      = "TELEPORT"
	AbilityFreeze        = "FREEZE"
	AbilityHeal          = "HEAL"
	AbilityRestoreEnergy = "RESTORE_ENERGY"
	AbilityMindControl   = "MIND_CONTROL"
	AbilityWall          = "WALL"
	AbilityIonCannon     = "ION_CANNON"
	AbilityForwardBase   = "FORWARD_BASE"
	AbilityDetonate      = "DETONATE"
)

type UnitCatalog struct {
	ByType       map[string]UnitDef
	Order        []string
	StartingDeck []string
	Digest       string
}

type UnitDef struct {
	Type     string `yaml:"type" json:"type"`
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
	Cost     int    `yaml:"cost" json:"cost"`

	HP         int  `yaml:"hp" json:"hp"`
	Energy     int  `yaml:"energy" json:"energy"`
	Attack     int  `yaml:"attack" json:"attack"`
	Range      int  `yaml:"range" json:"range"`
	Movement   int  `yaml:"movement" json:"movement"`
	Size       int  `yaml:"size" json:"size"`
	MaxAttacks int  `yaml:"max_attacks" json:"max_attacks"`
	BlocksLOS  bool `yaml:"blocks_los" json:"blocks_los"`

	// Ability names the targeting mode the unit's active opens, with its
	// energy cost and, for multi-step placements, the number of segments.
	Ability       string `yaml:"ability,omitempty" json:"ability,omitempty"`
	AbilityCost   int    `yaml:"ability_cost,omitempty" json:"ability_cost,omitempty"`
	AbilityCount  int    `yaml:"ability_count,omitempty" json:"ability_count,omitempty"`
	AbilityRange  int    `yaml:"ability_range,omitempty" json:"ability_range,omitempty"`
	AbilityRadius int    `yaml:"ability_radius,omitempty" json:"ability_radius,omitempty"`
	AbilityAmount int    `yaml:"ability_amount,omitempty" json:"ability_amount,omitempty"`
	SummonType    string `yaml:"summon_type,omitempty" json:"summon_type,omitempty"`

	// Structures sit still; a charger structure feeds adjacent units energy
	// at turn end.
	Structure   bool `yaml:"structure,omitempty" json:"structure,omitempty"`
	ChargerAura int  `yaml:"charger_aura,omitempty" json:"charger_aura,omitempty"`

	DeliveryTurns int `yaml:"delivery_turns" json:"delivery_turns"`
}

type TalentCatalog struct {
	ByID   map[string]TalentDef
	Order  []string
	Digest string
}

type TalentDef struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	// Passive effects applied by the turn lifecycle.
	HPRegen     int `yaml:"hp_regen,omitempty" json:"hp_regen,omitempty"`
	EnergyRegen int `yaml:"energy_regen,omitempty" json:"energy_regen,omitempty"`
	Income      int `yaml:"income,omitempty" json:"income,omitempty"`
	AttackBonus int `yaml:"attack_bonus,omitempty" json:"attack_bonus,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadUnits(filepath.Join(configDir, "units.yaml"), &c.Units); err != nil {
		return nil, err
	}
	if err := loadTalents(filepath.Join(configDir, "talents.yaml"), &c.Talents); err != nil {
		return nil, err
	}
	return &c, nil
}

type unitsFile struct {
	StartingDeck []string  `yaml:"starting_deck"`
	Units        []UnitDef `yaml:"units"`
}

func loadUnits(path string, out *UnitCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f unitsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("units.yaml: %w", err)
	}
	out.ByType = make(map[string]UnitDef, len(f.Units))
	out.Order = make([]string, 0, len(f.Units))
	for _, def := range f.Units {
		if def.Type == "" {
			return fmt.Errorf("units.yaml: unit with empty type")
		}
		if _, dup := out.ByType[def.Type]; dup {
			return fmt.Errorf("units.yaml: duplicate unit type %q", def.Type)
		}
		if def.Size < 1 {
			def.Size = 1
		}
		if def.MaxAttacks < 1 {
			def.MaxAttacks = 1
		}
		if def.Category == "" {
			def.Category = CategoryUnit
		}
		if def.Category != CategoryUnit && def.Category != CategoryAction {
			return fmt.Errorf("units.yaml: unit %q: bad category %q", def.Type, def.Category)
		}
		out.ByType[def.Type] = def
		out.Order = append(out.Order, def.Type)
	}
	for _, typ := range f.StartingDeck {
		if _, ok := out.ByType[typ]; !ok {
			return fmt.Errorf("units.yaml: starting_deck references unknown type %q", typ)
		}
	}
	out.StartingDeck = f.StartingDeck
	out.Digest = digestOf(out.Order, func(k string) any { return out.ByType[k] })
	return nil
}

type talentsFile struct {
	Talents []TalentDef `yaml:"talents"`
}

func loadTalents(path string, out *TalentCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f talentsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("talents.yaml: %w", err)
	}
	out.ByID = make(map[string]TalentDef, len(f.Talents))
	out.Order = make([]string, 0, len(f.Talents))
	for _, def := range f.Talents {
		if def.ID == "" {
			return fmt.Errorf("talents.yaml: talent with empty id")
		}
		if _, dup := out.ByID[def.ID]; dup {
			return fmt.Errorf("talents.yaml: duplicate talent id %q", def.ID)
		}
		out.ByID[def.ID] = def
		out.Order = append(out.Order, def.ID)
	}
	out.Digest = digestOf(out.Order, func(k string) any { return out.ByID[k] })
	return nil
}

// digestOf hashes the definitions in sorted-key order so the digest is
// independent of file ordering.
func digestOf(keys []string, get func(string) any) string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	h := sha256.New()
	for _, k := range sorted {
		b, _ := json.Marshal(get(k))
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(b)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
