package game

// Mode is the interaction state governing what a player's next click means.
// Exactly one mode is active per player; each variant carries only the
// fields meaningful to it.
type Mode interface {
	modeName() string
}

type ModeNormal struct{}

// ModeWallPlacement is multi-step: each accepted wall decrements Remaining
// and the mode persists until it reaches zero.
type ModeWallPlacement struct {
	SourceUnit string
	Remaining  int
}

// ModeAbilitySummon is multi-step like wall placement.
type ModeAbilitySummon struct {
	SourceUnit string
	Remaining  int
}

type ModeAbilityTeleport struct{ SourceUnit string }

type ModeAbilityFreeze struct{ SourceUnit string }

type ModeAbilityHeal struct{ SourceUnit string }

type ModeAbilityRestoreEnergy struct{ SourceUnit string }

type ModeAbilityMindControl struct{ SourceUnit string }

// ModeIonCannonTargeting and ModeForwardBaseTargeting consume an ACTION
// card identified by CardID on commit.
type ModeIonCannonTargeting struct{ CardID string }

type ModeForwardBaseTargeting struct{ CardID string }

// TerrainBrush carries the map editor tool settings.
type TerrainBrush struct {
	Tool      string
	Size      int
	TileType  string
	Elevation int
	Rotation  int
	Zone      string
}

// ModeTerrainEdit intercepts every click unconditionally (dev tooling).
type ModeTerrainEdit struct{ Brush TerrainBrush }

type ModeMassRetreatTargeting struct{}

func (ModeNormal) modeName() string               { return "NORMAL" }
func (ModeWallPlacement) modeName() string        { return "WALL_PLACEMENT" }
func (ModeAbilitySummon) modeName() string        { return "ABILITY_SUMMON" }
func (ModeAbilityTeleport) modeName() string      { return "ABILITY_TELEPORT" }
func (ModeAbilityFreeze) modeName() string        { return "ABILITY_FREEZE" }
func (ModeAbilityHeal) modeName() string          { return "ABILITY_HEAL" }
func (ModeAbilityRestoreEnergy) modeName() string { return "ABILITY_RESTORE_ENERGY" }
func (ModeAbilityMindControl) modeName() string   { return "ABILITY_MIND_CONTROL" }
func (ModeIonCannonTargeting) modeName() string   { return "ION_CANNON_TARGETING" }
func (ModeForwardBaseTargeting) modeName() string { return "FORWARD_BASE_TARGETING" }
func (ModeTerrainEdit) modeName() string          { return "TERRAIN_EDIT" }
func (ModeMassRetreatTargeting) modeName() string { return "MASS_RETREAT_TARGETING" }

// ModeName exposes the active mode tag for snapshots and the UI.
func ModeName(m Mode) string {
	if m == nil {
		return "NORMAL"
	}
	return m.modeName()
}
