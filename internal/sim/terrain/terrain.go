// Package terrain models the sparse tile map a battle is fought on:
// per-tile elevation with ramp and platform overrides, landing zones, and
// the edge-legality rules that decide which cardinal steps a footprint may
// take. Absence of a tile means the coordinate is void (deleted).
package terrain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"neontactics.gg/internal/sim/grid"
)

// TileType selects how a tile exposes its standing height.
type TileType uint8

const (
	Normal TileType = iota
	Ramp
	Platform
)

const (
	tileTypeNormal   = "NORMAL"
	tileTypeRamp     = "RAMP"
	tileTypePlatform = "PLATFORM"
)

func (t TileType) String() string {
	switch t {
	case Ramp:
		return tileTypeRamp
	case Platform:
		return tileTypePlatform
	default:
		return tileTypeNormal
	}
}

// ParseTileType maps the wire name back to a TileType.
func ParseTileType(s string) (TileType, error) {
	switch s {
	case tileTypeNormal, "":
		return Normal, nil
	case tileTypeRamp:
		return Ramp, nil
	case tileTypePlatform:
		return Platform, nil
	}
	return Normal, fmt.Errorf("terrain: unknown tile type %q", s)
}

// Tile is one cell of the map. Rotation is meaningful only for ramps and
// names the ascending direction (grid.DirFromRotation). LandingZone, when
// non-empty, marks the tile as a deployment cell for that player.
type Tile struct {
	Type        TileType
	Elevation   int
	Rotation    int
	LandingZone string
}

// StandingHeight is the effective elevation a unit rests at on this tile.
// Platforms raise the unit one level; a ramp rests it at its base.
func (t Tile) StandingHeight() int {
	if t.Type == Platform {
		return t.Elevation + 1
	}
	return t.Elevation
}

// EdgeHeight is the height the tile exposes on the shared edge toward d.
// A ramp exposes its raised end only on the facing edge; everywhere else it
// behaves like its base. Flat tiles expose their standing height on all
// four edges, which makes the single equality rule in StepLegal cover both
// flat steps and exact one-level ramp transitions.
func (t Tile) EdgeHeight(d grid.Dir) int {
	if t.Type == Ramp && d == grid.DirFromRotation(t.Rotation) {
		return t.Elevation + 1
	}
	return t.StandingHeight()
}

// Model is the sparse tile map bounded by a playable rectangle.
type Model struct {
	bounds grid.Bounds
	tiles  map[grid.Pos]Tile
}

func New(bounds grid.Bounds) *Model {
	return &Model{bounds: bounds, tiles: make(map[grid.Pos]Tile)}
}

// NewFlat builds a rectangle of NORMAL tiles at elevation 0, the shape most
// tests start from.
func NewFlat(bounds grid.Bounds) *Model {
	m := New(bounds)
	for z := bounds.OriginZ; z < bounds.OriginZ+bounds.Height; z++ {
		for x := bounds.OriginX; x < bounds.OriginX+bounds.Width; x++ {
			m.tiles[grid.Pos{X: x, Z: z}] = Tile{}
		}
	}
	return m
}

func (m *Model) Bounds() grid.Bounds { return m.bounds }

func (m *Model) Len() int { return len(m.tiles) }

// At returns the tile at p; ok is false for void (deleted) coordinates.
func (m *Model) At(p grid.Pos) (Tile, bool) {
	t, ok := m.tiles[p]
	return t, ok
}

// Set places or replaces the tile at p. Out-of-bounds coordinates are
// rejected so editor brushes cannot grow the map silently.
func (m *Model) Set(p grid.Pos, t Tile) bool {
	if !m.bounds.Contains(p) {
		return false
	}
	m.tiles[p] = t
	return true
}

// Delete voids the coordinate. Deleting is the only operation allowed to
// shrink fog-of-war reveal sets, which callers handle.
func (m *Model) Delete(p grid.Pos) {
	delete(m.tiles, p)
}

// StandingHeight resolves the height a unit would rest at on p.
func (m *Model) StandingHeight(p grid.Pos) (int, bool) {
	t, ok := m.tiles[p]
	if !ok {
		return 0, false
	}
	return t.StandingHeight(), true
}

// StepLegal reports whether a single cell may be stepped from src one tile
// in direction d: both tiles exist and the heights they expose on the
// shared edge match.
func (m *Model) StepLegal(src grid.Pos, d grid.Dir) bool {
	st, ok := m.tiles[src]
	if !ok {
		return false
	}
	dt, ok := m.tiles[src.Step(d)]
	if !ok {
		return false
	}
	return st.EdgeHeight(d) == dt.EdgeHeight(d.Opposite())
}

// FootprintHeight resolves the single standing height under a size x size
// footprint. ok is false when any cell is void or the heights disagree
// (mixed-height landings are illegal).
func (m *Model) FootprintHeight(anchor grid.Pos, size int) (int, bool) {
	if size < 1 {
		size = 1
	}
	h := 0
	first := true
	for dz := 0; dz < size; dz++ {
		for dx := 0; dx < size; dx++ {
			t, ok := m.tiles[grid.Pos{X: anchor.X + dx, Z: anchor.Z + dz}]
			if !ok {
				return 0, false
			}
			if first {
				h = t.StandingHeight()
				first = false
				continue
			}
			if t.StandingHeight() != h {
				return 0, false
			}
		}
	}
	return h, true
}

// FootprintStepLegal generalizes StepLegal to N x N footprints advancing one
// tile in direction d: every leading-edge cell must satisfy the per-cell
// edge rule against the cell behind it, and the whole destination footprint
// must resolve to one standing height.
func (m *Model) FootprintStepLegal(anchor grid.Pos, size int, d grid.Dir) bool {
	if size < 1 {
		size = 1
	}
	for _, c := range grid.LeadingEdge(anchor, size, d) {
		if !m.StepLegal(c.Step(d.Opposite()), d) {
			return false
		}
	}
	_, ok := m.FootprintHeight(anchor.Step(d), size)
	return ok
}

// LandingZone returns the owner of the landing zone at p, if any.
func (m *Model) LandingZone(p grid.Pos) (string, bool) {
	t, ok := m.tiles[p]
	if !ok || t.LandingZone == "" {
		return "", false
	}
	return t.LandingZone, true
}

// ForEach visits every tile in deterministic (z, then x) order.
func (m *Model) ForEach(fn func(p grid.Pos, t Tile)) {
	keys := m.sortedKeys()
	for _, p := range keys {
		fn(p, m.tiles[p])
	}
}

func (m *Model) sortedKeys() []grid.Pos {
	keys := make([]grid.Pos, 0, len(m.tiles))
	for p := range m.tiles {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Z != keys[j].Z {
			return keys[i].Z < keys[j].Z
		}
		return keys[i].X < keys[j].X
	})
	return keys
}

// Digest hashes bounds plus every tile in deterministic order. Peers compare
// terrain digests as part of the state digest to detect divergence.
func (m *Model) Digest() string {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeInt(m.bounds.OriginX)
	writeInt(m.bounds.OriginZ)
	writeInt(m.bounds.Width)
	writeInt(m.bounds.Height)
	for _, p := range m.sortedKeys() {
		t := m.tiles[p]
		writeInt(p.X)
		writeInt(p.Z)
		writeInt(int(t.Type))
		writeInt(t.Elevation)
		writeInt(t.Rotation)
		h.Write([]byte(t.LandingZone))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clone deep-copies the model. Snapshot import/export goes through clones so
// the live map is never shared across goroutines.
func (m *Model) Clone() *Model {
	c := New(m.bounds)
	for p, t := range m.tiles {
		c.tiles[p] = t
	}
	return c
}

// InferBounds derives a bounding rectangle from tile extents, used when a
// persisted map omits mapSize.
func InferBounds(tiles map[grid.Pos]Tile) grid.Bounds {
	if len(tiles) == 0 {
		return grid.Bounds{}
	}
	first := true
	var minX, minZ, maxX, maxZ int
	for p := range tiles {
		if first {
			minX, maxX, minZ, maxZ = p.X, p.X, p.Z, p.Z
			first = false
			continue
		}
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Z < minZ {
			minZ = p.Z
		}
		if p.Z > maxZ {
			maxZ = p.Z
		}
	}
	return grid.Bounds{OriginX: minX, OriginZ: minZ, Width: maxX - minX + 1, Height: maxZ - minZ + 1}
}
