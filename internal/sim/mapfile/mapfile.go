// Package mapfile reads and writes the persisted battle map format: a JSON
// document with sparse terrain keyed by "x,z", pre-placed units and
// collectibles. Loading can be backed by a JSON Schema so editor output is
// rejected early instead of surfacing as mid-battle inconsistencies.
package mapfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/terrain"
)

// File mirrors the on-disk JSON shape.
type File struct {
	MapSize      *SizeJSON           `json:"mapSize,omitempty"`
	MapOrigin    *OriginJSON         `json:"mapOrigin,omitempty"`
	DeletedTiles []string            `json:"deletedTiles,omitempty"`
	Terrain      map[string]TileJSON `json:"terrain"`
	Units        []UnitPlacement     `json:"units,omitempty"`
	Collectibles []Collectible       `json:"collectibles,omitempty"`
}

type SizeJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type OriginJSON struct {
	X int `json:"x"`
	Z int `json:"z"`
}

type TileJSON struct {
	Type        string `json:"type,omitempty"`
	Elevation   int    `json:"elevation"`
	Rotation    int    `json:"rotation,omitempty"`
	LandingZone string `json:"landingZone,omitempty"`
}

type UnitPlacement struct {
	ID       string   `json:"id"`
	PlayerID string   `json:"playerId"`
	Position grid.Pos `json:"position"`
	Type     string   `json:"type"`
	Rotation int      `json:"rotation,omitempty"`
	Level    int      `json:"level,omitempty"`
}

type Collectible struct {
	Position grid.Pos `json:"position"`
	Type     string   `json:"type"`
	Amount   int      `json:"amount"`
}

// Map is the decoded, validated form handed to the simulation.
type Map struct {
	Terrain      *terrain.Model
	Units        []UnitPlacement
	Collectibles []Collectible
}

// Codec optionally validates raw documents against a compiled schema before
// decoding. A zero Codec decodes without validation.
type Codec struct {
	schema *jsonschema.Schema
}

func NewCodec(schemaPath string) (*Codec, error) {
	s, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile map schema: %w", err)
	}
	return &Codec{schema: s}, nil
}

func (c *Codec) Load(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.Parse(raw)
}

func (c *Codec) Parse(raw []byte) (*Map, error) {
	if c != nil && c.schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("map json: %w", err)
		}
		if err := c.schema.Validate(doc); err != nil {
			return nil, fmt.Errorf("map schema: %w", err)
		}
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("map json: %w", err)
	}
	return Decode(f)
}

// Decode builds the terrain model from a parsed file. A coordinate absent
// from terrain is void regardless of deletedTiles; the list only documents
// intent. Bounds come from mapSize/mapOrigin when present, otherwise they
// are inferred from terrain extents.
func Decode(f File) (*Map, error) {
	tiles := make(map[grid.Pos]terrain.Tile, len(f.Terrain))
	deleted := make(map[string]bool, len(f.DeletedTiles))
	for _, k := range f.DeletedTiles {
		deleted[k] = true
	}
	for key, tj := range f.Terrain {
		if deleted[key] {
			continue
		}
		p, err := grid.ParseKey(key)
		if err != nil {
			return nil, fmt.Errorf("terrain key: %w", err)
		}
		typ, err := terrain.ParseTileType(tj.Type)
		if err != nil {
			return nil, fmt.Errorf("terrain %s: %w", key, err)
		}
		tiles[p] = terrain.Tile{
			Type:        typ,
			Elevation:   tj.Elevation,
			Rotation:    ((tj.Rotation % 4) + 4) % 4,
			LandingZone: tj.LandingZone,
		}
	}

	var bounds grid.Bounds
	switch {
	case f.MapSize != nil && f.MapOrigin != nil:
		bounds = grid.Bounds{OriginX: f.MapOrigin.X, OriginZ: f.MapOrigin.Z, Width: f.MapSize.X, Height: f.MapSize.Y}
	case f.MapSize != nil:
		bounds = grid.Bounds{Width: f.MapSize.X, Height: f.MapSize.Y}
	default:
		bounds = terrain.InferBounds(tiles)
	}

	m := terrain.New(bounds)
	for p, t := range tiles {
		if !m.Set(p, t) {
			return nil, fmt.Errorf("terrain tile %s outside map bounds", p)
		}
	}

	for i, u := range f.Units {
		if u.ID == "" || u.PlayerID == "" || u.Type == "" {
			return nil, fmt.Errorf("units[%d]: missing id/playerId/type", i)
		}
		if _, ok := m.At(u.Position); !ok {
			return nil, fmt.Errorf("units[%d]: placed on void tile %s", i, u.Position)
		}
	}

	return &Map{Terrain: m, Units: f.Units, Collectibles: f.Collectibles}, nil
}

// ForPlayers resolves the authoring placeholders "P1" and "P2" to concrete
// player ids, so one shipped map serves any pairing. Identifiers that are
// not placeholders pass through untouched. The receiver is not modified.
func (m *Map) ForPlayers(a, b string) *Map {
	resolve := func(id string) string {
		switch id {
		case "P1":
			return a
		case "P2":
			return b
		}
		return id
	}
	out := &Map{
		Terrain:      m.Terrain.Clone(),
		Units:        make([]UnitPlacement, len(m.Units)),
		Collectibles: append([]Collectible(nil), m.Collectibles...),
	}
	out.Terrain.ForEach(func(p grid.Pos, t terrain.Tile) {
		if t.LandingZone != "" {
			t.LandingZone = resolve(t.LandingZone)
			out.Terrain.Set(p, t)
		}
	})
	for i, u := range m.Units {
		u.PlayerID = resolve(u.PlayerID)
		out.Units[i] = u
	}
	return out
}

// Encode renders a terrain model (plus placements) back into canonical file
// form: explicit mapSize/mapOrigin, sorted deletedTiles for every in-bounds
// void coordinate.
func Encode(m *Map) File {
	b := m.Terrain.Bounds()
	f := File{
		MapSize:      &SizeJSON{X: b.Width, Y: b.Height},
		MapOrigin:    &OriginJSON{X: b.OriginX, Z: b.OriginZ},
		Terrain:      make(map[string]TileJSON, m.Terrain.Len()),
		Units:        m.Units,
		Collectibles: m.Collectibles,
	}
	m.Terrain.ForEach(func(p grid.Pos, t terrain.Tile) {
		f.Terrain[p.Key()] = TileJSON{
			Type:        t.Type.String(),
			Elevation:   t.Elevation,
			Rotation:    t.Rotation,
			LandingZone: t.LandingZone,
		}
	})
	for z := b.OriginZ; z < b.OriginZ+b.Height; z++ {
		for x := b.OriginX; x < b.OriginX+b.Width; x++ {
			p := grid.Pos{X: x, Z: z}
			if _, ok := m.Terrain.At(p); !ok {
				f.DeletedTiles = append(f.DeletedTiles, p.Key())
			}
		}
	}
	sort.Strings(f.DeletedTiles)
	return f
}

func Save(path string, m *Map) error {
	f := Encode(m)
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
