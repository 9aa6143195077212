package mapfile

import (
	"path/filepath"
	"testing"

	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/terrain"
)

const sampleMap = `{
  "mapSize": {"x": 4, "y": 3},
  "mapOrigin": {"x": 0, "z": 0},
  "deletedTiles": ["3,0"],
  "terrain": {
    "0,0": {"type": "NORMAL", "elevation": 0, "landingZone": "P1"},
    "1,0": {"type": "NORMAL", "elevation": 0},
    "2,0": {"type": "RAMP", "elevation": 0, "rotation": 1},
    "3,0": {"type": "NORMAL", "elevation": 0},
    "0,1": {"type": "NORMAL", "elevation": 0},
    "1,1": {"type": "PLATFORM", "elevation": 0},
    "2,1": {"type": "NORMAL", "elevation": 1},
    "3,1": {"type": "NORMAL", "elevation": 1}
  },
  "units": [
    {"id": "U1", "playerId": "P1", "position": {"x": 0, "z": 0}, "type": "TROOPER", "level": 1}
  ],
  "collectibles": [
    {"position": {"x": 1, "z": 0}, "type": "CREDITS", "amount": 3}
  ]
}`

func schemaCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(filepath.Join("..", "..", "..", "schemas", "map.schema.json"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestParseSample(t *testing.T) {
	m, err := schemaCodec(t).Parse([]byte(sampleMap))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Listed in deletedTiles, so the terrain entry must not survive.
	if _, ok := m.Terrain.At(grid.Pos{X: 3, Z: 0}); ok {
		t.Fatalf("deleted tile 3,0 still present")
	}
	// Absent from terrain entirely: also void.
	if _, ok := m.Terrain.At(grid.Pos{X: 2, Z: 2}); ok {
		t.Fatalf("unlisted tile 2,2 should be void")
	}

	tile, ok := m.Terrain.At(grid.Pos{X: 2, Z: 0})
	if !ok || tile.Type != terrain.Ramp || tile.Rotation != 1 {
		t.Fatalf("ramp tile: got %+v ok=%v", tile, ok)
	}
	if owner, ok := m.Terrain.LandingZone(grid.Pos{X: 0, Z: 0}); !ok || owner != "P1" {
		t.Fatalf("landing zone: got %q ok=%v", owner, ok)
	}
	if len(m.Units) != 1 || m.Units[0].Type != "TROOPER" {
		t.Fatalf("units: %+v", m.Units)
	}
	if len(m.Collectibles) != 1 || m.Collectibles[0].Amount != 3 {
		t.Fatalf("collectibles: %+v", m.Collectibles)
	}
}

func TestParseInfersBounds(t *testing.T) {
	raw := []byte(`{"terrain":{"2,3":{"elevation":0},"5,7":{"elevation":0}}}`)
	m, err := schemaCodec(t).Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b := m.Terrain.Bounds()
	want := grid.Bounds{OriginX: 2, OriginZ: 3, Width: 4, Height: 5}
	if b != want {
		t.Fatalf("inferred bounds: got %+v want %+v", b, want)
	}
}

func TestSchemaRejectsBadDocuments(t *testing.T) {
	c := schemaCodec(t)
	bad := []string{
		`{}`,
		`{"terrain":{"1;2":{"elevation":0}}}`,
		`{"terrain":{"1,2":{"type":"LAVA","elevation":0}}}`,
		`{"terrain":{"1,2":{"elevation":0,"rotation":7}}}`,
		`{"terrain":{},"units":[{"playerId":"P1","position":{"x":0,"z":0},"type":"T"}]}`,
	}
	for i, raw := range bad {
		if _, err := c.Parse([]byte(raw)); err == nil {
			t.Fatalf("bad[%d]: expected rejection", i)
		}
	}
}

func TestUnitOnVoidTileRejected(t *testing.T) {
	raw := []byte(`{
	  "terrain": {"0,0": {"elevation": 0}},
	  "units": [{"id":"U1","playerId":"P1","position":{"x":5,"z":5},"type":"TROOPER"}]
	}`)
	if _, err := schemaCodec(t).Parse(raw); err == nil {
		t.Fatalf("expected unit-on-void rejection")
	}
}

func TestForPlayersResolvesPlaceholders(t *testing.T) {
	m, err := schemaCodec(t).Parse([]byte(sampleMap))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bound := m.ForPlayers("alice", "bob")

	if owner, _ := bound.Terrain.LandingZone(grid.Pos{X: 0, Z: 0}); owner != "alice" {
		t.Fatalf("bound landing zone: %q", owner)
	}
	if bound.Units[0].PlayerID != "alice" {
		t.Fatalf("bound unit owner: %q", bound.Units[0].PlayerID)
	}
	// The source map is reusable across matches.
	if owner, _ := m.Terrain.LandingZone(grid.Pos{X: 0, Z: 0}); owner != "P1" {
		t.Fatalf("source map mutated: zone %q", owner)
	}
	if m.Units[0].PlayerID != "P1" {
		t.Fatalf("source map mutated: unit owner %q", m.Units[0].PlayerID)
	}
}

func TestShippedSkirmishMapValidates(t *testing.T) {
	m, err := schemaCodec(t).Load(filepath.Join("..", "..", "..", "maps", "skirmish.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(m.Units); got != 6 {
		t.Fatalf("units: %d", got)
	}
	bound := m.ForPlayers("alice", "bob")
	if owner, ok := bound.Terrain.LandingZone(grid.Pos{X: 0, Z: 11}); !ok || owner != "bob" {
		t.Fatalf("far landing row: %q ok=%v", owner, ok)
	}
	for _, u := range bound.Units {
		if u.PlayerID != "alice" && u.PlayerID != "bob" {
			t.Fatalf("unresolved placement owner %q", u.PlayerID)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m, err := schemaCodec(t).Parse([]byte(sampleMap))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f := Encode(m)
	if f.MapSize == nil || f.MapSize.X != 4 || f.MapSize.Y != 3 {
		t.Fatalf("encoded mapSize: %+v", f.MapSize)
	}
	// Every in-bounds void coordinate is recorded, sorted.
	if len(f.DeletedTiles) != 12-7 {
		t.Fatalf("deletedTiles: %v", f.DeletedTiles)
	}
	m2, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m2.Terrain.Digest() != m.Terrain.Digest() {
		t.Fatalf("terrain digest changed across encode/decode")
	}
}
