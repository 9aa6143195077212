package grid

import "testing"

func TestPosKeyRoundTrip(t *testing.T) {
	for _, p := range []Pos{{0, 0}, {3, -7}, {-12, 5}, {100, 240}} {
		got, err := ParseKey(p.Key())
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", p.Key(), err)
		}
		if got != p {
			t.Fatalf("round trip: got %v want %v", got, p)
		}
	}
	if _, err := ParseKey("12"); err == nil {
		t.Fatalf("ParseKey accepted key without separator")
	}
	if _, err := ParseKey("a,b"); err == nil {
		t.Fatalf("ParseKey accepted non-numeric key")
	}
}

func TestDirOrderPinned(t *testing.T) {
	// Pathfinding determinism depends on this exact expansion order.
	want := [4]Pos{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
	for i, d := range Dirs {
		if d.Vec() != want[i] {
			t.Fatalf("dir %d: got %v want %v", i, d.Vec(), want[i])
		}
	}
	if North.Opposite() != South || East.Opposite() != West {
		t.Fatalf("opposite mapping broken")
	}
}

func TestFootprintAndLeadingEdge(t *testing.T) {
	cells := Footprint(Pos{2, 3}, 2)
	if len(cells) != 4 {
		t.Fatalf("footprint size: got %d want 4", len(cells))
	}
	want := []Pos{{2, 3}, {3, 3}, {2, 4}, {3, 4}}
	for i := range want {
		if cells[i] != want[i] {
			t.Fatalf("cell %d: got %v want %v", i, cells[i], want[i])
		}
	}

	edge := LeadingEdge(Pos{2, 3}, 2, East)
	if len(edge) != 2 {
		t.Fatalf("leading edge size: got %d want 2", len(edge))
	}
	for _, c := range edge {
		if c.X != 4 {
			t.Fatalf("east leading edge cell %v not at x=4", c)
		}
	}
	edge = LeadingEdge(Pos{2, 3}, 2, North)
	for _, c := range edge {
		if c.Z != 5 {
			t.Fatalf("north leading edge cell %v not at z=5", c)
		}
	}
}

func TestFootprintChebyshev(t *testing.T) {
	cases := []struct {
		a     Pos
		aSize int
		b     Pos
		bSize int
		want  int
	}{
		{Pos{0, 0}, 1, Pos{1, 0}, 1, 1},   // orthogonally adjacent
		{Pos{0, 0}, 1, Pos{1, 1}, 1, 1},   // diagonally adjacent
		{Pos{0, 0}, 1, Pos{3, 0}, 1, 3},   // three apart
		{Pos{0, 0}, 2, Pos{2, 0}, 1, 1},   // 2x2 touching a 1x1
		{Pos{0, 0}, 2, Pos{1, 1}, 2, 0},   // overlapping footprints
		{Pos{0, 0}, 1, Pos{-4, -2}, 1, 4}, // negative coords
	}
	for _, tc := range cases {
		got := FootprintChebyshev(tc.a, tc.aSize, tc.b, tc.bSize)
		if got != tc.want {
			t.Fatalf("chebyshev(%v/%d, %v/%d): got %d want %d", tc.a, tc.aSize, tc.b, tc.bSize, got, tc.want)
		}
		rev := FootprintChebyshev(tc.b, tc.bSize, tc.a, tc.aSize)
		if rev != got {
			t.Fatalf("chebyshev not symmetric: %d vs %d", got, rev)
		}
	}
}

func TestFootprintsOverlap(t *testing.T) {
	if !FootprintsOverlap(Pos{0, 0}, 2, Pos{1, 1}, 2) {
		t.Fatalf("expected overlap")
	}
	if FootprintsOverlap(Pos{0, 0}, 2, Pos{2, 0}, 1) {
		t.Fatalf("touching footprints reported as overlapping")
	}
}

func TestCenterDistance(t *testing.T) {
	// Two 1x1 units three tiles apart on one axis.
	if d := CenterDistance(Pos{0, 0}, 1, Pos{3, 0}, 1); d != 3 {
		t.Fatalf("center distance: got %v want 3", d)
	}
	// A 2x2 centers half a tile into its block.
	x, z := Center(Pos{4, 4}, 2)
	if x != 4.5 || z != 4.5 {
		t.Fatalf("2x2 center: got (%v,%v) want (4.5,4.5)", x, z)
	}
}

func TestBoundsContainsFootprint(t *testing.T) {
	b := Bounds{OriginX: 0, OriginZ: 0, Width: 10, Height: 10}
	if !b.ContainsFootprint(Pos{8, 8}, 2) {
		t.Fatalf("footprint at extent should fit")
	}
	if b.ContainsFootprint(Pos{9, 9}, 2) {
		t.Fatalf("footprint past extent should not fit")
	}
}
