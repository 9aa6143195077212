// Package grid holds the integer grid primitives shared by terrain,
// pathfinding and the battle state: positions, directions, bounds and
// footprint math. A unit of size N occupies an N x N block of cells
// anchored at its position.
package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pos is a tile coordinate on the battle grid.
type Pos struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Key renders the canonical "x,z" form used as JSON object key in the
// persisted map format.
func (p Pos) Key() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Z)
}

func (p Pos) String() string { return p.Key() }

// ParseKey parses the "x,z" form produced by Key.
func ParseKey(s string) (Pos, error) {
	i := strings.IndexByte(s, ',')
	if i < 0 {
		return Pos{}, fmt.Errorf("grid: bad pos key %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(s[:i]))
	if err != nil {
		return Pos{}, fmt.Errorf("grid: bad pos key %q: %w", s, err)
	}
	z, err := strconv.Atoi(strings.TrimSpace(s[i+1:]))
	if err != nil {
		return Pos{}, fmt.Errorf("grid: bad pos key %q: %w", s, err)
	}
	return Pos{X: x, Z: z}, nil
}

func (p Pos) Add(q Pos) Pos { return Pos{X: p.X + q.X, Z: p.Z + q.Z} }

// Step returns the neighbor one tile away in direction d.
func (p Pos) Step(d Dir) Pos { return p.Add(d.Vec()) }

// Dir is a cardinal direction. The declaration order N, E, S, W is load
// bearing: pathfinding neighbor expansion and ramp rotations both index it,
// and both peers must expand in the same order for replayed moves to pick
// identical paths.
type Dir int

const (
	North Dir = iota // +Z
	East             // +X
	South            // -Z
	West             // -X
)

// Dirs lists all cardinal directions in the pinned expansion order.
var Dirs = [4]Dir{North, East, South, West}

var dirVecs = [4]Pos{{X: 0, Z: 1}, {X: 1, Z: 0}, {X: 0, Z: -1}, {X: -1, Z: 0}}

func (d Dir) Vec() Pos { return dirVecs[d&3] }

func (d Dir) Opposite() Dir { return (d + 2) & 3 }

func (d Dir) String() string {
	switch d & 3 {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	default:
		return "W"
	}
}

// DirFromRotation maps a tile/unit rotation 0..3 onto a facing direction.
func DirFromRotation(rot int) Dir { return Dir(((rot % 4) + 4) % 4) }

// Bounds is the axis-aligned playable rectangle of a map.
type Bounds struct {
	OriginX int `json:"originX"`
	OriginZ int `json:"originZ"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

func (b Bounds) Contains(p Pos) bool {
	return p.X >= b.OriginX && p.X < b.OriginX+b.Width &&
		p.Z >= b.OriginZ && p.Z < b.OriginZ+b.Height
}

// ContainsFootprint reports whether the whole size x size block anchored at
// anchor lies inside the bounds.
func (b Bounds) ContainsFootprint(anchor Pos, size int) bool {
	if size < 1 {
		size = 1
	}
	return b.Contains(anchor) && b.Contains(Pos{X: anchor.X + size - 1, Z: anchor.Z + size - 1})
}

// Footprint returns the cells covered by a size x size block anchored at
// anchor, in row-major order.
func Footprint(anchor Pos, size int) []Pos {
	if size < 1 {
		size = 1
	}
	cells := make([]Pos, 0, size*size)
	for dz := 0; dz < size; dz++ {
		for dx := 0; dx < size; dx++ {
			cells = append(cells, Pos{X: anchor.X + dx, Z: anchor.Z + dz})
		}
	}
	return cells
}

// LeadingEdge returns the cells a footprint newly enters when it advances one
// tile in direction d from anchor: the edge column or row on the far side of
// the destination block.
func LeadingEdge(anchor Pos, size int, d Dir) []Pos {
	if size < 1 {
		size = 1
	}
	dst := anchor.Step(d)
	cells := make([]Pos, 0, size)
	switch d {
	case East:
		x := dst.X + size - 1
		for dz := 0; dz < size; dz++ {
			cells = append(cells, Pos{X: x, Z: dst.Z + dz})
		}
	case West:
		for dz := 0; dz < size; dz++ {
			cells = append(cells, Pos{X: dst.X, Z: dst.Z + dz})
		}
	case North:
		z := dst.Z + size - 1
		for dx := 0; dx < size; dx++ {
			cells = append(cells, Pos{X: dst.X + dx, Z: z})
		}
	default: // South
		for dx := 0; dx < size; dx++ {
			cells = append(cells, Pos{X: dst.X + dx, Z: dst.Z})
		}
	}
	return cells
}

// FootprintsOverlap reports whether two footprints share at least one cell.
func FootprintsOverlap(a Pos, aSize int, b Pos, bSize int) bool {
	if aSize < 1 {
		aSize = 1
	}
	if bSize < 1 {
		bSize = 1
	}
	if a.X+aSize <= b.X || b.X+bSize <= a.X {
		return false
	}
	if a.Z+aSize <= b.Z || b.Z+bSize <= a.Z {
		return false
	}
	return true
}

// FootprintContains reports whether cell p lies under the footprint.
func FootprintContains(anchor Pos, size int, p Pos) bool {
	if size < 1 {
		size = 1
	}
	return p.X >= anchor.X && p.X < anchor.X+size && p.Z >= anchor.Z && p.Z < anchor.Z+size
}

// Manhattan is the 4-directional step distance between two cells.
func Manhattan(a, b Pos) int {
	return absInt(a.X-b.X) + absInt(a.Z-b.Z)
}

// FootprintChebyshev is the Chebyshev distance between the closest cells of
// two footprints: 0 when they overlap, 1 when they touch (including
// diagonally). Attack range checks use this metric.
func FootprintChebyshev(a Pos, aSize int, b Pos, bSize int) int {
	if aSize < 1 {
		aSize = 1
	}
	if bSize < 1 {
		bSize = 1
	}
	gx := intervalGap(a.X, a.X+aSize-1, b.X, b.X+bSize-1)
	gz := intervalGap(a.Z, a.Z+aSize-1, b.Z, b.Z+bSize-1)
	if gx > gz {
		return gx
	}
	return gz
}

func intervalGap(aLo, aHi, bLo, bHi int) int {
	if aHi < bLo {
		return bLo - aHi
	}
	if bHi < aLo {
		return aLo - bHi
	}
	return 0
}

// Center returns the geometric center of a footprint in tile coordinates.
// A 1x1 footprint centers on its anchor; a 2x2 centers half a tile off.
func Center(anchor Pos, size int) (float64, float64) {
	if size < 1 {
		size = 1
	}
	off := float64(size-1) / 2
	return float64(anchor.X) + off, float64(anchor.Z) + off
}

// CenterDistance is the Euclidean distance between two footprint centers.
// Area damage radii use this metric.
func CenterDistance(a Pos, aSize int, b Pos, bSize int) float64 {
	ax, az := Center(a, aSize)
	bx, bz := Center(b, bSize)
	return math.Hypot(ax-bx, az-bz)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
