// Package path implements the footprint-aware A* search used for unit
// movement. Search runs over 4-directional steps with unit cost and a
// Manhattan heuristic, so returned paths are shortest in step count.
//
// Determinism contract: neighbors expand in the pinned grid.Dirs order and
// the open list breaks equal f-scores FIFO by insertion sequence. Two peers
// running the same query always produce the same path, which replicated
// move intents rely on.
package path

import (
	"container/heap"

	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/terrain"
)

// Env supplies the terrain and the dynamic legality predicate for one
// search. Blocked reports cells that cannot be entered because they are
// unrevealed to the moving player or occupied by another unit's footprint;
// tile existence and edge legality come from the terrain model itself.
type Env struct {
	Terrain *terrain.Model
	Blocked func(grid.Pos) bool
}

func (e Env) cellUsable(p grid.Pos) bool {
	if _, ok := e.Terrain.At(p); !ok {
		return false
	}
	if e.Blocked != nil && e.Blocked(p) {
		return false
	}
	return true
}

func (e Env) anchorUsable(anchor grid.Pos, size int) bool {
	if !e.Terrain.Bounds().ContainsFootprint(anchor, size) {
		return false
	}
	for _, c := range grid.Footprint(anchor, size) {
		if !e.cellUsable(c) {
			return false
		}
	}
	return true
}

type node struct {
	pos    grid.Pos
	g      int
	f      int
	seq    int
	parent *node
}

type openList []*node

func (o openList) Len() int { return len(o) }
func (o openList) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	return o[i].seq < o[j].seq
}
func (o openList) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o *openList) Push(x any)   { *o = append(*o, x.(*node)) }
func (o *openList) Pop() any {
	old := *o
	n := len(old)
	it := old[n-1]
	*o = old[:n-1]
	return it
}

// Find returns the shortest legal path of footprint anchors from start to
// goal, excluding start. nil means unreachable. Callers truncate the result
// to the mover's remaining movement budget.
func Find(env Env, start, goal grid.Pos, size int) []grid.Pos {
	if size < 1 {
		size = 1
	}
	if start == goal {
		return nil
	}
	if !env.anchorUsable(goal, size) {
		return nil
	}

	open := &openList{}
	heap.Init(open)
	seq := 0
	push := func(n *node) {
		n.seq = seq
		seq++
		heap.Push(open, n)
	}

	push(&node{pos: start, g: 0, f: grid.Manhattan(start, goal)})
	best := map[grid.Pos]int{start: 0}
	closed := map[grid.Pos]bool{}

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if closed[cur.pos] {
			continue
		}
		if cur.pos == goal {
			return rebuild(cur)
		}
		closed[cur.pos] = true

		for _, d := range grid.Dirs {
			next := cur.pos.Step(d)
			if closed[next] {
				continue
			}
			if !env.anchorUsable(next, size) {
				continue
			}
			if !env.Terrain.FootprintStepLegal(cur.pos, size, d) {
				continue
			}
			g := cur.g + 1
			if prev, ok := best[next]; ok && g >= prev {
				continue
			}
			best[next] = g
			push(&node{pos: next, g: g, f: g + grid.Manhattan(next, goal), parent: cur})
		}
	}
	return nil
}

func rebuild(n *node) []grid.Pos {
	count := 0
	for p := n; p.parent != nil; p = p.parent {
		count++
	}
	out := make([]grid.Pos, count)
	for p := n; p.parent != nil; p = p.parent {
		count--
		out[count] = p.pos
	}
	return out
}

// PreviewKey is the memoization signature for move previews: while the unit,
// its position, its spent steps and the hovered target are unchanged, the
// preview is served from cache instead of re-running the search.
type PreviewKey struct {
	UnitID string
	From   grid.Pos
	Steps  int
	Target grid.Pos
}

// Previewer memoizes the last preview computation.
type Previewer struct {
	key   PreviewKey
	path  []grid.Pos
	valid bool
}

// Path returns the preview path for key, recomputing only when the key
// differs from the cached one.
func (pv *Previewer) Path(env Env, key PreviewKey, size int) []grid.Pos {
	if pv.valid && pv.key == key {
		return pv.path
	}
	pv.key = key
	pv.path = Find(env, key.From, key.Target, size)
	pv.valid = true
	return pv.path
}

// Invalidate drops the cached preview; any terrain or occupancy mutation
// must call it.
func (pv *Previewer) Invalidate() { pv.valid = false }
