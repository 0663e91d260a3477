package pathfind

import (
	"container/heap"
	"context"

	"gridnav.dev/internal/sim/grid"
)

// Grid is the read-only view a search needs. IsBlocked must report true for
// out-of-bounds cells.
type Grid interface {
	IsBlocked(c grid.Coord) bool
	InBounds(c grid.Coord) bool
}

// Pathfinder finds a route between two cells. ok is false when no route
// exists; err is non-nil only when ctx ended the search.
type Pathfinder interface {
	FindPath(ctx context.Context, start, target grid.Coord) (path Path, ok bool, err error)
}

type Result struct {
	Path     Path
	Found    bool
	Cost     int
	Expanded int
	// Exhausted is set when the expansion budget ran out before the target
	// was finalized.
	Exhausted bool
}

// startSeed is the g value of the start node. Reported costs subtract it.
const startSeed = 1

const ctxCheckEvery = 256

type Option func(*AStar)

// WithMaxExpanded caps the number of nodes moved to the closed set. n <= 0
// means unbounded.
func WithMaxExpanded(n int) Option {
	return func(a *AStar) { a.maxExpanded = n }
}

// WithCornerCutting controls whether a diagonal step may squeeze between two
// blocked orthogonal neighbours. Allowed by default.
func WithCornerCutting(allow bool) Option {
	return func(a *AStar) { a.cornerCutting = allow }
}

// AStar is an 8-directional grid search with 10/14 step costs and an octile
// heuristic. It holds no per-search state and is safe for concurrent use as
// long as the grid is not mutated.
type AStar struct {
	grid          Grid
	maxExpanded   int
	cornerCutting bool
}

func NewAStar(g Grid, opts ...Option) *AStar {
	a := &AStar{grid: g, cornerCutting: true}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *AStar) FindPath(ctx context.Context, start, target grid.Coord) (Path, bool, error) {
	res, err := a.Search(ctx, start, target)
	if err != nil {
		return nil, false, err
	}
	return res.Path, res.Found, nil
}

// Search runs one query. Out-of-bounds endpoints and a blocked target fold
// into a not-found result without expanding anything. A blocked start is
// searched from like any other cell.
func (a *AStar) Search(ctx context.Context, start, target grid.Coord) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !a.grid.InBounds(start) || !a.grid.InBounds(target) || a.grid.IsBlocked(target) {
		return Result{}, nil
	}
	if start == target {
		return Result{Path: Path{}, Found: true}, nil
	}

	open := &openSet{}
	inOpen := make(map[grid.Coord]*searchNode)
	closed := make(map[grid.Coord]*searchNode)
	bestG := make(map[grid.Coord]int)
	var seq uint64

	h0 := Octile(start, target)
	first := &searchNode{pos: start, parent: start, g: startSeed, h: h0, f: startSeed + h0}
	heap.Push(open, first)
	inOpen[start] = first
	bestG[start] = startSeed

	expanded := 0
	for open.Len() > 0 {
		if expanded%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		cur := heap.Pop(open).(*searchNode)
		delete(inOpen, cur.pos)
		closed[cur.pos] = cur
		expanded++

		if cur.pos == target {
			path := reconstruct(closed, cur)
			return Result{Path: path, Found: true, Cost: cur.g - startSeed, Expanded: expanded}, nil
		}
		if a.maxExpanded > 0 && expanded >= a.maxExpanded {
			return Result{Expanded: expanded, Exhausted: true}, nil
		}

		for _, d := range neighborOffsets {
			np := grid.Coord{X: cur.pos.X + d.dx, Y: cur.pos.Y + d.dy}
			if !a.grid.InBounds(np) || a.grid.IsBlocked(np) {
				continue
			}
			if _, done := closed[np]; done {
				continue
			}
			if d.diagonal && !a.cornerCutting && !a.canCutDiagonal(cur.pos, d) {
				continue
			}
			g := cur.g + d.cost
			if prev, seen := bestG[np]; seen && prev <= g {
				continue
			}
			bestG[np] = g
			if n, ok := inOpen[np]; ok {
				n.g = g
				n.f = g + n.h
				n.parent = cur.pos
				heap.Fix(open, n.index)
				continue
			}
			h := Octile(np, target)
			seq++
			n := &searchNode{pos: np, parent: cur.pos, g: g, h: h, f: g + h, seq: seq}
			heap.Push(open, n)
			inOpen[np] = n
		}
	}
	return Result{Expanded: expanded}, nil
}

func (a *AStar) canCutDiagonal(from grid.Coord, d neighbor) bool {
	horiz := grid.Coord{X: from.X + d.dx, Y: from.Y}
	vert := grid.Coord{X: from.X, Y: from.Y + d.dy}
	return !a.grid.IsBlocked(horiz) && !a.grid.IsBlocked(vert)
}

// reconstruct walks parent links until the start sentinel, whose parent is
// itself. The sentinel is not part of the path.
func reconstruct(closed map[grid.Coord]*searchNode, end *searchNode) Path {
	var rev []grid.Coord
	for n := end; n.parent != n.pos; n = closed[n.parent] {
		rev = append(rev, n.pos)
	}
	path := make(Path, len(rev))
	for i, c := range rev {
		path[len(rev)-1-i] = c
	}
	return path
}
