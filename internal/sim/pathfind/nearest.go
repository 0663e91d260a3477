package pathfind

import "gridnav.dev/internal/sim/grid"

// NearestOpen returns the closest in-bounds open cell to c by breadth-first
// expansion over king moves, searching at most maxRadius rings out. It is a
// caller-side retry helper; the search itself never substitutes endpoints.
func NearestOpen(g Grid, c grid.Coord, maxRadius int) (grid.Coord, bool) {
	if !g.InBounds(c) {
		return grid.Coord{}, false
	}
	if !g.IsBlocked(c) {
		return c, true
	}
	visited := map[grid.Coord]struct{}{c: {}}
	queue := []grid.Coord{c}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range neighborOffsets {
			np := grid.Coord{X: cur.X + d.dx, Y: cur.Y + d.dy}
			if !g.InBounds(np) || grid.Chebyshev(c, np) > maxRadius {
				continue
			}
			if _, seen := visited[np]; seen {
				continue
			}
			visited[np] = struct{}{}
			if !g.IsBlocked(np) {
				return np, true
			}
			queue = append(queue, np)
		}
	}
	return grid.Coord{}, false
}
