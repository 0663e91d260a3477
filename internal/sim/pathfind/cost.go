package pathfind

import "gridnav.dev/internal/sim/grid"

const (
	OrthogonalCost = 10
	DiagonalCost   = 14
)

type neighbor struct {
	dx, dy   int
	cost     int
	diagonal bool
}

// Expansion order is part of the tie-break contract: equal-priority nodes are
// popped in insertion order, and insertion follows this table.
var neighborOffsets = [...]neighbor{
	{dx: 0, dy: -1, cost: OrthogonalCost},
	{dx: 1, dy: 0, cost: OrthogonalCost},
	{dx: 0, dy: 1, cost: OrthogonalCost},
	{dx: -1, dy: 0, cost: OrthogonalCost},
	{dx: 1, dy: -1, cost: DiagonalCost, diagonal: true},
	{dx: 1, dy: 1, cost: DiagonalCost, diagonal: true},
	{dx: -1, dy: 1, cost: DiagonalCost, diagonal: true},
	{dx: -1, dy: -1, cost: DiagonalCost, diagonal: true},
}

// Octile is the exact 10/14 cost between two cells on an open grid.
func Octile(a, b grid.Coord) int {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	if dx < dy {
		dx, dy = dy, dx
	}
	return OrthogonalCost*dx + (DiagonalCost-OrthogonalCost)*dy
}

// StepCost returns the cost of a single move between adjacent cells, 0 for a
// zero-length move and -1 when b is not a king move away from a.
func StepCost(a, b grid.Coord) int {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	switch {
	case dx == 0 && dy == 0:
		return 0
	case dx > 1 || dy > 1:
		return -1
	case dx == 1 && dy == 1:
		return DiagonalCost
	default:
		return OrthogonalCost
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
