package pathfind

import "gridnav.dev/internal/sim/grid"

// Path lists the cells visited after leaving start, ending at the target.
// The start cell is never included; a search whose start equals its target
// yields an empty, non-nil Path.
type Path []grid.Coord

// Cost sums step costs from start along the path. It returns -1 if any two
// consecutive cells are not adjacent.
func (p Path) Cost(start grid.Coord) int {
	total := 0
	prev := start
	for _, c := range p {
		s := StepCost(prev, c)
		if s < 0 {
			return -1
		}
		total += s
		prev = c
	}
	return total
}

func (p Path) Last() (grid.Coord, bool) {
	if len(p) == 0 {
		return grid.Coord{}, false
	}
	return p[len(p)-1], true
}

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}
