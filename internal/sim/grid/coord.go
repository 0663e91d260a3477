package grid

import (
	"fmt"
	"math"
)

// Coord is a discrete cell index. It is comparable and safe to use as a map key.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func C(x, y int) Coord { return Coord{X: x, Y: y} }

// FromFloat discards sub-cell precision. Negative inputs floor toward -inf so
// that (-0.5, 0) lands in cell (-1, 0) rather than the origin.
func FromFloat(x, y float64) Coord {
	return Coord{X: int(math.Floor(x)), Y: int(math.Floor(y))}
}

func (c Coord) Add(o Coord) Coord { return Coord{X: c.X + o.X, Y: c.Y + o.Y} }
func (c Coord) Sub(o Coord) Coord { return Coord{X: c.X - o.X, Y: c.Y - o.Y} }

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Chebyshev is the number of king moves between two cells.
func Chebyshev(a, b Coord) int {
	dx, dy := absInt(a.X-b.X), absInt(a.Y-b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
