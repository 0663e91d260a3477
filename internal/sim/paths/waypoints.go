package paths

import (
	"gopkg.in/eapache/queue.v1"

	"gridnav.dev/internal/sim/grid"
)

// Waypoints is a FIFO of cells. The zero value is an empty queue.
type Waypoints struct {
	q *queue.Queue
}

func NewWaypoints(cells []grid.Coord) Waypoints {
	w := Waypoints{}
	for _, c := range cells {
		w.Push(c)
	}
	return w
}

func (w *Waypoints) Push(c grid.Coord) {
	if w.q == nil {
		w.q = queue.New()
	}
	w.q.Add(c)
}

func (w *Waypoints) Len() int {
	if w.q == nil {
		return 0
	}
	return w.q.Length()
}

func (w *Waypoints) Peek() (grid.Coord, bool) {
	if w.Len() == 0 {
		return grid.Coord{}, false
	}
	return w.q.Peek().(grid.Coord), true
}

func (w *Waypoints) Pop() (grid.Coord, bool) {
	if w.Len() == 0 {
		return grid.Coord{}, false
	}
	return w.q.Remove().(grid.Coord), true
}

func (w *Waypoints) Clear() { w.q = nil }

// Slice returns the remaining cells head first.
func (w *Waypoints) Slice() []grid.Coord {
	n := w.Len()
	if n == 0 {
		return nil
	}
	out := make([]grid.Coord, n)
	for i := 0; i < n; i++ {
		out[i] = w.q.Get(i).(grid.Coord)
	}
	return out
}

// Clone copies the queue. Elements are plain values.
func (w *Waypoints) Clone() Waypoints {
	return NewWaypoints(w.Slice())
}
