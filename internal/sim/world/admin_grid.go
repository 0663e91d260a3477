package world

import (
	"context"

	"gridnav.dev/internal/sim/grid"
)

type setGridReq struct {
	Grid *grid.Grid
	Resp chan uint64
}

// SetGrid replaces the obstruction grid at the next tick boundary and returns
// the tick it took effect on. Routes already assigned are not re-planned; a
// leader whose next waypoint becomes blocked fails with E_BLOCKED.
func (w *World) SetGrid(ctx context.Context, g *grid.Grid) (uint64, error) {
	if g == nil {
		return 0, ErrNilGrid
	}
	req := setGridReq{Grid: g, Resp: make(chan uint64, 1)}
	select {
	case w.gridReq <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case tick := <-req.Resp:
		return tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func answerGridRequests(reqs []setGridReq, tick uint64) {
	for _, r := range reqs {
		select {
		case r.Resp <- tick:
		default:
		}
	}
}
