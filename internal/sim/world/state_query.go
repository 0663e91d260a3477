package world

import (
	"context"

	"gridnav.dev/internal/protocol"
)

type stateReq struct {
	EntityID string
	Resp     chan StateView
}

// StateView is a point-in-time copy of the entity table.
type StateView struct {
	Tick     uint64                 `json:"tick"`
	Entities []protocol.EntityState `json:"entities"`
}

// QueryState returns the current entities, or only entityID when it is set.
// It is answered by the world goroutine between ticks.
func (w *World) QueryState(ctx context.Context, entityID string) (StateView, error) {
	req := stateReq{EntityID: entityID, Resp: make(chan StateView, 1)}
	select {
	case w.stateReq <- req:
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
	select {
	case v := <-req.Resp:
		return v, nil
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
}

func (w *World) handleStateReq(req stateReq) {
	v := w.stateView(req.EntityID)
	select {
	case req.Resp <- v:
	default:
	}
}

func (w *World) stateView(entityID string) StateView {
	v := StateView{Tick: w.tick.Load(), Entities: []protocol.EntityState{}}
	if entityID != "" {
		if e := w.entities[entityID]; e != nil {
			v.Entities = append(v.Entities, e.state())
		}
		return v
	}
	for _, id := range w.sortedEntityIDs() {
		v.Entities = append(v.Entities, w.entities[id].state())
	}
	return v
}
