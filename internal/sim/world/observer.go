package world

import (
	"encoding/json"

	"gridnav.dev/internal/observerproto"
)

type observerClient struct {
	id           string
	tickOut      chan []byte
	includePaths bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:           req.SessionID,
		tickOut:      req.TickOut,
		includePaths: req.IncludePaths,
	}
}

func (w *World) handleObserverLeave(id string) {
	c := w.observers[id]
	if c == nil {
		return
	}
	delete(w.observers, id)
	close(c.tickOut)
}

func (w *World) stepObservers(nowTick uint64, ids []string) {
	if len(w.observers) == 0 {
		return
	}
	digest := w.Grid().Digest()

	var plain, withPaths []byte
	build := func(paths bool) []byte {
		msg := observerproto.TickMsg{
			Type:            "TICK",
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			GridDigest:      digest,
			Entities:        make([]observerproto.EntityState, 0, len(ids)),
		}
		for _, id := range ids {
			e := w.entities[id]
			st := observerproto.EntityState{
				ID:   e.ID,
				Name: e.Name,
				Pos:  coordArr(e.Pos),
				Mode: string(e.Mode),
			}
			if e.Follow != nil {
				st.LeaderID = string(e.Follow.LeaderID)
			}
			if paths && e.Leader != nil {
				for _, c := range e.Leader.Waypoints.Slice() {
					st.Path = append(st.Path, coordArr(c))
				}
			}
			msg.Entities = append(msg.Entities, st)
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return nil
		}
		return b
	}

	for _, c := range w.observers {
		var b []byte
		if c.includePaths {
			if withPaths == nil {
				withPaths = build(true)
			}
			b = withPaths
		} else {
			if plain == nil {
				plain = build(false)
			}
			b = plain
		}
		if b != nil {
			sendLatest(c.tickOut, b)
		}
	}
}
