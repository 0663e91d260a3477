package world

import (
	"gridnav.dev/internal/persistence/snapshot"
)

// exportSnapshot must be called from the world loop goroutine or while the
// world is stopped.
func (w *World) exportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	g := w.Grid()
	ids := w.sortedEntityIDs()
	ents := make([]snapshot.EntityV1, 0, len(ids))
	for _, id := range ids {
		e := w.entities[id]
		ev := snapshot.EntityV1{
			ID:    e.ID,
			Name:  e.Name,
			Pos:   coordArr(e.Pos),
			Speed: e.Speed,
		}
		if e.Path != nil {
			sp := &snapshot.StoredPathV1{Target: coordArr(e.Path.Target)}
			for _, c := range e.Path.Waypoints.Slice() {
				sp.Waypoints = append(sp.Waypoints, coordArr(c))
			}
			ev.Path = sp
		}
		ents = append(ents, ev)
	}

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.CurrentVersion,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		DefaultSpeed:       w.cfg.DefaultSpeed,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		FollowerLostPolicy: w.cfg.FollowerLostPolicy,
		MaxExpanded:        w.cfg.MaxExpanded,
		CornerCutting:      w.cfg.CornerCutting,
		NearestRadius:      w.cfg.NearestRadius,
		Grid: snapshot.GridV1{
			Width:  g.Width(),
			Height: g.Height(),
			RLE:    g.Encode(),
		},
		Entities: ents,
		Counters: snapshot.CountersV1{
			NextEntity: w.nextEntity,
			NextJob:    w.nextJob,
		},
	}
}
