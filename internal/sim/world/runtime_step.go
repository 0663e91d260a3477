package world

import (
	"encoding/json"
	"time"

	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/protocol"
)

func (w *World) stepInternal(in StepInput) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	w.broadcast = w.broadcast[:0]
	for k := range w.direct {
		delete(w.direct, k)
	}

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(in.Leaves))
	for _, id := range in.Leaves {
		if _, ok := w.clients[id]; ok {
			delete(w.clients, id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(in.Joins))
	for _, req := range in.Joins {
		resp := w.joinSession(req.Name, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{SessionID: resp.Welcome.SessionID, Name: req.Name})
	}

	// Grid swaps land before commands so every search issued this tick sees
	// the new grid. Searches already in flight keep the grid they started on.
	var recordedGrid *snapshot.GridV1
	if in.Grid != nil {
		w.grid.Store(in.Grid)
		recordedGrid = &snapshot.GridV1{Width: in.Grid.Width(), Height: in.Grid.Height(), RLE: in.Grid.Encode()}
		w.emit(protocol.Event{
			"t":           nowTick,
			"type":        protocol.EventGridChanged,
			"grid_digest": in.Grid.Digest(),
		})
	}

	if !w.cfg.ReplayPlans {
		w.retryDeferred()
	}

	// Commands in server receive order.
	recordedCmds := make([]RecordedCommand, 0, len(in.Commands))
	for _, env := range in.Commands {
		recordedCmds = append(recordedCmds, RecordedCommand{SessionID: env.SessionID, Cmd: env.Cmd})
		w.applyCommand(env, nowTick)
	}

	// Plan outcomes, then leaders, then followers.
	var recordedPlans []RecordedPlan
	if w.cfg.ReplayPlans {
		recordedPlans = w.applyRecorded(in.Plans, nowTick)
	} else {
		ready := w.readyPlans
		w.readyPlans = nil
		recordedPlans = w.applyOutcomes(ready, nowTick)
	}
	ids := w.sortedEntityIDs()
	w.advanceLeaders(nowTick, ids)
	w.updateFollowers(nowTick, ids)

	w.sendStates(nowTick, ids)
	w.stepObservers(nowTick, ids)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:     nowTick,
			Joins:    recordedJoins,
			Leaves:   recordedLeaves,
			Grid:     recordedGrid,
			Commands: recordedCmds,
			Plans:    recordedPlans,
			Digest:   digest,
		})
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, stepMS)
}

func (w *World) sendStates(nowTick uint64, ids []string) {
	if len(w.clients) == 0 {
		return
	}
	entities := make([]protocol.EntityState, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, w.entities[id].state())
	}
	for sid, cl := range w.clients {
		if cl.out == nil {
			continue
		}
		events := make([]protocol.Event, 0, len(w.broadcast)+len(w.direct[sid]))
		events = append(events, w.direct[sid]...)
		events = append(events, w.broadcast...)
		msg := protocol.StateMsg{
			Type:            protocol.TypeState,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			Entities:        entities,
			Events:          events,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(cl.out, b)
	}
}
