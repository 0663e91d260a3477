package world

import (
	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/pathfind"
	"gridnav.dev/internal/sim/paths"
)

func (w *World) applyCommand(env CommandEnvelope, nowTick uint64) {
	switch env.Cmd.Op {
	case protocol.OpSpawn:
		w.cmdSpawn(env, nowTick)
	case protocol.OpDespawn:
		w.cmdDespawn(env, nowTick)
	case protocol.OpMove:
		w.cmdMove(env, nowTick)
	case protocol.OpFollow:
		w.cmdFollow(env, nowTick)
	case protocol.OpDetach:
		w.cmdDetach(env, nowTick)
	case protocol.OpStop:
		w.cmdStop(env, nowTick)
	default:
		w.actionResult(nowTick, env, protocol.ErrBadRequest, "unknown op", nil)
	}
}

func (w *World) lookup(env CommandEnvelope, nowTick uint64) *Entity {
	e := w.entities[env.Cmd.EntityID]
	if e == nil {
		w.actionResult(nowTick, env, protocol.ErrInvalidTarget, "entity not found", nil)
	}
	return e
}

func (w *World) cmdSpawn(env CommandEnvelope, nowTick uint64) {
	c := env.Cmd
	if c.Pos == nil {
		w.actionResult(nowTick, env, protocol.ErrBadRequest, "missing pos", nil)
		return
	}
	if len(w.entities) >= w.cfg.MaxEntities {
		w.actionResult(nowTick, env, protocol.ErrBusy, "entity limit reached", nil)
		return
	}
	pos := grid.FromFloat(c.Pos[0], c.Pos[1])
	g := w.Grid()
	if !g.InBounds(pos) {
		w.actionResult(nowTick, env, protocol.ErrInvalidTarget, "spawn out of bounds", nil)
		return
	}
	if g.IsBlocked(pos) {
		w.actionResult(nowTick, env, protocol.ErrBlocked, "spawn cell blocked", nil)
		return
	}
	speed := c.Speed
	if speed <= 0 {
		speed = w.cfg.DefaultSpeed
	}
	name := c.Name
	if name == "" {
		name = "unit"
	}
	e := &Entity{ID: w.newEntityID(), Name: name, Pos: pos, Speed: speed, Mode: ModeIdle}
	w.entities[e.ID] = e
	w.actionResult(nowTick, env, "", "", protocol.Event{"entity_id": e.ID, "pos": coordArr(pos)})
}

func (w *World) cmdDespawn(env CommandEnvelope, nowTick uint64) {
	e := w.lookup(env, nowTick)
	if e == nil {
		return
	}
	w.resetToIdle(e)
	delete(w.entities, e.ID)
	w.actionResult(nowTick, env, "", "", protocol.Event{"entity_id": e.ID})
}

func (w *World) cmdMove(env CommandEnvelope, nowTick uint64) {
	c := env.Cmd
	e := w.lookup(env, nowTick)
	if e == nil {
		return
	}
	if c.Target == nil {
		w.actionResult(nowTick, env, protocol.ErrBadRequest, "missing target", nil)
		return
	}
	target := grid.FromFloat(c.Target[0], c.Target[1])
	g := w.Grid()
	if c.Nearest && g.InBounds(target) && g.IsBlocked(target) {
		if alt, ok := pathfind.NearestOpen(g, target, w.cfg.NearestRadius); ok {
			target = alt
		}
	}

	// A move always replaces whatever the entity was doing, including
	// following another entity.
	w.resetToIdle(e)
	job, err := w.startPlan(e, target)
	if err != nil {
		w.failBusy(job)
	}
	e.taskRef = c.CmdID
	e.taskSession = env.SessionID
	w.actionResult(nowTick, env, "", "", protocol.Event{
		"entity_id": e.ID,
		"job_id":    job.ID,
		"target":    coordArr(target),
	})
}

func (w *World) cmdFollow(env CommandEnvelope, nowTick uint64) {
	c := env.Cmd
	e := w.lookup(env, nowTick)
	if e == nil {
		return
	}
	leader := w.entities[c.LeaderID]
	switch {
	case leader == nil:
		w.actionResult(nowTick, env, protocol.ErrInvalidTarget, "leader not found", nil)
		return
	case leader.ID == e.ID:
		w.actionResult(nowTick, env, protocol.ErrBadRequest, "entity cannot follow itself", nil)
		return
	case leader.Mode == ModeFollower:
		w.actionResult(nowTick, env, protocol.ErrConflict, "leader is itself following", nil)
		return
	case w.hasFollowers(e.ID):
		w.actionResult(nowTick, env, protocol.ErrConflict, "entity has followers", nil)
		return
	}

	offset := e.Pos.Sub(leader.Pos)
	if c.Offset != nil {
		offset = grid.C(c.Offset[0], c.Offset[1])
	}
	w.resetToIdle(e)
	e.Follow = &paths.FollowerControl{LeaderID: paths.EntityID(leader.ID), Offset: offset}
	e.Mode = ModeFollower
	w.actionResult(nowTick, env, "", "", protocol.Event{
		"entity_id": e.ID,
		"leader_id": leader.ID,
		"offset":    coordArr(offset),
	})
}

func (w *World) cmdDetach(env CommandEnvelope, nowTick uint64) {
	e := w.lookup(env, nowTick)
	if e == nil {
		return
	}
	if e.Mode != ModeFollower {
		w.actionResult(nowTick, env, protocol.ErrBadRequest, "entity is not following", nil)
		return
	}
	w.resetToIdle(e)
	w.actionResult(nowTick, env, "", "", protocol.Event{"entity_id": e.ID})
}

func (w *World) cmdStop(env CommandEnvelope, nowTick uint64) {
	e := w.lookup(env, nowTick)
	if e == nil {
		return
	}
	if e.Mode == ModeFollower {
		w.actionResult(nowTick, env, protocol.ErrBadRequest, "use DETACH for followers", nil)
		return
	}
	w.resetToIdle(e)
	w.actionResult(nowTick, env, "", "", protocol.Event{"entity_id": e.ID, "pos": coordArr(e.Pos)})
}
