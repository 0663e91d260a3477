package world

import (
	"context"

	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/pathfind"
	"gridnav.dev/internal/sim/paths"
	"gridnav.dev/internal/sim/planner"
)

// searcher binds a search to the grid that is current right now. Later grid
// swaps do not affect it.
func (w *World) searcher() *pathfind.AStar {
	return pathfind.NewAStar(w.Grid(),
		pathfind.WithMaxExpanded(w.cfg.MaxExpanded),
		pathfind.WithCornerCutting(w.cfg.CornerCutting),
	)
}

// startPlan puts e into PLANNING toward target and issues the search. The
// entity stays put until the outcome is applied. A non-nil error means the
// planner refused the job; e is still PLANNING and the caller decides what
// happens to it.
func (w *World) startPlan(e *Entity, target grid.Coord) (planner.Job, error) {
	w.nextJob++
	job := planner.Job{
		ID:       w.nextJob,
		EntityID: e.ID,
		Start:    e.Pos,
		Target:   target,
	}
	e.Mode = ModePlanning
	e.Path = paths.NewStoredPath(target)
	e.Leader = nil
	e.planJob = job.ID

	switch {
	case w.cfg.ReplayPlans:
	case w.cfg.SyncPlanning || w.planner == nil:
		s := w.searcher()
		res, err := s.Search(context.Background(), job.Start, job.Target)
		w.readyPlans = append(w.readyPlans, planner.Outcome{Job: job, Result: res, Canceled: err != nil})
	default:
		job.Searcher = w.searcher()
		if _, err := w.planner.Submit(job); err != nil {
			return job, err
		}
	}
	return job, nil
}

// failBusy turns a refused job into an outcome applied at this tick's
// boundary, so the refusal lands in the tick log like any other result.
func (w *World) failBusy(job planner.Job) {
	w.readyPlans = append(w.readyPlans, planner.Outcome{Job: job, Busy: true})
}

// retryDeferred resubmits jobs the planner refused during snapshot import.
// Jobs whose entity moved on are dropped.
func (w *World) retryDeferred() {
	if len(w.deferred) == 0 || w.planner == nil {
		return
	}
	keep := w.deferred[:0]
	for _, job := range w.deferred {
		e := w.entities[job.EntityID]
		if e == nil || e.Mode != ModePlanning || e.planJob != job.ID {
			continue
		}
		job.Searcher = w.searcher()
		if _, err := w.planner.Submit(job); err != nil {
			keep = append(keep, job)
		}
	}
	w.deferred = keep
}

func recordOutcome(out planner.Outcome) RecordedPlan {
	rp := RecordedPlan{
		JobID:     out.Job.ID,
		EntityID:  out.Job.EntityID,
		Found:     out.Result.Found,
		Cost:      out.Result.Cost,
		Expanded:  out.Result.Expanded,
		Exhausted: out.Result.Exhausted,
		TimedOut:  out.TimedOut,
		Canceled:  out.Canceled,
		Busy:      out.Busy,
	}
	if out.Result.Found {
		rp.Path = make([][2]int, len(out.Result.Path))
		for i, c := range out.Result.Path {
			rp.Path[i] = coordArr(c)
		}
	}
	return rp
}

// applyOutcomes resolves finished searches in arrival order. Outcomes for
// jobs the entity no longer waits on are dropped and not recorded.
func (w *World) applyOutcomes(outs []planner.Outcome, nowTick uint64) []RecordedPlan {
	var recorded []RecordedPlan
	for _, out := range outs {
		e := w.entities[out.Job.EntityID]
		if e == nil || e.Mode != ModePlanning || e.planJob != out.Job.ID {
			continue
		}
		rp := recordOutcome(out)
		if !rp.Busy {
			w.writeAudit(nowTick, e, out, rp)
		}
		w.applyPlan(e, rp, nowTick)
		recorded = append(recorded, rp)
	}
	return recorded
}

// applyRecorded is the replay counterpart of applyOutcomes.
func (w *World) applyRecorded(plans []RecordedPlan, nowTick uint64) []RecordedPlan {
	var recorded []RecordedPlan
	for _, rp := range plans {
		e := w.entities[rp.EntityID]
		if e == nil || e.Mode != ModePlanning || e.planJob != rp.JobID {
			continue
		}
		w.applyPlan(e, rp, nowTick)
		recorded = append(recorded, rp)
	}
	return recorded
}

func (w *World) applyPlan(e *Entity, rp RecordedPlan, nowTick uint64) {
	e.planJob = 0
	if rp.Busy {
		w.totals.plansFailed++
		w.taskFail(nowTick, e, protocol.ErrBusy, "planner busy")
		w.resetToIdle(e)
		return
	}
	if !rp.Found {
		reason := "unreachable"
		switch {
		case rp.Canceled:
			reason = "canceled"
		case rp.TimedOut:
			reason = "search timed out"
		case rp.Exhausted:
			reason = "search budget exhausted"
		}
		w.totals.plansFailed++
		w.taskFail(nowTick, e, protocol.ErrNoPath, reason)
		w.resetToIdle(e)
		return
	}
	w.totals.plansFound++

	route := make(pathfind.Path, len(rp.Path))
	for i, c := range rp.Path {
		route[i] = coordFrom(c)
	}
	if len(route) == 0 {
		w.taskDone(nowTick, e)
		return
	}
	e.Path.Assign(route)
	e.Leader = paths.NewLeaderControl(paths.EntityID(e.ID), e.Path.Target, route)
	e.Mode = ModeFollowing
	w.emit(protocol.Event{
		"t":         nowTick,
		"type":      protocol.EventPlanOK,
		"entity_id": e.ID,
		"ref":       e.taskRef,
		"target":    coordArr(e.Path.Target),
		"len":       len(route),
		"cost":      rp.Cost,
	})
}

func (w *World) writeAudit(nowTick uint64, e *Entity, out planner.Outcome, rp RecordedPlan) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(AuditEntry{
		Tick:      nowTick,
		EntityID:  e.ID,
		JobID:     rp.JobID,
		Start:     coordArr(out.Job.Start),
		Target:    coordArr(out.Job.Target),
		Found:     rp.Found,
		Cost:      rp.Cost,
		Len:       len(rp.Path),
		Expanded:  rp.Expanded,
		Exhausted: rp.Exhausted,
		TimedOut:  rp.TimedOut,
		Canceled:  rp.Canceled,
		Micros:    out.Took.Microseconds(),
	})
}

// drainPlanner collects whatever the planner has finished without blocking.
func (w *World) drainPlanner(into []planner.Outcome) []planner.Outcome {
	if w.planner == nil {
		return into
	}
	ch := w.planner.Results()
	for {
		select {
		case out := <-ch:
			into = append(into, out)
		default:
			return into
		}
	}
}
