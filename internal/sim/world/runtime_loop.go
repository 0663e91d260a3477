package world

import (
	"context"
	"time"

	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/planner"
)

// StepInput is everything that enters the world at one tick boundary.
type StepInput struct {
	Joins    []JoinRequest
	Leaves   []string
	Grid     *grid.Grid
	Commands []CommandEnvelope
	// Plans is only consulted when the world runs with ReplayPlans.
	Plans []RecordedPlan
}

func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.tickInterval())
	defer ticker.Stop()

	var results <-chan planner.Outcome
	if w.planner != nil && !w.cfg.SyncPlanning && !w.cfg.ReplayPlans {
		results = w.planner.Results()
	}

	var in StepInput
	var pendingAdmin []snapshotReq
	var pendingGrid []setGridReq
	var pendingOutcomes []planner.Outcome

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			in.Joins = append(in.Joins, req)
		case id := <-w.leave:
			in.Leaves = append(in.Leaves, id)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case req := <-w.gridReq:
			pendingGrid = append(pendingGrid, req)
		case req := <-w.stateReq:
			w.handleStateReq(req)
		case out := <-results:
			pendingOutcomes = append(pendingOutcomes, out)
		case env := <-w.inbox:
			in.Commands = append(in.Commands, env)
		case <-ticker.C:
			// Last request wins when several grids arrive within one tick.
			if n := len(pendingGrid); n > 0 {
				in.Grid = pendingGrid[n-1].Grid
			}
			w.readyPlans = append(w.readyPlans, pendingOutcomes...)
			w.stepInternal(in)
			answerGridRequests(pendingGrid, w.tick.Load()-1)
			w.answerSnapshotRequests(pendingAdmin)

			in = StepInput{
				Joins:    in.Joins[:0],
				Leaves:   in.Leaves[:0],
				Commands: in.Commands[:0],
			}
			pendingAdmin = pendingAdmin[:0]
			pendingGrid = pendingGrid[:0]
			pendingOutcomes = pendingOutcomes[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as Run. It is meant for deterministic replays and tests; with an
// asynchronous planner attached it collects whatever outcomes are ready.
func (w *World) StepOnce(in StepInput) (tick uint64, digest string) {
	tick = w.tick.Load()
	if !w.cfg.SyncPlanning && !w.cfg.ReplayPlans {
		w.readyPlans = w.drainPlanner(w.readyPlans)
	}
	w.stepInternal(in)
	return tick, w.stateDigest(tick)
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
