package world

import (
	"context"
	"testing"
	"time"

	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/planner"
)

type stubPlanner struct {
	jobs     []planner.Job
	canceled []uint64
	results  chan planner.Outcome
	err      error
	// limit refuses submissions past this many accepted jobs when non-zero.
	limit int
}

func newStubPlanner() *stubPlanner {
	return &stubPlanner{results: make(chan planner.Outcome, 8)}
}

func (s *stubPlanner) Submit(job planner.Job) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.limit > 0 && len(s.jobs) >= s.limit {
		return nil, planner.ErrBusy
	}
	s.jobs = append(s.jobs, job)
	return func() {}, nil
}

func (s *stubPlanner) Cancel(id uint64)                { s.canceled = append(s.canceled, id) }
func (s *stubPlanner) Results() <-chan planner.Outcome { return s.results }
func (s *stubPlanner) Stats() planner.Stats            { return planner.Stats{Queued: len(s.results)} }

func (s *stubPlanner) finish(t *testing.T, job planner.Job) {
	t.Helper()
	res, err := job.Searcher.Search(context.Background(), job.Start, job.Target)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	s.results <- planner.Outcome{Job: job, Result: res}
}

func TestPlanning_StaleOutcomeIsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.SyncPlanning = false
	env := newTestEnv(t, cfg, openRows(6, 6)...)
	stub := newStubPlanner()
	env.w.SetPlanner(stub)

	env.step(env.spawn(0, 0))
	env.step(env.move("E000001", 5, 0))
	e := env.entity("E000001")
	if e.Mode != ModePlanning || len(stub.jobs) != 1 {
		t.Fatalf("expected one outstanding job, mode=%s jobs=%d", e.Mode, len(stub.jobs))
	}

	env.step(env.move("E000001", 0, 5))
	if len(stub.canceled) != 1 || stub.canceled[0] != stub.jobs[0].ID {
		t.Fatalf("first job not canceled: %v", stub.canceled)
	}
	if len(stub.jobs) != 2 {
		t.Fatalf("second job not submitted")
	}

	stub.finish(t, stub.jobs[0])
	env.step()
	if e.Mode != ModePlanning || e.Pos != grid.C(0, 0) || e.Path.Target != grid.C(0, 5) {
		t.Fatalf("stale outcome applied: mode=%s pos=%v", e.Mode, e.Pos)
	}
	if len(env.events(protocol.EventPlanOK)) != 0 {
		t.Fatalf("stale outcome produced events: %v", env.last.Events)
	}

	stub.finish(t, stub.jobs[1])
	env.step()
	if e.Mode != ModeFollowing || e.Pos != grid.C(0, 1) {
		t.Fatalf("current outcome not applied: mode=%s pos=%v", e.Mode, e.Pos)
	}
}

func TestPlanning_SubmitFailureFailsTaskAndReplays(t *testing.T) {
	cfg := testConfig()
	cfg.SyncPlanning = false
	env := newTestEnv(t, cfg, openRows(4, 4)...)
	stub := newStubPlanner()
	stub.err = planner.ErrBusy
	env.w.SetPlanner(stub)
	log := &memTickLog{}
	env.w.SetTickLogger(log)

	env.step(env.spawn(0, 0))
	m := env.move("E000001", 3, 3)
	env.step(m)
	if ev := env.result(m.CmdID); ev["ok"] != true {
		t.Fatalf("move should be accepted, got %v", ev)
	}
	fails := env.events(protocol.EventTaskFail)
	if len(fails) != 1 || fails[0]["code"] != protocol.ErrBusy || fails[0]["ref"] != m.CmdID {
		t.Fatalf("expected TASK_FAIL E_BUSY for %s, got %v", m.CmdID, env.last.Events)
	}
	if e := env.entity("E000001"); e.Mode != ModeIdle || e.Path != nil {
		t.Fatalf("entity left in %s", e.Mode)
	}
	if plans := log.entries[1].Plans; len(plans) != 1 || !plans[0].Busy {
		t.Fatalf("refusal not in tick log: %+v", plans)
	}

	rcfg := testConfig()
	rcfg.SyncPlanning = false
	rcfg.ReplayPlans = true
	replay := newTestEnv(t, rcfg, openRows(4, 4)...)
	for _, entry := range log.entries {
		in := StepInput{Plans: entry.Plans}
		for _, rc := range entry.Commands {
			in.Commands = append(in.Commands, CommandEnvelope{SessionID: rc.SessionID, Cmd: rc.Cmd})
		}
		if _, digest := replay.w.StepOnce(in); digest != entry.Digest {
			t.Fatalf("tick %d: replay digest %s, recorded %s", entry.Tick, digest, entry.Digest)
		}
	}
	if e := replay.entity("E000001"); e.Mode != ModeIdle {
		t.Fatalf("replayed entity left in %s", e.Mode)
	}
}

func TestPlanning_ImportDefersRefusedReplans(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(10, 5)...)
	env.step(env.spawn(0, 0), env.spawn(0, 4))
	env.step(env.move("E000001", 9, 0), env.move("E000002", 9, 4))
	snap := env.w.ExportSnapshot(env.w.CurrentTick() - 1)
	for _, ev := range snap.Entities {
		if ev.Path == nil {
			t.Fatalf("stored path missing for %s", ev.ID)
		}
		ev.Path.Waypoints = nil
	}

	cfg := testConfig()
	cfg.SyncPlanning = false
	placeholder, _ := grid.New(1, 1)
	w, err := New(cfg, placeholder)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	stub := newStubPlanner()
	stub.limit = 1
	w.SetPlanner(stub)
	if err := w.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}

	second := w.entities["E000002"]
	if second.Mode != ModePlanning || second.Path == nil || second.Path.Target != grid.C(9, 4) {
		t.Fatalf("refused entity lost its target: mode=%s path=%v", second.Mode, second.Path)
	}
	if len(stub.jobs) != 1 {
		t.Fatalf("expected one accepted job, got %d", len(stub.jobs))
	}

	rcfg := testConfig()
	rcfg.SyncPlanning = false
	rcfg.ReplayPlans = true
	replay := restore(t, rcfg, snap)
	tick := w.CurrentTick() - 1
	if got, want := w.stateDigest(tick), replay.stateDigest(tick); got != want {
		t.Fatalf("digest after import %s, replay %s", got, want)
	}

	log := &memTickLog{}
	w.SetTickLogger(log)
	stub.limit = 0
	w.StepOnce(StepInput{})
	if len(stub.jobs) != 2 || stub.jobs[1].ID != second.planJob || stub.jobs[1].EntityID != second.ID {
		t.Fatalf("deferred job not resubmitted: %+v", stub.jobs)
	}
	if second.Mode != ModePlanning || len(w.deferred) != 0 {
		t.Fatalf("after retry: mode=%s deferred=%d", second.Mode, len(w.deferred))
	}

	stub.finish(t, stub.jobs[1])
	w.StepOnce(StepInput{})
	if second.Mode != ModeFollowing {
		t.Fatalf("resumed plan not applied: mode=%s", second.Mode)
	}

	for _, entry := range log.entries {
		if _, digest := replay.StepOnce(StepInput{Plans: entry.Plans}); digest != entry.Digest {
			t.Fatalf("tick %d: replay digest %s, recorded %s", entry.Tick, digest, entry.Digest)
		}
	}
}

func TestPlanning_StopCancelsSearch(t *testing.T) {
	cfg := testConfig()
	cfg.SyncPlanning = false
	env := newTestEnv(t, cfg, openRows(4, 4)...)
	stub := newStubPlanner()
	env.w.SetPlanner(stub)

	env.step(env.spawn(0, 0))
	env.step(env.move("E000001", 3, 3))
	s := env.cmd(protocol.OpStop)
	s.EntityID = "E000001"
	env.step(s)
	if len(stub.canceled) != 1 {
		t.Fatalf("stop did not cancel the search")
	}
	stub.finish(t, stub.jobs[0])
	env.step()
	if e := env.entity("E000001"); e.Mode != ModeIdle || e.Pos != grid.C(0, 0) {
		t.Fatalf("entity after stop: mode=%s pos=%v", e.Mode, e.Pos)
	}
}

func TestPlanning_AsyncPlannerDrivesMove(t *testing.T) {
	cfg := testConfig()
	cfg.SyncPlanning = false
	env := newTestEnv(t, cfg, openRows(8, 8)...)

	p := planner.New(planner.Config{Workers: 2, Queue: 8, Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	env.w.SetPlanner(p)

	env.step(env.spawn(0, 0))
	env.step(env.move("E000001", 7, 7))

	e := env.entity("E000001")
	done := false
	deadline := time.Now().Add(5 * time.Second)
	for !done && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
		env.step()
		done = len(env.events(protocol.EventTaskDone)) == 1
	}
	if !done {
		t.Fatalf("move never finished: mode=%s pos=%v", e.Mode, e.Pos)
	}
	if e.Pos != grid.C(7, 7) || e.Mode != ModeIdle {
		t.Fatalf("final state: pos=%v mode=%s", e.Pos, e.Mode)
	}
}
