package world

import (
	"testing"

	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/tuning"
)

func TestFollower_TracksLeaderEveryTick(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(10, 5)...)
	env.step(env.spawn(0, 0), env.spawn(0, 1))
	leader, follower := env.entity("E000001"), env.entity("E000002")

	f := env.follow(follower.ID, leader.ID)
	m := env.move(leader.ID, 5, 0)
	env.step(f, m)
	if ev := env.result(f.CmdID); ev["ok"] != true {
		t.Fatalf("follow rejected: %v", ev)
	}
	if ev := env.result(m.CmdID); ev["ok"] != true {
		t.Fatalf("move rejected: %v", ev)
	}
	if len(env.events(protocol.EventPlanOK)) != 1 {
		t.Fatalf("expected PLAN_OK, got %v", env.last.Events)
	}

	offset := grid.C(0, 1)
	for i := 1; ; i++ {
		if got, want := follower.Pos, leader.Pos.Add(offset); got != want {
			t.Fatalf("tick %d: follower at %v, want %v", i, got, want)
		}
		if leader.Pos != grid.C(i, 0) {
			t.Fatalf("tick %d: leader at %v", i, leader.Pos)
		}
		if i == 5 {
			break
		}
		env.step()
	}
	if len(env.events(protocol.EventTaskDone)) != 1 {
		t.Fatalf("expected TASK_DONE on arrival, got %v", env.last.Events)
	}
	if leader.Mode != ModeIdle || leader.Path != nil || leader.Leader != nil {
		t.Fatalf("leader not idle after arrival: %+v", leader)
	}
	if follower.Mode != ModeFollower || follower.Pos != grid.C(5, 1) {
		t.Fatalf("follower state after arrival: mode=%s pos=%v", follower.Mode, follower.Pos)
	}

	env.step()
	if follower.Pos != grid.C(5, 1) {
		t.Fatalf("follower drifted: %v", follower.Pos)
	}
}

func TestLeader_SpeedConsumesSeveralWaypoints(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(10, 1)...)
	c := env.spawn(0, 0)
	c.Speed = 2
	env.step(c)
	e := env.entity("E000001")

	env.step(env.move(e.ID, 5, 0))
	if e.Pos != grid.C(2, 0) {
		t.Fatalf("after first tick: %v", e.Pos)
	}
	env.step()
	if e.Pos != grid.C(4, 0) {
		t.Fatalf("after second tick: %v", e.Pos)
	}
	env.step()
	if e.Pos != grid.C(5, 0) || e.Mode != ModeIdle {
		t.Fatalf("after third tick: pos=%v mode=%s", e.Pos, e.Mode)
	}
}

func TestFollow_RejectsChains(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(5, 5)...)
	env.step(env.spawn(0, 0), env.spawn(1, 0), env.spawn(2, 0))

	ok := env.follow("E000002", "E000001")
	env.step(ok)
	if ev := env.result(ok.CmdID); ev["ok"] != true {
		t.Fatalf("first follow rejected: %v", ev)
	}

	cases := []struct {
		name string
		cmd  protocol.CmdMsg
		code string
	}{
		{"follow a follower", env.follow("E000003", "E000002"), protocol.ErrConflict},
		{"leader becomes follower", env.follow("E000001", "E000003"), protocol.ErrConflict},
		{"self", env.follow("E000003", "E000003"), protocol.ErrBadRequest},
		{"missing leader", env.follow("E000003", "E999999"), protocol.ErrInvalidTarget},
	}
	for _, tc := range cases {
		env.step(tc.cmd)
		ev := env.result(tc.cmd.CmdID)
		if ev["ok"] != false || ev["code"] != tc.code {
			t.Fatalf("%s: got %v, want code %s", tc.name, ev, tc.code)
		}
	}
	if env.entity("E000003").Mode != ModeIdle || env.entity("E000001").Mode != ModeIdle {
		t.Fatalf("rejected follows changed state")
	}
}

func TestFollowerLost_Detach(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(5, 5)...)
	env.step(env.spawn(0, 0), env.spawn(0, 1))
	env.step(env.follow("E000002", "E000001"))

	d := env.cmd(protocol.OpDespawn)
	d.EntityID = "E000001"
	env.step(d)

	lost := env.events(protocol.EventFollowLost)
	if len(lost) != 1 || lost[0]["code"] != protocol.ErrStale {
		t.Fatalf("expected one FOLLOW_LOST with E_STALE, got %v", env.last.Events)
	}
	f := env.entity("E000002")
	if f.Mode != ModeIdle || f.Follow != nil {
		t.Fatalf("follower not detached: %+v", f)
	}
	if f.Pos != grid.C(0, 1) {
		t.Fatalf("follower moved: %v", f.Pos)
	}
}

func TestFollowerLost_FreezeNotifiesOnce(t *testing.T) {
	cfg := testConfig()
	cfg.FollowerLostPolicy = tuning.LostFreeze
	env := newTestEnv(t, cfg, openRows(5, 5)...)
	env.step(env.spawn(0, 0), env.spawn(0, 1))
	env.step(env.follow("E000002", "E000001"))

	d := env.cmd(protocol.OpDespawn)
	d.EntityID = "E000001"
	env.step(d)
	if len(env.events(protocol.EventFollowLost)) != 1 {
		t.Fatalf("expected FOLLOW_LOST, got %v", env.last.Events)
	}
	f := env.entity("E000002")
	if f.Mode != ModeFollower || f.Follow == nil {
		t.Fatalf("frozen follower lost its record: %+v", f)
	}

	env.step()
	if n := len(env.events(protocol.EventFollowLost)); n != 0 {
		t.Fatalf("FOLLOW_LOST repeated %d times", n)
	}
	if f.Pos != grid.C(0, 1) {
		t.Fatalf("frozen follower moved: %v", f.Pos)
	}

	det := env.cmd(protocol.OpDetach)
	det.EntityID = f.ID
	env.step(det)
	if ev := env.result(det.CmdID); ev["ok"] != true || f.Mode != ModeIdle {
		t.Fatalf("detach: %v mode=%s", ev, f.Mode)
	}
}

func TestMove_OnFollowerDetachesIt(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(6, 6)...)
	env.step(env.spawn(0, 0), env.spawn(0, 1))
	env.step(env.follow("E000002", "E000001"))

	env.step(env.move("E000002", 3, 4))
	f := env.entity("E000002")
	if f.Follow != nil || f.Mode != ModeFollowing {
		t.Fatalf("follower did not switch to its own move: %+v", f)
	}
	if env.w.hasFollowers("E000001") {
		t.Fatalf("leader still has followers")
	}
	if f.Pos == grid.C(0, 1) {
		t.Fatalf("entity did not start moving")
	}
}

func TestMove_NoPath(t *testing.T) {
	env := newTestEnv(t, testConfig(),
		".....",
		".###.",
		".#.#.",
		".###.",
		".....",
	)
	env.step(env.spawn(0, 0))

	for _, target := range []grid.Coord{grid.C(2, 2), grid.C(1, 1), grid.C(9, 9)} {
		m := env.move("E000001", target.X, target.Y)
		env.step(m)
		if ev := env.result(m.CmdID); ev["ok"] != true {
			t.Fatalf("%v: move rejected: %v", target, ev)
		}
		fails := env.events(protocol.EventTaskFail)
		if len(fails) != 1 || fails[0]["code"] != protocol.ErrNoPath || fails[0]["ref"] != m.CmdID {
			t.Fatalf("%v: expected TASK_FAIL E_NO_PATH, got %v", target, env.last.Events)
		}
		if e := env.entity("E000001"); e.Mode != ModeIdle || e.Pos != grid.C(0, 0) {
			t.Fatalf("%v: entity state %+v", target, e)
		}
	}
}

func TestMove_ToOwnCellCompletesImmediately(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(3, 3)...)
	env.step(env.spawn(1, 1))
	env.step(env.move("E000001", 1, 1))
	if len(env.events(protocol.EventTaskDone)) != 1 {
		t.Fatalf("expected TASK_DONE, got %v", env.last.Events)
	}
	if e := env.entity("E000001"); e.Mode != ModeIdle {
		t.Fatalf("mode %s", e.Mode)
	}
}

func TestGridChange_BlocksRoute(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(10, 1)...)
	env.step(env.spawn(0, 0))
	env.step(env.move("E000001", 9, 0))

	b := grid.BuilderFrom(env.w.Grid())
	b.Set(grid.C(3, 0), true)
	env.stepWith(StepInput{Grid: b.Build()})
	if len(env.events(protocol.EventGridChanged)) != 1 {
		t.Fatalf("expected GRID_CHANGED, got %v", env.last.Events)
	}
	e := env.entity("E000001")
	if e.Pos != grid.C(2, 0) {
		t.Fatalf("pos after grid change: %v", e.Pos)
	}

	env.step()
	fails := env.events(protocol.EventTaskFail)
	if len(fails) != 1 || fails[0]["code"] != protocol.ErrBlocked {
		t.Fatalf("expected E_BLOCKED, got %v", env.last.Events)
	}
	if e.Pos != grid.C(2, 0) || e.Mode != ModeIdle {
		t.Fatalf("entity after block: pos=%v mode=%s", e.Pos, e.Mode)
	}
}

func TestSpawn_Rejections(t *testing.T) {
	env := newTestEnv(t, testConfig(), "..#")
	cases := []struct {
		x, y int
		code string
	}{
		{2, 0, protocol.ErrBlocked},
		{5, 0, protocol.ErrInvalidTarget},
		{-1, 0, protocol.ErrInvalidTarget},
	}
	for _, tc := range cases {
		c := env.spawn(tc.x, tc.y)
		env.step(c)
		if ev := env.result(c.CmdID); ev["code"] != tc.code {
			t.Fatalf("spawn (%d,%d): got %v want %s", tc.x, tc.y, ev, tc.code)
		}
	}
	if len(env.w.entities) != 0 {
		t.Fatalf("rejected spawns created entities")
	}
}

func TestStateView(t *testing.T) {
	env := newTestEnv(t, testConfig(), openRows(4, 4)...)
	env.step(env.spawn(0, 0), env.spawn(3, 3))
	env.step(env.move("E000001", 3, 0))

	v := env.w.stateView("")
	if len(v.Entities) != 2 || v.Entities[0].ID != "E000001" {
		t.Fatalf("state view: %+v", v)
	}
	one := env.w.stateView("E000001")
	if len(one.Entities) != 1 || one.Entities[0].Mode != string(ModeFollowing) || one.Entities[0].Target == nil {
		t.Fatalf("single entity view: %+v", one)
	}
	if m := env.w.Metrics(); m.Entities != 2 || m.Leaders != 1 || m.PlansFound != 1 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestMove_NearestRetargetsBlockedCell(t *testing.T) {
	rows := []string{
		".......",
		".#####.",
		".#####.",
		".#####.",
		".......",
	}
	cfg := testConfig()
	cfg.NearestRadius = 2
	env := newTestEnv(t, cfg, rows...)
	env.step(env.spawn(6, 4))
	blocked := grid.C(3, 2)

	plain := env.move("E000001", blocked.X, blocked.Y)
	env.step(plain)
	fails := env.events(protocol.EventTaskFail)
	if len(fails) != 1 || fails[0]["code"] != protocol.ErrNoPath {
		t.Fatalf("move without nearest: expected E_NO_PATH, got %v", env.last.Events)
	}

	m := env.move("E000001", blocked.X, blocked.Y)
	m.Nearest = true
	env.step(m)
	ev := env.result(m.CmdID)
	arr, ok := ev["target"].([]any)
	if ev["ok"] != true || !ok || len(arr) != 2 {
		t.Fatalf("nearest move result: %v", ev)
	}
	got := grid.C(int(arr[0].(float64)), int(arr[1].(float64)))
	if env.w.Grid().IsBlocked(got) || grid.Chebyshev(blocked, got) > cfg.NearestRadius {
		t.Fatalf("retarget %v is blocked or out of radius", got)
	}
	e := env.entity("E000001")
	if e.Mode != ModeIdle && (e.Path == nil || e.Path.Target != got) {
		t.Fatalf("stored target %v, reported %v", e.Path, got)
	}

	for i := 0; i < 20 && e.Mode != ModeIdle; i++ {
		env.step()
	}
	if e.Pos != got {
		t.Fatalf("entity stopped at %v, want %v", e.Pos, got)
	}
}

func TestMove_NearestOutsideRadiusFails(t *testing.T) {
	cfg := testConfig()
	cfg.NearestRadius = 1
	env := newTestEnv(t, cfg,
		".......",
		".#####.",
		".#####.",
		".#####.",
		".......",
	)
	env.step(env.spawn(0, 0))
	m := env.move("E000001", 3, 2)
	m.Nearest = true
	env.step(m)
	fails := env.events(protocol.EventTaskFail)
	if len(fails) != 1 || fails[0]["code"] != protocol.ErrNoPath || fails[0]["ref"] != m.CmdID {
		t.Fatalf("expected E_NO_PATH, got %v", env.last.Events)
	}
}
