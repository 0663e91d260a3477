package main

import (
	"path/filepath"
	"strings"
	"testing"

	persistlog "gridnav.dev/internal/persistence/log"
	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/world"
)

var yard = []string{
	"..........",
	"..####....",
	"..#.......",
	"..#..###..",
	"..........",
}

func cmd(id, op string) protocol.CmdMsg {
	return protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, CmdID: id, Op: op}
}

func record(t *testing.T, worldDir string) string {
	t.Helper()
	g, err := grid.FromRows(yard)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	live, err := world.New(world.WorldConfig{ID: "replay", TickRateHz: 10, DefaultSpeed: 1, CornerCutting: true, SyncPlanning: true}, g)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	tl := persistlog.NewTickLogger(worldDir)
	live.SetTickLogger(tl)

	live.StepOnce(world.StepInput{Joins: []world.JoinRequest{{Name: "driver"}}})

	spawn := func(id string, x, y float64) protocol.CmdMsg {
		c := cmd(id, protocol.OpSpawn)
		c.Name = id
		c.Pos = &[2]float64{x, y}
		return c
	}
	send := func(cmds ...protocol.CmdMsg) {
		in := world.StepInput{}
		for _, c := range cmds {
			in.Commands = append(in.Commands, world.CommandEnvelope{SessionID: "S1", Cmd: c})
		}
		live.StepOnce(in)
	}
	send(spawn("a", 0, 0), spawn("b", 0, 1))

	move := cmd("m1", protocol.OpMove)
	move.EntityID = "E000001"
	move.Target = &[2]float64{9, 4}
	follow := cmd("f1", protocol.OpFollow)
	follow.EntityID = "E000002"
	follow.LeaderID = "E000001"
	follow.Offset = &[2]int{0, 1}
	send(move, follow)

	for i := 0; i < 6; i++ {
		send()
	}
	wall, err := grid.FromRows([]string{
		"..........",
		"..####....",
		"..#.......",
		"..#..#####",
		"..........",
	})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	live.StepOnce(world.StepInput{Grid: wall})
	for i := 0; i < 15; i++ {
		send()
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	return filepath.Join(worldDir, "events")
}

func newReplayWorld(t *testing.T) *world.World {
	t.Helper()
	g, err := grid.FromRows(yard)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "replay", TickRateHz: 10, DefaultSpeed: 1, CornerCutting: true, ReplayPlans: true}, g)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func TestReplay_VerifiesRecordedRun(t *testing.T) {
	events := record(t, t.TempDir())

	checked, plans, err := replay(newReplayWorld(t), events, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 25 {
		t.Fatalf("checked=%d want 25", checked)
	}
	if plans == 0 {
		t.Fatalf("expected recorded plans to be fed back")
	}
}

func TestReplay_StopsAtToTick(t *testing.T) {
	events := record(t, t.TempDir())

	w := newReplayWorld(t)
	checked, _, err := replay(w, events, 0, 9)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 10 || w.CurrentTick() != 10 {
		t.Fatalf("checked=%d tick=%d", checked, w.CurrentTick())
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	events := record(t, t.TempDir())

	// A different map changes the grid digest folded into every state digest.
	g, err := grid.FromRows([]string{
		"..........",
		"..........",
		"..........",
		"..........",
		"..........",
	})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "replay", TickRateHz: 10, DefaultSpeed: 1, CornerCutting: true, ReplayPlans: true}, g)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	_, _, err = replay(w, events, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at tick 0") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}

func TestBuildWorld_RequiresInput(t *testing.T) {
	if _, err := buildWorld("", "", "", "w"); err == nil {
		t.Fatalf("expected error without snapshot or map")
	}
}
