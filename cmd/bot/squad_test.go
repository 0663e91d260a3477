package main

import (
	"testing"

	"gridnav.dev/internal/protocol"
)

func result(ref, entityID string) protocol.Event {
	return protocol.Event{"type": protocol.EventActionResult, "ref": ref, "ok": true, "entity_id": entityID}
}

func TestSquad_SpawnsThenFollows(t *testing.T) {
	s := newSquad("sq", 2, 20, 20, [2]int{0, 0}, 1)
	spawns := s.start()
	if len(spawns) != 3 {
		t.Fatalf("spawns=%d want 3", len(spawns))
	}
	for _, c := range spawns {
		if c.Op != protocol.OpSpawn || c.Pos == nil {
			t.Fatalf("bad spawn %+v", c)
		}
		if c.Pos[0] < 0 || c.Pos[1] < 0 {
			t.Fatalf("spawn out of bounds %+v", c.Pos)
		}
	}

	// Follower result arrives before the leader's: the follow waits.
	out := s.handle(protocol.StateMsg{Tick: 1, Events: []protocol.Event{result(spawns[1].CmdID, "E2")}})
	if len(out) != 0 {
		t.Fatalf("expected no commands before leader exists, got %+v", out)
	}

	out = s.handle(protocol.StateMsg{Tick: 2, Events: []protocol.Event{
		result(spawns[0].CmdID, "E1"),
		result(spawns[2].CmdID, "E3"),
	}})
	var follows, moves int
	for _, c := range out {
		switch c.Op {
		case protocol.OpFollow:
			follows++
			if c.LeaderID != "E1" || c.Offset == nil {
				t.Fatalf("bad follow %+v", c)
			}
		case protocol.OpMove:
			moves++
			if c.EntityID != "E1" || !c.Nearest {
				t.Fatalf("bad move %+v", c)
			}
		}
	}
	if follows != 2 || moves != 1 {
		t.Fatalf("follows=%d moves=%d", follows, moves)
	}
}

func TestSquad_WaitsForTaskBeforeNextMove(t *testing.T) {
	s := newSquad("sq", 0, 10, 10, [2]int{5, 5}, 1)
	spawns := s.start()
	out := s.handle(protocol.StateMsg{Tick: 60, Events: []protocol.Event{result(spawns[0].CmdID, "E1")}})
	if len(out) != 1 || out[0].Op != protocol.OpMove {
		t.Fatalf("expected first move, got %+v", out)
	}
	if out := s.handle(protocol.StateMsg{Tick: 200}); len(out) != 0 {
		t.Fatalf("moved while previous task in flight: %+v", out)
	}
	out = s.handle(protocol.StateMsg{Tick: 201, Events: []protocol.Event{{"type": protocol.EventTaskDone, "entity_id": "E1"}}})
	if len(out) != 1 || out[0].Op != protocol.OpMove {
		t.Fatalf("expected next move after TASK_DONE, got %+v", out)
	}
}
