package world

import (
	"encoding/json"
	"fmt"
	"testing"

	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
)

type testEnv struct {
	t   *testing.T
	w   *World
	sid string
	out chan []byte

	seq  int
	last protocol.StateMsg
}

func testConfig() WorldConfig {
	return WorldConfig{
		ID:            "test",
		TickRateHz:    10,
		DefaultSpeed:  1,
		CornerCutting: true,
		SyncPlanning:  true,
	}
}

func newTestEnv(t *testing.T, cfg WorldConfig, rows ...string) *testEnv {
	t.Helper()
	g, err := grid.FromRows(rows)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	w, err := New(cfg, g)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	out := make(chan []byte, 1)
	resp := w.joinSession("tester", out)
	return &testEnv{t: t, w: w, sid: resp.Welcome.SessionID, out: out}
}

func (e *testEnv) step(cmds ...protocol.CmdMsg) protocol.StateMsg {
	e.t.Helper()
	envs := make([]CommandEnvelope, 0, len(cmds))
	for _, c := range cmds {
		envs = append(envs, CommandEnvelope{SessionID: e.sid, Cmd: c})
	}
	return e.stepWith(StepInput{Commands: envs})
}

func (e *testEnv) stepWith(in StepInput) protocol.StateMsg {
	e.t.Helper()
	e.w.StepOnce(in)
	select {
	case b := <-e.out:
		var st protocol.StateMsg
		if err := json.Unmarshal(b, &st); err != nil {
			e.t.Fatalf("decode state: %v", err)
		}
		e.last = st
	default:
		e.t.Fatalf("no STATE after step")
	}
	return e.last
}

func (e *testEnv) cmd(op string) protocol.CmdMsg {
	e.seq++
	return protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		CmdID:           fmt.Sprintf("K%d", e.seq),
		Op:              op,
	}
}

func (e *testEnv) spawn(x, y int) protocol.CmdMsg {
	c := e.cmd(protocol.OpSpawn)
	c.Pos = &[2]float64{float64(x), float64(y)}
	return c
}

func (e *testEnv) move(id string, x, y int) protocol.CmdMsg {
	c := e.cmd(protocol.OpMove)
	c.EntityID = id
	c.Target = &[2]float64{float64(x), float64(y)}
	return c
}

func (e *testEnv) follow(id, leader string) protocol.CmdMsg {
	c := e.cmd(protocol.OpFollow)
	c.EntityID = id
	c.LeaderID = leader
	return c
}

func (e *testEnv) entity(id string) *Entity {
	e.t.Helper()
	ent := e.w.entities[id]
	if ent == nil {
		e.t.Fatalf("missing entity %s", id)
	}
	return ent
}

// events returns the events of the given type in the last STATE.
func (e *testEnv) events(typ string) []protocol.Event {
	var out []protocol.Event
	for _, ev := range e.last.Events {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

// result finds the ACTION_RESULT for cmdID in the last STATE.
func (e *testEnv) result(cmdID string) protocol.Event {
	e.t.Helper()
	for _, ev := range e.events(protocol.EventActionResult) {
		if ev["ref"] == cmdID {
			return ev
		}
	}
	e.t.Fatalf("no ACTION_RESULT for %s in %v", cmdID, e.last.Events)
	return nil
}

func openRows(w, h int) []string {
	rows := make([]string, h)
	for y := range rows {
		b := make([]byte, w)
		for x := range b {
			b[x] = '.'
		}
		rows[y] = string(b)
	}
	return rows
}
