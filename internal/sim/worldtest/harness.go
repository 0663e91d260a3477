package worldtest

import (
	"encoding/json"
	"fmt"
	"testing"

	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	world "gridnav.dev/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() registers a session via StepOnce()
// - Spawn/Move/Follow/... queue CMDs that the next Step() submits
// - The session Out channel carries STATE JSON
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	SessionID string
	// LastDigest is the state digest reported by the latest Step.
	LastDigest string

	out     chan []byte
	seq     int
	pending []world.CommandEnvelope
	last    protocol.StateMsg
}

// NewHarness builds a world over the given map rows. Planning runs inline
// unless cfg says otherwise.
func NewHarness(t *testing.T, cfg world.WorldConfig, rows ...string) *Harness {
	t.Helper()
	g, err := grid.FromRows(rows)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	w, err := world.New(cfg, g)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
// This is useful for snapshot round-trip tests where the snapshot is imported before join.
func NewHarnessWithWorld(t *testing.T, w *world.World) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{T: t, W: w}
	h.Join("harness")
	return h
}

func (h *Harness) Join(name string) string {
	h.T.Helper()
	out := make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce(world.StepInput{Joins: []world.JoinRequest{{Name: name, Out: out, Resp: resp}}})
	jr := <-resp
	if jr.Welcome.SessionID == "" {
		h.T.Fatalf("join returned empty session id")
	}
	h.SessionID = jr.Welcome.SessionID
	h.out = out
	h.drain()
	return h.SessionID
}

func (h *Harness) queue(c protocol.CmdMsg) string {
	h.seq++
	c.Type = protocol.TypeCmd
	c.ProtocolVersion = protocol.Version
	c.CmdID = fmt.Sprintf("H%d", h.seq)
	h.pending = append(h.pending, world.CommandEnvelope{SessionID: h.SessionID, Cmd: c})
	return c.CmdID
}

func (h *Harness) Spawn(name string, x, y int) string {
	return h.queue(protocol.CmdMsg{Op: protocol.OpSpawn, Name: name, Pos: &[2]float64{float64(x), float64(y)}})
}

func (h *Harness) Move(entityID string, x, y int) string {
	return h.queue(protocol.CmdMsg{Op: protocol.OpMove, EntityID: entityID, Target: &[2]float64{float64(x), float64(y)}})
}

func (h *Harness) Follow(entityID, leaderID string) string {
	return h.queue(protocol.CmdMsg{Op: protocol.OpFollow, EntityID: entityID, LeaderID: leaderID})
}

func (h *Harness) FollowAt(entityID, leaderID string, dx, dy int) string {
	return h.queue(protocol.CmdMsg{Op: protocol.OpFollow, EntityID: entityID, LeaderID: leaderID, Offset: &[2]int{dx, dy}})
}

func (h *Harness) Detach(entityID string) string {
	return h.queue(protocol.CmdMsg{Op: protocol.OpDetach, EntityID: entityID})
}

func (h *Harness) Stop(entityID string) string {
	return h.queue(protocol.CmdMsg{Op: protocol.OpStop, EntityID: entityID})
}

func (h *Harness) Despawn(entityID string) string {
	return h.queue(protocol.CmdMsg{Op: protocol.OpDespawn, EntityID: entityID})
}

// Step submits the queued commands as one tick and returns its STATE.
func (h *Harness) Step() protocol.StateMsg {
	h.T.Helper()
	cmds := h.pending
	h.pending = nil
	_, h.LastDigest = h.W.StepOnce(world.StepInput{Commands: cmds})
	h.drain()
	return h.last
}

func (h *Harness) StepN(n int) protocol.StateMsg {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step()
	}
	return h.last
}

// StepUntil steps until cond holds on the latest STATE, at most max ticks.
func (h *Harness) StepUntil(max int, cond func(protocol.StateMsg) bool) protocol.StateMsg {
	h.T.Helper()
	for i := 0; i < max; i++ {
		if cond(h.Step()) {
			return h.last
		}
	}
	h.T.Fatalf("condition not met after %d ticks", max)
	return h.last
}

func (h *Harness) LastState() protocol.StateMsg { return h.last }

// Entity returns the entity from the latest STATE.
func (h *Harness) Entity(id string) protocol.EntityState {
	h.T.Helper()
	for _, e := range h.last.Entities {
		if e.ID == id {
			return e
		}
	}
	h.T.Fatalf("entity %s not in STATE", id)
	return protocol.EntityState{}
}

// SpawnedID returns the entity id assigned by the SPAWN with cmdID.
func (h *Harness) SpawnedID(cmdID string) string {
	h.T.Helper()
	for _, e := range h.last.Events {
		if e["type"] == protocol.EventActionResult && e["ref"] == cmdID {
			if id, _ := e["entity_id"].(string); id != "" {
				return id
			}
		}
	}
	h.T.Fatalf("no spawn result for %s", cmdID)
	return ""
}

// SpawnedIDAfter steps once and returns the id assigned to the SPAWN cmdID.
func (h *Harness) SpawnedIDAfter(cmdID string) string {
	h.T.Helper()
	h.Step()
	return h.SpawnedID(cmdID)
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Keep tick stable: export at currentTick-1 then import would restore to currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

func (h *Harness) drain() {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-h.out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var st protocol.StateMsg
	if err := json.Unmarshal(last, &st); err != nil {
		h.T.Fatalf("unmarshal STATE: %v", err)
	}
	h.last = st
}
