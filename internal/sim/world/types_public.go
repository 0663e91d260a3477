package world

import (
	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/protocol"
)

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// CommandEnvelope is a CMD tagged with the session that sent it.
type CommandEnvelope struct {
	SessionID string
	Cmd       protocol.CmdMsg
}

type RecordedJoin struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

type RecordedCommand struct {
	SessionID string          `json:"session_id"`
	Cmd       protocol.CmdMsg `json:"cmd"`
}

// RecordedPlan is a search outcome as it was applied at a tick boundary.
// Replays feed these back instead of searching.
type RecordedPlan struct {
	JobID     uint64   `json:"job_id"`
	EntityID  string   `json:"entity_id"`
	Found     bool     `json:"found"`
	Path      [][2]int `json:"path,omitempty"`
	Cost      int      `json:"cost,omitempty"`
	Expanded  int      `json:"expanded"`
	Exhausted bool     `json:"exhausted,omitempty"`
	TimedOut  bool     `json:"timed_out,omitempty"`
	Canceled  bool     `json:"canceled,omitempty"`
	Busy      bool     `json:"busy,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Joins    []RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string          `json:"leaves,omitempty"`
	Grid     *snapshot.GridV1  `json:"grid,omitempty"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Plans    []RecordedPlan    `json:"plans,omitempty"`
	Digest   string            `json:"digest"`
}

// AuditEntry describes one applied search.
type AuditEntry struct {
	Tick      uint64 `json:"tick"`
	EntityID  string `json:"entity_id"`
	JobID     uint64 `json:"job_id"`
	Start     [2]int `json:"start"`
	Target    [2]int `json:"target"`
	Found     bool   `json:"found"`
	Cost      int    `json:"cost"`
	Len       int    `json:"len"`
	Expanded  int    `json:"expanded"`
	Exhausted bool   `json:"exhausted,omitempty"`
	TimedOut  bool   `json:"timed_out,omitempty"`
	Canceled  bool   `json:"canceled,omitempty"`
	Micros    int64  `json:"micros"`
}

// ObserverJoinRequest registers a read-only session that receives one
// observerproto.TickMsg per tick on TickOut.
type ObserverJoinRequest struct {
	SessionID    string
	TickOut      chan []byte
	IncludePaths bool
}
