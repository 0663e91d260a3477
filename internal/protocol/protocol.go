package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCmd     = "CMD"
	TypeState   = "STATE"
	TypeError   = "ERROR"
)

// Command ops carried in CmdMsg.Op.
const (
	OpSpawn   = "SPAWN"
	OpDespawn = "DESPAWN"
	OpMove    = "MOVE"
	OpFollow  = "FOLLOW"
	OpDetach  = "DETACH"
	OpStop    = "STOP"
)

// Event types carried in StateMsg.Events.
const (
	EventActionResult = "ACTION_RESULT"
	EventPlanOK       = "PLAN_OK"
	EventTaskDone     = "TASK_DONE"
	EventTaskFail     = "TASK_FAIL"
	EventFollowLost   = "FOLLOW_LOST"
	EventGridChanged  = "GRID_CHANGED"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
