package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz   int    `json:"tick_rate_hz"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	DefaultSpeed int    `json:"default_speed"`
	GridDigest   string `json:"grid_digest"`
}

// CMD (client -> server). Positions are cell coordinates; fractional values
// are floored to the containing cell.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CmdID           string `json:"cmd_id"`
	Op              string `json:"op"`

	EntityID string      `json:"entity_id,omitempty"`
	LeaderID string      `json:"leader_id,omitempty"`
	Name     string      `json:"name,omitempty"`
	Pos      *[2]float64 `json:"pos,omitempty"`
	Target   *[2]float64 `json:"target,omitempty"`
	Offset   *[2]int     `json:"offset,omitempty"`
	Speed    int         `json:"speed,omitempty"`
	// Nearest lets a MOVE onto a blocked cell retarget to the closest open one.
	Nearest bool `json:"nearest,omitempty"`
}

// STATE (server -> client), once per tick.
type StateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Entities        []EntityState `json:"entities"`
	Events          []Event       `json:"events"`
}

type EntityState struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Pos       [2]int  `json:"pos"`
	Mode      string  `json:"mode"`
	LeaderID  string  `json:"leader_id,omitempty"`
	Offset    *[2]int `json:"offset,omitempty"`
	Target    *[2]int `json:"target,omitempty"`
	Waypoints int     `json:"waypoints,omitempty"`
}

type Event map[string]any

// ERROR (server -> client) rejects a message before it reaches the world.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
