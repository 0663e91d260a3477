package observerproto

// Version is the observer protocol version (separate from the controller WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// IncludePaths asks for leader waypoint queues in every tick.
	IncludePaths bool `json:"include_paths,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	WorldID         string   `json:"world_id"`
	Tick            uint64   `json:"tick"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Grid            GridData `json:"grid"`
}

// GridData carries the obstruction map. Encoding "RLE_U16" is base64 of
// varint (value, run) pairs over row-major cells, 1 = blocked.
type GridData struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
	Digest   string `json:"digest"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	GridDigest      string `json:"grid_digest"`

	Entities []EntityState `json:"entities"`
}

type EntityState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Pos  [2]int `json:"pos"`
	Mode string `json:"mode"`

	LeaderID string   `json:"leader_id,omitempty"`
	Path     [][2]int `json:"path,omitempty"`
}
