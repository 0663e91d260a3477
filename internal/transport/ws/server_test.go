package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/world"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	g, err := grid.FromRows([]string{
		".....",
		".....",
		".....",
	})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	w, err := world.New(world.WorldConfig{
		ID:            "ws-test",
		TickRateHz:    50,
		DefaultSpeed:  1,
		CornerCutting: true,
		SyncPlanning:  true,
	}, g)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	return w
}

func dial(t *testing.T, w *world.World) *websocket.Conn {
	t.Helper()
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	srv := httptest.NewServer(NewServer(w, v, nil).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads messages until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(typ string, raw []byte) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if match(base.Type, b) {
			return
		}
	}
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "ws-test"})
	var welcome protocol.WelcomeMsg
	readUntil(t, conn, func(typ string, raw []byte) bool {
		if typ != protocol.TypeWelcome {
			return false
		}
		if err := json.Unmarshal(raw, &welcome); err != nil {
			t.Fatalf("welcome: %v", err)
		}
		return true
	})
	return welcome
}

func TestServer_HelloSpawnMove(t *testing.T) {
	w := startWorld(t)
	conn := dial(t, w)

	welcome := hello(t, conn)
	if welcome.SessionID == "" || welcome.WorldID != "ws-test" {
		t.Fatalf("welcome=%+v", welcome)
	}
	if welcome.WorldParams.Width != 5 || welcome.WorldParams.Height != 3 {
		t.Fatalf("world params=%+v", welcome.WorldParams)
	}

	send(t, conn, map[string]any{
		"type": "CMD", "protocol_version": protocol.Version, "cmd_id": "c1",
		"op": "SPAWN", "name": "scout", "pos": []int{0, 0},
	})

	var entityID string
	readUntil(t, conn, func(typ string, raw []byte) bool {
		if typ != protocol.TypeState {
			return false
		}
		var st protocol.StateMsg
		if err := json.Unmarshal(raw, &st); err != nil {
			t.Fatalf("state: %v", err)
		}
		for _, ev := range st.Events {
			if ev["type"] == protocol.EventActionResult && ev["ref"] == "c1" {
				if ok, _ := ev["ok"].(bool); !ok {
					t.Fatalf("spawn rejected: %v", ev)
				}
				entityID, _ = ev["entity_id"].(string)
				return true
			}
		}
		return false
	})
	if entityID == "" {
		t.Fatalf("spawn result carried no entity_id")
	}

	send(t, conn, map[string]any{
		"type": "CMD", "protocol_version": protocol.Version, "cmd_id": "c2",
		"op": "MOVE", "entity_id": entityID, "target": []int{4, 2},
	})
	readUntil(t, conn, func(typ string, raw []byte) bool {
		if typ != protocol.TypeState {
			return false
		}
		var st protocol.StateMsg
		_ = json.Unmarshal(raw, &st)
		for _, ev := range st.Events {
			if ev["type"] == protocol.EventTaskDone && ev["entity_id"] == entityID {
				return true
			}
		}
		return false
	})
}

func TestServer_RejectsInvalidCommand(t *testing.T) {
	w := startWorld(t)
	conn := dial(t, w)
	hello(t, conn)

	// MOVE without a target fails schema validation before reaching the world.
	send(t, conn, map[string]any{
		"type": "CMD", "protocol_version": protocol.Version, "cmd_id": "bad1",
		"op": "MOVE", "entity_id": "E1",
	})
	readUntil(t, conn, func(typ string, raw []byte) bool {
		if typ != protocol.TypeError {
			return false
		}
		var em protocol.ErrorMsg
		if err := json.Unmarshal(raw, &em); err != nil {
			t.Fatalf("error msg: %v", err)
		}
		if em.Ref != "bad1" || em.Code != protocol.ErrProtoBadRequest {
			t.Fatalf("error=%+v", em)
		}
		return true
	})
}

func TestServer_RequiresHello(t *testing.T) {
	w := startWorld(t)
	conn := dial(t, w)

	send(t, conn, map[string]any{"type": "CMD", "protocol_version": protocol.Version, "cmd_id": "c1", "op": "STOP"})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}
