package worldtest

import (
	"gridnav.dev/internal/protocol"
	world "gridnav.dev/internal/sim/world"
)

func testConfig() world.WorldConfig {
	return world.WorldConfig{
		ID:            "worldtest",
		TickRateHz:    10,
		DefaultSpeed:  1,
		CornerCutting: true,
		SyncPlanning:  true,
	}
}

func hasTaskFail(st protocol.StateMsg, entityID, wantCode string) bool {
	for _, e := range st.Events {
		if e["type"] != protocol.EventTaskFail || e["entity_id"] != entityID {
			continue
		}
		if wantCode == "" {
			return true
		}
		if code, _ := e["code"].(string); code == wantCode {
			return true
		}
	}
	return false
}

func hasEvent(st protocol.StateMsg, typ, entityID string) bool {
	for _, e := range st.Events {
		if e["type"] == typ && e["entity_id"] == entityID {
			return true
		}
	}
	return false
}

func actionResultCode(st protocol.StateMsg, ref string) string {
	for _, e := range st.Events {
		if typ, _ := e["type"].(string); typ != protocol.EventActionResult {
			continue
		}
		if got, _ := e["ref"].(string); got != ref {
			continue
		}
		if ok, _ := e["ok"].(bool); ok {
			return ""
		}
		if code, _ := e["code"].(string); code != "" {
			return code
		}
		return protocol.ErrInternal
	}
	return protocol.ErrInternal
}

func pos(x, y int) [2]int { return [2]int{x, y} }
