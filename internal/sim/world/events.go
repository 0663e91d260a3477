package world

import "gridnav.dev/internal/protocol"

func (w *World) emit(ev protocol.Event) {
	w.broadcast = append(w.broadcast, ev)
}

func (w *World) emitTo(sessionID string, ev protocol.Event) {
	if sessionID == "" {
		return
	}
	w.direct[sessionID] = append(w.direct[sessionID], ev)
}

func (w *World) actionResult(nowTick uint64, env CommandEnvelope, code, msg string, extra protocol.Event) {
	ev := protocol.Event{
		"t":    nowTick,
		"type": protocol.EventActionResult,
		"ref":  env.Cmd.CmdID,
		"op":   env.Cmd.Op,
		"ok":   code == "",
	}
	if code != "" {
		ev["code"] = code
		ev["message"] = msg
	}
	for k, v := range extra {
		ev[k] = v
	}
	w.emitTo(env.SessionID, ev)
}

func (w *World) taskFail(nowTick uint64, e *Entity, code, msg string) {
	ev := protocol.Event{
		"t":         nowTick,
		"type":      protocol.EventTaskFail,
		"entity_id": e.ID,
		"ref":       e.taskRef,
		"code":      code,
		"message":   msg,
		"pos":       coordArr(e.Pos),
	}
	w.emit(ev)
}
