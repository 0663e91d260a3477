package world

import (
	"fmt"

	"gridnav.dev/internal/protocol"
)

type clientState struct {
	id   string
	name string
	out  chan []byte
}

func (w *World) joinSession(name string, out chan []byte) JoinResponse {
	w.nextSession++
	id := fmt.Sprintf("S%d", w.nextSession)
	w.clients[id] = &clientState{id: id, name: name, out: out}
	return JoinResponse{Welcome: w.buildWelcome(id)}
}

func (w *World) buildWelcome(sessionID string) protocol.WelcomeMsg {
	g := w.Grid()
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         w.cfg.ID,
		WorldParams: protocol.WorldParams{
			TickRateHz:   w.cfg.TickRateHz,
			Width:        g.Width(),
			Height:       g.Height(),
			DefaultSpeed: w.cfg.DefaultSpeed,
			GridDigest:   g.Digest(),
		},
	}
}
