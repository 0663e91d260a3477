package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"gridnav.dev/internal/protocol"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "client name")
		followers = flag.Int("followers", 4, "followers per squad (max 8)")
		originX   = flag.Int("x", 1, "spawn x")
		originY   = flag.Int("y", 1, "spawn y")
		every     = flag.Uint64("every", 50, "ticks between leader moves")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var sq *squad
	send := func(cmds []protocol.CmdMsg) {
		for _, c := range cmds {
			if err := conn.WriteJSON(c); err != nil {
				logger.Printf("send %s: %v", c.Op, err)
			}
		}
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s world=%s size=%dx%d tick_rate=%d",
				w.SessionID, w.WorldID, w.WorldParams.Width, w.WorldParams.Height, w.WorldParams.TickRateHz)
			sq = newSquad(*name, *followers, w.WorldParams.Width, w.WorldParams.Height, [2]int{*originX, *originY}, time.Now().UnixNano())
			sq.every = *every
			send(sq.start())

		case protocol.TypeState:
			if sq == nil {
				continue
			}
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			for _, ev := range st.Events {
				switch ev["type"] {
				case protocol.EventPlanOK, protocol.EventTaskDone, protocol.EventTaskFail, protocol.EventFollowLost:
					logger.Printf("tick=%d %v", st.Tick, ev)
				}
			}
			send(sq.handle(st))

		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err == nil {
				logger.Printf("rejected ref=%s code=%s: %s", em.Ref, em.Code, em.Message)
			}
		}
	}
}
