package main

import (
	"fmt"
	"math/rand"

	"gridnav.dev/internal/protocol"
)

// squad drives one leader and a ring of followers. It reacts to STATE
// messages and returns the commands to send next.
type squad struct {
	name      string
	followers int
	width     int
	height    int
	origin    [2]int
	rng       *rand.Rand

	seq      int
	leaderID string
	members  []string
	pending  map[string]string // cmd_id -> role
	moving   bool
	moved    bool
	lastMove uint64
	every    uint64
}

var formation = [][2]int{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}, {0, -2}, {0, 2}, {-2, 0}, {2, 0}}

func newSquad(name string, followers, width, height int, origin [2]int, seed int64) *squad {
	if followers > len(formation) {
		followers = len(formation)
	}
	return &squad{
		name:      name,
		followers: followers,
		width:     width,
		height:    height,
		origin:    origin,
		rng:       rand.New(rand.NewSource(seed)),
		pending:   map[string]string{},
		every:     50,
	}
}

func (s *squad) nextCmd(op string) protocol.CmdMsg {
	s.seq++
	return protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		CmdID:           fmt.Sprintf("%s_%d", s.name, s.seq),
		Op:              op,
	}
}

// start spawns the leader and every follower around origin.
func (s *squad) start() []protocol.CmdMsg {
	out := make([]protocol.CmdMsg, 0, 1+s.followers)
	c := s.nextCmd(protocol.OpSpawn)
	c.Name = s.name + "-lead"
	c.Pos = &[2]float64{float64(s.origin[0]), float64(s.origin[1])}
	s.pending[c.CmdID] = "leader"
	out = append(out, c)
	for i := 0; i < s.followers; i++ {
		off := formation[i]
		c := s.nextCmd(protocol.OpSpawn)
		c.Name = fmt.Sprintf("%s-%d", s.name, i+1)
		c.Pos = &[2]float64{float64(clamp(s.origin[0]+off[0], s.width)), float64(clamp(s.origin[1]+off[1], s.height))}
		s.pending[c.CmdID] = fmt.Sprintf("follower:%d", i)
		out = append(out, c)
	}
	return out
}

func (s *squad) handle(st protocol.StateMsg) []protocol.CmdMsg {
	var out []protocol.CmdMsg
	for _, ev := range st.Events {
		typ, _ := ev["type"].(string)
		switch typ {
		case protocol.EventActionResult:
			ref, _ := ev["ref"].(string)
			role, ok := s.pending[ref]
			if !ok {
				continue
			}
			delete(s.pending, ref)
			if okv, _ := ev["ok"].(bool); !okv {
				continue
			}
			id, _ := ev["entity_id"].(string)
			if id == "" {
				continue
			}
			if role == "leader" {
				s.leaderID = id
				for _, m := range s.members {
					out = append(out, s.followCmd(m))
				}
				continue
			}
			var idx int
			if _, err := fmt.Sscanf(role, "follower:%d", &idx); err != nil {
				continue
			}
			s.members = append(s.members, id)
			if s.leaderID != "" {
				out = append(out, s.followCmd(id))
			}
		case protocol.EventTaskDone, protocol.EventTaskFail:
			if id, _ := ev["entity_id"].(string); id == s.leaderID {
				s.moving = false
			}
		}
	}

	if s.leaderID != "" && !s.moving && (!s.moved || st.Tick >= s.lastMove+s.every) {
		c := s.nextCmd(protocol.OpMove)
		c.EntityID = s.leaderID
		c.Target = &[2]float64{float64(s.rng.Intn(s.width)), float64(s.rng.Intn(s.height))}
		c.Nearest = true
		s.moving = true
		s.moved = true
		s.lastMove = st.Tick
		out = append(out, c)
	}
	return out
}

func (s *squad) followCmd(memberID string) protocol.CmdMsg {
	i := len(s.members) - 1
	for j, m := range s.members {
		if m == memberID {
			i = j
		}
	}
	off := formation[i%len(formation)]
	c := s.nextCmd(protocol.OpFollow)
	c.EntityID = memberID
	c.LeaderID = s.leaderID
	c.Offset = &[2]int{off[0], off[1]}
	return c
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
