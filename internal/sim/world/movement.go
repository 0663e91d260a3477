package world

import (
	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/tuning"
)

// advanceLeaders moves every FOLLOWING entity up to Speed waypoints. Each
// waypoint is one king move away, so arriving at it consumes one unit of the
// tick's budget.
func (w *World) advanceLeaders(nowTick uint64, ids []string) {
	g := w.Grid()
	for _, id := range ids {
		e := w.entities[id]
		if e == nil || e.Mode != ModeFollowing || e.Leader == nil {
			continue
		}
		for budget := e.Speed; budget > 0; budget-- {
			next, ok := e.Leader.Waypoints.Peek()
			if !ok {
				break
			}
			if g.IsBlocked(next) {
				w.taskFail(nowTick, e, protocol.ErrBlocked, "route blocked")
				w.resetToIdle(e)
				break
			}
			e.Pos = next
			e.Leader.Waypoints.Pop()
			e.Path.Waypoints.Pop()
		}
		if e.Mode == ModeFollowing && e.Leader.Done() {
			w.taskDone(nowTick, e)
		}
	}
}

func (w *World) taskDone(nowTick uint64, e *Entity) {
	w.totals.tasksDone++
	w.emit(protocol.Event{
		"t":         nowTick,
		"type":      protocol.EventTaskDone,
		"entity_id": e.ID,
		"ref":       e.taskRef,
		"pos":       coordArr(e.Pos),
	})
	w.resetToIdle(e)
}

// updateFollowers runs after every leader has moved, so each follower reads
// its leader's final position for the tick.
func (w *World) updateFollowers(nowTick uint64, ids []string) {
	for _, id := range ids {
		e := w.entities[id]
		if e == nil || e.Mode != ModeFollower || e.Follow == nil {
			continue
		}
		leader := w.entities[string(e.Follow.LeaderID)]
		if leader == nil {
			w.followerLost(nowTick, e)
			continue
		}
		e.lost = false
		e.Pos = e.Follow.Resolve(leader.Pos)
	}
}

// followerLost handles a leader id that no longer resolves. The follower
// keeps its last position under both policies.
func (w *World) followerLost(nowTick uint64, e *Entity) {
	if e.lost {
		return
	}
	w.totals.followLost++
	w.emit(protocol.Event{
		"t":         nowTick,
		"type":      protocol.EventFollowLost,
		"entity_id": e.ID,
		"leader_id": string(e.Follow.LeaderID),
		"code":      protocol.ErrStale,
		"policy":    w.cfg.FollowerLostPolicy,
		"pos":       coordArr(e.Pos),
	})
	if w.cfg.FollowerLostPolicy == tuning.LostFreeze {
		e.lost = true
		return
	}
	w.resetToIdle(e)
}
