package world

import (
	"fmt"
	"sort"

	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/paths"
)

type Mode string

const (
	ModeIdle      Mode = "IDLE"
	ModePlanning  Mode = "PLANNING"
	ModeFollowing Mode = "FOLLOWING"
	ModeFollower  Mode = "FOLLOWER"
)

// Entity is a movable unit. At most one of Leader and Follow is set:
//   - IDLE: neither; Path nil
//   - PLANNING: Path set, search outstanding under planJob
//   - FOLLOWING: Path and Leader set, advancing each tick
//   - FOLLOWER: Follow set, position derived from the leader
type Entity struct {
	ID    string
	Name  string
	Pos   grid.Coord
	Speed int
	Mode  Mode

	Path   *paths.StoredPath
	Leader *paths.LeaderControl
	Follow *paths.FollowerControl

	planJob     uint64
	taskRef     string
	taskSession string
	lost        bool
}

func (w *World) newEntityID() string {
	w.nextEntity++
	return fmt.Sprintf("E%06d", w.nextEntity)
}

func (w *World) sortedEntityIDs() []string {
	ids := make([]string, 0, len(w.entities))
	for id := range w.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) hasFollowers(id string) bool {
	for _, e := range w.entities {
		if e.Follow != nil && string(e.Follow.LeaderID) == id {
			return true
		}
	}
	return false
}

// resetToIdle drops any outstanding search, route or follow link.
func (w *World) resetToIdle(e *Entity) {
	if e.planJob != 0 && w.planner != nil && !w.cfg.SyncPlanning && !w.cfg.ReplayPlans {
		w.planner.Cancel(e.planJob)
	}
	e.planJob = 0
	e.Path = nil
	e.Leader = nil
	e.Follow = nil
	e.lost = false
	e.taskRef = ""
	e.taskSession = ""
	e.Mode = ModeIdle
}

func (e *Entity) state() protocol.EntityState {
	st := protocol.EntityState{
		ID:   e.ID,
		Name: e.Name,
		Pos:  coordArr(e.Pos),
		Mode: string(e.Mode),
	}
	if e.Path != nil {
		t := coordArr(e.Path.Target)
		st.Target = &t
	}
	if e.Leader != nil {
		st.Waypoints = e.Leader.Waypoints.Len()
	}
	if e.Follow != nil {
		st.LeaderID = string(e.Follow.LeaderID)
		off := coordArr(e.Follow.Offset)
		st.Offset = &off
	}
	return st
}

func coordArr(c grid.Coord) [2]int { return [2]int{c.X, c.Y} }

func coordFrom(a [2]int) grid.Coord { return grid.Coord{X: a[0], Y: a[1]} }
