package paths

import (
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/pathfind"
)

type EntityID string

// StoredPath survives snapshots. Target is authoritative; Waypoints is a
// cache that a reload may recompute.
type StoredPath struct {
	Target    grid.Coord
	Waypoints Waypoints
}

func NewStoredPath(target grid.Coord) *StoredPath {
	return &StoredPath{Target: target}
}

// Assign replaces the waypoint queue with p, in order.
func (s *StoredPath) Assign(p pathfind.Path) {
	s.Waypoints = NewWaypoints(p)
}

// Clone returns a path whose queue can be drained without touching s.
func (s *StoredPath) Clone() *StoredPath {
	if s == nil {
		return nil
	}
	return &StoredPath{Target: s.Target, Waypoints: s.Waypoints.Clone()}
}

// LeaderControl drives one move of a leading entity. It is rebuilt every time
// a move starts and never persisted.
type LeaderControl struct {
	ID        EntityID
	Target    grid.Coord
	Waypoints Waypoints
}

func NewLeaderControl(id EntityID, target grid.Coord, p pathfind.Path) *LeaderControl {
	return &LeaderControl{ID: id, Target: target, Waypoints: NewWaypoints(p)}
}

// Done reports whether the queue is exhausted.
func (l *LeaderControl) Done() bool { return l.Waypoints.Len() == 0 }

// FollowerControl ties an entity to a leader by id. It carries no waypoints:
// the follower's position is always derived from the leader's.
type FollowerControl struct {
	LeaderID EntityID
	Offset   grid.Coord
}

// Resolve returns leaderPos + Offset.
func (f FollowerControl) Resolve(leaderPos grid.Coord) grid.Coord {
	return leaderPos.Add(f.Offset)
}
