package world

import (
	"fmt"

	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/pathfind"
	"gridnav.dev/internal/sim/paths"
)

func (w *World) importSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.CurrentVersion {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if w.cfg.ID != "" && s.Header.WorldID != "" && w.cfg.ID != s.Header.WorldID {
		return fmt.Errorf("snapshot world mismatch: cfg=%q snap=%q", w.cfg.ID, s.Header.WorldID)
	}
	g, err := grid.Decode(s.Grid.Width, s.Grid.Height, s.Grid.RLE)
	if err != nil {
		return fmt.Errorf("snapshot grid: %w", err)
	}

	// Operational parameters: snapshot is authoritative when present.
	if s.TickRate > 0 {
		w.cfg.TickRateHz = s.TickRate
	}
	if s.DefaultSpeed > 0 {
		w.cfg.DefaultSpeed = s.DefaultSpeed
	}
	if s.SnapshotEveryTicks > 0 {
		w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	if s.FollowerLostPolicy != "" {
		w.cfg.FollowerLostPolicy = s.FollowerLostPolicy
	}
	if s.MaxExpanded > 0 {
		w.cfg.MaxExpanded = s.MaxExpanded
	}
	if s.NearestRadius > 0 {
		w.cfg.NearestRadius = s.NearestRadius
	}
	w.cfg.CornerCutting = s.CornerCutting

	w.grid.Store(g)
	w.entities = make(map[string]*Entity, len(s.Entities))
	w.readyPlans = nil
	w.deferred = nil
	w.broadcast = w.broadcast[:0]
	w.nextEntity = s.Counters.NextEntity
	w.nextJob = s.Counters.NextJob

	for _, ev := range s.Entities {
		if ev.ID == "" {
			return fmt.Errorf("snapshot entity without id")
		}
		if _, dup := w.entities[ev.ID]; dup {
			return fmt.Errorf("snapshot duplicate entity %q", ev.ID)
		}
		speed := ev.Speed
		if speed <= 0 {
			speed = w.cfg.DefaultSpeed
		}
		w.entities[ev.ID] = &Entity{
			ID:    ev.ID,
			Name:  ev.Name,
			Pos:   coordFrom(ev.Pos),
			Speed: speed,
			Mode:  ModeIdle,
		}
	}

	// Resume stored paths in id order so job ids come out the same on every
	// import of the same snapshot.
	for _, ev := range s.Entities {
		if ev.Path == nil {
			continue
		}
		w.resumePath(w.entities[ev.ID], ev.Path)
	}

	w.tick.Store(s.Header.Tick + 1)
	return nil
}

// resumePath reuses the cached waypoints when they still form a walkable
// chain from the entity to the target. Otherwise it re-plans.
func (w *World) resumePath(e *Entity, sp *snapshot.StoredPathV1) {
	target := coordFrom(sp.Target)
	cache := make(pathfind.Path, len(sp.Waypoints))
	for i, c := range sp.Waypoints {
		cache[i] = coordFrom(c)
	}
	if len(cache) == 0 && e.Pos == target {
		return
	}
	if validRoute(w.Grid(), e.Pos, target, cache) {
		e.Path = paths.NewStoredPath(target)
		e.Path.Assign(cache)
		e.Leader = paths.NewLeaderControl(paths.EntityID(e.ID), target, cache)
		e.Mode = ModeFollowing
		return
	}
	// A refused job keeps the entity PLANNING with its stored target. The loop
	// resubmits it once the planner has room.
	if job, err := w.startPlan(e, target); err != nil {
		w.deferred = append(w.deferred, job)
	}
}

func validRoute(g *grid.Grid, start, target grid.Coord, p pathfind.Path) bool {
	last, ok := p.Last()
	if !ok || last != target {
		return false
	}
	prev := start
	for _, c := range p {
		if g.IsBlocked(c) || pathfind.StepCost(prev, c) <= 0 {
			return false
		}
		prev = c
	}
	return true
}
