package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	persistlog "gridnav.dev/internal/persistence/log"
	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "grid":
			gridCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// auditCmd prints applied searches from the audit log, oldest first.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	entityID := fs.String("entity", "", "entity id filter (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	failedOnly := fs.Bool("failed", false, "only searches that found no path")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	dir := filepath.Join(*dataDir, "worlds", *worldID, "audit")
	f := auditFilter{EntityID: strings.TrimSpace(*entityID), SinceTick: *sinceTick, ToTick: *toTick, FailedOnly: *failedOnly}
	n, err := printAudit(os.Stdout, dir, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", n)
}

type auditFilter struct {
	EntityID   string
	SinceTick  uint64
	ToTick     uint64
	FailedOnly bool
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if e.Tick < f.SinceTick || (f.ToTick != 0 && e.Tick > f.ToTick) {
		return false
	}
	return !f.FailedOnly || !e.Found
}

func printAudit(w io.Writer, dir string, f auditFilter) (int, error) {
	files, err := persistlog.ListFiles(dir, "audit")
	if err != nil {
		return 0, err
	}
	var n int
	for _, path := range files {
		err := persistlog.ForEachLine(path, func(e world.AuditEntry) error {
			if !f.match(e) {
				return nil
			}
			n++
			return writeJSON(w, e)
		})
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// inspectCmd summarizes a snapshot file without loading it into a world.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		path = snapshot.Latest(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	_ = writeJSON(os.Stdout, summarize(path, snap))
}

type snapshotSummary struct {
	Path         string `json:"path"`
	WorldID      string `json:"world_id"`
	Tick         uint64 `json:"tick"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Entities     int    `json:"entities"`
	Routes       int    `json:"routes"`
	CachedCells  int    `json:"cached_cells"`
	NextEntity   uint64 `json:"next_entity"`
	NextJob      uint64 `json:"next_job"`
	LostPolicy   string `json:"follower_lost_policy"`
	TickRateHz   int    `json:"tick_rate_hz"`
	DefaultSpeed int    `json:"default_speed"`
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:         path,
		WorldID:      snap.Header.WorldID,
		Tick:         snap.Header.Tick,
		Width:        snap.Grid.Width,
		Height:       snap.Grid.Height,
		Entities:     len(snap.Entities),
		NextEntity:   snap.Counters.NextEntity,
		NextJob:      snap.Counters.NextJob,
		LostPolicy:   snap.FollowerLostPolicy,
		TickRateHz:   snap.TickRate,
		DefaultSpeed: snap.DefaultSpeed,
	}
	for _, e := range snap.Entities {
		if e.Path == nil {
			continue
		}
		s.Routes++
		s.CachedCells += len(e.Path.Waypoints)
	}
	return s
}
