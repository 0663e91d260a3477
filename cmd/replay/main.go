package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	persistlog "gridnav.dev/internal/persistence/log"
	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/tuning"
	"gridnav.dev/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst the server booted from (optional)")
		mapPath    = flag.String("map", "", "text map of a fresh world (required without -snapshot)")
		tuningPath = flag.String("tuning", "", "tuning.yaml the server ran with (fresh worlds only; default: built-in defaults)")
		worldID    = flag.String("world", "world_1", "world id (fresh worlds only)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	w, err := buildWorld(*snapPath, *mapPath, *tuningPath, *worldID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *eventsDir == "" {
		return
	}

	startTick := w.CurrentTick()
	verifyFrom := *fromTick
	if verifyFrom == 0 {
		verifyFrom = startTick
	}
	checked, plans, err := replay(w, *eventsDir, verifyFrom, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks plans=%d (from tick=%d)\n", checked, plans, startTick)
}

func buildWorld(snapPath, mapPath, tuningPath, worldID string) (*world.World, error) {
	tune := tuning.Defaults()
	if p := strings.TrimSpace(tuningPath); p != "" {
		t, err := tuning.Load(p)
		if err != nil {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		tune = t
	}

	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		fmt.Printf("snapshot v%d world=%s tick=%d grid=%dx%d entities=%d next_job=%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick,
			snap.Grid.Width, snap.Grid.Height, len(snap.Entities), snap.Counters.NextJob)

		g, err := grid.Decode(snap.Grid.Width, snap.Grid.Height, snap.Grid.RLE)
		if err != nil {
			return nil, fmt.Errorf("snapshot grid: %w", err)
		}
		cfg := world.ConfigFromTuning(snap.Header.WorldID, tune)
		cfg.ReplayPlans = true
		w, err := world.New(cfg, g)
		if err != nil {
			return nil, fmt.Errorf("world: %w", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
		return w, nil
	}

	if mapPath == "" {
		return nil, errors.New("missing -snapshot or -map")
	}
	g, err := grid.LoadFile(mapPath)
	if err != nil {
		return nil, fmt.Errorf("load map: %w", err)
	}
	cfg := world.ConfigFromTuning(worldID, tune)
	cfg.ReplayPlans = true
	w, err := world.New(cfg, g)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	return w, nil
}

var errDone = errors.New("done")

// replay steps w through every logged tick, feeding back the recorded inputs
// and plan outcomes, and compares the state digest from verifyFrom onwards.
func replay(w *world.World, eventsDir string, verifyFrom, toTick uint64) (checked uint64, plans int, err error) {
	startTick := w.CurrentTick()
	err = persistlog.ForEachTick(eventsDir, func(entry world.TickLogEntry) error {
		if entry.Tick < startTick {
			return nil
		}
		if toTick != 0 && entry.Tick > toTick {
			return errDone
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}

		in := world.StepInput{Leaves: entry.Leaves, Plans: entry.Plans}
		for _, j := range entry.Joins {
			in.Joins = append(in.Joins, world.JoinRequest{Name: j.Name})
		}
		if entry.Grid != nil {
			g, err := grid.Decode(entry.Grid.Width, entry.Grid.Height, entry.Grid.RLE)
			if err != nil {
				return fmt.Errorf("tick %d grid: %w", entry.Tick, err)
			}
			in.Grid = g
		}
		for _, rc := range entry.Commands {
			in.Commands = append(in.Commands, world.CommandEnvelope{SessionID: rc.SessionID, Cmd: rc.Cmd})
		}
		plans += len(entry.Plans)

		tick, gotDigest := w.StepOnce(in)
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}
		if tick >= verifyFrom {
			checked++
			if gotDigest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
			}
		}
		return nil
	})
	if errors.Is(err, errDone) {
		err = nil
	}
	return checked, plans, err
}
