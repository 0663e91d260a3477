package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "gridnav.dev/internal/persistence/log"
	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/planner"
	"gridnav.dev/internal/sim/tuning"
	"gridnav.dev/internal/sim/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		mapPath    = flag.String("map", "", "text map for a fresh world (default: tuning map_path, relative to -configs)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit/plans + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(worldDir)
	}

	// Load tuning (required for fresh world; optional for snapshot resumes).
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		// Resume fallback: the snapshot carries the operational parameters.
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(*worldID, tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	// Create world (fresh or resumed from snapshot).
	var (
		w    *world.World
		snap snapshot.SnapshotV1
	)
	if snapshotToLoad != "" {
		snap, err = snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		g, err := grid.Decode(snap.Grid.Width, snap.Grid.Height, snap.Grid.RLE)
		if err != nil {
			logger.Fatalf("snapshot grid: %v", err)
		}
		w, err = world.New(world.ConfigFromTuning(*worldID, tune), g)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
	} else {
		mp := strings.TrimSpace(*mapPath)
		if mp == "" {
			mp = tune.MapPath
			if mp != "" && !filepath.IsAbs(mp) {
				mp = filepath.Join(*configDir, mp)
			}
		}
		if mp == "" {
			logger.Fatalf("no map: pass -map or set map_path in %s", tp)
		}
		g, err := grid.LoadFile(mp)
		if err != nil {
			logger.Fatalf("load map: %v", err)
		}
		w, err = world.New(world.ConfigFromTuning(*worldID, tune), g)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		logger.Printf("fresh world map=%s size=%dx%d digest=%s", mp, g.Width(), g.Height(), g.Digest())
	}

	ctx, cancel := signalContext()
	defer cancel()

	// The planner must be attached before a snapshot import so resumed
	// routes that need a fresh search are submitted to it.
	pl := planner.New(planner.Config{
		Workers: tune.Planner.Workers,
		Queue:   tune.Planner.Queue,
		Timeout: time.Duration(tune.Search.TimeoutMs) * time.Millisecond,
	})
	defer pl.Close()
	go func() {
		if err := pl.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("planner stopped: %v", err)
		}
	}()
	w.SetPlanner(pl)

	if snapshotToLoad != "" {
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})
	} else {
		w.SetTickLogger(tickLog)
		w.SetAuditLogger(auditLog)
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snapCh:
				path := snapshot.PathForTick(worldDir, s.Header.Tick)
				if err := snapshot.WriteSnapshot(path, s); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, s)
					idx.RecordSnapshotState(s)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}

	mux := newMux(w, httpOptions{
		EnableAdmin: envBool("GN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		EnablePprof: envBool("GN_ENABLE_PPROF_HTTP", false),
		Index:       idx,
		Validator:   validator,
	}, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
