package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/world"
	"gridnav.dev/internal/transport/observer"
	"gridnav.dev/internal/transport/ws"
)

type httpOptions struct {
	EnableAdmin bool
	EnablePprof bool
	Index       runtimeIndex
	Validator   *protocol.Validator
}

func newMux(w *world.World, opts httpOptions, logger *log.Logger) *http.ServeMux {
	worldID := w.ID()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, worldID, w.CurrentTick(), w.Metrics(), opts.Index)
	})

	if opts.EnableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			view, err := w.QueryState(ctx, strings.TrimSpace(r.URL.Query().Get("entity")))
			if err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID  string                 `json:"world_id"`
				Tick     uint64                 `json:"tick"`
				Entities []protocol.EntityState `json:"entities"`
				Metrics  world.WorldMetrics     `json:"metrics"`
			}{
				WorldID:  worldID,
				Tick:     view.Tick,
				Entities: view.Entities,
				Metrics:  w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			info, err := w.RequestSnapshot(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": info.Tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"ok":          true,
				"tick":        info.Tick,
				"entities":    info.Entities,
				"routes":      info.Routes,
				"grid_digest": info.GridDigest,
			})
		})
		// Body is a text map in the same format as -map files.
		mux.HandleFunc("/admin/v1/grid", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut && r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			g, err := grid.Parse(http.MaxBytesReader(rw, r.Body, 16<<20))
			if err != nil {
				http.Error(rw, err.Error(), http.StatusBadRequest)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			tick, err := w.SetGrid(ctx, g)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick, "digest": g.Digest()})
		})

		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (GN_ENABLE_ADMIN_HTTP=false)")
	}
	if opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, opts.Validator, logger).Handler())
	return mux
}

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(rw http.ResponseWriter, worldID string, tick uint64, m world.WorldMetrics, idx runtimeIndex) {
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(rw, "# HELP gridnav_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_world_tick gauge\n")
	fmt.Fprintf(rw, "gridnav_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(rw, "# HELP gridnav_world_entities Entities by role.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_world_entities gauge\n")
	fmt.Fprintf(rw, "gridnav_world_entities{world=%q,role=%q} %d\n", worldID, "all", m.Entities)
	fmt.Fprintf(rw, "gridnav_world_entities{world=%q,role=%q} %d\n", worldID, "leader", m.Leaders)
	fmt.Fprintf(rw, "gridnav_world_entities{world=%q,role=%q} %d\n", worldID, "follower", m.Followers)
	fmt.Fprintf(rw, "gridnav_world_entities{world=%q,role=%q} %d\n", worldID, "planning", m.Planning)

	fmt.Fprintf(rw, "# HELP gridnav_world_sessions Connected sessions by kind.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_world_sessions gauge\n")
	fmt.Fprintf(rw, "gridnav_world_sessions{world=%q,kind=%q} %d\n", worldID, "client", m.Clients)
	fmt.Fprintf(rw, "gridnav_world_sessions{world=%q,kind=%q} %d\n", worldID, "observer", m.Observers)

	fmt.Fprintf(rw, "# HELP gridnav_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "gridnav_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "gridnav_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "gridnav_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(rw, "# HELP gridnav_planner_jobs Planner jobs by state.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_planner_jobs gauge\n")
	fmt.Fprintf(rw, "gridnav_planner_jobs{world=%q,state=%q} %d\n", worldID, "queued", m.Planner.Queued)
	fmt.Fprintf(rw, "gridnav_planner_jobs{world=%q,state=%q} %d\n", worldID, "in_flight", m.Planner.InFlight)

	fmt.Fprintf(rw, "# HELP gridnav_planner_done_total Searches finished by the planner.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_planner_done_total counter\n")
	fmt.Fprintf(rw, "gridnav_planner_done_total{world=%q} %d\n", worldID, m.Planner.Done)

	fmt.Fprintf(rw, "# HELP gridnav_world_events_total Task outcomes applied by the world.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_world_events_total counter\n")
	fmt.Fprintf(rw, "gridnav_world_events_total{world=%q,event=%q} %d\n", worldID, "plan_ok", m.PlansFound)
	fmt.Fprintf(rw, "gridnav_world_events_total{world=%q,event=%q} %d\n", worldID, "plan_fail", m.PlansFailed)
	fmt.Fprintf(rw, "gridnav_world_events_total{world=%q,event=%q} %d\n", worldID, "task_done", m.TasksDone)
	fmt.Fprintf(rw, "gridnav_world_events_total{world=%q,event=%q} %d\n", worldID, "follow_lost", m.FollowLost)

	fmt.Fprintf(rw, "# HELP gridnav_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_world_step_ms gauge\n")
	fmt.Fprintf(rw, "gridnav_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP gridnav_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "gridnav_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP gridnav_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE gridnav_index_dropped_total counter\n")
	fmt.Fprintf(rw, "gridnav_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "gridnav_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "gridnav_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "gridnav_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot_state", s.DropSnapshotStateTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
