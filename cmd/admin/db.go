package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type queryOpts struct {
	Tick     uint64
	Limit    int
	EntityID string
}

const dbUsage = "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-tick T] [-entity ID] snapshots|entities|plans|commands|ticks"

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "snapshot tick for entities (optional; defaults to latest)")
	limit := fs.Int("limit", 20, "result limit")
	entityID := fs.String("entity", "", "entity_id filter (plans, commands)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	opts := queryOpts{Tick: *tick, Limit: *limit, EntityID: strings.TrimSpace(*entityID)}
	if err := runQuery(os.Stdout, db, q, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, dbUsage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runQuery(w io.Writer, db *sql.DB, q string, opts queryOpts) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,width,height,blocked,entities,routes FROM snapshots ORDER BY tick DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Path     string `json:"path"`
				Width    int    `json:"width"`
				Height   int    `json:"height"`
				Blocked  int    `json:"blocked"`
				Entities int    `json:"entities"`
				Routes   int    `json:"routes"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Width, &r.Height, &r.Blocked, &r.Entities, &r.Routes); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if err := writeJSON(w, r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "entities":
		tick := opts.Tick
		if tick == 0 {
			lt, err := latestSnapshotTick(db)
			if err != nil {
				return fmt.Errorf("latest tick: %w", err)
			}
			if lt == 0 {
				return fmt.Errorf("no snapshots found")
			}
			tick = lt
		}
		rows, err := db.Query(`SELECT entity_id,name,x,y,speed,target_x,target_y,waypoints FROM snapshot_entities WHERE tick=? ORDER BY entity_id`, tick)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      uint64        `json:"tick"`
				EntityID  string        `json:"entity_id"`
				Name      string        `json:"name"`
				X         int           `json:"x"`
				Y         int           `json:"y"`
				Speed     int           `json:"speed"`
				TargetX   sql.NullInt64 `json:"-"`
				TargetY   sql.NullInt64 `json:"-"`
				Target    *[2]int64     `json:"target,omitempty"`
				Waypoints int           `json:"waypoints"`
			}
			if err := rows.Scan(&r.EntityID, &r.Name, &r.X, &r.Y, &r.Speed, &r.TargetX, &r.TargetY, &r.Waypoints); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Tick = tick
			if r.TargetX.Valid && r.TargetY.Valid {
				r.Target = &[2]int64{r.TargetX.Int64, r.TargetY.Int64}
			}
			if err := writeJSON(w, r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "plans":
		query := `SELECT tick,job_id,entity_id,found,cost,len,expanded,exhausted,timed_out,canceled FROM plans ORDER BY job_id DESC LIMIT ?`
		args := []any{opts.Limit}
		if opts.EntityID != "" {
			query = `SELECT tick,job_id,entity_id,found,cost,len,expanded,exhausted,timed_out,canceled FROM plans WHERE entity_id=? ORDER BY job_id DESC LIMIT ?`
			args = []any{opts.EntityID, opts.Limit}
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64  `json:"tick"`
				JobID     int64  `json:"job_id"`
				EntityID  string `json:"entity_id"`
				Found     bool   `json:"found"`
				Cost      int    `json:"cost"`
				Len       int    `json:"len"`
				Expanded  int    `json:"expanded"`
				Exhausted bool   `json:"exhausted,omitempty"`
				TimedOut  bool   `json:"timed_out,omitempty"`
				Canceled  bool   `json:"canceled,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.JobID, &r.EntityID, &r.Found, &r.Cost, &r.Len, &r.Expanded, &r.Exhausted, &r.TimedOut, &r.Canceled); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if err := writeJSON(w, r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "commands":
		query := `SELECT tick,seq,session_id,cmd_id,op,entity_id,cmd_json FROM commands ORDER BY tick DESC, seq DESC LIMIT ?`
		args := []any{opts.Limit}
		if opts.EntityID != "" {
			query = `SELECT tick,seq,session_id,cmd_id,op,entity_id,cmd_json FROM commands WHERE entity_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
			args = []any{opts.EntityID, opts.Limit}
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64           `json:"tick"`
				Seq       int             `json:"seq"`
				SessionID string          `json:"session_id"`
				CmdID     string          `json:"cmd_id"`
				Op        string          `json:"op"`
				EntityID  string          `json:"entity_id,omitempty"`
				Cmd       json.RawMessage `json:"cmd"`
			}
			var raw string
			if err := rows.Scan(&r.Tick, &r.Seq, &r.SessionID, &r.CmdID, &r.Op, &r.EntityID, &raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Cmd = json.RawMessage(raw)
			if err := writeJSON(w, r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,joins,leaves,commands,plans,grid_changed FROM ticks ORDER BY tick DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick        int64  `json:"tick"`
				Digest      string `json:"digest"`
				Joins       int    `json:"joins"`
				Leaves      int    `json:"leaves"`
				Commands    int    `json:"commands"`
				Plans       int    `json:"plans"`
				GridChanged bool   `json:"grid_changed"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Commands, &r.Plans, &r.GridChanged); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if err := writeJSON(w, r); err != nil {
				return err
			}
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func latestSnapshotTick(db *sql.DB) (uint64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil db")
	}
	var t int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(tick),0) FROM snapshots`).Scan(&t); err != nil {
		return 0, err
	}
	if t < 0 {
		return 0, nil
	}
	return uint64(t), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
