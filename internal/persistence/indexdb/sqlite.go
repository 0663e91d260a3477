package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/tuning"
	"gridnav.dev/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the tick and audit logs. Writes are
// queued and applied by a single goroutine; when the queue is full they are
// dropped and counted. The JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick          atomic.Uint64
	dropAudit         atomic.Uint64
	dropSnapshot      atomic.Uint64
	dropSnapshotState atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqSnapshotState
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
	state    []snapshotEntityRow
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	Width    int
	Height   int
	Blocked  int
	Entities int
	Routes   int
}

type snapshotEntityRow struct {
	Tick      uint64
	EntityID  string
	Name      string
	X, Y      int
	Speed     int
	HasTarget bool
	TargetX   int
	TargetY   int
	Waypoints int
}

type Stats struct {
	QueueDepth             int    `json:"queue_depth"`
	QueueCapacity          int    `json:"queue_capacity"`
	DropTickTotal          uint64 `json:"drop_tick_total"`
	DropAuditTotal         uint64 `json:"drop_audit_total"`
	DropSnapshotTotal      uint64 `json:"drop_snapshot_total"`
	DropSnapshotStateTotal uint64 `json:"drop_snapshot_state_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			plans INTEGER NOT NULL,
			grid_changed INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			cmd_id TEXT NOT NULL,
			op TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			cmd_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_entity_tick ON commands(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS plans (
			tick INTEGER NOT NULL,
			job_id INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			found INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			len INTEGER NOT NULL,
			expanded INTEGER NOT NULL,
			exhausted INTEGER NOT NULL,
			timed_out INTEGER NOT NULL,
			canceled INTEGER NOT NULL,
			PRIMARY KEY (job_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_plans_entity_tick ON plans(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			job_id INTEGER NOT NULL,
			start_x INTEGER NOT NULL,
			start_y INTEGER NOT NULL,
			target_x INTEGER NOT NULL,
			target_y INTEGER NOT NULL,
			found INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			expanded INTEGER NOT NULL,
			micros INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_entity_tick ON audits(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			blocked INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			routes INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_entities (
			tick INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			name TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			speed INTEGER NOT NULL,
			target_x INTEGER,
			target_y INTEGER,
			waypoints INTEGER NOT NULL,
			PRIMARY KEY (tick, entity_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
		DropTickTotal:          s.dropTick.Load(),
		DropAuditTotal:         s.dropAudit.Load(),
		DropSnapshotTotal:      s.dropSnapshot.Load(),
		DropSnapshotStateTotal: s.dropSnapshotState.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:     snap.Header.Tick,
		Path:     path,
		Width:    snap.Grid.Width,
		Height:   snap.Grid.Height,
		Entities: len(snap.Entities),
	}
	if g, err := grid.Decode(snap.Grid.Width, snap.Grid.Height, snap.Grid.RLE); err == nil {
		r.Blocked = g.BlockedCount()
	}
	for _, e := range snap.Entities {
		if e.Path != nil {
			r.Routes++
		}
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// RecordSnapshotState stores one row per entity so positions at a snapshot
// tick can be queried without decoding the snapshot file.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	rows := make([]snapshotEntityRow, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		r := snapshotEntityRow{
			Tick:     snap.Header.Tick,
			EntityID: e.ID,
			Name:     e.Name,
			X:        e.Pos[0],
			Y:        e.Pos[1],
			Speed:    e.Speed,
		}
		if e.Path != nil {
			r.HasTarget = true
			r.TargetX, r.TargetY = e.Path.Target[0], e.Path.Target[1]
			r.Waypoints = len(e.Path.Waypoints)
		}
		rows = append(rows, r)
	}
	select {
	case s.ch <- req{kind: reqSnapshotState, state: rows}:
	default:
		s.dropSnapshotState.Add(1)
	}
}

// UpsertTuning records the tuning actually applied, keyed by its digest.
func (s *SQLiteIndex) UpsertTuning(worldID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('world_id',?)`, worldID); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES('tuning',?,?,?)`, digest, string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,commands,plans,grid_changed,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,session_id,cmd_id,op,entity_id,cmd_json) VALUES(?,?,?,?,?,?,?)`)
	insertPlan, _ := s.db.Prepare(`INSERT OR REPLACE INTO plans(tick,job_id,entity_id,found,cost,len,expanded,exhausted,timed_out,canceled) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,entity_id,job_id,start_x,start_y,target_x,target_y,found,cost,expanded,micros,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,width,height,blocked,entities,routes) VALUES(?,?,?,?,?,?,?)`)
	insertEntity, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshot_entities(tick,entity_id,name,x,y,speed,target_x,target_y,waypoints) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertPlan, insertAudit, insertSnapshot, insertEntity} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			if !exec(insertTick, int64(t.Tick), t.Digest, len(t.Joins), len(t.Leaves), len(t.Commands), len(t.Plans), boolInt(t.Grid != nil), string(b)) {
				continue
			}
			for i, c := range t.Commands {
				cmdJSON, _ := json.Marshal(c.Cmd)
				if !exec(insertCommand, int64(t.Tick), i, c.SessionID, c.Cmd.CmdID, c.Cmd.Op, c.Cmd.EntityID, string(cmdJSON)) {
					break
				}
			}
			for _, p := range t.Plans {
				if !exec(insertPlan, int64(t.Tick), int64(p.JobID), p.EntityID, boolInt(p.Found), p.Cost, len(p.Path), p.Expanded, boolInt(p.Exhausted), boolInt(p.TimedOut), boolInt(p.Canceled)) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.EntityID, int64(a.JobID),
				a.Start[0], a.Start[1], a.Target[0], a.Target[1],
				boolInt(a.Found), a.Cost, a.Expanded, a.Micros, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Width, sn.Height, sn.Blocked, sn.Entities, sn.Routes)

		case reqSnapshotState:
			for _, e := range r.state {
				var targetX, targetY sql.NullInt64
				if e.HasTarget {
					targetX = sql.NullInt64{Int64: int64(e.TargetX), Valid: true}
					targetY = sql.NullInt64{Int64: int64(e.TargetY), Valid: true}
				}
				if !exec(insertEntity, int64(e.Tick), e.EntityID, e.Name, e.X, e.Y, e.Speed, targetX, targetY, e.Waypoints) {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
