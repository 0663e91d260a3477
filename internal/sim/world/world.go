package world

import (
	"errors"
	"sync/atomic"
	"time"

	"gridnav.dev/internal/persistence/snapshot"
	"gridnav.dev/internal/protocol"
	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/planner"
	"gridnav.dev/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int
	DefaultSpeed       int
	MaxEntities        int
	FollowerLostPolicy string

	MaxExpanded   int
	CornerCutting bool
	NearestRadius int

	// SyncPlanning runs searches inline on the world goroutine instead of
	// handing them to the planner.
	SyncPlanning bool
	// ReplayPlans disables searching entirely: plan outcomes only enter
	// through StepOnce.
	ReplayPlans bool
}

// ConfigFromTuning maps the yaml tuning onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		DefaultSpeed:       t.DefaultSpeed,
		MaxEntities:        t.MaxEntities,
		FollowerLostPolicy: t.FollowerLostPolicy,
		MaxExpanded:        t.Search.MaxExpanded,
		CornerCutting:      t.Search.CornerCutting,
		NearestRadius:      t.Search.NearestRadius,
	}
}

// Planner is the out-of-band search runner. *planner.Planner satisfies it.
type Planner interface {
	Submit(job planner.Job) (func(), error)
	Cancel(id uint64)
	Results() <-chan planner.Outcome
	Stats() planner.Stats
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig

	tick atomic.Uint64
	grid atomic.Pointer[grid.Grid]

	entities  map[string]*Entity
	clients   map[string]*clientState
	observers map[string]*observerClient

	nextEntity  uint64
	nextJob     uint64
	nextSession uint64

	planner    Planner
	readyPlans []planner.Outcome
	deferred   []planner.Job

	// Per-tick event buffers, reset at the start of every step.
	broadcast []protocol.Event
	direct    map[string][]protocol.Event

	inbox         chan CommandEnvelope
	join          chan JoinRequest
	leave         chan string
	admin         chan snapshotReq
	gridReq       chan setGridReq
	stateReq      chan stateReq
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	stop          chan struct{}

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	totals  totals
	metrics atomic.Value
}

type totals struct {
	plansFound  uint64
	plansFailed uint64
	tasksDone   uint64
	followLost  uint64
}

var ErrNilGrid = errors.New("world: nil grid")

func New(cfg WorldConfig, g *grid.Grid) (*World, error) {
	if g == nil {
		return nil, ErrNilGrid
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 10
	}
	if cfg.DefaultSpeed <= 0 {
		cfg.DefaultSpeed = 1
	}
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = 4096
	}
	if cfg.FollowerLostPolicy == "" {
		cfg.FollowerLostPolicy = tuning.LostDetach
	}
	w := &World{
		cfg:           cfg,
		entities:      map[string]*Entity{},
		clients:       map[string]*clientState{},
		observers:     map[string]*observerClient{},
		direct:        map[string][]protocol.Event{},
		inbox:         make(chan CommandEnvelope, 1024),
		join:          make(chan JoinRequest, 64),
		leave:         make(chan string, 64),
		admin:         make(chan snapshotReq, 8),
		gridReq:       make(chan setGridReq, 8),
		stateReq:      make(chan stateReq, 32),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		stop:          make(chan struct{}),
	}
	w.grid.Store(g)
	return w, nil
}

func (w *World) Config() WorldConfig { return w.cfg }

// Grid returns the current obstruction grid. Grids are immutable, so the
// result may be read from any goroutine.
func (w *World) Grid() *grid.Grid { return w.grid.Load() }

// SetPlanner must be called before Run.
func (w *World) SetPlanner(p Planner) { w.planner = p }

func (w *World) tickInterval() time.Duration {
	return time.Second / time.Duration(w.cfg.TickRateHz)
}
