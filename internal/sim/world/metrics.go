package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Entities  int `json:"entities"`
	Leaders   int `json:"leaders"`
	Followers int `json:"followers"`
	Planning  int `json:"planning"`
	Clients   int `json:"clients"`
	Observers int `json:"observers"`

	QueueDepths QueueDepths    `json:"queue_depths"`
	Planner     PlannerMetrics `json:"planner"`

	PlansFound  uint64 `json:"plans_found"`
	PlansFailed uint64 `json:"plans_failed"`
	TasksDone   uint64 `json:"tasks_done"`
	FollowLost  uint64 `json:"follow_lost"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

type PlannerMetrics struct {
	Queued   int    `json:"queued"`
	InFlight int    `json:"in_flight"`
	Done     uint64 `json:"done"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	if v := w.metrics.Load(); v != nil {
		if m, ok := v.(WorldMetrics); ok {
			return m
		}
	}
	return WorldMetrics{}
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64) {
	m := WorldMetrics{
		Tick:      nextTick,
		Entities:  len(w.entities),
		Clients:   len(w.clients),
		Observers: len(w.observers),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		PlansFound:  w.totals.plansFound,
		PlansFailed: w.totals.plansFailed,
		TasksDone:   w.totals.tasksDone,
		FollowLost:  w.totals.followLost,
		StepMS:      stepMS,
	}
	for _, e := range w.entities {
		switch e.Mode {
		case ModeFollowing:
			m.Leaders++
		case ModeFollower:
			m.Followers++
		case ModePlanning:
			m.Planning++
		}
	}
	if w.planner != nil {
		st := w.planner.Stats()
		m.Planner = PlannerMetrics{Queued: st.Queued, InFlight: st.InFlight, Done: st.Done}
	}
	w.metrics.Store(m)
}
