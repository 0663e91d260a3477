package world

import (
	"context"
	"errors"
)

var (
	ErrNoSnapshotSink       = errors.New("world: snapshot sink not configured")
	ErrSnapshotBackpressure = errors.New("world: snapshot sink full")
)

// SnapshotInfo describes a snapshot handed to the sink on request.
type SnapshotInfo struct {
	Tick       uint64 `json:"tick"`
	Entities   int    `json:"entities"`
	Routes     int    `json:"routes"`
	GridDigest string `json:"grid_digest"`
}

type snapshotReq struct {
	resp chan snapshotResult
}

type snapshotResult struct {
	info SnapshotInfo
	err  error
}

// RequestSnapshot exports the state as of the last completed tick and queues
// it on the snapshot sink. The export happens on the loop goroutine right
// after a step.
func (w *World) RequestSnapshot(ctx context.Context) (SnapshotInfo, error) {
	req := snapshotReq{resp: make(chan snapshotResult, 1)}
	select {
	case w.admin <- req:
	case <-ctx.Done():
		return SnapshotInfo{}, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r.info, r.err
	case <-ctx.Done():
		return SnapshotInfo{}, ctx.Err()
	}
}

// answerSnapshotRequests serves every request of one tick with a single
// export.
func (w *World) answerSnapshotRequests(reqs []snapshotReq) {
	if len(reqs) == 0 {
		return
	}
	var res snapshotResult
	if w.snapshotSink == nil {
		res.err = ErrNoSnapshotSink
	} else {
		snap := w.ExportSnapshot(w.tick.Load() - 1)
		res.info = SnapshotInfo{
			Tick:       snap.Header.Tick,
			Entities:   len(snap.Entities),
			GridDigest: w.Grid().Digest(),
		}
		for _, e := range snap.Entities {
			if e.Path != nil {
				res.info.Routes++
			}
		}
		select {
		case w.snapshotSink <- snap:
		default:
			res.err = ErrSnapshotBackpressure
		}
	}
	for _, r := range reqs {
		select {
		case r.resp <- res:
		default:
		}
	}
}
