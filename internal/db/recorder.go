package db

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/trackpose/internal/monitoring"
	"github.com/banshee-data/trackpose/internal/pose"
	"github.com/banshee-data/trackpose/internal/posemux"
)

var recLogf = monitoring.Component("recorder")

// Recorder persists frames from a posemux into one session.
type Recorder struct {
	db      *DB
	every   int
	session Session

	received int
	recorded atomic.Uint64
	failed   atomic.Uint64
}

// NewRecorder starts a session for axes and indices. Every every-th frame
// received is stored; every < 1 is treated as 1.
func NewRecorder(db *DB, axes pose.AxisConfig, indices []uint32, every int) (*Recorder, error) {
	if every < 1 {
		every = 1
	}
	s, err := db.StartSession(axes, indices)
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, every: every, session: s}, nil
}

// Session returns the session being recorded.
func (r *Recorder) Session() Session {
	return r.session
}

// Recorded returns the number of frames stored.
func (r *Recorder) Recorded() uint64 {
	return r.recorded.Load()
}

// Failed returns the number of frames that could not be stored.
func (r *Recorder) Failed() uint64 {
	return r.failed.Load()
}

// Run records frames until ctx is cancelled or the mux closes, then ends
// the session. Frames already buffered for the recorder when ctx is
// cancelled are still stored. It returns nil on a clean shutdown.
func (r *Recorder) Run(ctx context.Context, m *posemux.Mux) error {
	id, frames := m.Subscribe()
	defer m.Unsubscribe(id)

	recLogf("recording session %s (every %d frame(s))", r.session.ID, r.every)
	defer func() {
		if err := r.db.EndSession(r.session.ID); err != nil {
			recLogf("failed to end session %s: %v", r.session.ID, err)
			return
		}
		recLogf("session %s ended: %d frame(s) recorded, %d failed", r.session.ID, r.Recorded(), r.Failed())
	}()

	for {
		select {
		case <-ctx.Done():
			r.drain(frames)
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			r.handle(f)
		}
	}
}

// drain handles every frame already buffered in frames without blocking.
func (r *Recorder) drain(frames <-chan posemux.Frame) {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			r.handle(f)
		default:
			return
		}
	}
}

func (r *Recorder) handle(f posemux.Frame) {
	r.received++
	if (r.received-1)%r.every != 0 {
		return
	}
	if err := r.db.RecordFrame(r.session.ID, f); err != nil {
		if r.failed.Add(1) == 1 {
			recLogf("failed to record frame %d: %v", f.Seq, err)
		}
		return
	}
	r.recorded.Add(1)
}
