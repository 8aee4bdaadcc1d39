// Package tracker runs the periodic sampling loop: fetch transforms from a
// source, convert them with the pose package and publish frames.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/trackpose/internal/monitoring"
	"github.com/banshee-data/trackpose/internal/pose"
	"github.com/banshee-data/trackpose/internal/posemux"
	"github.com/banshee-data/trackpose/internal/source"
	"github.com/banshee-data/trackpose/internal/timeutil"
)

// DefaultInterval matches the 100 Hz update rate of typical consumers.
const DefaultInterval = 10 * time.Millisecond

var logf = monitoring.Component("tracker")

// Config configures a Loop. Indices and Axes are copied at construction and
// stay fixed for the lifetime of the loop.
type Config struct {
	Provider source.Provider
	Mux      *posemux.Mux
	Indices  []uint32
	Axes     pose.AxisConfig
	Interval time.Duration
	Clock    timeutil.Clock
}

// Stats are cumulative loop counters.
type Stats struct {
	Ticks          uint64    `json:"ticks"`
	Frames         uint64    `json:"frames"`
	ProviderErrors uint64    `json:"provider_errors"`
	IndexErrors    uint64    `json:"index_errors"`
	Degenerate     uint64    `json:"degenerate_records"`
	LastFrameAt    time.Time `json:"last_frame_at"`
}

// Loop samples a Provider on a fixed interval.
type Loop struct {
	provider source.Provider
	mux      *posemux.Mux
	indices  []uint32
	axes     pose.AxisConfig
	interval time.Duration
	clock    timeutil.Clock

	mu     sync.Mutex
	seq    uint64
	latest *posemux.Frame
	stats  Stats
	// devices already reported as degenerate, to log once per device
	warned map[uint32]bool
}

// New validates cfg and creates a Loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("tracker: provider is required")
	}
	if cfg.Mux == nil {
		return nil, fmt.Errorf("tracker: mux is required")
	}
	if len(cfg.Indices) == 0 {
		return nil, fmt.Errorf("tracker: at least one device index is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &Loop{
		provider: cfg.Provider,
		mux:      cfg.Mux,
		indices:  append([]uint32(nil), cfg.Indices...),
		axes:     cfg.Axes,
		interval: interval,
		clock:    clock,
		warned:   make(map[uint32]bool),
	}, nil
}

// Run samples until ctx is cancelled and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	logf("sampling %d device(s) every %s (axes %+v)", len(l.indices), l.interval, l.axes)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if _, err := l.Step(ctx); err != nil {
				logf("tick skipped: %v", err)
			}
		}
	}
}

// Step performs one sampling pass and publishes the frame. It is called by
// Run on every tick and may be called directly.
func (l *Loop) Step(ctx context.Context) (posemux.Frame, error) {
	l.mu.Lock()
	l.stats.Ticks++
	l.mu.Unlock()

	transforms, err := l.provider.Poses(ctx)
	if err != nil {
		l.mu.Lock()
		l.stats.ProviderErrors++
		l.mu.Unlock()
		return posemux.Frame{}, fmt.Errorf("provider: %w", err)
	}

	records, err := pose.SamplePosesChecked(transforms, l.indices, l.axes)
	if err != nil {
		l.mu.Lock()
		l.stats.IndexErrors++
		l.mu.Unlock()
		return posemux.Frame{}, err
	}

	now := l.clock.Now()

	l.mu.Lock()
	l.seq++
	frame := posemux.Frame{
		Seq:       l.seq,
		Timestamp: now,
		Indices:   l.indices,
		Records:   records,
	}
	for i, r := range records {
		if r.Rotation().IsFinite() {
			continue
		}
		l.stats.Degenerate++
		dev := l.indices[i]
		if !l.warned[dev] {
			l.warned[dev] = true
			logf("device %d produced a non-finite quaternion: %s", dev, describe(transforms[dev]))
		}
	}
	l.stats.Frames++
	l.stats.LastFrameAt = now
	l.latest = &frame
	l.mu.Unlock()

	l.mux.Publish(frame)
	return frame, nil
}

// Latest returns the most recent frame, or false before the first frame.
func (l *Loop) Latest() (posemux.Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.latest == nil {
		return posemux.Frame{}, false
	}
	return *l.latest, true
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Indices returns the sampled device indices.
func (l *Loop) Indices() []uint32 {
	return append([]uint32(nil), l.indices...)
}

// Axes returns the axis corrections applied on every tick.
func (l *Loop) Axes() pose.AxisConfig {
	return l.axes
}

// Interval returns the sampling interval.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

func describe(t pose.Transform) string {
	v := pose.ValidateTransform(t)
	if len(v.Issues) == 0 {
		return "transform looks valid"
	}
	return fmt.Sprintf("%v", v.Issues)
}
