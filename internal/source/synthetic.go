package source

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/trackpose/internal/pose"
	"github.com/banshee-data/trackpose/internal/timeutil"
)

// Synthetic generates devices walking a circle around the origin, each
// facing along its direction of travel with a small head-bob pitch. It is
// the dev-mode stand-in for a tracking runtime.
type Synthetic struct {
	devices int
	radius  float64
	period  time.Duration
	height  float64
	clock   timeutil.Clock
	start   time.Time
}

// SyntheticConfig configures a Synthetic provider.
type SyntheticConfig struct {
	Devices int
	Radius  float64       // meters
	Period  time.Duration // time for one full orbit
	Height  float64       // base Y of device 0; each later device is 0.1 m higher
	Clock   timeutil.Clock
}

// NewSynthetic creates a Synthetic provider. A nil Clock uses the real clock.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	period := cfg.Period
	if period <= 0 {
		period = 8 * time.Second
	}
	return &Synthetic{
		devices: cfg.Devices,
		radius:  cfg.Radius,
		period:  period,
		height:  cfg.Height,
		clock:   clock,
		start:   clock.Now(),
	}
}

// DeviceCount returns the configured number of devices.
func (s *Synthetic) DeviceCount() int {
	return s.devices
}

// Poses returns the transforms at the clock's current time.
func (s *Synthetic) Poses(ctx context.Context) ([]pose.Transform, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	elapsed := s.clock.Now().Sub(s.start).Seconds()
	base := 2 * math.Pi * elapsed / s.period.Seconds()

	transforms := make([]pose.Transform, s.devices)
	for i := range transforms {
		theta := base + 2*math.Pi*float64(i)/float64(s.devices)

		// Heading is tangent to the circle; pitch oscillates at twice the
		// orbit rate.
		yaw := axisRotation(0, 1, 0, -theta)
		pitch := axisRotation(1, 0, 0, 0.1*math.Sin(2*theta))
		q := quat.Mul(yaw, pitch)

		x := s.radius * math.Cos(theta)
		y := s.height + 0.1*float64(i)
		z := s.radius * math.Sin(theta)

		transforms[i] = pose.NewTransform(toPose(q).Matrix(), float32(x), float32(y), float32(z))
	}
	return transforms, nil
}

// axisRotation returns the unit quaternion for angle radians about a unit axis.
func axisRotation(ax, ay, az, angle float64) quat.Number {
	s := math.Sin(angle / 2)
	return quat.Number{Real: math.Cos(angle / 2), Imag: ax * s, Jmag: ay * s, Kmag: az * s}
}

// toPose normalises q and converts it to the pose package's x,y,z,w order.
func toPose(q quat.Number) pose.Quaternion {
	q = quat.Scale(1/quat.Abs(q), q)
	return pose.Quaternion{X: float32(q.Imag), Y: float32(q.Jmag), Z: float32(q.Kmag), W: float32(q.Real)}
}
