package source

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackpose/internal/pose"
	"github.com/banshee-data/trackpose/internal/timeutil"
)

const fixtureJSON = `{
  "devices": [
    [1, 0, 0, 0.5,  0, 1, 0, 1.6,  0, 0, 1, -0.25],
    [0, 0, 1, 2,    0, 1, 0, 1.7,  -1, 0, 0, 3]
  ]
}`

func TestParseFixture(t *testing.T) {
	transforms, err := ParseFixture([]byte(fixtureJSON))
	require.NoError(t, err)
	require.Len(t, transforms, 2)

	x, y, z := transforms[0].Translation()
	assert.Equal(t, []float32{0.5, 1.6, -0.25}, []float32{x, y, z})
	assert.Equal(t, [3][3]float32{{0, 0, 1}, {0, 1, 0}, {-1, 0, 0}}, transforms[1].Rotation())
}

func TestParseFixture_Errors(t *testing.T) {
	tests := map[string]string{
		"invalid json":  `{"devices": [`,
		"no devices":    `{"devices": []}`,
		"short device":  `{"devices": [[1, 0, 0]]}`,
		"wrong type":    `{"devices": "x"}`,
		"extra element": `{"devices": [[1,0,0,0,0,1,0,0,0,0,1,0,9]]}`,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFixture([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "poses.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtureJSON), 0o644))

	provider, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.DeviceCount())

	poses, err := provider.Poses(context.Background())
	require.NoError(t, err)
	assert.Len(t, poses, 2)

	// Returned slices are copies.
	poses[0][0][3] = 99
	again, _ := provider.Poses(context.Background())
	assert.Equal(t, float32(0.5), again[0][0][3])
}

func TestLoadFixture_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFixture(filepath.Join(dir, "poses.yaml"))
	assert.ErrorContains(t, err, ".json extension")

	_, err = LoadFixture(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")

	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, make([]byte, maxFixtureSize+1), 0o644))
	_, err = LoadFixture(big)
	assert.ErrorContains(t, err, "too large")
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStatic([]pose.Transform{pose.IdentityTransform()}).Poses(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthetic_OrbitAndValidRotations(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	s := NewSynthetic(SyntheticConfig{
		Devices: 3,
		Radius:  2,
		Period:  4 * time.Second,
		Height:  1.5,
		Clock:   clock,
	})
	assert.Equal(t, 3, s.DeviceCount())

	for step := 0; step < 8; step++ {
		poses, err := s.Poses(context.Background())
		require.NoError(t, err)
		require.Len(t, poses, 3)

		for i, p := range poses {
			x, y, z := p.Translation()
			r := math.Hypot(float64(x), float64(z))
			assert.InDelta(t, 2.0, r, 1e-5, "device %d radius", i)
			assert.InDelta(t, 1.5+0.1*float64(i), float64(y), 1e-5, "device %d height", i)

			v := pose.ValidateTransform(p)
			assert.True(t, v.Valid, "device %d step %d: %v", i, step, v.Issues)
		}

		clock.Advance(333 * time.Millisecond)
	}
}

func TestSynthetic_StartsAtPhaseZero(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewSynthetic(SyntheticConfig{Devices: 1, Radius: 1, Period: time.Second, Clock: clock})

	poses, err := s.Poses(context.Background())
	require.NoError(t, err)

	x, _, z := poses[0].Translation()
	assert.InDelta(t, 1.0, float64(x), 1e-6)
	assert.InDelta(t, 0.0, float64(z), 1e-6)
	assertRotationNear(t, [3][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, poses[0].Rotation())

	// A quarter period later device 0 is at +Z.
	clock.Advance(250 * time.Millisecond)
	poses, err = s.Poses(context.Background())
	require.NoError(t, err)
	x, _, z = poses[0].Translation()
	assert.InDelta(t, 0.0, float64(x), 1e-6)
	assert.InDelta(t, 1.0, float64(z), 1e-6)
	// Heading is a -90 degree yaw about Y; the pitch term is back at zero.
	assertRotationNear(t, [3][3]float32{{0, 0, -1}, {0, 1, 0}, {1, 0, 0}}, poses[0].Rotation())
}

func assertRotationNear(t *testing.T, want, got [3][3]float32) {
	t.Helper()
	for r := range want {
		for c := range want[r] {
			assert.InDelta(t, float64(want[r][c]), float64(got[r][c]), 1e-5, "m[%d][%d]", r, c)
		}
	}
}
