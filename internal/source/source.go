// Package source supplies per-device transforms to the sampling loop. It
// stands in for the tracking runtime: nothing here enumerates or talks to
// real hardware.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/trackpose/internal/pose"
)

// Provider returns the current transform of every device, indexed by
// device id. Implementations must return a slice the caller may keep.
type Provider interface {
	Poses(ctx context.Context) ([]pose.Transform, error)
	DeviceCount() int
}

// Static serves a fixed set of transforms.
type Static struct {
	transforms []pose.Transform
}

// NewStatic copies transforms into a Static provider.
func NewStatic(transforms []pose.Transform) *Static {
	return &Static{transforms: append([]pose.Transform(nil), transforms...)}
}

// Poses returns a copy of the stored transforms.
func (s *Static) Poses(ctx context.Context) ([]pose.Transform, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]pose.Transform(nil), s.transforms...), nil
}

// DeviceCount returns the number of stored transforms.
func (s *Static) DeviceCount() int {
	return len(s.transforms)
}

// fixtureFile is the on-disk fixture layout: one row-major 3x4 matrix
// (12 numbers) per device.
type fixtureFile struct {
	Devices [][]float32 `json:"devices"`
}

const maxFixtureSize = 1 * 1024 * 1024 // 1MB

// LoadFixture reads a JSON fixture file into a Static provider.
func LoadFixture(path string) (*Static, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("fixture file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat fixture file: %w", err)
	}
	if info.Size() > maxFixtureSize {
		return nil, fmt.Errorf("fixture file too large: %d bytes (max %d)", info.Size(), maxFixtureSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	transforms, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", cleanPath, err)
	}
	return NewStatic(transforms), nil
}

// ParseFixture decodes fixture JSON into transforms.
func ParseFixture(data []byte) ([]pose.Transform, error) {
	var f fixtureFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture JSON: %w", err)
	}
	if len(f.Devices) == 0 {
		return nil, fmt.Errorf("fixture has no devices")
	}

	transforms := make([]pose.Transform, len(f.Devices))
	for i, d := range f.Devices {
		if len(d) != 12 {
			return nil, fmt.Errorf("device %d has %d values, want 12", i, len(d))
		}
		var v [12]float32
		copy(v[:], d)
		transforms[i] = pose.TransformFromRowMajor(v)
	}
	return transforms, nil
}
