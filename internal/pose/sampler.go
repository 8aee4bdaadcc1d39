package pose

import (
	"errors"
	"fmt"
)

// RecordSize is the number of floats in one PoseRecord.
const RecordSize = 7

// ErrDeviceIndexOutOfRange is returned by SamplePosesChecked when a requested
// device index has no transform.
var ErrDeviceIndexOutOfRange = errors.New("device index out of range")

// AxisConfig selects the axis corrections applied to every device in a
// sampling call. The zero value leaves transforms untouched.
type AxisConfig struct {
	InvertX bool `json:"invert_x"`
	InvertZ bool `json:"invert_z"`
	FlipXZ  bool `json:"flip_xz"`
}

// Apply returns a corrected copy of t. Inversions negate whole rows
// (rotation and translation); the X/Z swap runs after them and therefore
// exchanges the already-inverted rows.
func (a AxisConfig) Apply(t Transform) Transform {
	if a.InvertX {
		for c := range t[0] {
			t[0][c] = -t[0][c]
		}
	}
	if a.InvertZ {
		for c := range t[2] {
			t[2][c] = -t[2][c]
		}
	}
	if a.FlipXZ {
		t[0], t[2] = t[2], t[0]
	}
	return t
}

// PoseRecord is a flattened device pose: x, y, z, qx, qy, qz, qw.
type PoseRecord [RecordSize]float32

// NewPoseRecord extracts the translation and rotation of t.
func NewPoseRecord(t Transform) PoseRecord {
	x, y, z := t.Translation()
	q := QuaternionFromMatrix(t.Rotation())
	return PoseRecord{x, y, z, q.X, q.Y, q.Z, q.W}
}

// Position returns the translation part of the record.
func (p PoseRecord) Position() (x, y, z float32) {
	return p[0], p[1], p[2]
}

// Rotation returns the quaternion part of the record.
func (p PoseRecord) Rotation() Quaternion {
	return Quaternion{X: p[3], Y: p[4], Z: p[5], W: p[6]}
}

// SamplePoses produces one PoseRecord per entry in indices, in the same
// order. Duplicate indices produce duplicate records. Indices are not bounds
// checked: an index past the end of poses panics like any slice access.
func SamplePoses(poses []Transform, indices []uint32, axes AxisConfig) []PoseRecord {
	records := make([]PoseRecord, 0, len(indices))
	for _, i := range indices {
		records = append(records, NewPoseRecord(axes.Apply(poses[i])))
	}
	return records
}

// AppendPoses is the flat form of SamplePoses: it appends seven floats per
// requested device to dst and returns the extended slice.
func AppendPoses(dst []float32, poses []Transform, indices []uint32, axes AxisConfig) []float32 {
	for _, i := range indices {
		r := NewPoseRecord(axes.Apply(poses[i]))
		dst = append(dst, r[:]...)
	}
	return dst
}

// SamplePosesChecked validates every index before sampling and returns an
// error wrapping ErrDeviceIndexOutOfRange for the first one that does not
// address a transform in poses.
func SamplePosesChecked(poses []Transform, indices []uint32, axes AxisConfig) ([]PoseRecord, error) {
	for pos, i := range indices {
		if uint64(i) >= uint64(len(poses)) {
			return nil, fmt.Errorf("index %d (position %d) with %d devices: %w", i, pos, len(poses), ErrDeviceIndexOutOfRange)
		}
	}
	return SamplePoses(poses, indices, axes), nil
}

// Flatten concatenates records into the flat float layout consumed
// downstream.
func Flatten(records []PoseRecord) []float32 {
	out := make([]float32, 0, len(records)*RecordSize)
	for _, r := range records {
		out = append(out, r[:]...)
	}
	return out
}

// Unflatten splits a flat float slice back into records. The length must be
// a multiple of RecordSize.
func Unflatten(flat []float32) ([]PoseRecord, error) {
	if len(flat)%RecordSize != 0 {
		return nil, fmt.Errorf("flat pose data has %d values, not a multiple of %d", len(flat), RecordSize)
	}
	records := make([]PoseRecord, len(flat)/RecordSize)
	for i := range records {
		copy(records[i][:], flat[i*RecordSize:(i+1)*RecordSize])
	}
	return records, nil
}
