package pose

import "math"

// Quaternion is a rotation in (x, y, z, w) order. Values returned by
// QuaternionFromMatrix have unit norm unless the input was degenerate.
type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// QuaternionFromMatrix converts a 3x3 rotation matrix into a unit quaternion.
//
// The branch is chosen by the trace and then by the largest diagonal term so
// the scale factor s is never close to zero for a proper rotation. The input
// is not checked for orthonormality: reflections and scaled matrices give an
// unspecified but finite result, and NaN or Inf elements propagate into the
// returned components.
func QuaternionFromMatrix(m [3][3]float32) Quaternion {
	var w, x, y, z float32

	trace := m[0][0] + m[1][1] + m[2][2]

	if trace > 0 {
		s := 0.5 / math.Sqrt(1.0+float64(trace))
		w = float32(0.25 / s)
		x = float32(float64(m[2][1]-m[1][2]) * s)
		y = float32(float64(m[0][2]-m[2][0]) * s)
		z = float32(float64(m[1][0]-m[0][1]) * s)
	} else if m[0][0] > m[1][1] && m[0][0] > m[2][2] {
		s := sqrt32(1+m[0][0]-m[1][1]-m[2][2]) * 2 // s = 4x
		w = (m[2][1] - m[1][2]) / s
		x = 0.25 * s
		y = (m[0][1] + m[1][0]) / s
		z = (m[0][2] + m[2][0]) / s
	} else if m[1][1] > m[2][2] {
		s := sqrt32(1+m[1][1]-m[0][0]-m[2][2]) * 2 // s = 4y
		w = (m[0][2] - m[2][0]) / s
		x = (m[0][1] + m[1][0]) / s
		y = 0.25 * s
		z = (m[1][2] + m[2][1]) / s
	} else {
		s := sqrt32(1+m[2][2]-m[0][0]-m[1][1]) * 2 // s = 4z
		w = (m[1][0] - m[0][1]) / s
		x = (m[0][2] + m[2][0]) / s
		y = (m[1][2] + m[2][1]) / s
		z = 0.25 * s
	}

	length := sqrt32(w*w + x*x + y*y + z*z)
	return Quaternion{
		X: x / length,
		Y: y / length,
		Z: z / length,
		W: w / length,
	}
}

// Norm returns the Euclidean length of q.
func (q Quaternion) Norm() float32 {
	return sqrt32(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// IsFinite reports whether every component is neither NaN nor infinite.
func (q Quaternion) IsFinite() bool {
	return isFinite32(q.X) && isFinite32(q.Y) && isFinite32(q.Z) && isFinite32(q.W)
}

// Negate returns -q, which represents the same rotation.
func (q Quaternion) Negate() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
}

// Matrix returns the rotation matrix of q. q is assumed to be unit length.
func (q Quaternion) Matrix() [3][3]float32 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return [3][3]float32{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func isFinite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
