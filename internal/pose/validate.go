package pose

import "math"

// RotationTolerance is the allowed deviation of the determinant and of the
// row dot products when checking a rotation matrix.
const RotationTolerance = 0.01

// TransformValidation is the result of ValidateTransform.
type TransformValidation struct {
	Valid  bool
	Issues []string
}

// ValidateTransform reports whether t holds finite values and a proper
// rotation. Sampling never calls it; it is for callers that want to reject or
// flag bad runtime data before trusting the extracted quaternion.
func ValidateTransform(t Transform) TransformValidation {
	result := TransformValidation{Issues: make([]string, 0)}

	for r := range t {
		for c := range t[r] {
			if !isFinite32(t[r][c]) {
				result.Issues = append(result.Issues, "transform contains NaN or Inf")
				return result
			}
		}
	}

	rot := t.Rotation()
	if isZero(rot) {
		result.Issues = append(result.Issues, "rotation is the zero matrix")
		return result
	}

	det := determinant(rot)
	switch {
	case det < 0:
		result.Issues = append(result.Issues, "rotation contains a reflection (det < 0)")
	case math.Abs(det-1) > RotationTolerance:
		result.Issues = append(result.Issues, "rotation is scaled (det != 1)")
	}

	if !rowsOrthonormal(rot) {
		result.Issues = append(result.Issues, "rotation rows are not orthonormal")
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// IsValidRotation reports whether m is orthonormal with determinant 1 within
// RotationTolerance.
func IsValidRotation(m [3][3]float32) bool {
	if math.Abs(determinant(m)-1) > RotationTolerance {
		return false
	}
	return rowsOrthonormal(m)
}

func determinant(m [3][3]float32) float64 {
	a, b, c := float64(m[0][0]), float64(m[0][1]), float64(m[0][2])
	d, e, f := float64(m[1][0]), float64(m[1][1]), float64(m[1][2])
	g, h, i := float64(m[2][0]), float64(m[2][1]), float64(m[2][2])
	return a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
}

func rowsOrthonormal(m [3][3]float32) bool {
	for r := 0; r < 3; r++ {
		for k := r; k < 3; k++ {
			var dot float64
			for c := 0; c < 3; c++ {
				dot += float64(m[r][c]) * float64(m[k][c])
			}
			want := 0.0
			if r == k {
				want = 1
			}
			if math.Abs(dot-want) > RotationTolerance {
				return false
			}
		}
	}
	return true
}

func isZero(m [3][3]float32) bool {
	for r := range m {
		for c := range m[r] {
			if m[r][c] != 0 {
				return false
			}
		}
	}
	return true
}
