package pose

// Transform is a 3x4 row-major homogeneous transform from device space to
// tracking space. Rows 0-2 map to the X, Y and Z axes; columns 0-2 hold the
// rotation basis and column 3 the translation in meters.
type Transform [3][4]float32

// IdentityTransform returns a transform with no rotation and no translation.
func IdentityTransform() Transform {
	return Transform{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
}

// NewTransform builds a Transform from a 3x3 rotation and a translation.
func NewTransform(rot [3][3]float32, x, y, z float32) Transform {
	return Transform{
		{rot[0][0], rot[0][1], rot[0][2], x},
		{rot[1][0], rot[1][1], rot[1][2], y},
		{rot[2][0], rot[2][1], rot[2][2], z},
	}
}

// TransformFromRowMajor builds a Transform from 12 row-major values
// (m00,m01,m02,m03, m10,...). It is the layout used by fixture files and
// the recorder.
func TransformFromRowMajor(v [12]float32) Transform {
	var t Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			t[r][c] = v[r*4+c]
		}
	}
	return t
}

// RowMajor returns the 12 matrix elements in row-major order.
func (t Transform) RowMajor() [12]float32 {
	var v [12]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			v[r*4+c] = t[r][c]
		}
	}
	return v
}

// Rotation returns the 3x3 rotation sub-matrix.
func (t Transform) Rotation() [3][3]float32 {
	return [3][3]float32{
		{t[0][0], t[0][1], t[0][2]},
		{t[1][0], t[1][1], t[1][2]},
		{t[2][0], t[2][1], t[2][2]},
	}
}

// Translation returns column 3.
func (t Transform) Translation() (x, y, z float32) {
	return t[0][3], t[1][3], t[2][3]
}
