// Package pose converts tracked-device transforms into position and
// quaternion records.
//
// A Transform is the 3x4 row-major matrix a VR tracking runtime reports for
// each device (rotation basis in columns 0-2, translation in column 3).
// SamplePoses applies an AxisConfig to a local copy of each requested device's
// transform and flattens the result into PoseRecords of seven floats:
// x, y, z, qx, qy, qz, qw.
//
// Everything in this package is pure: no I/O, no shared state, and the
// caller's transforms are never modified. Degenerate matrices produce NaN or
// Inf components rather than errors; use ValidateTransform or
// SamplePosesChecked when the input is not trusted.
package pose
