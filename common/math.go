package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// IdentityTransform returns the 4x4 identity matrix. It is the default answer of
// every transform query whose identity is unknown.
//
// Returns:
//   - mgl64.Mat4: the identity matrix
func IdentityTransform() mgl64.Mat4 {
	return mgl64.Ident4()
}

// TransformRange returns the axis-aligned bounds of r after transforming its eight
// corners by m. Empty ranges stay empty.
//
// Parameters:
//   - r: the range to transform
//   - m: the transform, column-major
//
// Returns:
//   - Range3d: the transformed bounds
func TransformRange(r Range3d, m mgl64.Mat4) Range3d {
	if r.IsEmpty() {
		return r
	}
	out := EmptyRange()
	for i := range 8 {
		corner := mgl64.Vec3{r.Min[0], r.Min[1], r.Min[2]}
		if i&1 != 0 {
			corner[0] = r.Max[0]
		}
		if i&2 != 0 {
			corner[1] = r.Max[1]
		}
		if i&4 != 0 {
			corner[2] = r.Max[2]
		}
		out = out.UnionPoint(mgl64.TransformCoordinate(corner, m))
	}
	return out
}

// Perspective builds a right-handed perspective projection from a vertical field of
// view expressed in degrees. Degenerate inputs fall back to a 45 degree, square frustum.
//
// Parameters:
//   - fovYDeg: vertical field of view in degrees
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clip distance
//   - far: far clip distance
//
// Returns:
//   - mgl64.Mat4: the projection matrix
func Perspective(fovYDeg, aspect, near, far float64) mgl64.Mat4 {
	if fovYDeg <= 0 || fovYDeg >= 180 {
		fovYDeg = 45
	}
	if aspect <= 0 || math.IsNaN(aspect) {
		aspect = 1
	}
	if near <= 0 {
		near = 0.1
	}
	if far <= near {
		far = near * 10000
	}
	return mgl64.Perspective(mgl64.DegToRad(fovYDeg), aspect, near, far)
}

// MatricesEqual reports whether a and b match within eps on every element.
//
// Parameters:
//   - a, b: matrices to compare
//   - eps: per-element tolerance
//
// Returns:
//   - bool: true if equal within tolerance
func MatricesEqual(a, b mgl64.Mat4, eps float64) bool {
	return a.ApproxEqualThreshold(b, eps)
}
