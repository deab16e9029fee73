// package common contains common types that are used throughout the bridge. They are not interface-wrapped structs, just plain structs that express
// the renderer-facing data each adapter hands back to the delegate's query surface.
package common

import (
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl64"
)

// Token is an interned-style name used for render tags, primvar names, parameter names and options.
type Token string

// Render tags understood by the renderer.
const (
	RenderTagGeometry Token = "geometry"
	RenderTagGuide    Token = "guide"
	RenderTagProxy    Token = "proxy"
	RenderTagRender   Token = "render"
	RenderTagHidden   Token = "hidden"
)

// Well known primvar and attribute keys.
const (
	TokenPoints         Token = "points"
	TokenNormals        Token = "normals"
	TokenDisplayColor   Token = "displayColor"
	TokenDisplayOpacity Token = "displayOpacity"
	TokenWidths         Token = "widths"
	TokenInstanceMatrix Token = "hydraInstanceTransforms"
)

// Topology, role and shading tokens.
const (
	TokenNone             Token = "none"
	TokenCatmullClark     Token = "catmullClark"
	TokenRightHanded      Token = "rightHanded"
	TokenLinear           Token = "linear"
	TokenCubic            Token = "cubic"
	TokenBSpline          Token = "bspline"
	TokenNonPeriodic      Token = "nonperiodic"
	TokenSegmented        Token = "segmented"
	TokenEdgeAndCorner    Token = "edgeAndCorner"
	TokenCornersPlus1     Token = "cornersPlus1"
	TokenRolePoint        Token = "point"
	TokenRoleNormal       Token = "normal"
	TokenRoleColor        Token = "color"
	TokenConstantLighting Token = "constantLighting"
)

// Interpolation describes how a primvar value maps over the surface of a prim.
type Interpolation int

const (
	// InterpolationConstant has one value for the whole prim.
	InterpolationConstant Interpolation = iota
	// InterpolationUniform has one value per face or curve segment.
	InterpolationUniform
	// InterpolationVarying is linearly interpolated across the surface.
	InterpolationVarying
	// InterpolationVertex has one value per point.
	InterpolationVertex
	// InterpolationFaceVarying has one value per face vertex.
	InterpolationFaceVarying
	// InterpolationInstance has one value per instance.
	InterpolationInstance
)

// PrimvarDescriptor describes one primvar an adapter can answer for.
type PrimvarDescriptor struct {
	// Name is the primvar key used with the delegate's Get query.
	Name Token
	// Interpolation is the primvar's interpolation mode.
	Interpolation Interpolation
	// Role is an optional semantic role ("point", "normal", "color").
	Role Token
	// Indexed reports whether the primvar is indexed.
	Indexed bool
}

// MeshTopology is the face layout of a polygonal mesh prim.
type MeshTopology struct {
	Scheme            Token
	Orientation       Token
	FaceVertexCounts  []int32
	FaceVertexIndices []int32
	HoleIndices       []int32
	RefineLevel       int
}

// IsEmpty reports whether the topology describes no faces.
func (t MeshTopology) IsEmpty() bool {
	return len(t.FaceVertexCounts) == 0
}

// CurvesTopology is the layout of a basis-curves prim.
type CurvesTopology struct {
	CurveType         Token
	Basis             Token
	Wrap              Token
	CurveVertexCounts []int32
	CurveIndices      []int32
}

// IsEmpty reports whether the topology describes no curves.
func (t CurvesTopology) IsEmpty() bool {
	return len(t.CurveVertexCounts) == 0
}

// SubdivTags carries the subdivision surface annotations of a mesh.
type SubdivTags struct {
	VertexInterpolationRule Token
	FaceVaryingRule         Token
	CreaseIndices           []int32
	CreaseLengths           []int32
	CreaseWeights           []float32
	CornerIndices           []int32
	CornerWeights           []float32
}

// Range3d is an axis-aligned bounding box. A range whose Min exceeds its Max on
// any axis is empty; the zero value is not empty, use EmptyRange instead.
type Range3d struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyRange returns a range that contains nothing and grows with UnionPoint.
//
// Returns:
//   - Range3d: an empty range
func EmptyRange() Range3d {
	inf := math.Inf(1)
	return Range3d{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether the range contains no points.
func (r Range3d) IsEmpty() bool {
	return r.Min[0] > r.Max[0] || r.Min[1] > r.Max[1] || r.Min[2] > r.Max[2]
}

// UnionPoint extends the range to contain p.
//
// Parameters:
//   - p: the point to include
//
// Returns:
//   - Range3d: the extended range
func (r Range3d) UnionPoint(p mgl64.Vec3) Range3d {
	for i := range 3 {
		r.Min[i] = math.Min(r.Min[i], p[i])
		r.Max[i] = math.Max(r.Max[i], p[i])
	}
	return r
}

// RangeFromPoints returns the bounding box of pts. An empty slice yields EmptyRange.
//
// Parameters:
//   - pts: the points to bound
//
// Returns:
//   - Range3d: the bounding box
func RangeFromPoints(pts []mgl64.Vec3) Range3d {
	r := EmptyRange()
	for _, p := range pts {
		r = r.UnionPoint(p)
	}
	return r
}

// CullStyle is the face culling policy the renderer applies to a prim.
// The zero value leaves the choice to the renderer.
type CullStyle int

const (
	// CullStyleDontCare lets the renderer pick.
	CullStyleDontCare CullStyle = iota
	// CullStyleNothing culls no faces.
	CullStyleNothing
	// CullStyleBack culls back faces.
	CullStyleBack
	// CullStyleFront culls front faces.
	CullStyleFront
	// CullStyleBackUnlessDoubleSided culls back faces of single sided prims.
	CullStyleBackUnlessDoubleSided
)

// CullMode maps the cull style onto a GPU pipeline cull mode.
//
// Parameters:
//   - doubleSided: whether the prim is double sided
//
// Returns:
//   - wgpu.CullMode: the pipeline cull mode
func (c CullStyle) CullMode(doubleSided bool) wgpu.CullMode {
	switch c {
	case CullStyleBack:
		return wgpu.CullModeBack
	case CullStyleFront:
		return wgpu.CullModeFront
	case CullStyleBackUnlessDoubleSided:
		if doubleSided {
			return wgpu.CullModeNone
		}
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

// DisplayStyle carries the per-prim refinement and shading hints.
type DisplayStyle struct {
	RefineLevel                   int
	FlatShading                   bool
	DisplacementEnabled           bool
	OccludedSelectionShowsThrough bool
}
