package host

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Attribute names the bridge reads from host nodes.
const (
	AttrPoints             = "points"
	AttrNormals            = "normals"
	AttrFaceVertexCounts   = "faceVertexCounts"
	AttrFaceVertexIndices  = "faceVertexIndices"
	AttrCurveVertexCounts  = "curveVertexCounts"
	AttrWidths             = "widths"
	AttrDoubleSided        = "doubleSided"
	AttrDisplayColor       = "displayColor"
	AttrSmoothLevel        = "smoothLevel"
	AttrColor              = "color"
	AttrIntensity          = "intensity"
	AttrConeAngle          = "coneAngle"
	AttrCastShadows        = "useDepthMapShadows"
	AttrFocalLength        = "focalLength"
	AttrHorizontalAperture = "horizontalFilmAperture"
	AttrVerticalAperture   = "verticalFilmAperture"
	AttrNearClip           = "nearClipPlane"
	AttrFarClip            = "farClipPlane"
	AttrOrthographic       = "orthographic"
	AttrOrthographicWidth  = "orthographicWidth"
	AttrSurfaceShader      = "surfaceShader"
	AttrTransparency       = "transparency"
	AttrDiffuse            = "diffuse"
	AttrRoughness          = "roughness"
	AttrInstObjGroups      = "instObjGroups"
	AttrIlluminates        = "illuminatesByDefault"
)

// DefaultLightSetName is the name of the set whose membership controls which objects
// are lit by the default lights.
const DefaultLightSetName = "defaultLightSet"

// Attr returns the attribute value of n converted to T.
//
// Parameters:
//   - n: the node, may be nil
//   - name: the attribute name
//
// Returns:
//   - T: the value
//   - bool: false if n is nil, the attribute is missing or has a different type
func Attr[T any](n Node, name string) (T, bool) {
	var zero T
	if n == nil {
		return zero, false
	}
	v, ok := n.Attribute(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// FloatAttr returns a numeric attribute as float64, accepting every Go numeric type
// the host may store, or def if the attribute is missing.
//
// Parameters:
//   - n: the node, may be nil
//   - name: the attribute name
//   - def: the value returned when the attribute is missing
//
// Returns:
//   - float64: the value
func FloatAttr(n Node, name string, def float64) float64 {
	if n == nil {
		return def
	}
	v, ok := n.Attribute(name)
	if !ok {
		return def
	}
	switch f := v.(type) {
	case float64:
		return f
	case float32:
		return float64(f)
	case int:
		return float64(f)
	case int32:
		return float64(f)
	case int64:
		return float64(f)
	}
	return def
}

// BoolAttr returns a boolean attribute, or def if the attribute is missing.
func BoolAttr(n Node, name string, def bool) bool {
	if b, ok := Attr[bool](n, name); ok {
		return b
	}
	return def
}

// Vec3Attr returns a vector attribute, or def if the attribute is missing.
func Vec3Attr(n Node, name string, def mgl64.Vec3) mgl64.Vec3 {
	if v, ok := Attr[mgl64.Vec3](n, name); ok {
		return v
	}
	return def
}
