package render_index

import (
	"github.com/Carmen-Shannon/oxy-bridge/common"
)

// PrimType names the kind of prim the render index creates for an identity.
type PrimType string

const (
	// PrimTypeMesh is a polygonal mesh rprim.
	PrimTypeMesh PrimType = "mesh"
	// PrimTypeBasisCurves is a curves rprim, also used for wireframe and line render items.
	PrimTypeBasisCurves PrimType = "basisCurves"
	// PrimTypePoints is a point cloud rprim.
	PrimTypePoints PrimType = "points"
	// PrimTypeCamera is a camera sprim.
	PrimTypeCamera PrimType = "camera"
	// PrimTypeSimpleLight is a light sprim without geometry.
	PrimTypeSimpleLight PrimType = "simpleLight"
	// PrimTypeDistantLight is a directional light sprim.
	PrimTypeDistantLight PrimType = "distantLight"
	// PrimTypeSphereLight is a point/spot light sprim.
	PrimTypeSphereLight PrimType = "sphereLight"
	// PrimTypeDomeLight is an environment light sprim.
	PrimTypeDomeLight PrimType = "domeLight"
	// PrimTypeMaterial is a material sprim.
	PrimTypeMaterial PrimType = "material"
)

// IsRprim reports whether prims of type t are drawable render prims.
func (t PrimType) IsRprim() bool {
	switch t {
	case PrimTypeMesh, PrimTypeBasisCurves, PrimTypePoints:
		return true
	}
	return false
}

// IsLight reports whether t is one of the light sprim types.
func (t PrimType) IsLight() bool {
	switch t {
	case PrimTypeSimpleLight, PrimTypeDistantLight, PrimTypeSphereLight, PrimTypeDomeLight:
		return true
	}
	return false
}

// RenderIndex defines the outbound contract the bridge drives to keep a renderer's
// scene index faithful to the host scene.
//
// The render index owns the renderer-side prims and their change tracking. The bridge
// only ever inserts, removes and dirties prims; attribute values are pulled lazily by
// the renderer through the scene delegate.
type RenderIndex interface {
	// IsRprimTypeSupported reports whether the renderer can draw prims of type t.
	//
	// Parameters:
	//   - t: the rprim type
	//
	// Returns:
	//   - bool: true if supported
	IsRprimTypeSupported(t PrimType) bool

	// IsSprimTypeSupported reports whether the renderer accepts state prims of type t.
	//
	// Parameters:
	//   - t: the sprim type
	//
	// Returns:
	//   - bool: true if supported
	IsSprimTypeSupported(t PrimType) bool

	// InsertRprim inserts a drawable prim. Inserting an identity that already exists
	// returns an error and leaves the existing prim untouched.
	//
	// Parameters:
	//   - t: the rprim type
	//   - id: the identity path
	//   - instancerID: the instancer driving this prim, or the empty path
	//
	// Returns:
	//   - error: error if the type is unsupported or the identity is taken
	InsertRprim(t PrimType, id common.Path, instancerID common.Path) error

	// InsertSprim inserts a state prim (camera, light, material).
	//
	// Parameters:
	//   - t: the sprim type
	//   - id: the identity path
	//
	// Returns:
	//   - error: error if the type is unsupported or the identity is taken
	InsertSprim(t PrimType, id common.Path) error

	// InsertInstancer inserts an instancer prim.
	//
	// Parameters:
	//   - id: the identity path of the instancer
	//
	// Returns:
	//   - error: error if the identity is taken
	InsertInstancer(id common.Path) error

	// RemoveRprim removes a drawable prim.
	//
	// Parameters:
	//   - id: the identity path
	//
	// Returns:
	//   - error: error if no such rprim exists
	RemoveRprim(id common.Path) error

	// RemoveSprim removes a state prim of the given type.
	//
	// Parameters:
	//   - t: the sprim type
	//   - id: the identity path
	//
	// Returns:
	//   - error: error if no such sprim exists
	RemoveSprim(t PrimType, id common.Path) error

	// RemoveInstancer removes an instancer prim.
	//
	// Parameters:
	//   - id: the identity path of the instancer
	//
	// Returns:
	//   - error: error if no such instancer exists
	RemoveInstancer(id common.Path) error

	// MarkRprimDirty ORs bits into the change tracker entry of an rprim.
	// Unknown identities are ignored.
	//
	// Parameters:
	//   - id: the identity path
	//   - bits: the dirty bits to add
	MarkRprimDirty(id common.Path, bits DirtyBits)

	// MarkSprimDirty ORs bits into the change tracker entry of a sprim.
	// Unknown identities are ignored.
	//
	// Parameters:
	//   - id: the identity path
	//   - bits: the dirty bits to add
	MarkSprimDirty(id common.Path, bits DirtyBits)

	// MarkInstancerDirty ORs bits into the change tracker entry of an instancer.
	// Unknown identities are ignored.
	//
	// Parameters:
	//   - id: the identity path
	//   - bits: the dirty bits to add
	MarkInstancerDirty(id common.Path, bits DirtyBits)

	// RprimIDs returns the identities of every rprim in insertion order.
	//
	// Returns:
	//   - []common.Path: the rprim identities
	RprimIDs() []common.Path
}
