package adapter

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/go-gl/mathgl/mgl64"
)

// shapeDirtyBits is what a generic node-dirty notification invalidates on a shape.
const shapeDirtyBits = render_index.DirtyPoints | render_index.DirtyExtent | render_index.DirtyTopology |
	render_index.DirtyPrimvar | render_index.DirtyNormals | render_index.DirtyVisibility |
	render_index.DirtyDoubleSided | render_index.DirtyDisplayStyle | render_index.DirtyMaterialID |
	render_index.DirtySubdivTags | render_index.DirtyWidths

// shapeAdapter is the implementation of the ShapeAdapter interface.
type shapeAdapter struct {
	baseAdapter

	primType  render_index.PrimType
	instanced bool

	mu        *sync.Mutex
	transform *mgl64.Mat4
}

// ShapeAdapter wraps a host mesh, curve or point shape directly.
//
// A shape whose node is reachable through more than one DAG path at creation time is
// instanced: it populates an instancer next to its rprim and answers instance queries.
// Instancing cannot be toggled in place; a shape whose instance state changes must be
// recreated.
type ShapeAdapter interface {
	Adapter
	Transformer
	Geometry

	// PrimType returns the rprim type the shape populates.
	//
	// Returns:
	//   - render_index.PrimType: the rprim type
	PrimType() render_index.PrimType

	// GetSubdivTags returns the subdivision annotations; empty for non-mesh shapes.
	//
	// Returns:
	//   - common.SubdivTags: the subdivision tags
	GetSubdivTags() common.SubdivTags

	// GetMaterial returns the shading engine bound to the master instance.
	//
	// Returns:
	//   - host.Node: the shading engine, or nil
	GetMaterial() host.Node

	// IsInstanced reports whether the shape was created instanced.
	//
	// Returns:
	//   - bool: true if instanced
	IsInstanced() bool

	// InstancerID returns the identity of the shape's instancer.
	//
	// Returns:
	//   - common.Path: the instancer identity, or the empty path for non-instanced shapes
	InstancerID() common.Path

	// GetInstancerPrototypes returns the prototypes the instancer draws.
	//
	// Returns:
	//   - []common.Path: the prototype identities
	GetInstancerPrototypes() []common.Path

	// GetInstanceIndices returns the instance indices of prototype.
	//
	// Parameters:
	//   - prototype: the prototype identity
	//
	// Returns:
	//   - []int32: the instance indices
	GetInstanceIndices(prototype common.Path) []int32

	// GetInstancePrimvar answers a primvar query addressed to the instancer.
	//
	// Parameters:
	//   - key: the primvar name
	//
	// Returns:
	//   - any: the value, or nil
	GetInstancePrimvar(key common.Token) any
}

var _ ShapeAdapter = &shapeAdapter{}

// NewShapeAdapter creates the adapter for a mesh, curve or point shape.
//
// Parameters:
//   - p: the owning producer
//   - id: the identity path
//   - n: the host shape
//
// Returns:
//   - ShapeAdapter: the new adapter
func NewShapeAdapter(p Producer, id common.Path, n host.Node) ShapeAdapter {
	if p == nil || n == nil {
		panic("adapter: NewShapeAdapter requires a producer and a node")
	}
	var t render_index.PrimType
	switch n.Kind() {
	case host.KindMesh:
		t = render_index.PrimTypeMesh
	case host.KindCurve:
		t = render_index.PrimTypeBasisCurves
	case host.KindPoints:
		t = render_index.PrimTypePoints
	}
	return &shapeAdapter{
		baseAdapter: baseAdapter{id: id, producer: p, node: n},
		primType:    t,
		instanced:   len(n.Paths()) > 1,
		mu:          &sync.Mutex{},
	}
}

func (a *shapeAdapter) PrimType() render_index.PrimType {
	return a.primType
}

func (a *shapeAdapter) IsSupported() bool {
	return a.primType != "" && a.node.Valid() && a.producer.RenderIndex().IsRprimTypeSupported(a.primType)
}

func (a *shapeAdapter) Populate() error {
	if a.populated {
		return nil
	}
	idx := a.producer.RenderIndex()
	instancer := a.InstancerID()
	if a.instanced {
		if err := idx.InsertInstancer(instancer); err != nil {
			return fmt.Errorf("failed to insert instancer for %s: %w", a.id, err)
		}
	}
	if err := idx.InsertRprim(a.primType, a.id, instancer); err != nil {
		if a.instanced {
			_ = idx.RemoveInstancer(instancer)
		}
		return fmt.Errorf("failed to insert shape %s: %w", a.id, err)
	}
	a.populated = true
	return nil
}

func (a *shapeAdapter) RemovePrim() error {
	if !a.populated {
		return nil
	}
	a.populated = false
	idx := a.producer.RenderIndex()
	if err := idx.RemoveRprim(a.id); err != nil {
		return fmt.Errorf("failed to remove shape %s: %w", a.id, err)
	}
	if a.instanced {
		if err := idx.RemoveInstancer(a.InstancerID()); err != nil {
			return fmt.Errorf("failed to remove instancer of %s: %w", a.id, err)
		}
	}
	return nil
}

func (a *shapeAdapter) CreateCallbacks() error {
	if len(a.callbacks) > 0 {
		return nil
	}
	if err := a.watch(a.node, host.CallbackNodeDirty, func(host.Node) {
		a.producer.MarkDirtyOnIdle(a.id, shapeDirtyBits)
	}); err != nil {
		return err
	}
	if err := a.watch(a.node, host.CallbackTransformChanged, func(host.Node) {
		a.InvalidateTransform()
		if a.instanced {
			a.producer.MarkDirtyOnIdle(a.id, render_index.DirtyInstancer|render_index.DirtyPrimvar)
			return
		}
		a.producer.MarkDirtyOnIdle(a.id, render_index.DirtyTransform)
	}); err != nil {
		return err
	}
	return a.watch(a.node, host.CallbackInstanceChanged, a.onInstanceChanged)
}

// onInstanceChanged reacts to instance paths appearing or disappearing.
func (a *shapeAdapter) onInstanceChanged(n host.Node) {
	if (len(n.Paths()) > 1) != a.instanced {
		a.producer.RecreateAdapterOnIdle(a.id, n)
		return
	}
	if a.instanced {
		a.producer.MarkDirtyOnIdle(a.id, render_index.DirtyInstancer|render_index.DirtyInstanceIndex|render_index.DirtyPrimvar)
	}
}

func (a *shapeAdapter) MarkDirty(bits render_index.DirtyBits) {
	if !a.populated || bits == render_index.Clean {
		return
	}
	idx := a.producer.RenderIndex()
	idx.MarkRprimDirty(a.id, bits)
	if a.instanced && bits.Any(render_index.DirtyInstancer|render_index.DirtyInstanceIndex) {
		idx.MarkInstancerDirty(a.InstancerID(), render_index.DirtyPrimvar|render_index.DirtyInstanceIndex)
	}
}

func (a *shapeAdapter) HasType(t render_index.PrimType) bool {
	return a.primType == t
}

func (a *shapeAdapter) Get(key common.Token) any {
	switch key {
	case common.TokenPoints:
		if v, ok := host.Attr[[]mgl64.Vec3](a.node, host.AttrPoints); ok {
			return v
		}
	case common.TokenNormals:
		if v, ok := host.Attr[[]mgl64.Vec3](a.node, host.AttrNormals); ok {
			return v
		}
	case common.TokenDisplayColor:
		if v, ok := host.Attr[mgl64.Vec3](a.node, host.AttrDisplayColor); ok {
			return v
		}
	case common.TokenWidths:
		if v, ok := host.Attr[[]float32](a.node, host.AttrWidths); ok {
			return v
		}
	}
	return nil
}

func (a *shapeAdapter) GetTransform() mgl64.Mat4 {
	if a.instanced {
		// instance transforms carry the full world matrix
		return common.IdentityTransform()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transform == nil {
		m := a.node.WorldMatrix(0)
		a.transform = &m
	}
	return *a.transform
}

func (a *shapeAdapter) SampleTransform(maxSamples int) ([]float32, []mgl64.Mat4) {
	return sampleTransform(a.producer, a.GetTransform(), maxSamples)
}

func (a *shapeAdapter) InvalidateTransform() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transform = nil
}

func (a *shapeAdapter) GetVisible() bool {
	return a.node.Valid() && a.node.Visible()
}

func (a *shapeAdapter) GetExtent() common.Range3d {
	pts, _ := host.Attr[[]mgl64.Vec3](a.node, host.AttrPoints)
	return common.RangeFromPoints(pts)
}

func (a *shapeAdapter) GetMeshTopology() common.MeshTopology {
	if a.primType != render_index.PrimTypeMesh {
		return common.MeshTopology{}
	}
	counts, _ := host.Attr[[]int32](a.node, host.AttrFaceVertexCounts)
	indices, _ := host.Attr[[]int32](a.node, host.AttrFaceVertexIndices)
	scheme, level := a.refinement()
	return common.MeshTopology{
		Scheme:            scheme,
		Orientation:       common.TokenRightHanded,
		FaceVertexCounts:  counts,
		FaceVertexIndices: indices,
		RefineLevel:       level,
	}
}

func (a *shapeAdapter) GetCurvesTopology() common.CurvesTopology {
	if a.primType != render_index.PrimTypeBasisCurves {
		return common.CurvesTopology{}
	}
	counts, _ := host.Attr[[]int32](a.node, host.AttrCurveVertexCounts)
	if len(counts) == 0 {
		pts, _ := host.Attr[[]mgl64.Vec3](a.node, host.AttrPoints)
		if len(pts) == 0 {
			return common.CurvesTopology{}
		}
		counts = []int32{int32(len(pts))}
	}
	return common.CurvesTopology{
		CurveType:         common.TokenCubic,
		Basis:             common.TokenBSpline,
		Wrap:              common.TokenNonPeriodic,
		CurveVertexCounts: counts,
	}
}

func (a *shapeAdapter) GetSubdivTags() common.SubdivTags {
	if a.primType != render_index.PrimTypeMesh {
		return common.SubdivTags{}
	}
	return common.SubdivTags{
		VertexInterpolationRule: common.TokenEdgeAndCorner,
		FaceVaryingRule:         common.TokenCornersPlus1,
	}
}

func (a *shapeAdapter) GetDoubleSided() bool {
	return host.BoolAttr(a.node, host.AttrDoubleSided, true)
}

func (a *shapeAdapter) GetCullStyle() common.CullStyle {
	return common.CullStyleDontCare
}

func (a *shapeAdapter) GetDisplayStyle() common.DisplayStyle {
	_, level := a.refinement()
	return common.DisplayStyle{RefineLevel: level}
}

func (a *shapeAdapter) GetRenderTag() common.Token {
	return common.RenderTagGeometry
}

func (a *shapeAdapter) GetPrimvarDescriptors(interp common.Interpolation) []common.PrimvarDescriptor {
	var out []common.PrimvarDescriptor
	switch interp {
	case common.InterpolationVertex:
		out = append(out, common.PrimvarDescriptor{Name: common.TokenPoints, Interpolation: interp, Role: common.TokenRolePoint})
		if _, ok := a.node.Attribute(host.AttrNormals); ok && a.primType == render_index.PrimTypeMesh {
			out = append(out, common.PrimvarDescriptor{Name: common.TokenNormals, Interpolation: interp, Role: common.TokenRoleNormal})
		}
		if _, ok := a.node.Attribute(host.AttrWidths); ok && a.primType != render_index.PrimTypeMesh {
			out = append(out, common.PrimvarDescriptor{Name: common.TokenWidths, Interpolation: interp})
		}
	case common.InterpolationConstant:
		if _, ok := a.node.Attribute(host.AttrDisplayColor); ok {
			out = append(out, common.PrimvarDescriptor{Name: common.TokenDisplayColor, Interpolation: interp, Role: common.TokenRoleColor})
		}
	case common.InterpolationInstance:
		if a.instanced {
			out = append(out, common.PrimvarDescriptor{Name: common.TokenInstanceMatrix, Interpolation: interp})
		}
	}
	return out
}

func (a *shapeAdapter) GetMaterial() host.Node {
	if !a.node.Valid() {
		return nil
	}
	return a.node.Material(0)
}

func (a *shapeAdapter) IsInstanced() bool {
	return a.instanced
}

func (a *shapeAdapter) InstancerID() common.Path {
	if !a.instanced {
		return common.EmptyPath
	}
	return a.id.AppendProperty("instancer")
}

func (a *shapeAdapter) GetInstancerPrototypes() []common.Path {
	if !a.instanced {
		return nil
	}
	return []common.Path{a.id}
}

func (a *shapeAdapter) GetInstanceIndices(prototype common.Path) []int32 {
	if !a.instanced || prototype != a.id {
		return nil
	}
	n := len(a.node.Paths())
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

func (a *shapeAdapter) GetInstancePrimvar(key common.Token) any {
	if !a.instanced || key != common.TokenInstanceMatrix {
		return nil
	}
	n := len(a.node.Paths())
	out := make([]mgl64.Mat4, n)
	for i := range out {
		out[i] = a.node.WorldMatrix(i)
	}
	return out
}

// refinement returns the subdivision scheme and refine level of a mesh.
func (a *shapeAdapter) refinement() (common.Token, int) {
	if !a.producer.Params().DisplaySmoothMeshes {
		return common.TokenNone, 0
	}
	level := int(host.FloatAttr(a.node, host.AttrSmoothLevel, 0))
	if level <= 0 {
		return common.TokenNone, 0
	}
	return common.TokenCatmullClark, level
}
