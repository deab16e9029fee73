package adapter

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl64"
)

// geometryDirtyBits is what a geometry change of a render item invalidates.
const geometryDirtyBits = render_index.DirtyPoints | render_index.DirtyExtent | render_index.DirtyNormals |
	render_index.DirtyPrimvar | render_index.DirtyTopology

// renderItemAdapter is the implementation of the RenderItemAdapter interface.
type renderItemAdapter struct {
	baseAdapter

	fastID   int
	primType render_index.PrimType

	mu        *sync.Mutex
	item      *host.RenderItem
	material  common.Path
	transform mgl64.Mat4
	extent    *common.Range3d
	wireframe wgpu.Color
	status    host.DisplayStatus
}

// RenderItemAdapter wraps one host render item, the low-level drawable the host's own
// viewport draws, as an rprim. It is keyed a second time by the item's fast ID and is
// refreshed from the per-frame render-item delta batch rather than from host callbacks.
type RenderItemAdapter interface {
	Adapter
	Transformer
	Geometry

	// FastID returns the host-assigned fast key of the render item.
	//
	// Returns:
	//   - int: the fast key
	FastID() int

	// PrimType returns the rprim type derived from the item's primitive.
	//
	// Returns:
	//   - render_index.PrimType: the rprim type
	PrimType() render_index.PrimType

	// Item returns the latest render item payload.
	//
	// Returns:
	//   - *host.RenderItem: the render item
	Item() *host.RenderItem

	// Material returns the bound material identity.
	//
	// Returns:
	//   - common.Path: the material identity, the empty path for the fallback material
	Material() common.Path

	// SetMaterial binds a material, marking the material id dirty on change.
	//
	// Parameters:
	//   - id: the material identity
	SetMaterial(id common.Path)

	// UpdateFromDelta refreshes the item payload and per-item draw state from a delta
	// batch entry, marking the attribute categories the change flags name.
	//
	// Parameters:
	//   - item: the new payload
	//   - flags: the change flags of the entry
	//   - wireframe: the current wireframe color of the item's source
	//   - status: the current display status of the item's source
	//   - extent: the precomputed bounds of item's points
	UpdateFromDelta(item *host.RenderItem, flags host.ChangeFlags, wireframe wgpu.Color, status host.DisplayStatus, extent common.Range3d)

	// UpdateTransform stores the item's world transform, marking it dirty on change.
	//
	// Parameters:
	//   - m: the world transform
	UpdateTransform(m mgl64.Mat4)

	// SetPlaybackChanged forces visibility to be re-pulled after playback starts or stops.
	SetPlaybackChanged()

	// GetShadingStyle returns constant lighting for line items and the empty token otherwise.
	//
	// Returns:
	//   - common.Token: the shading style
	GetShadingStyle() common.Token

	// WireframeColor returns the wireframe color recorded at the last delta.
	//
	// Returns:
	//   - wgpu.Color: the wireframe color
	WireframeColor() wgpu.Color

	// DisplayStatus returns the display status recorded at the last delta.
	//
	// Returns:
	//   - host.DisplayStatus: the display status
	DisplayStatus() host.DisplayStatus
}

var _ RenderItemAdapter = &renderItemAdapter{}

// RenderItemPrimType maps a GPU primitive onto the rprim type that draws it.
//
// Parameters:
//   - p: the primitive topology
//
// Returns:
//   - render_index.PrimType: the rprim type
func RenderItemPrimType(p wgpu.PrimitiveTopology) render_index.PrimType {
	switch p {
	case wgpu.PrimitiveTopologyTriangleList, wgpu.PrimitiveTopologyTriangleStrip:
		return render_index.PrimTypeMesh
	case wgpu.PrimitiveTopologyLineList, wgpu.PrimitiveTopologyLineStrip:
		return render_index.PrimTypeBasisCurves
	case wgpu.PrimitiveTopologyPointList:
		return render_index.PrimTypePoints
	}
	return ""
}

// RenderItemPath derives the identity of a render item below root from its source
// path and item name. The fast ID is not part of the identity, so an item the host
// re-creates under a new fast ID maps to the same prim.
//
// Parameters:
//   - root: the delegate's rprim root
//   - item: the render item
//
// Returns:
//   - common.Path: the identity, or the empty path if none can be derived
func RenderItemPath(root common.Path, item *host.RenderItem) common.Path {
	if item == nil || item.Name == "" {
		return common.EmptyPath
	}
	if item.SourcePath == "" {
		return root.AppendChild(item.Name)
	}
	base := common.PathFromHost(root, item.SourcePath)
	if base.IsEmpty() {
		return common.EmptyPath
	}
	return base.AppendChild(item.Name)
}

// NewRenderItemAdapter creates the adapter for a host render item.
//
// Parameters:
//   - p: the owning producer
//   - id: the identity path
//   - item: the render item
//
// Returns:
//   - RenderItemAdapter: the new adapter
func NewRenderItemAdapter(p Producer, id common.Path, item *host.RenderItem) RenderItemAdapter {
	if p == nil || item == nil {
		panic("adapter: NewRenderItemAdapter requires a producer and a render item")
	}
	return &renderItemAdapter{
		baseAdapter: baseAdapter{id: id, producer: p, node: item.Source},
		fastID:      item.FastID,
		primType:    RenderItemPrimType(item.Primitive),
		mu:          &sync.Mutex{},
		item:        item,
		transform:   item.Matrix,
		wireframe:   host.DormantWireframeColor,
	}
}

func (a *renderItemAdapter) FastID() int {
	return a.fastID
}

func (a *renderItemAdapter) PrimType() render_index.PrimType {
	return a.primType
}

func (a *renderItemAdapter) Item() *host.RenderItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.item
}

func (a *renderItemAdapter) IsSupported() bool {
	return a.primType != "" && a.producer.RenderIndex().IsRprimTypeSupported(a.primType)
}

func (a *renderItemAdapter) Populate() error {
	if a.populated {
		return nil
	}
	if err := a.producer.RenderIndex().InsertRprim(a.primType, a.id, common.EmptyPath); err != nil {
		return fmt.Errorf("failed to insert render item %s: %w", a.id, err)
	}
	a.populated = true
	return nil
}

func (a *renderItemAdapter) RemovePrim() error {
	if !a.populated {
		return nil
	}
	a.populated = false
	if err := a.producer.RenderIndex().RemoveRprim(a.id); err != nil {
		return fmt.Errorf("failed to remove render item %s: %w", a.id, err)
	}
	return nil
}

func (a *renderItemAdapter) CreateCallbacks() error {
	if len(a.callbacks) > 0 || a.node == nil || !a.node.Valid() {
		return nil
	}
	return a.watch(a.node, host.CallbackNodeDirty, func(host.Node) {
		a.producer.MarkDirtyOnIdle(a.id, render_index.DirtyVisibility|render_index.DirtyDisplayStyle)
	})
}

func (a *renderItemAdapter) MarkDirty(bits render_index.DirtyBits) {
	if !a.populated || bits == render_index.Clean {
		return
	}
	a.producer.RenderIndex().MarkRprimDirty(a.id, bits)
}

func (a *renderItemAdapter) HasType(t render_index.PrimType) bool {
	return a.primType == t
}

func (a *renderItemAdapter) Get(key common.Token) any {
	item := a.Item()
	switch key {
	case common.TokenPoints:
		return item.Points
	case common.TokenNormals:
		if len(item.Normals) > 0 {
			return item.Normals
		}
	case common.TokenDisplayColor:
		if item.IsLinePrimitive() {
			c := a.WireframeColor()
			return mgl64.Vec3{c.R, c.G, c.B}
		}
		return host.Vec3Attr(item.Source, host.AttrDisplayColor, mgl64.Vec3{0.5, 0.5, 0.5})
	}
	return nil
}

func (a *renderItemAdapter) Material() common.Path {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.material
}

func (a *renderItemAdapter) SetMaterial(id common.Path) {
	a.mu.Lock()
	changed := a.material != id
	a.material = id
	a.mu.Unlock()
	if changed {
		a.MarkDirty(render_index.DirtyMaterialID)
	}
}

func (a *renderItemAdapter) UpdateFromDelta(item *host.RenderItem, flags host.ChangeFlags, wireframe wgpu.Color, status host.DisplayStatus, extent common.Range3d) {
	var bits render_index.DirtyBits
	if flags.Has(host.ChangedGeometry) {
		bits |= geometryDirtyBits
	}
	if flags.Has(host.ChangedTopo) {
		bits |= render_index.DirtyTopology
	}
	if flags.Has(host.ChangedVisibility) {
		bits |= render_index.DirtyVisibility
	}

	a.mu.Lock()
	if item != nil {
		a.item = item
	}
	if flags.Has(host.ChangedGeometry) || a.extent == nil {
		a.extent = &extent
	}
	if a.wireframe != wireframe || a.status != status {
		a.wireframe = wireframe
		a.status = status
		bits |= render_index.DirtyPrimvar | render_index.DirtyDisplayStyle | render_index.DirtyRenderTag
	}
	a.mu.Unlock()

	a.MarkDirty(bits)
}

func (a *renderItemAdapter) UpdateTransform(m mgl64.Mat4) {
	a.mu.Lock()
	changed := a.transform != m
	a.transform = m
	a.mu.Unlock()
	if changed {
		a.MarkDirty(render_index.DirtyTransform)
	}
}

func (a *renderItemAdapter) SetPlaybackChanged() {
	a.MarkDirty(render_index.DirtyVisibility)
}

func (a *renderItemAdapter) GetShadingStyle() common.Token {
	if a.Item().IsLinePrimitive() {
		return common.TokenConstantLighting
	}
	return ""
}

func (a *renderItemAdapter) WireframeColor() wgpu.Color {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wireframe
}

func (a *renderItemAdapter) DisplayStatus() host.DisplayStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *renderItemAdapter) GetTransform() mgl64.Mat4 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transform
}

func (a *renderItemAdapter) SampleTransform(maxSamples int) ([]float32, []mgl64.Mat4) {
	return sampleTransform(a.producer, a.GetTransform(), maxSamples)
}

// InvalidateTransform is a no-op: render item transforms are pushed by the delta batch.
func (a *renderItemAdapter) InvalidateTransform() {}

func (a *renderItemAdapter) GetVisible() bool {
	item := a.Item()
	if !item.Visible {
		return false
	}
	return !a.producer.PlaybackRunning() || item.VisibleDuringPlayback
}

func (a *renderItemAdapter) GetExtent() common.Range3d {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.extent != nil {
		return *a.extent
	}
	return common.RangeFromPoints(a.item.Points)
}

func (a *renderItemAdapter) GetMeshTopology() common.MeshTopology {
	if a.primType != render_index.PrimTypeMesh {
		return common.MeshTopology{}
	}
	item := a.Item()
	indices := item.Indices
	if item.Primitive == wgpu.PrimitiveTopologyTriangleStrip {
		indices = stripToTriangles(indices)
	}
	n := len(indices) / 3
	counts := make([]int32, n)
	for i := range counts {
		counts[i] = 3
	}
	return common.MeshTopology{
		Scheme:            common.TokenNone,
		Orientation:       common.TokenRightHanded,
		FaceVertexCounts:  counts,
		FaceVertexIndices: indices[:n*3],
	}
}

func (a *renderItemAdapter) GetCurvesTopology() common.CurvesTopology {
	if a.primType != render_index.PrimTypeBasisCurves {
		return common.CurvesTopology{}
	}
	item := a.Item()
	if len(item.Indices) == 0 {
		return common.CurvesTopology{}
	}
	if item.Primitive == wgpu.PrimitiveTopologyLineStrip {
		return common.CurvesTopology{
			CurveType:         common.TokenLinear,
			Wrap:              common.TokenNonPeriodic,
			CurveVertexCounts: []int32{int32(len(item.Indices))},
			CurveIndices:      item.Indices,
		}
	}
	n := len(item.Indices) / 2
	counts := make([]int32, n)
	for i := range counts {
		counts[i] = 2
	}
	return common.CurvesTopology{
		CurveType:         common.TokenLinear,
		Wrap:              common.TokenSegmented,
		CurveVertexCounts: counts,
		CurveIndices:      item.Indices[:n*2],
	}
}

func (a *renderItemAdapter) GetDoubleSided() bool {
	return true
}

func (a *renderItemAdapter) GetCullStyle() common.CullStyle {
	if a.primType == render_index.PrimTypeBasisCurves {
		return common.CullStyleNothing
	}
	return common.CullStyleDontCare
}

func (a *renderItemAdapter) GetDisplayStyle() common.DisplayStyle {
	return common.DisplayStyle{
		OccludedSelectionShowsThrough: a.DisplayStatus() == host.StatusLead || a.DisplayStatus() == host.StatusActive,
	}
}

func (a *renderItemAdapter) GetRenderTag() common.Token {
	if a.DisplayStatus() == host.StatusTemplate {
		return common.RenderTagGuide
	}
	return common.RenderTagGeometry
}

func (a *renderItemAdapter) GetPrimvarDescriptors(interp common.Interpolation) []common.PrimvarDescriptor {
	switch interp {
	case common.InterpolationVertex:
		out := []common.PrimvarDescriptor{{Name: common.TokenPoints, Interpolation: interp, Role: common.TokenRolePoint}}
		if a.primType == render_index.PrimTypeMesh && len(a.Item().Normals) > 0 {
			out = append(out, common.PrimvarDescriptor{Name: common.TokenNormals, Interpolation: interp, Role: common.TokenRoleNormal})
		}
		return out
	case common.InterpolationConstant:
		return []common.PrimvarDescriptor{{Name: common.TokenDisplayColor, Interpolation: interp, Role: common.TokenRoleColor}}
	}
	return nil
}

// stripToTriangles expands a triangle strip into a triangle list, flipping every
// other triangle to keep a consistent winding.
func stripToTriangles(strip []int32) []int32 {
	if len(strip) < 3 {
		return nil
	}
	out := make([]int32, 0, (len(strip)-2)*3)
	for i := 2; i < len(strip); i++ {
		if i%2 == 0 {
			out = append(out, strip[i-2], strip[i-1], strip[i])
		} else {
			out = append(out, strip[i-1], strip[i-2], strip[i])
		}
	}
	return out
}
