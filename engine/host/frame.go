package host

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl64"
)

// DisplayStyle is the set of viewport display-mode flags of one frame.
type DisplayStyle uint32

const (
	// DisplayShaded draws surfaces shaded.
	DisplayShaded DisplayStyle = 1 << iota
	// DisplayWireframe draws wireframes.
	DisplayWireframe
	// DisplayDefaultMaterial overrides every surface material with the default material.
	DisplayDefaultMaterial
	// DisplayXRay draws surfaces semi-transparent.
	DisplayXRay
	// DisplayTextured enables textures.
	DisplayTextured
)

// Has reports whether every flag of mask is set.
func (s DisplayStyle) Has(mask DisplayStyle) bool {
	return s&mask == mask
}

// LightParam is one light the draw context reports active for the frame.
type LightParam struct {
	// Node is the light shape, nil or invalid if the light could not be resolved.
	Node Node
	// Path is the full DAG path of the light instance.
	Path string
	// ShadowOn reports whether the light projects shadows this frame.
	ShadowOn bool
	// ShadowViewProj is the light's shadow view-projection matrix, nil if unavailable.
	ShadowViewProj *mgl64.Mat4
}

// DrawContext is the per-frame state the host hands to the bridge before drawing.
type DrawContext struct {
	// DisplayStyle holds the viewport display-mode flags.
	DisplayStyle DisplayStyle
	// PlaybackRunning reports whether animation playback is running.
	PlaybackRunning bool
	// Lights enumerates every light active in the viewport, ignoring light limits.
	Lights []LightParam
}

// ChangeFlags is the coarse per-item change summary of a render-item delta.
type ChangeFlags uint32

const (
	// ChangedEffect reports a shader or material binding change.
	ChangedEffect ChangeFlags = 1 << iota
	// ChangedMatrix reports a world transform change.
	ChangedMatrix
	// ChangedGeometry reports a vertex or index buffer change.
	ChangedGeometry
	// ChangedVisibility reports a visibility change.
	ChangedVisibility
	// ChangedTopo reports a topology change.
	ChangedTopo
)

// ChangedAll is every change flag.
const ChangedAll = ChangedEffect | ChangedMatrix | ChangedGeometry | ChangedVisibility | ChangedTopo

// Has reports whether every flag of mask is set.
func (f ChangeFlags) Has(mask ChangeFlags) bool {
	return f&mask == mask
}

// InvalidFastID is the sentinel fast key the host uses for "no render item".
const InvalidFastID = 0

// StandardShadedItemName is the name the host gives the render item drawing a mesh
// with its assigned material.
const StandardShadedItemName = "StandardShadedItem"

// RenderItem is one low-level drawable the host's viewport draws.
type RenderItem struct {
	// FastID is the small integer key the host assigns to the item.
	FastID int
	// Name is the item name, for example StandardShadedItem.
	Name string
	// Primitive is the GPU primitive the item draws with.
	Primitive wgpu.PrimitiveTopology
	// Source is the shape the item draws, nil if the item is not backed by a DAG node.
	Source Node
	// SourcePath is the full DAG path of Source.
	SourcePath string
	// ShadingEngine is the shading engine matching the item's shading component, nil if none.
	ShadingEngine Node
	// Points holds the vertex positions.
	Points []mgl64.Vec3
	// Normals holds the vertex normals, may be empty.
	Normals []mgl64.Vec3
	// Indices holds the primitive indices.
	Indices []int32
	// Matrix is the item's world transform.
	Matrix mgl64.Mat4
	// Visible reports whether the item is drawn.
	Visible bool
	// VisibleDuringPlayback reports whether the item stays visible while playback runs.
	VisibleDuringPlayback bool
	// External reports whether the item belongs to an externally owned integration bridge.
	External bool
}

// IsLinePrimitive reports whether the item draws lines; line items are always shaded
// with the fallback material and constant lighting.
func (ri *RenderItem) IsLinePrimitive() bool {
	return ri.Primitive == wgpu.PrimitiveTopologyLineList || ri.Primitive == wgpu.PrimitiveTopologyLineStrip
}

// ItemDelta is one changed render item in a batch.
type ItemDelta struct {
	// Flags is the coarse change summary; zero means unchanged.
	Flags ChangeFlags
	// Item is the render item.
	Item *RenderItem
}

// ViewportScene is the host's per-frame render-item delta batch.
type ViewportScene struct {
	// Removals lists the fast keys of removed items; InvalidFastID entries are ignored.
	Removals []int
	// Items lists every item that may have changed.
	Items []ItemDelta
}

// Frame bundles what the host delivers for one frame.
type Frame struct {
	// Context is the draw context.
	Context DrawContext
	// Scene is the render-item delta batch, nil when the host sends none this frame.
	Scene *ViewportScene
}
