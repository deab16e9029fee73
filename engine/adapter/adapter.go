// Package adapter wraps host scene entities (shapes, lights, cameras, materials and
// render items) into renderer-visible prims. Each adapter owns one identity path,
// populates its prim into the render index, answers the attribute queries the scene
// delegate routes to it, and keeps host change callbacks that forward dirty bits.
package adapter

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/config"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/go-gl/mathgl/mgl64"
)

// RebuildFlags selects what a deferred partial rebuild of an adapter resets.
type RebuildFlags uint32

const (
	// RebuildFlagCallbacks removes and re-creates the adapter's host callbacks.
	RebuildFlagCallbacks RebuildFlags = 1 << iota
	// RebuildFlagPrim removes and re-populates the adapter's prim.
	RebuildFlagPrim
	// RebuildFlagVisibility re-evaluates light visibility and re-populates the prim if it changed.
	RebuildFlagVisibility
)

// Has reports whether every flag of mask is set.
func (f RebuildFlags) Has(mask RebuildFlags) bool {
	return f&mask == mask
}

// Producer is the non-owning back-reference every adapter holds to the scene delegate
// that created it.
//
// Adapter change callbacks run in host contexts, possibly on another goroutine than the
// sync pass. They must not touch adapter state or the render index: dirty bits and every
// structural change (recreate, rebuild, material reclassification) go through the
// OnIdle methods, which only enqueue work for the next sync pass.
type Producer interface {
	// RenderIndex returns the render index adapters populate into.
	//
	// Returns:
	//   - render_index.RenderIndex: the render index
	RenderIndex() render_index.RenderIndex

	// Host returns the host application.
	//
	// Returns:
	//   - host.Host: the host
	Host() host.Host

	// Logger returns the delegate's logger.
	//
	// Returns:
	//   - *slog.Logger: the logger
	Logger() *slog.Logger

	// Params returns the current delegate parameters.
	//
	// Returns:
	//   - config.Params: the parameters
	Params() config.Params

	// PlaybackRunning reports whether host playback was running at the last sync pass.
	//
	// Returns:
	//   - bool: true while playback runs
	PlaybackRunning() bool

	// XRayEnabled reports whether x-ray shading was active at the last sync pass.
	//
	// Returns:
	//   - bool: true while x-ray shading is on
	XRayEnabled() bool

	// MaterialPath derives the identity path of the material for a shading engine.
	//
	// Parameters:
	//   - shadingEngine: the host shading engine
	//
	// Returns:
	//   - common.Path: the material identity, or the empty path for nil
	MaterialPath(shadingEngine host.Node) common.Path

	// RecreateAdapterOnIdle schedules a full destroy and re-create of the adapter id.
	//
	// Parameters:
	//   - id: the adapter identity
	//   - n: the host node to re-create from
	RecreateAdapterOnIdle(id common.Path, n host.Node)

	// RebuildAdapterOnIdle schedules a partial rebuild of the adapter id.
	//
	// Parameters:
	//   - id: the adapter identity
	//   - flags: what to rebuild; repeated requests are OR-ed
	RebuildAdapterOnIdle(id common.Path, flags RebuildFlags)

	// MarkDirtyOnIdle queues dirty bits for the adapter id. The next sync pass forwards
	// them to the render index if the adapter still exists and is populated.
	//
	// Parameters:
	//   - id: the adapter identity
	//   - bits: the dirty bits; repeated requests are OR-ed
	MarkDirtyOnIdle(id common.Path, bits render_index.DirtyBits)

	// MaterialTagChanged schedules a re-classification of the material id.
	//
	// Parameters:
	//   - id: the material identity
	MaterialTagChanged(id common.Path)
}

// Adapter is the capability contract shared by every adapter kind.
type Adapter interface {
	// ID returns the identity path of the adapter. It never changes after creation.
	//
	// Returns:
	//   - common.Path: the identity path
	ID() common.Path

	// Node returns the wrapped host node, nil for render items without a source node.
	//
	// Returns:
	//   - host.Node: the host node
	Node() host.Node

	// IsSupported reports whether the renderer can represent the wrapped entity.
	// Unsupported adapters are discarded before population.
	//
	// Returns:
	//   - bool: true if supported
	IsSupported() bool

	// IsPopulated reports whether the adapter's prim currently exists in the render index.
	//
	// Returns:
	//   - bool: true if populated
	IsPopulated() bool

	// Populate inserts the adapter's prim into the render index. Populating an
	// already-populated adapter is a no-op.
	//
	// Returns:
	//   - error: error if the render index rejects the prim
	Populate() error

	// RemovePrim removes the adapter's prim from the render index without destroying
	// the adapter. Removing an unpopulated adapter is a no-op.
	//
	// Returns:
	//   - error: error if the render index rejects the removal
	RemovePrim() error

	// CreateCallbacks registers the adapter's host change callbacks. Calling it again
	// before RemoveCallbacks registers nothing.
	//
	// Returns:
	//   - error: error if the host refuses a registration
	CreateCallbacks() error

	// RemoveCallbacks unregisters every callback CreateCallbacks registered.
	// Calling it again registers or removes nothing.
	RemoveCallbacks()

	// MarkDirty forwards dirty bits to the render index change tracker.
	//
	// Parameters:
	//   - bits: the dirty bits
	MarkDirty(bits render_index.DirtyBits)

	// HasType reports whether the adapter's prim has type t.
	//
	// Parameters:
	//   - t: the prim type
	//
	// Returns:
	//   - bool: true if the prim type matches
	HasType(t render_index.PrimType) bool

	// Get answers a keyed value query; unknown keys return nil.
	//
	// Parameters:
	//   - key: the value key
	//
	// Returns:
	//   - any: the value, or nil
	Get(key common.Token) any
}

// Transformer is implemented by adapters with a world transform.
type Transformer interface {
	// GetTransform returns the world transform of the prim.
	//
	// Returns:
	//   - mgl64.Mat4: the world transform
	GetTransform() mgl64.Mat4

	// SampleTransform samples the world transform over the shutter interval.
	//
	// Parameters:
	//   - maxSamples: the maximum number of samples to return
	//
	// Returns:
	//   - []float32: the sample times
	//   - []mgl64.Mat4: the transform at each sample time
	SampleTransform(maxSamples int) ([]float32, []mgl64.Mat4)

	// InvalidateTransform drops any cached transform so the next query re-reads it.
	InvalidateTransform()
}

// Geometry is implemented by adapters that draw geometry.
type Geometry interface {
	// GetVisible reports whether the prim is drawn.
	GetVisible() bool

	// GetExtent returns the local-space bounds of the prim.
	GetExtent() common.Range3d

	// GetMeshTopology returns the face layout; empty for non-mesh prims.
	GetMeshTopology() common.MeshTopology

	// GetCurvesTopology returns the curve layout; empty for non-curve prims.
	GetCurvesTopology() common.CurvesTopology

	// GetDoubleSided reports whether both faces are lit.
	GetDoubleSided() bool

	// GetCullStyle returns the face culling policy.
	GetCullStyle() common.CullStyle

	// GetDisplayStyle returns the refinement and shading hints.
	GetDisplayStyle() common.DisplayStyle

	// GetRenderTag returns the render tag that selects which passes draw the prim.
	GetRenderTag() common.Token

	// GetPrimvarDescriptors lists the primvars of one interpolation.
	//
	// Parameters:
	//   - interp: the interpolation
	//
	// Returns:
	//   - []common.PrimvarDescriptor: the descriptors
	GetPrimvarDescriptors(interp common.Interpolation) []common.PrimvarDescriptor
}

// baseAdapter carries the state every adapter kind shares.
type baseAdapter struct {
	id        common.Path
	producer  Producer
	node      host.Node
	callbacks []host.CallbackID
	populated bool
}

func (a *baseAdapter) ID() common.Path {
	return a.id
}

func (a *baseAdapter) Node() host.Node {
	return a.node
}

func (a *baseAdapter) IsPopulated() bool {
	return a.populated
}

func (a *baseAdapter) RemoveCallbacks() {
	for _, id := range a.callbacks {
		if err := a.producer.Host().RemoveCallback(id); err != nil {
			a.producer.Logger().Warn("failed to remove host callback", "id", a.id, "err", err)
		}
	}
	a.callbacks = nil
}

// watch registers fn for one kind of change on node.
func (a *baseAdapter) watch(node host.Node, kind host.CallbackKind, fn func(host.Node)) error {
	id, err := a.producer.Host().AddNodeCallback(node, kind, fn)
	if err != nil {
		return err
	}
	a.callbacks = append(a.callbacks, id)
	return nil
}

// sampleTransform returns the shutter samples of a transform that does not vary within
// a frame; the host only evaluates the current time.
func sampleTransform(p Producer, m mgl64.Mat4, maxSamples int) ([]float32, []mgl64.Mat4) {
	if maxSamples <= 0 {
		return nil, nil
	}
	params := p.Params()
	times := []float32{0}
	if params.MotionSampled() {
		times = []float32{params.MotionSampleStart, params.MotionSampleEnd}
	}
	if len(times) > maxSamples {
		times = times[:maxSamples]
	}
	mats := make([]mgl64.Mat4, len(times))
	for i := range mats {
		mats[i] = m
	}
	return times, mats
}
