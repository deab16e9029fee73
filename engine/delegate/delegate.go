// Package delegate implements the scene delegate: the facade that keeps a render index
// faithful to a live host scene. It owns one adapter table per entity kind, defers host
// notifications into pending-work queues, drains them in a per-frame sync pass,
// reconciles the host's render-item delta batches and answers the renderer's pull
// queries by dispatching them to the owning adapter.
//
// All table mutation happens on the goroutine that drives rendering (PreFrame,
// HandleCompleteViewportScene, SetParams and lazy material creation). Host callbacks
// only append to the pending queues.
package delegate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/Carmen-Shannon/oxy-bridge/engine/config"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// sceneDelegate is the implementation of the SceneDelegate interface.
type sceneDelegate struct {
	id           common.Path
	instance     string
	rprimRoot    common.Path
	sprimRoot    common.Path
	materialRoot common.Path

	host     host.Host
	index    render_index.RenderIndex
	registry adapter.Registry
	logger   *slog.Logger
	metrics  *metrics
	reg      prometheus.Registerer

	// pool prepares render-item payloads in parallel during delta reconciliation.
	pool     worker.DynamicWorkerPool
	ownsPool bool

	// meshMode is fixed at construction: switching population strategy needs a new delegate.
	meshMode bool

	defaultMaterialID   common.Path
	defaultMaterialOnce sync.Once
	defaultMaterial     *adapter.MaterialNetwork

	// mu guards the adapter tables.
	mu          *sync.RWMutex
	shapes      *adapterTable[adapter.ShapeAdapter]
	lights      *adapterTable[adapter.LightAdapter]
	cameras     *adapterTable[adapter.CameraAdapter]
	materials   *adapterTable[adapter.MaterialAdapter]
	renderItems *renderItemTable

	queue *pending

	// stateMu guards the display state adapters read back through the Producer.
	stateMu            *sync.RWMutex
	params             config.Params
	playbackRunning    bool
	useDefaultMaterial bool
	xray               bool

	subscription host.CallbackID
	populated    bool
	closed       bool
}

// SceneDelegate translates a live host scene into render index prims and keeps them in
// sync frame by frame.
//
// Host notifications (the embedded host.EventSink) and the adapter back-reference
// (the embedded adapter.Producer) only enqueue work. PreFrame and
// HandleCompleteViewportScene apply it once per frame, after which the renderer pulls
// values through the Queries surface.
type SceneDelegate interface {
	host.EventSink
	adapter.Producer
	Queries

	// ID returns the root path every prim of this delegate lives under.
	//
	// Returns:
	//   - common.Path: the delegate root
	ID() common.Path

	// RprimRoot returns the root path of the delegate's rprims.
	//
	// Returns:
	//   - common.Path: the rprim root
	RprimRoot() common.Path

	// SprimRoot returns the root path of the delegate's lights and cameras.
	//
	// Returns:
	//   - common.Path: the sprim root
	SprimRoot() common.Path

	// DefaultMaterialID returns the identity of this delegate's default material sprim.
	//
	// Returns:
	//   - common.Path: the default material identity
	DefaultMaterialID() common.Path

	// Populate walks the host scene and subscribes to host node events.
	// In mesh-adapter mode every node is inserted immediately; otherwise only lights
	// and cameras are queued and shapes arrive through render-item delta batches.
	// Calling Populate twice is a no-op.
	//
	// Parameters:
	//   - ctx: the context used for tracing
	//
	// Returns:
	//   - error: error if the host refuses the event subscription
	Populate(ctx context.Context) error

	// PreFrame runs the per-frame sync pass that drains every pending-work queue in
	// order and reconciles the active light list against dc. It never fails: a step or
	// entity that fails is logged and skipped.
	//
	// Parameters:
	//   - ctx: the context used for tracing
	//   - dc: the draw context of the frame
	PreFrame(ctx context.Context, dc host.DrawContext)

	// HandleCompleteViewportScene reconciles one render-item delta batch: removals
	// first, then creation and update of every changed item.
	//
	// Parameters:
	//   - ctx: the context used for tracing
	//   - scene: the delta batch; nil is ignored
	HandleCompleteViewportScene(ctx context.Context, scene *host.ViewportScene)

	// SetParams applies new delegate parameters, dirtying the adapters whose
	// representation depends on the changed fields.
	//
	// Parameters:
	//   - p: the new parameters
	SetParams(p config.Params)

	// InsertDag creates the adapters for one host node: a light, a camera, or in
	// mesh-adapter mode a shape plus the material it is bound to.
	//
	// Parameters:
	//   - n: the host node
	InsertDag(n host.Node)

	// AddNewInstance reacts to n gaining an instance below a new parent. A shape that
	// was not instanced before is recreated; an instanced one only rebuilds its
	// callbacks and dirties its instancer.
	//
	// Parameters:
	//   - n: the instanced shape
	AddNewInstance(n host.Node)

	// RemoveAdapter removes the adapter id from whichever table holds it, unregistering
	// its callbacks and removing its prim. A missing id logs a warning.
	//
	// Parameters:
	//   - id: the adapter identity
	RemoveAdapter(id common.Path)

	// RecreateAdapter destroys the light, shape or material adapter id and creates it
	// again from n. If n is no longer valid the adapter is only removed.
	//
	// Parameters:
	//   - id: the adapter identity
	//   - n: the host node to re-create from
	RecreateAdapter(id common.Path, n host.Node)

	// UpdateLightVisibility re-evaluates the visibility of light id and re-populates
	// its prim if it changed.
	//
	// Parameters:
	//   - id: the light identity
	UpdateLightVisibility(id common.Path)

	// SetCameraViewport records the viewport of the camera at a host path.
	//
	// Parameters:
	//   - hostPath: the full host path of the camera
	//   - viewport: the viewport rectangle (x, y, width, height)
	//
	// Returns:
	//   - common.Path: the camera identity, or the empty path if no adapter exists
	SetCameraViewport(hostPath string, viewport mgl64.Vec4) common.Path

	// AddPickHitToSelection resolves a picked rprim to the host path to select.
	//
	// Parameters:
	//   - hit: the identity of the picked rprim
	//
	// Returns:
	//   - string: the host path to select, preferring the source's parent transform
	//   - bool: true if the hit belongs to this delegate
	AddPickHitToSelection(hit common.Path) (string, bool)

	// Stats returns the current table and queue sizes.
	//
	// Returns:
	//   - Stats: the sizes
	Stats() Stats

	// Close unsubscribes from the host, then unregisters every adapter's callbacks and
	// removes every prim the delegate inserted.
	//
	// Returns:
	//   - error: error if the host refuses the unsubscription
	Close() error
}

// Stats reports the size of the delegate's tables and pending queues.
type Stats struct {
	Shapes      int
	Lights      int
	Cameras     int
	Materials   int
	RenderItems int

	PendingTags      int
	PendingRemovals  int
	PendingLights    int
	PendingNodes     int
	PendingRecreates int
	PendingRebuilds  int
}

var _ SceneDelegate = &sceneDelegate{}

// NewSceneDelegate creates a scene delegate populating idx from h.
//
// Parameters:
//   - h: the host scene
//   - idx: the render index prims are inserted into
//   - options: optional configuration
//
// Returns:
//   - SceneDelegate: the new delegate
func NewSceneDelegate(h host.Host, idx render_index.RenderIndex, options ...SceneDelegateBuilderOption) SceneDelegate {
	if h == nil || idx == nil {
		panic("delegate: NewSceneDelegate requires a host and a render index")
	}
	d := &sceneDelegate{
		instance:    uuid.NewString(),
		host:        h,
		index:       idx,
		registry:    adapter.NewRegistry(),
		logger:      slog.Default(),
		params:      config.DefaultParams(),
		mu:          &sync.RWMutex{},
		stateMu:     &sync.RWMutex{},
		shapes:      newAdapterTable[adapter.ShapeAdapter](),
		lights:      newAdapterTable[adapter.LightAdapter](),
		cameras:     newAdapterTable[adapter.CameraAdapter](),
		materials:   newAdapterTable[adapter.MaterialAdapter](),
		renderItems: newRenderItemTable(),
		queue:       newPending(),
	}
	for _, opt := range options {
		opt(d)
	}

	if err := d.params.Validate(); err != nil {
		d.logger.Error("invalid delegate params, using defaults", "err", err)
		d.params = config.DefaultParams()
	}
	d.meshMode = d.params.UseMeshAdapter
	if d.id.IsEmpty() {
		d.id = common.AbsoluteRoot.AppendChild("oxybridge_" + d.instance)
	}
	d.rprimRoot = d.id.AppendChild("rprims")
	d.sprimRoot = d.id.AppendChild("sprims")
	d.materialRoot = d.id.AppendChild("materials")
	d.defaultMaterialID = d.id.AppendChild(adapter.DefaultMaterialName)
	d.logger = d.logger.With("component", "delegate", "delegate", d.id.String())

	if d.reg == nil {
		d.reg = prometheus.NewRegistry()
	}
	d.metrics = newMetrics(d.reg, d.instance)
	if d.pool == nil {
		d.pool = worker.NewDynamicWorkerPool(d.params.SyncWorkers, 256, 1*time.Second)
		d.ownsPool = true
	}
	return d
}

func (d *sceneDelegate) ID() common.Path {
	return d.id
}

func (d *sceneDelegate) RprimRoot() common.Path {
	return d.rprimRoot
}

func (d *sceneDelegate) SprimRoot() common.Path {
	return d.sprimRoot
}

func (d *sceneDelegate) DefaultMaterialID() common.Path {
	return d.defaultMaterialID
}

func (d *sceneDelegate) RenderIndex() render_index.RenderIndex {
	return d.index
}

func (d *sceneDelegate) Host() host.Host {
	return d.host
}

func (d *sceneDelegate) Logger() *slog.Logger {
	return d.logger
}

func (d *sceneDelegate) Params() config.Params {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.params
}

func (d *sceneDelegate) PlaybackRunning() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.playbackRunning
}

func (d *sceneDelegate) XRayEnabled() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.xray
}

func (d *sceneDelegate) MaterialPath(shadingEngine host.Node) common.Path {
	if shadingEngine == nil {
		return common.EmptyPath
	}
	return d.materialRoot.AppendChild(shadingEngine.Name())
}

func (d *sceneDelegate) RecreateAdapterOnIdle(id common.Path, n host.Node) {
	d.queue.scheduleRecreate(id, n)
}

func (d *sceneDelegate) RebuildAdapterOnIdle(id common.Path, flags adapter.RebuildFlags) {
	d.queue.scheduleRebuild(id, flags)
}

func (d *sceneDelegate) MarkDirtyOnIdle(id common.Path, bits render_index.DirtyBits) {
	d.queue.markDirty(id, bits)
}

func (d *sceneDelegate) MaterialTagChanged(id common.Path) {
	d.queue.tagChanged(id)
}

func (d *sceneDelegate) Stats() Stats {
	d.mu.RLock()
	s := Stats{
		Shapes:      d.shapes.len(),
		Lights:      d.lights.len(),
		Cameras:     d.cameras.len(),
		Materials:   d.materials.len(),
		RenderItems: d.renderItems.len(),
	}
	d.mu.RUnlock()
	s.PendingTags, s.PendingRemovals, s.PendingLights, s.PendingNodes, s.PendingRecreates, s.PendingRebuilds = d.queue.sizes()
	return s
}

func (d *sceneDelegate) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var err error
	if d.populated {
		err = d.host.RemoveCallback(d.subscription)
	}

	// Callbacks go first so no host notification can reach an adapter whose prim is gone.
	all := d.allAdaptersLocked()
	for _, a := range all {
		a.RemoveCallbacks()
	}
	for _, a := range all {
		if rerr := a.RemovePrim(); rerr != nil {
			d.logger.Warn("failed to remove prim on close", "id", a.ID(), "err", rerr)
		}
	}
	d.shapes = newAdapterTable[adapter.ShapeAdapter]()
	d.lights = newAdapterTable[adapter.LightAdapter]()
	d.cameras = newAdapterTable[adapter.CameraAdapter]()
	d.materials = newAdapterTable[adapter.MaterialAdapter]()
	d.renderItems = newRenderItemTable()

	if d.populated && d.index.IsSprimTypeSupported(render_index.PrimTypeMaterial) {
		if rerr := d.index.RemoveSprim(render_index.PrimTypeMaterial, d.defaultMaterialID); rerr != nil {
			d.logger.Warn("failed to remove default material", "err", rerr)
		}
	}
	if d.ownsPool {
		d.pool.Stop()
	}
	return err
}

// allAdaptersLocked lists every adapter in table order. Must be called with mu held.
func (d *sceneDelegate) allAdaptersLocked() []adapter.Adapter {
	var out []adapter.Adapter
	for _, a := range d.renderItems.sorted() {
		out = append(out, a)
	}
	for _, a := range d.shapes.sorted() {
		out = append(out, a)
	}
	for _, a := range d.lights.sorted() {
		out = append(out, a)
	}
	for _, a := range d.cameras.sorted() {
		out = append(out, a)
	}
	for _, a := range d.materials.sorted() {
		out = append(out, a)
	}
	return out
}

// setPlayback records the playback state and reports whether it changed.
func (d *sceneDelegate) setPlayback(running bool) bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.playbackRunning == running {
		return false
	}
	d.playbackRunning = running
	return true
}

// setDisplayOverrides records the default-material and x-ray flags and reports which
// of them changed.
func (d *sceneDelegate) setDisplayOverrides(useDefault, xray bool) (defaultChanged, xrayChanged bool) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	defaultChanged = d.useDefaultMaterial != useDefault
	xrayChanged = d.xray != xray
	d.useDefaultMaterial = useDefault
	d.xray = xray
	return defaultChanged, xrayChanged
}

func (d *sceneDelegate) usingDefaultMaterial() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.useDefaultMaterial
}
