package delegate

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"go.opentelemetry.io/otel/attribute"
)

// Adapter kinds used as metric labels and in diagnostics.
const (
	kindShape      = "shape"
	kindLight      = "light"
	kindCamera     = "camera"
	kindMaterial   = "material"
	kindRenderItem = "render_item"
)

func (d *sceneDelegate) Populate(ctx context.Context) error {
	_, span := d.metrics.tracer.Start(ctx, "delegate.Populate")
	defer span.End()

	d.mu.Lock()
	if d.populated || d.closed {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	visited := 0
	d.host.Traverse(func(n host.Node) bool {
		visited++
		if d.meshMode {
			d.InsertDag(n)
		} else {
			d.NodeAdded(n)
		}
		return true
	})

	id, err := d.host.Subscribe(d)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to subscribe to host events: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscription = id
	d.populated = true
	if d.index.IsSprimTypeSupported(render_index.PrimTypeMaterial) {
		if err := d.index.InsertSprim(render_index.PrimTypeMaterial, d.defaultMaterialID); err != nil {
			d.logger.Warn("failed to insert default material", "err", err)
		}
	}
	span.SetAttributes(attribute.Int("nodes", visited), attribute.Bool("mesh_mode", d.meshMode))
	d.logger.Info("populated", "nodes", visited, "mesh_mode", d.meshMode, "shapes", d.shapes.len(), "lights", d.lights.len())
	return nil
}

func (d *sceneDelegate) NodeAdded(n host.Node) {
	if n == nil || n.IsExternal() {
		return
	}
	if n.Kind() == host.KindLight && d.registry.LightCreator(n.TypeName()) != nil {
		d.queue.addLight(n)
		return
	}
	if d.meshMode || n.Kind() == host.KindCamera {
		d.queue.addNode(n)
	}
}

func (d *sceneDelegate) NodeRemoved(n host.Node) {
	if n == nil {
		return
	}
	var ids []common.Path
	switch {
	case n.Kind() == host.KindLight, n.Kind() == host.KindCamera:
		ids = append(ids, d.primPath(n, true))
	case n.Kind().IsShape():
		ids = append(ids, d.primPath(n, false))
	}
	ids = compactPaths(ids)
	d.queue.removeNode(n, ids)
}

func (d *sceneDelegate) ConnectionChanged(src, dst host.Plug, made bool) {
	if src.Node == nil || dst.Node == nil {
		return
	}
	if src.Node.Kind() != host.KindTransform || src.Attribute != host.AttrInstObjGroups {
		return
	}
	if dst.Node.Kind() != host.KindSet || dst.Node.Name() != host.DefaultLightSetName {
		return
	}
	for _, c := range src.Node.Children() {
		if c.Kind() != host.KindLight {
			continue
		}
		if id := d.primPath(c, true); !id.IsEmpty() {
			d.queue.scheduleRebuild(id, adapter.RebuildFlagVisibility)
		}
	}
}

func (d *sceneDelegate) InsertDag(n host.Node) {
	if !insertable(n) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.insertDagLocked(n)
}

// insertDagLocked creates the adapters for n. Must be called with mu held.
func (d *sceneDelegate) insertDagLocked(n host.Node) {
	if d.Params().Lights() && d.createLightLocked(n) != nil {
		return
	}
	if d.createCameraLocked(n) != nil {
		return
	}
	if !d.meshMode {
		return
	}
	s := d.createShapeLocked(n)
	if s == nil {
		return
	}
	if se := s.GetMaterial(); se != nil {
		if id := d.MaterialPath(se); !d.materials.has(id) {
			d.createMaterialLocked(id, se)
		}
	}
}

// insertable reports whether InsertDag considers n at all: transforms, construction
// history and externally owned nodes never get an adapter of their own.
func insertable(n host.Node) bool {
	if n == nil || !n.Valid() {
		return false
	}
	return n.Kind() != host.KindTransform && !n.IsIntermediate() && !n.IsExternal()
}

// primPath derives the identity of a host node from its master path.
func (d *sceneDelegate) primPath(n host.Node, sprim bool) common.Path {
	paths := n.Paths()
	if len(paths) == 0 {
		return common.EmptyPath
	}
	root := d.rprimRoot
	if sprim {
		root = d.sprimRoot
	}
	return common.PathFromHost(root, paths[0])
}

func (d *sceneDelegate) createLightLocked(n host.Node) adapter.LightAdapter {
	if n.Kind() != host.KindLight {
		return nil
	}
	return createAdapter(d, d.lights, kindLight, n, d.primPath(n, true), d.registry.LightCreator(n.TypeName()))
}

func (d *sceneDelegate) createCameraLocked(n host.Node) adapter.CameraAdapter {
	if n.Kind() != host.KindCamera {
		return nil
	}
	return createAdapter(d, d.cameras, kindCamera, n, d.primPath(n, true), d.registry.CameraCreator(n.TypeName()))
}

func (d *sceneDelegate) createShapeLocked(n host.Node) adapter.ShapeAdapter {
	if !n.Kind().IsShape() {
		return nil
	}
	return createAdapter(d, d.shapes, kindShape, n, d.primPath(n, false), d.registry.ShapeCreator(n.TypeName()))
}

// createMaterialLocked creates the material adapter for a shading engine. Must be called
// with mu held.
func (d *sceneDelegate) createMaterialLocked(id common.Path, se host.Node) adapter.MaterialAdapter {
	if se == nil || id.IsEmpty() {
		return nil
	}
	if existing, ok := d.materials.get(id); ok {
		return existing
	}
	creator := d.registry.MaterialCreator(se.TypeName())
	if creator == nil {
		return nil
	}
	m := creator(d, id, se)
	if m == nil || !m.IsSupported() {
		return nil
	}
	if d.XRayEnabled() {
		m.EnableXRayShadingMode(true)
	}
	if !d.activate(m, kindMaterial) {
		return nil
	}
	d.materials.insert(m)
	return m
}

// createAdapter is the shared creation path of light, camera and shape adapters:
// nodes without a registered constructor, externally owned nodes, identities that are
// already taken and unsupported configurations are skipped without error.
func createAdapter[T adapter.Adapter](d *sceneDelegate, table *adapterTable[T], kind string, n host.Node, id common.Path, creator func(adapter.Producer, common.Path, host.Node) T) T {
	var zero T
	if creator == nil || n.IsExternal() || id.IsEmpty() {
		return zero
	}
	if table.has(id) {
		return zero
	}
	a := creator(d, id, n)
	if any(a) == nil || !a.IsSupported() {
		return zero
	}
	if !d.activate(a, kind) {
		return zero
	}
	table.insert(a)
	return a
}

// activate populates a new adapter and registers its callbacks, undoing both on failure.
func (d *sceneDelegate) activate(a adapter.Adapter, kind string) bool {
	if err := a.Populate(); err != nil {
		d.logger.Warn("failed to populate adapter", "kind", kind, "id", a.ID(), "err", err)
		return false
	}
	if err := a.CreateCallbacks(); err != nil {
		d.logger.Warn("failed to register adapter callbacks", "kind", kind, "id", a.ID(), "err", err)
		a.RemoveCallbacks()
		_ = a.RemovePrim()
		return false
	}
	d.metrics.adaptersCreated.WithLabelValues(kind).Inc()
	return true
}

// destroy unregisters an adapter's callbacks and removes its prim.
func (d *sceneDelegate) destroy(a adapter.Adapter, kind string) {
	a.RemoveCallbacks()
	if err := a.RemovePrim(); err != nil {
		d.logger.Warn("failed to remove adapter prim", "kind", kind, "id", a.ID(), "err", err)
	}
	d.metrics.adaptersRemoved.WithLabelValues(kind).Inc()
}

func compactPaths(ids []common.Path) []common.Path {
	out := ids[:0]
	for _, id := range ids {
		if !id.IsEmpty() {
			out = append(out, id)
		}
	}
	return out
}
