package delegate

import (
	"strings"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/Carmen-Shannon/oxy-bridge/engine/config"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/go-gl/mathgl/mgl64"
)

func (d *sceneDelegate) RemoveAdapter(id common.Path) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.removeAdapterLocked(id) {
		d.logger.Warn("cannot remove adapter: adapter does not exist", "id", id)
	}
}

// removeAdapterLocked destroys the adapter id in the first table that holds it. Must be
// called with mu held.
func (d *sceneDelegate) removeAdapterLocked(id common.Path) bool {
	if a, ok := d.renderItems.remove(id); ok {
		d.destroy(a, kindRenderItem)
		return true
	}
	if a, ok := d.shapes.remove(id); ok {
		d.destroy(a, kindShape)
		return true
	}
	if a, ok := d.lights.remove(id); ok {
		d.destroy(a, kindLight)
		return true
	}
	if a, ok := d.cameras.remove(id); ok {
		d.destroy(a, kindCamera)
		return true
	}
	if a, ok := d.materials.remove(id); ok {
		d.destroy(a, kindMaterial)
		return true
	}
	return false
}

func (d *sceneDelegate) RecreateAdapter(id common.Path, n host.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recreateLocked(id, n)
}

// recreateLocked destroys adapter id and creates it again from n. A node that is no
// longer valid abandons the re-creation. Must be called with mu held.
func (d *sceneDelegate) recreateLocked(id common.Path, n host.Node) {
	valid := n != nil && n.Valid()

	if a, ok := d.lights.remove(id); ok {
		d.destroy(a, kindLight)
		if !valid {
			d.logger.Debug("light not re-created: node no longer valid", "id", id)
			return
		}
		d.createLightLocked(n)
		return
	}

	if a, ok := d.shapes.remove(id); ok {
		d.destroy(a, kindShape)
		if !valid || len(n.Paths()) == 0 {
			d.logger.Debug("shape not re-created: node no longer valid", "id", id)
			return
		}
		d.insertDagLocked(n)
		return
	}

	if a, ok := d.materials.remove(id); ok {
		d.destroy(a, kindMaterial)
		d.markMaterialBindingsDirtyLocked(id)
		if !valid {
			d.logger.Debug("material not re-created: node no longer valid", "id", id)
			return
		}
		d.createMaterialLocked(d.MaterialPath(n), n)
		return
	}

	d.logger.Warn("cannot recreate adapter: adapter does not exist", "id", id)
}

// markMaterialBindingsDirtyLocked dirties the material binding of every rprim bound to
// the material id. Must be called with mu held.
func (d *sceneDelegate) markMaterialBindingsDirtyLocked(id common.Path) {
	for _, s := range d.shapes.sorted() {
		if d.MaterialPath(s.GetMaterial()) == id {
			s.MarkDirty(render_index.DirtyMaterialID)
		}
	}
	for _, ri := range d.renderItems.sorted() {
		if ri.Material() == id {
			ri.MarkDirty(render_index.DirtyMaterialID)
		}
	}
}

// rebuildLocked applies a partial rebuild to adapter id. Must be called with mu held.
func (d *sceneDelegate) rebuildLocked(id common.Path, flags adapter.RebuildFlags) {
	if flags.Has(adapter.RebuildFlagVisibility) {
		d.updateLightVisibilityLocked(id)
	}
	a, ok := d.findAdapterLocked(id)
	if !ok {
		d.logger.Debug("rebuild skipped: adapter does not exist", "id", id)
		return
	}
	if flags.Has(adapter.RebuildFlagCallbacks) {
		a.RemoveCallbacks()
		if err := a.CreateCallbacks(); err != nil {
			d.logger.Warn("failed to re-register adapter callbacks", "id", id, "err", err)
		}
	}
	if flags.Has(adapter.RebuildFlagPrim) {
		if err := a.RemovePrim(); err != nil {
			d.logger.Warn("failed to remove prim for rebuild", "id", id, "err", err)
		}
		if err := a.Populate(); err != nil {
			d.logger.Warn("failed to re-populate prim", "id", id, "err", err)
		}
	}
}

// findAdapterLocked looks id up in the tables whose adapters can be rebuilt. Cameras
// are never rebuilt. Must be called with mu held.
func (d *sceneDelegate) findAdapterLocked(id common.Path) (adapter.Adapter, bool) {
	a := firstOf[adapter.Adapter](id, nil,
		from(d.shapes, asAdapter[adapter.ShapeAdapter]),
		from(d.renderItems.adapterTable, asAdapter[adapter.RenderItemAdapter]),
		from(d.lights, asAdapter[adapter.LightAdapter]),
		from(d.materials, asAdapter[adapter.MaterialAdapter]))
	return a, a != nil
}

func (d *sceneDelegate) UpdateLightVisibility(id common.Path) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateLightVisibilityLocked(id)
}

func (d *sceneDelegate) updateLightVisibilityLocked(id common.Path) {
	l, ok := d.lights.get(id)
	if !ok || !l.UpdateVisibility() {
		return
	}
	if err := l.RemovePrim(); err != nil {
		d.logger.Warn("failed to remove light for visibility change", "id", id, "err", err)
	}
	if err := l.Populate(); err != nil {
		d.logger.Warn("failed to re-populate light", "id", id, "err", err)
	}
	l.InvalidateTransform()
}

func (d *sceneDelegate) AddNewInstance(n host.Node) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	d.addNewInstanceLocked(n)
}

// addNewInstanceLocked schedules the work for a shape that gained an instance. Must be
// called with mu held for reading at least.
func (d *sceneDelegate) addNewInstanceLocked(n host.Node) {
	if n == nil || !n.Valid() {
		return
	}
	paths := n.Paths()
	if len(paths) == 0 {
		return
	}
	id := d.primPath(n, false)
	master, ok := d.shapes.get(id)
	if !ok {
		return
	}
	if len(paths) == 1 || !master.IsInstanced() {
		d.RecreateAdapterOnIdle(id, n)
		return
	}
	d.RebuildAdapterOnIdle(id, adapter.RebuildFlagCallbacks)
	master.MarkDirty(render_index.DirtyInstancer | render_index.DirtyInstanceIndex | render_index.DirtyPrimvar)
}

func (d *sceneDelegate) SetParams(p config.Params) {
	if err := p.Validate(); err != nil {
		d.logger.Error("rejected delegate params", "err", err)
		return
	}
	if p.UseMeshAdapter != d.meshMode {
		d.logger.Warn("use_mesh_adapter cannot change on a live delegate", "current", d.meshMode)
		p.UseMeshAdapter = d.meshMode
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stateMu.Lock()
	old := d.params
	d.params = p
	d.stateMu.Unlock()

	if old.DisplaySmoothMeshes != p.DisplaySmoothMeshes {
		for _, ri := range d.renderItems.sorted() {
			ri.MarkDirty(render_index.DirtyTopology)
		}
		for _, s := range d.shapes.sorted() {
			if s.HasType(render_index.PrimTypeMesh) {
				s.MarkDirty(render_index.DirtyTopology)
			}
		}
	}
	if old.MotionSampleStart != p.MotionSampleStart || old.MotionSampleEnd != p.MotionSampleEnd {
		for _, ri := range d.renderItems.sorted() {
			ri.InvalidateTransform()
			ri.MarkDirty(render_index.DirtyPoints | render_index.DirtyTransform)
		}
		for _, s := range d.shapes.sorted() {
			if s.HasType(render_index.PrimTypeMesh) {
				s.MarkDirty(render_index.DirtyPoints)
			}
			s.InvalidateTransform()
			s.MarkDirty(render_index.DirtyTransform)
		}
		for _, l := range d.lights.sorted() {
			l.InvalidateTransform()
			l.MarkDirty(render_index.DirtySprimTransform)
		}
		for _, c := range d.cameras.sorted() {
			c.InvalidateTransform()
			c.MarkDirty(render_index.DirtySprimTransform | render_index.DirtySprimParams)
		}
	}
	if old.TextureMemoryPerTexture != p.TextureMemoryPerTexture {
		for _, m := range d.materials.sorted() {
			m.MarkDirty(render_index.AllDirty)
		}
	}
	if old.MaximumShadowMapResolution != p.MaximumShadowMapResolution {
		for _, l := range d.lights.sorted() {
			l.MarkDirty(render_index.AllDirty)
		}
	}
	if d.ownsPool && old.SyncWorkers != p.SyncWorkers {
		if p.SyncWorkers > old.SyncWorkers {
			d.pool.IncreaseMaxWorkers(p.SyncWorkers - old.SyncWorkers)
		} else {
			d.pool.DecreaseMaxWorkers(old.SyncWorkers - p.SyncWorkers)
		}
	}
}

func (d *sceneDelegate) SetCameraViewport(hostPath string, viewport mgl64.Vec4) common.Path {
	id := common.PathFromHost(d.sprimRoot, hostPath)
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.cameras.get(id)
	if !ok {
		return common.EmptyPath
	}
	c.SetViewport(viewport)
	return id
}

func (d *sceneDelegate) AddPickHitToSelection(hit common.Path) (string, bool) {
	if !hit.HasPrefix(d.rprimRoot) {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var source host.Node
	if ri, ok := d.renderItems.get(hit); ok {
		source = ri.Node()
	} else if s, ok := d.shapes.get(hit.PrimPath()); ok {
		source = s.Node()
	}
	if source == nil || !source.Valid() {
		return "", true
	}
	paths := source.Paths()
	if len(paths) == 0 {
		return "", true
	}
	path := paths[0]
	if source.Kind() != host.KindTransform {
		if i := strings.LastIndexByte(path, '|'); i > 0 {
			path = path[:i]
		}
	}
	return path, true
}
