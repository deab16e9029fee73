package delegate

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"go.opentelemetry.io/otel/attribute"
)

// Sync step names, in the order PreFrame runs them.
const (
	stepPlayback     = "playback"
	stepDisplayStyle = "display_style"
	stepMaterialTags = "material_tags"
	stepRemovedNodes = "removed_nodes"
	stepLightsToAdd  = "lights_to_add"
	stepAddedNodes   = "added_nodes"
	stepRecreate     = "recreate"
	stepRebuild      = "rebuild"
	stepDirty        = "dirty"
	stepActiveLights = "active_lights"
)

func (d *sceneDelegate) PreFrame(ctx context.Context, dc host.DrawContext) {
	_, span := d.metrics.tracer.Start(ctx, "delegate.PreFrame")
	defer span.End()
	start := time.Now()
	defer func() { d.metrics.syncDuration.Observe(time.Since(start).Seconds()) }()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	tags, removals, lights, nodes, recreates, rebuilds := d.queue.sizes()
	span.SetAttributes(
		attribute.Int("pending.tags", tags),
		attribute.Int("pending.removals", removals),
		attribute.Int("pending.lights", lights),
		attribute.Int("pending.nodes", nodes),
		attribute.Int("pending.recreates", recreates),
		attribute.Int("pending.rebuilds", rebuilds),
	)

	d.runStep(stepPlayback, func() { d.syncPlayback(dc.PlaybackRunning) })
	d.runStep(stepDisplayStyle, func() { d.syncDisplayStyle(dc.DisplayStyle) })
	d.runStep(stepMaterialTags, d.syncMaterialTags)
	d.runStep(stepRemovedNodes, d.syncRemovedNodes)
	d.runStep(stepLightsToAdd, d.syncLightsToAdd)
	d.runStep(stepAddedNodes, d.syncAddedNodes)
	d.runStep(stepRecreate, d.syncRecreates)
	d.runStep(stepRebuild, d.syncRebuilds)
	d.runStep(stepDirty, d.syncDirty)

	if !d.Params().LightSync() {
		return
	}
	d.runStep(stepActiveLights, func() { d.syncActiveLights(dc.Lights) })
}

// runStep runs one sync step. A step that panics is abandoned and the pass goes on
// with the next one.
func (d *sceneDelegate) runStep(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.stepFailures.WithLabelValues(name).Inc()
			d.logger.Error("sync step abandoned", "step", name, "panic", r)
		}
	}()
	fn()
}

// guard runs the work of one entity inside a step so a failing entity does not take
// the rest of the step with it.
func (d *sceneDelegate) guard(step string, id any, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.stepFailures.WithLabelValues(step).Inc()
			d.logger.Error("sync entity skipped", "step", step, "id", id, "panic", r)
		}
	}()
	fn()
}

func (d *sceneDelegate) syncPlayback(running bool) {
	if !d.setPlayback(running) {
		return
	}
	for _, ri := range d.renderItems.sorted() {
		d.guard(stepPlayback, ri.ID(), ri.SetPlaybackChanged)
	}
}

func (d *sceneDelegate) syncDisplayStyle(style host.DisplayStyle) {
	defaultChanged, xrayChanged := d.setDisplayOverrides(style.Has(host.DisplayDefaultMaterial), style.Has(host.DisplayXRay))
	if defaultChanged {
		for _, s := range d.shapes.sorted() {
			d.guard(stepDisplayStyle, s.ID(), func() { s.MarkDirty(render_index.DirtyMaterialID) })
		}
		for _, ri := range d.renderItems.sorted() {
			d.guard(stepDisplayStyle, ri.ID(), func() { ri.MarkDirty(render_index.DirtyMaterialID) })
		}
	}
	if xrayChanged {
		xray := style.Has(host.DisplayXRay)
		for _, m := range d.materials.sorted() {
			d.guard(stepDisplayStyle, m.ID(), func() { m.EnableXRayShadingMode(xray) })
		}
	}
}

// syncMaterialTags re-classifies every material whose tag may have changed. Rprims
// bound to a material whose tag did change move to another draw batch, which takes a
// full prim rebuild; the rebuilds run in the rebuild step of the same pass.
func (d *sceneDelegate) syncMaterialTags() {
	for _, id := range d.queue.takeMaterialTags() {
		d.guard(stepMaterialTags, id, func() {
			m, ok := d.materials.get(id)
			if !ok {
				d.logger.Debug("material tag change for unknown material", "id", id)
				return
			}
			if !m.UpdateMaterialTag() {
				return
			}
			for _, s := range d.shapes.sorted() {
				if d.MaterialPath(s.GetMaterial()) == id {
					d.queue.scheduleRebuild(s.ID(), adapter.RebuildFlagPrim)
				}
			}
			for _, ri := range d.renderItems.sorted() {
				if ri.Material() == id {
					d.queue.scheduleRebuild(ri.ID(), adapter.RebuildFlagPrim)
				}
			}
		})
	}
}

func (d *sceneDelegate) syncRemovedNodes() {
	for _, r := range d.queue.takeRemovals() {
		for _, id := range r.ids {
			d.guard(stepRemovedNodes, id, func() { d.removeAdapterLocked(id) })
		}
	}
}

func (d *sceneDelegate) syncLightsToAdd() {
	lightsOn := d.Params().Lights()
	for _, n := range d.queue.takeLights() {
		d.guard(stepLightsToAdd, n.Handle(), func() {
			if !n.Valid() {
				d.logger.Debug("queued light no longer valid", "handle", n.Handle())
				return
			}
			if lightsOn {
				d.createLightLocked(n)
			}
		})
	}
}

// syncAddedNodes inserts the nodes created since the last pass. A new transform is
// only scanned for shapes it made instanced: the shapes themselves arrive as nodes of
// their own.
func (d *sceneDelegate) syncAddedNodes() {
	for _, n := range d.queue.takeNodes() {
		d.guard(stepAddedNodes, n.Handle(), func() {
			if !n.Valid() {
				d.logger.Debug("queued node no longer valid", "handle", n.Handle())
				return
			}
			if n.Kind() != host.KindTransform {
				if insertable(n) {
					d.insertDagLocked(n)
				}
				return
			}
			for _, c := range n.Children() {
				if isSecondaryInstance(n, c) {
					d.addNewInstanceLocked(c)
				}
			}
		})
	}
}

// isSecondaryInstance reports whether child is an instanced shape reached through
// parent by a path other than its master path.
func isSecondaryInstance(parent, child host.Node) bool {
	if child == nil || !child.Valid() || !child.Kind().IsShape() {
		return false
	}
	paths := child.Paths()
	if len(paths) < 2 {
		return false
	}
	parentPaths := parent.Paths()
	if len(parentPaths) == 0 {
		return false
	}
	return !strings.HasPrefix(paths[0], parentPaths[0]+"|")
}

func (d *sceneDelegate) syncRecreates() {
	for _, e := range d.queue.takeRecreates() {
		d.guard(stepRecreate, e.id, func() { d.recreateLocked(e.id, e.node) })
	}
}

func (d *sceneDelegate) syncRebuilds() {
	for _, e := range d.queue.takeRebuilds() {
		d.guard(stepRebuild, e.id, func() { d.rebuildLocked(e.id, e.flags) })
	}
}

// syncDirty forwards the dirty bits host callbacks queued since the last pass. Bits for
// adapters removed in the meantime are dropped.
func (d *sceneDelegate) syncDirty() {
	for _, e := range d.queue.takeDirty() {
		d.guard(stepDirty, e.id, func() {
			a, ok := d.findAdapterLocked(e.id)
			if !ok {
				c, isCamera := d.cameras.get(e.id)
				if !isCamera {
					return
				}
				a = c
			}
			a.MarkDirty(e.bits)
		})
	}
}

// syncActiveLights reconciles the lights the host draws this frame with the light
// adapters: adapters of active lights are lit, every other adapter is turned off, and
// active lights without an adapter get one.
func (d *sceneDelegate) syncActiveLights(params []host.LightParam) {
	active := make(map[string]host.LightParam, len(params))
	for _, lp := range params {
		if lp.Node == nil || !lp.Node.Valid() || lp.Node.IsExternal() || lp.Path == "" {
			continue
		}
		active[lp.Path] = lp
	}

	for _, l := range d.lights.sorted() {
		d.guard(stepActiveLights, l.ID(), func() {
			lp, ok := activeEntry(active, l.Node())
			if !ok {
				l.SetLightingOn(false)
				return
			}
			delete(active, lp.Path)
			if lp.ShadowOn && lp.ShadowViewProj != nil {
				l.SetShadowProjectionMatrix(*lp.ShadowViewProj)
			}
			l.SetLightingOn(true)
		})
	}

	if !d.Params().Lights() {
		return
	}
	for _, path := range slices.Sorted(maps.Keys(active)) {
		lp := active[path]
		d.guard(stepActiveLights, path, func() {
			if l := d.createLightLocked(lp.Node); l != nil && lp.ShadowOn && lp.ShadowViewProj != nil {
				l.SetShadowProjectionMatrix(*lp.ShadowViewProj)
			}
		})
	}
}

// activeEntry finds the active light entry of any instance of n.
func activeEntry(active map[string]host.LightParam, n host.Node) (host.LightParam, bool) {
	if n == nil || !n.Valid() {
		return host.LightParam{}, false
	}
	for _, p := range n.Paths() {
		if lp, ok := active[p]; ok {
			return lp, true
		}
	}
	return host.LightParam{}, false
}
