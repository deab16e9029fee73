package delegate

import (
	"context"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"go.opentelemetry.io/otel/attribute"
)

// stepDelta labels failures of delta reconciliation in the step failure metric.
const stepDelta = "viewport_delta"

// pendingItem is one changed render item that survived filtering, with the payload
// prepared off the owner goroutine.
type pendingItem struct {
	id     common.Path
	delta  host.ItemDelta
	extent common.Range3d
}

func (d *sceneDelegate) HandleCompleteViewportScene(ctx context.Context, scene *host.ViewportScene) {
	if scene == nil {
		return
	}
	_, span := d.metrics.tracer.Start(ctx, "delegate.HandleCompleteViewportScene")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.metrics.deltaRemovals.Observe(float64(len(scene.Removals)))
	for _, fastID := range scene.Removals {
		if fastID == host.InvalidFastID {
			continue
		}
		if ri, ok := d.renderItems.removeFast(fastID); ok {
			d.guard(stepDelta, ri.ID(), func() { d.destroy(ri, kindRenderItem) })
		}
	}

	items := d.filterDelta(scene.Items)
	d.metrics.deltaItems.Observe(float64(len(items)))
	span.SetAttributes(attribute.Int("removals", len(scene.Removals)), attribute.Int("items", len(items)))
	if len(items) == 0 {
		return
	}

	d.prepareExtents(items)
	for i := range items {
		d.guard(stepDelta, items[i].id, func() { d.applyItemLocked(&items[i]) })
	}
}

// filterDelta drops unchanged items, items owned by an external bridge, items without
// an identity and, in mesh-adapter mode, the shaded items the shape adapters already
// draw.
func (d *sceneDelegate) filterDelta(deltas []host.ItemDelta) []pendingItem {
	out := make([]pendingItem, 0, len(deltas))
	for _, delta := range deltas {
		item := delta.Item
		if delta.Flags == 0 || item == nil || item.External {
			continue
		}
		if d.meshMode && item.Name == host.StandardShadedItemName {
			continue
		}
		id := adapter.RenderItemPath(d.rprimRoot, item)
		if id.IsEmpty() {
			continue
		}
		out = append(out, pendingItem{id: id, delta: delta})
	}
	return out
}

// prepareExtents computes the bounds of every item whose geometry changed on the
// worker pool. Nothing here touches the adapter tables.
func (d *sceneDelegate) prepareExtents(items []pendingItem) {
	var wg sync.WaitGroup
	for i := range items {
		p := &items[i]
		if !p.delta.Flags.Has(host.ChangedGeometry) {
			if ri, ok := d.renderItems.getFast(p.delta.Item.FastID); ok && ri.ID() == p.id {
				continue
			}
		}
		wg.Add(1)
		d.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						d.logger.Error("render item extent failed", "id", p.id, "panic", r)
						p.extent = common.EmptyRange()
					}
				}()
				p.extent = common.RangeFromPoints(p.delta.Item.Points)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// applyItemLocked creates or updates the adapter of one changed render item. Must be
// called with mu held.
func (d *sceneDelegate) applyItemLocked(p *pendingItem) {
	item := p.delta.Item
	flags := p.delta.Flags

	ri, ok := d.renderItems.getFast(item.FastID)
	if ok && ri.ID() != p.id {
		// The host reused a fast ID for a different item.
		d.renderItems.remove(ri.ID())
		d.destroy(ri, kindRenderItem)
		ok = false
	}
	if !ok {
		ri = d.createRenderItemLocked(p.id, item)
		if ri == nil {
			return
		}
		flags = host.ChangedAll
	}

	if flags.Has(host.ChangedEffect) {
		ri.SetMaterial(d.resolveItemMaterialLocked(item))
	}
	ri.UpdateFromDelta(item, flags, d.host.WireframeColor(item.Source), d.host.DisplayStatus(item.Source), p.extent)
	if flags.Has(host.ChangedMatrix) {
		ri.UpdateTransform(item.Matrix)
	}
}

// createRenderItemLocked creates the adapter of a new render item. An adapter left at
// the same identity under an older fast ID is replaced. Must be called with mu held.
func (d *sceneDelegate) createRenderItemLocked(id common.Path, item *host.RenderItem) adapter.RenderItemAdapter {
	if old, ok := d.renderItems.remove(id); ok {
		d.destroy(old, kindRenderItem)
	}
	ri := adapter.NewRenderItemAdapter(d, id, item)
	if !ri.IsSupported() {
		d.logger.Debug("render item not supported", "id", id, "primitive", item.Primitive)
		return nil
	}
	if !d.activate(ri, kindRenderItem) {
		return nil
	}
	d.renderItems.insert(ri)
	return ri
}

// resolveItemMaterialLocked returns the material a render item shades with: the
// fallback for line items and items without a shading engine, otherwise the material
// of the item's shading engine, created on first use. Must be called with mu held.
func (d *sceneDelegate) resolveItemMaterialLocked(item *host.RenderItem) common.Path {
	if item.IsLinePrimitive() || item.ShadingEngine == nil {
		return adapter.FallbackMaterialID
	}
	id := d.MaterialPath(item.ShadingEngine)
	if d.materials.has(id) {
		return id
	}
	if d.createMaterialLocked(id, item.ShadingEngine) == nil {
		return adapter.FallbackMaterialID
	}
	return id
}
