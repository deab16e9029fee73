package delegate

import (
	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
)

func (d *sceneDelegate) GetMaterialID(id common.Path) common.Path {
	if d.usingDefaultMaterial() {
		return d.defaultMaterialID
	}

	// Lazy creation below mutates the material table.
	d.mu.Lock()
	defer d.mu.Unlock()

	if ri, ok := d.renderItems.get(id); ok {
		if ri.Item().IsLinePrimitive() {
			return adapter.FallbackMaterialID
		}
		m := ri.Material()
		if m.IsEmpty() {
			return adapter.FallbackMaterialID
		}
		if d.materials.has(m) {
			return m
		}
	}

	if !d.meshMode {
		return adapter.FallbackMaterialID
	}
	s, ok := d.shapes.get(id)
	if !ok {
		return adapter.FallbackMaterialID
	}
	se := s.GetMaterial()
	if se == nil {
		return adapter.FallbackMaterialID
	}
	materialID := d.MaterialPath(se)
	if d.materials.has(materialID) {
		return materialID
	}
	if d.createMaterialLocked(materialID, se) == nil {
		return adapter.FallbackMaterialID
	}
	return materialID
}

func (d *sceneDelegate) GetMaterialResource(id common.Path) *adapter.MaterialNetwork {
	switch id {
	case d.defaultMaterialID:
		d.defaultMaterialOnce.Do(func() {
			d.defaultMaterial = adapter.NewDefaultMaterialNetwork(d.defaultMaterialID)
		})
		return d.defaultMaterial
	case adapter.FallbackMaterialID:
		return adapter.FallbackMaterialNetwork()
	}

	d.mu.RLock()
	m, ok := d.materials.get(id)
	d.mu.RUnlock()
	if !ok {
		return adapter.FallbackMaterialNetwork()
	}
	if res := m.GetMaterialResource(); res != nil && !res.IsEmpty() {
		return res
	}
	return adapter.FallbackMaterialNetwork()
}
