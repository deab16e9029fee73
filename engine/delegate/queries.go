package delegate

import (
	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/go-gl/mathgl/mgl64"
)

// OptionParallelRprimSync is the renderer option asking whether rprims may be synced
// from several goroutines at once.
const OptionParallelRprimSync common.Token = "parallelRprimSync"

// Queries is the pull surface the renderer reads prim values through after the sync
// pass of a frame.
//
// Every query probes the adapter tables in a fixed order (shape, render item, camera,
// light, material, trimmed to the tables that can answer it) and the first table that
// holds the identity answers. An identity no table holds yields the query's zero value;
// queries never fail.
type Queries interface {
	// Get answers a keyed value query. On a property path in mesh-adapter mode the key
	// is answered by the instancer of the shape owning the property.
	//
	// Parameters:
	//   - id: the prim or property identity
	//   - key: the value key
	//
	// Returns:
	//   - any: the value, or nil
	Get(id common.Path, key common.Token) any

	// GetTransform returns the world transform of a prim.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - mgl64.Mat4: the transform, identity if unknown
	GetTransform(id common.Path) mgl64.Mat4

	// SampleTransform samples the world transform of a prim over the shutter interval.
	//
	// Parameters:
	//   - id: the prim identity
	//   - maxSamples: the maximum number of samples
	//
	// Returns:
	//   - []float32: the sample times
	//   - []mgl64.Mat4: the transforms
	SampleTransform(id common.Path, maxSamples int) ([]float32, []mgl64.Mat4)

	// SamplePrimvar samples a primvar over the shutter interval. Values do not vary
	// within a frame, so at most one sample is returned.
	//
	// Parameters:
	//   - id: the prim or property identity
	//   - key: the primvar name
	//   - maxSamples: the maximum number of samples
	//
	// Returns:
	//   - []float32: the sample times
	//   - []any: the values
	SamplePrimvar(id common.Path, key common.Token, maxSamples int) ([]float32, []any)

	// GetExtent returns the local bounds of a shape.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.Range3d: the bounds, empty if unknown
	GetExtent(id common.Path) common.Range3d

	// GetMeshTopology returns the face layout of a mesh.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.MeshTopology: the topology
	GetMeshTopology(id common.Path) common.MeshTopology

	// GetCurvesTopology returns the layout of a basis-curves prim.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.CurvesTopology: the topology
	GetCurvesTopology(id common.Path) common.CurvesTopology

	// GetSubdivTags returns the subdivision annotations of a mesh shape.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.SubdivTags: the tags
	GetSubdivTags(id common.Path) common.SubdivTags

	// GetVisible reports whether a prim is drawn.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - bool: true if visible, false if unknown
	GetVisible(id common.Path) bool

	// GetDoubleSided reports whether both faces of a prim are lit.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - bool: true if double sided
	GetDoubleSided(id common.Path) bool

	// GetCullStyle returns the face culling policy of a prim.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.CullStyle: the cull style
	GetCullStyle(id common.Path) common.CullStyle

	// GetDisplayStyle returns the refinement and shading hints of a prim.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.DisplayStyle: the display style
	GetDisplayStyle(id common.Path) common.DisplayStyle

	// GetShadingStyle returns the shading style of a render item.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.Token: the shading style, empty if unknown
	GetShadingStyle(id common.Path) common.Token

	// GetRenderTag returns the render tag of a prim.
	//
	// Parameters:
	//   - id: the prim or property identity
	//
	// Returns:
	//   - common.Token: the render tag, empty if unknown
	GetRenderTag(id common.Path) common.Token

	// GetPrimvarDescriptors lists the primvars of one interpolation. On a property path
	// only the instance primvars of the owning shape's instancer are listed.
	//
	// Parameters:
	//   - id: the prim or property identity
	//   - interp: the interpolation
	//
	// Returns:
	//   - []common.PrimvarDescriptor: the descriptors
	GetPrimvarDescriptors(id common.Path, interp common.Interpolation) []common.PrimvarDescriptor

	// GetMaterialID returns the material a prim is bound to. The default material wins
	// while the viewport forces it; prims without a resolvable binding get the fallback
	// material. In mesh-adapter mode a missing material is created on first use.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.Path: the material identity; the empty path selects the fallback material
	GetMaterialID(id common.Path) common.Path

	// GetMaterialResource returns the material network of a material. The default and
	// fallback materials answer with their built-in networks; a material whose
	// network comes out empty answers with the fallback network.
	//
	// Parameters:
	//   - id: the material identity
	//
	// Returns:
	//   - *adapter.MaterialNetwork: the network, never nil
	GetMaterialResource(id common.Path) *adapter.MaterialNetwork

	// GetLightParamValue answers a light parameter query.
	//
	// Parameters:
	//   - id: the light identity
	//   - param: the parameter key
	//
	// Returns:
	//   - any: the value, or nil
	GetLightParamValue(id common.Path, param common.Token) any

	// GetCameraParamValue answers a camera parameter query.
	//
	// Parameters:
	//   - id: the camera identity
	//   - param: the parameter key
	//
	// Returns:
	//   - any: the value, or nil
	GetCameraParamValue(id common.Path, param common.Token) any

	// GetInstancerID returns the instancer drawing a shape.
	//
	// Parameters:
	//   - id: the prim identity
	//
	// Returns:
	//   - common.Path: the instancer identity, empty for non-instanced prims
	GetInstancerID(id common.Path) common.Path

	// GetInstancerPrototypes returns the prototypes an instancer draws.
	//
	// Parameters:
	//   - instancerID: the instancer identity
	//
	// Returns:
	//   - []common.Path: the prototype identities
	GetInstancerPrototypes(instancerID common.Path) []common.Path

	// GetInstanceIndices returns the indices an instancer draws a prototype at.
	//
	// Parameters:
	//   - instancerID: the instancer identity
	//   - prototypeID: the prototype identity
	//
	// Returns:
	//   - []int32: the instance indices
	GetInstanceIndices(instancerID, prototypeID common.Path) []int32

	// GetInstancerTransform returns the transform applied on top of every instance.
	// Instance transforms are absolute, so this is always identity.
	//
	// Parameters:
	//   - instancerID: the instancer identity
	//
	// Returns:
	//   - mgl64.Mat4: the identity transform
	GetInstancerTransform(instancerID common.Path) mgl64.Mat4

	// GetScenePrimPath maps a renderer prim and instance back to the prim path shown
	// to users.
	//
	// Parameters:
	//   - id: the prim identity
	//   - instanceIndex: the instance index
	//
	// Returns:
	//   - common.Path: the scene prim path
	GetScenePrimPath(id common.Path, instanceIndex int) common.Path

	// IsEnabled answers a renderer capability query. Parallel rprim sync is always
	// disabled because the host scene may only be read from the owner goroutine.
	//
	// Parameters:
	//   - option: the option key
	//
	// Returns:
	//   - bool: whether the option is enabled
	IsEnabled(option common.Token) bool
}

func (d *sceneDelegate) Get(id common.Path, key common.Token) any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id.IsPropertyPath() {
		if !d.meshMode {
			return nil
		}
		return firstOf[any](id.PrimPath(), nil,
			from(d.shapes, func(s adapter.ShapeAdapter) any { return s.GetInstancePrimvar(key) }))
	}
	get := func(a adapter.Adapter) any { return a.Get(key) }
	return firstOf[any](id, nil,
		from(d.shapes, func(s adapter.ShapeAdapter) any { return get(s) }),
		from(d.renderItems.adapterTable, func(r adapter.RenderItemAdapter) any { return get(r) }),
		from(d.cameras, func(c adapter.CameraAdapter) any { return get(c) }),
		from(d.lights, func(l adapter.LightAdapter) any { return get(l) }),
		from(d.materials, func(m adapter.MaterialAdapter) any { return get(m) }))
}

func (d *sceneDelegate) GetTransform(id common.Path) mgl64.Mat4 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, mgl64.Ident4(),
		from(d.shapes, adapter.ShapeAdapter.GetTransform),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetTransform),
		from(d.cameras, adapter.CameraAdapter.GetTransform),
		from(d.lights, adapter.LightAdapter.GetTransform))
}

// transformSamples is the result of a transform sampling query.
type transformSamples struct {
	times []float32
	mats  []mgl64.Mat4
}

func (d *sceneDelegate) SampleTransform(id common.Path, maxSamples int) ([]float32, []mgl64.Mat4) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sample := func(t adapter.Transformer) transformSamples {
		times, mats := t.SampleTransform(maxSamples)
		return transformSamples{times: times, mats: mats}
	}
	s := firstOf(id, transformSamples{},
		from(d.shapes, func(a adapter.ShapeAdapter) transformSamples { return sample(a) }),
		from(d.renderItems.adapterTable, func(a adapter.RenderItemAdapter) transformSamples { return sample(a) }),
		from(d.cameras, func(a adapter.CameraAdapter) transformSamples { return sample(a) }),
		from(d.lights, func(a adapter.LightAdapter) transformSamples { return sample(a) }))
	return s.times, s.mats
}

func (d *sceneDelegate) SamplePrimvar(id common.Path, key common.Token, maxSamples int) ([]float32, []any) {
	if maxSamples <= 0 {
		return nil, nil
	}
	v := d.Get(id, key)
	if v == nil {
		return nil, nil
	}
	return []float32{0}, []any{v}
}

func (d *sceneDelegate) GetExtent(id common.Path) common.Range3d {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, common.EmptyRange(),
		from(d.shapes, adapter.ShapeAdapter.GetExtent),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetExtent))
}

func (d *sceneDelegate) GetMeshTopology(id common.Path) common.MeshTopology {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, common.MeshTopology{},
		from(d.shapes, adapter.ShapeAdapter.GetMeshTopology),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetMeshTopology))
}

func (d *sceneDelegate) GetCurvesTopology(id common.Path) common.CurvesTopology {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, common.CurvesTopology{},
		from(d.shapes, adapter.ShapeAdapter.GetCurvesTopology),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetCurvesTopology))
}

func (d *sceneDelegate) GetSubdivTags(id common.Path) common.SubdivTags {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, common.SubdivTags{}, from(d.shapes, adapter.ShapeAdapter.GetSubdivTags))
}

func (d *sceneDelegate) GetVisible(id common.Path) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, false,
		from(d.shapes, adapter.ShapeAdapter.GetVisible),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetVisible),
		from(d.lights, adapter.LightAdapter.GetVisible))
}

func (d *sceneDelegate) GetDoubleSided(id common.Path) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, false,
		from(d.shapes, adapter.ShapeAdapter.GetDoubleSided),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetDoubleSided))
}

func (d *sceneDelegate) GetCullStyle(id common.Path) common.CullStyle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, common.CullStyleDontCare,
		from(d.shapes, adapter.ShapeAdapter.GetCullStyle),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetCullStyle))
}

func (d *sceneDelegate) GetDisplayStyle(id common.Path) common.DisplayStyle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, common.DisplayStyle{},
		from(d.shapes, adapter.ShapeAdapter.GetDisplayStyle),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetDisplayStyle))
}

func (d *sceneDelegate) GetShadingStyle(id common.Path) common.Token {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, common.Token(""), from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetShadingStyle))
}

func (d *sceneDelegate) GetRenderTag(id common.Path) common.Token {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id.PrimPath(), common.Token(""),
		from(d.shapes, adapter.ShapeAdapter.GetRenderTag),
		from(d.renderItems.adapterTable, adapter.RenderItemAdapter.GetRenderTag))
}

func (d *sceneDelegate) GetPrimvarDescriptors(id common.Path, interp common.Interpolation) []common.PrimvarDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id.IsPropertyPath() {
		if interp != common.InterpolationInstance || !d.meshMode {
			return nil
		}
		return firstOf[[]common.PrimvarDescriptor](id.PrimPath(), nil,
			from(d.shapes, func(s adapter.ShapeAdapter) []common.PrimvarDescriptor {
				return s.GetPrimvarDescriptors(interp)
			}))
	}
	descriptors := func(g adapter.Geometry) []common.PrimvarDescriptor { return g.GetPrimvarDescriptors(interp) }
	return firstOf[[]common.PrimvarDescriptor](id, nil,
		from(d.shapes, func(s adapter.ShapeAdapter) []common.PrimvarDescriptor { return descriptors(s) }),
		from(d.renderItems.adapterTable, func(r adapter.RenderItemAdapter) []common.PrimvarDescriptor { return descriptors(r) }))
}

func (d *sceneDelegate) GetLightParamValue(id common.Path, param common.Token) any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf[any](id, nil, from(d.lights, func(l adapter.LightAdapter) any { return l.GetLightParamValue(param) }))
}

func (d *sceneDelegate) GetCameraParamValue(id common.Path, param common.Token) any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf[any](id, nil, from(d.cameras, func(c adapter.CameraAdapter) any { return c.GetCameraParamValue(param) }))
}

func (d *sceneDelegate) GetInstancerID(id common.Path) common.Path {
	if id.IsPropertyPath() {
		return common.EmptyPath
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf(id, common.EmptyPath, from(d.shapes, adapter.ShapeAdapter.InstancerID))
}

func (d *sceneDelegate) GetInstancerPrototypes(instancerID common.Path) []common.Path {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf[[]common.Path](instancerID.PrimPath(), nil, from(d.shapes, adapter.ShapeAdapter.GetInstancerPrototypes))
}

func (d *sceneDelegate) GetInstanceIndices(instancerID, prototypeID common.Path) []int32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstOf[[]int32](instancerID.PrimPath(), nil,
		from(d.shapes, func(s adapter.ShapeAdapter) []int32 { return s.GetInstanceIndices(prototypeID) }))
}

func (d *sceneDelegate) GetInstancerTransform(common.Path) mgl64.Mat4 {
	return mgl64.Ident4()
}

func (d *sceneDelegate) GetScenePrimPath(id common.Path, _ int) common.Path {
	return id
}

func (d *sceneDelegate) IsEnabled(option common.Token) bool {
	if option == OptionParallelRprimSync {
		return false
	}
	d.logger.Warn("unsupported renderer option", "option", option)
	return false
}
