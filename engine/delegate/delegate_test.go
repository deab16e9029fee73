package delegate

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/Carmen-Shannon/oxy-bridge/engine/config"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	host  host.MemoryHost
	index render_index.MemoryIndex
	d     *sceneDelegate
}

func newFixture(t *testing.T, meshMode bool, options ...SceneDelegateBuilderOption) *fixture {
	t.Helper()
	h := host.NewMemoryHost()
	idx := render_index.NewMemoryIndex()
	p := config.DefaultParams()
	p.UseMeshAdapter = meshMode
	p.SyncWorkers = 2
	opts := append([]SceneDelegateBuilderOption{
		WithParams(p),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRegisterer(prometheus.NewRegistry()),
		WithDelegateID(common.AbsoluteRoot.AppendChild("bridge")),
	}, options...)
	d := NewSceneDelegate(h, idx, opts...).(*sceneDelegate)
	t.Cleanup(func() { _ = d.Close() })
	return &fixture{host: h, index: idx, d: d}
}

func (f *fixture) populate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.d.Populate(context.Background()))
}

func (f *fixture) frame(dc host.DrawContext) {
	f.d.PreFrame(context.Background(), dc)
}

// mesh creates a transform with a mesh shape below it.
func (f *fixture) mesh(parent host.Node, name string) (host.Node, host.Node) {
	xform := f.host.CreateNode(parent, name, "transform", host.KindTransform)
	shape := f.host.CreateNode(xform, name+"Shape", "mesh", host.KindMesh)
	f.host.SetAttribute(shape, host.AttrPoints, []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	f.host.SetAttribute(shape, host.AttrFaceVertexCounts, []int32{3})
	f.host.SetAttribute(shape, host.AttrFaceVertexIndices, []int32{0, 1, 2})
	return xform, shape
}

func (f *fixture) shapeID(shape host.Node) common.Path {
	return common.PathFromHost(f.d.RprimRoot(), shape.Paths()[0])
}

func (f *fixture) sprimID(n host.Node) common.Path {
	return common.PathFromHost(f.d.SprimRoot(), n.Paths()[0])
}

func triangleItem(fastID int, source host.Node) *host.RenderItem {
	return &host.RenderItem{
		FastID:     fastID,
		Name:       host.StandardShadedItemName,
		Primitive:  wgpu.PrimitiveTopologyTriangleList,
		Source:     source,
		SourcePath: source.Paths()[0],
		Points:     []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Indices:    []int32{0, 1, 2},
		Matrix:     mgl64.Ident4(),
		Visible:    true,
	}
}

func TestNewSceneDelegateRoots(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, common.Path("/bridge"), f.d.ID())
	assert.Equal(t, common.Path("/bridge/rprims"), f.d.RprimRoot())
	assert.Equal(t, common.Path("/bridge/sprims"), f.d.SprimRoot())
	assert.True(t, f.d.DefaultMaterialID().HasPrefix(f.d.ID()))
	assert.Panics(t, func() { NewSceneDelegate(nil, f.index) })
}

func TestNewSceneDelegateRejectsInvalidParams(t *testing.T) {
	bad := config.DefaultParams()
	bad.MotionSampleStart = 1
	bad.MotionSampleEnd = 0
	f := newFixture(t, false, WithParams(bad))

	assert.Equal(t, float32(0), f.d.Params().MotionSampleStart)
	assert.Equal(t, float32(0), f.d.Params().MotionSampleEnd)
}

func TestQueriesReturnDefaultsForUnknownIdentity(t *testing.T) {
	f := newFixture(t, true)
	f.populate(t)
	unknown := common.Path("/nowhere/prim")

	assert.Nil(t, f.d.Get(unknown, common.TokenPoints))
	assert.Equal(t, mgl64.Ident4(), f.d.GetTransform(unknown))
	assert.Equal(t, mgl64.Ident4(), f.d.GetInstancerTransform(unknown))
	assert.True(t, f.d.GetExtent(unknown).IsEmpty())
	assert.True(t, f.d.GetMeshTopology(unknown).IsEmpty())
	assert.True(t, f.d.GetCurvesTopology(unknown).IsEmpty())
	assert.False(t, f.d.GetVisible(unknown))
	assert.False(t, f.d.GetDoubleSided(unknown))
	assert.Equal(t, common.CullStyleDontCare, f.d.GetCullStyle(unknown))
	assert.Empty(t, f.d.GetRenderTag(unknown))
	assert.Empty(t, f.d.GetPrimvarDescriptors(unknown, common.InterpolationVertex))
	assert.Nil(t, f.d.GetLightParamValue(unknown, adapter.ParamIntensity))
	assert.Nil(t, f.d.GetCameraParamValue(unknown, adapter.CameraParamFov))
	assert.Equal(t, common.EmptyPath, f.d.GetInstancerID(unknown))
	assert.Empty(t, f.d.GetInstanceIndices(unknown, unknown))
	assert.Equal(t, adapter.FallbackMaterialID, f.d.GetMaterialID(unknown))
	assert.Equal(t, unknown, f.d.GetScenePrimPath(unknown, 3))

	times, mats := f.d.SampleTransform(unknown, 4)
	assert.Empty(t, times)
	assert.Empty(t, mats)

	res := f.d.GetMaterialResource(unknown)
	require.NotNil(t, res)
	assert.False(t, res.IsEmpty())
}

func TestIsEnabled(t *testing.T) {
	f := newFixture(t, false)

	assert.False(t, f.d.IsEnabled(OptionParallelRprimSync))
	assert.False(t, f.d.IsEnabled("somethingElse"))
}

func TestPopulateMeshMode(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)

	id := f.shapeID(shape)
	assert.Equal(t, common.Path("/bridge/rprims/cube/cubeShape"), id)
	assert.True(t, f.index.Has(id))
	assert.True(t, f.index.Has(f.d.DefaultMaterialID()))
	assert.Equal(t, 1, f.d.Stats().Shapes)
	assert.Equal(t, 1, f.host.Subscribers())
	assert.False(t, f.d.GetMeshTopology(id).IsEmpty())

	// populating twice changes nothing
	f.populate(t)
	assert.Equal(t, 1, f.index.InsertCount(id))
	assert.Equal(t, 1, f.host.Subscribers())
}

func TestPopulateRenderItemModeQueuesLightsAndCameras(t *testing.T) {
	f := newFixture(t, false)
	f.mesh(nil, "cube")
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	f.host.CreateNode(grp, "key", "directionalLight", host.KindLight)
	camGrp := f.host.CreateNode(nil, "persp", "transform", host.KindTransform)
	f.host.CreateNode(camGrp, "perspShape", "camera", host.KindCamera)
	f.populate(t)

	s := f.d.Stats()
	assert.Zero(t, s.Shapes)
	assert.Zero(t, s.Lights)
	assert.Equal(t, 1, s.PendingLights)
	assert.Equal(t, 1, s.PendingNodes)

	f.frame(host.DrawContext{})
	s = f.d.Stats()
	assert.Equal(t, 1, s.Lights)
	assert.Equal(t, 1, s.Cameras)
	assert.Zero(t, s.PendingLights)
	assert.Zero(t, s.PendingNodes)
}

func TestRemoveAdapterBalancesCallbacks(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	require.Positive(t, f.host.LiveCallbacks())

	id := f.shapeID(shape)
	f.d.RemoveAdapter(id)

	added, removed := f.host.CallbackTotals()
	assert.Equal(t, added, removed)
	assert.Zero(t, f.host.LiveCallbacks())
	assert.False(t, f.index.Has(id))
	assert.Equal(t, 1, f.index.RemoveCount(id))

	// removing it again is a logged no-op
	f.d.RemoveAdapter(id)
	assert.Equal(t, 1, f.index.RemoveCount(id))
}

func TestDuplicateInsertKeepsExistingAdapter(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)

	f.d.InsertDag(shape)
	assert.Equal(t, 1, f.index.InsertCount(f.shapeID(shape)))
	assert.Equal(t, 1, f.d.Stats().Shapes)
}

func TestDeletedNodeIsRemovedAtNextFrame(t *testing.T) {
	f := newFixture(t, true)
	xform, shape := f.mesh(nil, "cube")
	f.populate(t)
	id := f.shapeID(shape)

	f.host.DeleteNode(xform)
	assert.True(t, f.index.Has(id), "removal waits for the sync pass")
	assert.Equal(t, 1, f.d.Stats().PendingRemovals)

	f.frame(host.DrawContext{})
	assert.False(t, f.index.Has(id))
	assert.Zero(t, f.d.Stats().Shapes)
	assert.Zero(t, f.host.LiveCallbacks())
}

func TestNodeAddedThenRemovedBeforeSyncIsDropped(t *testing.T) {
	f := newFixture(t, true)
	f.populate(t)

	xform, _ := f.mesh(nil, "cube")
	f.host.DeleteNode(xform)
	assert.Zero(t, f.d.Stats().PendingRemovals)
	f.frame(host.DrawContext{})

	assert.Zero(t, f.d.Stats().Shapes)
	assert.Zero(t, f.index.InsertCount(common.PathFromHost(f.d.RprimRoot(), "|cube|cubeShape")))
}

func TestDeltaRemovalThenAddOnSamePathKeepsOneAdapter(t *testing.T) {
	f := newFixture(t, false)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	ctx := context.Background()

	first := triangleItem(1, shape)
	id := adapter.RenderItemPath(f.d.RprimRoot(), first)
	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{Items: []host.ItemDelta{{Flags: host.ChangedAll, Item: first}}})
	require.Equal(t, 1, f.d.Stats().RenderItems)
	require.True(t, f.index.Has(id))

	second := triangleItem(2, shape)
	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{
		Removals: []int{1},
		Items:    []host.ItemDelta{{Flags: host.ChangedAll, Item: second}},
	})
	assert.Equal(t, 1, f.d.Stats().RenderItems)
	assert.True(t, f.index.Has(id))
	assert.Equal(t, 2, f.index.InsertCount(id))
	assert.Equal(t, 1, f.index.RemoveCount(id))

	// the old fast id no longer resolves
	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{Removals: []int{1, host.InvalidFastID}})
	assert.True(t, f.index.Has(id))

	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{Removals: []int{2}})
	assert.Zero(t, f.d.Stats().RenderItems)
	assert.False(t, f.index.Has(id))
	assert.Zero(t, f.host.LiveCallbacks())
}

func TestDeltaReaddUnderNewFastIDWithoutRemoval(t *testing.T) {
	f := newFixture(t, false)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	ctx := context.Background()

	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{Items: []host.ItemDelta{{Flags: host.ChangedAll, Item: triangleItem(1, shape)}}})
	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{Items: []host.ItemDelta{{Flags: host.ChangedAll, Item: triangleItem(7, shape)}}})

	assert.Equal(t, 1, f.d.Stats().RenderItems)
	_, ok := f.d.renderItems.getFast(1)
	assert.False(t, ok)
	_, ok = f.d.renderItems.getFast(7)
	assert.True(t, ok)
}

func TestDeltaFiltering(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	ctx := context.Background()

	shaded := triangleItem(1, shape)
	unchanged := triangleItem(2, shape)
	unchanged.Name = "Wire"
	external := triangleItem(3, shape)
	external.Name = "External"
	external.External = true
	wire := triangleItem(4, shape)
	wire.Name = "Wireframe"
	wire.Primitive = wgpu.PrimitiveTopologyLineList
	wire.Indices = []int32{0, 1, 1, 2}

	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{Items: []host.ItemDelta{
		{Flags: host.ChangedAll, Item: shaded},
		{Flags: 0, Item: unchanged},
		{Flags: host.ChangedAll, Item: external},
		{Flags: host.ChangedAll, Item: wire},
	}})

	require.Equal(t, 1, f.d.Stats().RenderItems)
	wireID := adapter.RenderItemPath(f.d.RprimRoot(), wire)
	assert.True(t, f.index.Has(wireID))
	assert.Equal(t, adapter.FallbackMaterialID, f.d.GetMaterialID(wireID))
	assert.Equal(t, common.TokenConstantLighting, f.d.GetShadingStyle(wireID))
	assert.Equal(t, render_index.PrimTypeBasisCurves, mustPrimType(t, f.index, wireID))
}

func mustPrimType(t *testing.T, idx render_index.MemoryIndex, id common.Path) render_index.PrimType {
	t.Helper()
	pt, ok := idx.PrimType(id)
	require.True(t, ok)
	return pt
}

func TestDeltaUpdatesTransformAndExtent(t *testing.T) {
	f := newFixture(t, false)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	ctx := context.Background()

	item := triangleItem(1, shape)
	id := adapter.RenderItemPath(f.d.RprimRoot(), item)
	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{Items: []host.ItemDelta{{Flags: host.ChangedAll, Item: item}}})
	assert.Equal(t, common.Range3d{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 0}}, f.d.GetExtent(id))
	f.index.MarkAllClean()

	moved := *item
	moved.Matrix = mgl64.Translate3D(1, 2, 3)
	f.d.HandleCompleteViewportScene(ctx, &host.ViewportScene{Items: []host.ItemDelta{{Flags: host.ChangedMatrix, Item: &moved}}})
	assert.Equal(t, moved.Matrix, f.d.GetTransform(id))
	assert.True(t, f.index.DirtyBits(id).Has(render_index.DirtyTransform))
	assert.False(t, f.index.DirtyBits(id).Any(render_index.DirtyPoints))
}

func TestDeltaItemMaterialFromShadingEngine(t *testing.T) {
	f := newFixture(t, false)
	_, shape := f.mesh(nil, "cube")
	se := f.host.CreateNode(nil, "blinn1SG", "shadingEngine", host.KindShadingEngine)
	f.populate(t)

	item := triangleItem(1, shape)
	item.ShadingEngine = se
	id := adapter.RenderItemPath(f.d.RprimRoot(), item)
	f.d.HandleCompleteViewportScene(context.Background(), &host.ViewportScene{Items: []host.ItemDelta{{Flags: host.ChangedAll, Item: item}}})

	want := f.d.MaterialPath(se)
	assert.Equal(t, want, f.d.GetMaterialID(id))
	assert.Equal(t, 1, f.d.Stats().Materials)
	assert.True(t, f.index.Has(want))
}

func TestMeshWithoutMaterialGetsFallback(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	id := f.shapeID(shape)

	assert.Equal(t, adapter.FallbackMaterialID, f.d.GetMaterialID(id))
	res := f.d.GetMaterialResource(f.d.GetMaterialID(id))
	require.NotNil(t, res)
	assert.False(t, res.IsEmpty())
}

func TestMeshMaterialCreatedOnFirstUse(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	id := f.shapeID(shape)

	se := f.host.CreateNode(nil, "phong1SG", "shadingEngine", host.KindShadingEngine)
	f.host.BindMaterial(shape, se)
	require.Zero(t, f.d.Stats().Materials)

	want := f.d.MaterialPath(se)
	assert.Equal(t, want, f.d.GetMaterialID(id))
	assert.Equal(t, 1, f.d.Stats().Materials)
	res := f.d.GetMaterialResource(want)
	require.NotNil(t, res)
	assert.NotNil(t, res.Surface())
}

func TestDefaultMaterialOverride(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	id := f.shapeID(shape)
	f.index.MarkAllClean()

	f.frame(host.DrawContext{DisplayStyle: host.DisplayShaded | host.DisplayDefaultMaterial})
	assert.Equal(t, f.d.DefaultMaterialID(), f.d.GetMaterialID(id))
	assert.True(t, f.index.DirtyBits(id).Has(render_index.DirtyMaterialID))
	res := f.d.GetMaterialResource(f.d.DefaultMaterialID())
	require.NotNil(t, res)
	assert.Same(t, res, f.d.GetMaterialResource(f.d.DefaultMaterialID()))

	f.frame(host.DrawContext{DisplayStyle: host.DisplayShaded})
	assert.Equal(t, adapter.FallbackMaterialID, f.d.GetMaterialID(id))
}

func TestXRayTogglesMaterials(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	se := f.host.CreateNode(nil, "lambert1SG", "shadingEngine", host.KindShadingEngine)
	f.host.BindMaterial(shape, se)
	f.populate(t)
	matID := f.d.MaterialPath(se)
	opaque := f.d.GetMaterialResource(matID).Surface().Parameters[adapter.InputOpacity]
	f.index.MarkAllClean()

	f.frame(host.DrawContext{DisplayStyle: host.DisplayShaded | host.DisplayXRay})
	assert.True(t, f.d.XRayEnabled())
	assert.True(t, f.index.DirtyBits(matID).Has(render_index.DirtySprimResource))
	assert.NotEqual(t, opaque, f.d.GetMaterialResource(matID).Surface().Parameters[adapter.InputOpacity])
}

func TestPlaybackChangeDirtiesRenderItemVisibility(t *testing.T) {
	f := newFixture(t, false)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	item := triangleItem(1, shape)
	id := adapter.RenderItemPath(f.d.RprimRoot(), item)
	f.d.HandleCompleteViewportScene(context.Background(), &host.ViewportScene{Items: []host.ItemDelta{{Flags: host.ChangedAll, Item: item}}})
	f.index.MarkAllClean()

	f.frame(host.DrawContext{})
	assert.False(t, f.index.DirtyBits(id).Has(render_index.DirtyVisibility))

	f.frame(host.DrawContext{PlaybackRunning: true})
	assert.True(t, f.d.PlaybackRunning())
	assert.True(t, f.index.DirtyBits(id).Has(render_index.DirtyVisibility))
}

func TestActiveLightsToggleWithoutRecreation(t *testing.T) {
	f := newFixture(t, false)
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	light := f.host.CreateNode(grp, "key", "directionalLight", host.KindLight)
	f.populate(t)
	id := f.sprimID(light)
	active := host.DrawContext{Lights: []host.LightParam{{Node: light, Path: light.Paths()[0]}}}

	f.frame(active)
	require.True(t, f.index.Has(id))
	assert.Equal(t, true, f.d.GetLightParamValue(id, adapter.ParamLightingOn))

	f.frame(host.DrawContext{})
	assert.Equal(t, false, f.d.GetLightParamValue(id, adapter.ParamLightingOn))
	assert.True(t, f.index.Has(id))

	f.frame(active)
	assert.Equal(t, true, f.d.GetLightParamValue(id, adapter.ParamLightingOn))
	assert.Equal(t, 1, f.index.InsertCount(id))
	assert.Equal(t, 1, f.d.Stats().Lights)
}

func TestActiveLightWithoutAdapterIsCreated(t *testing.T) {
	f := newFixture(t, false)
	f.populate(t)
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	light := f.host.CreateNode(grp, "fill", "pointLight", host.KindLight)
	// drop the queued add so only the active light list can create the adapter
	f.d.queue.takeLights()

	vp := mgl64.Ortho(-1, 1, -1, 1, 0.1, 10)
	f.frame(host.DrawContext{Lights: []host.LightParam{{Node: light, Path: light.Paths()[0], ShadowOn: true, ShadowViewProj: &vp}}})

	id := f.sprimID(light)
	assert.True(t, f.index.Has(id))
	assert.Equal(t, vp, f.d.GetLightParamValue(id, adapter.ParamShadowMatrix))
}

func TestActiveLightsSkipExternalLights(t *testing.T) {
	f := newFixture(t, false)
	f.populate(t)
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	light := f.host.CreateNode(grp, "usdKey", "pointLight", host.KindLight)
	f.host.SetExternal(light, true)
	f.d.queue.takeLights()

	f.frame(host.DrawContext{Lights: []host.LightParam{{Node: light, Path: light.Paths()[0]}}})
	assert.Zero(t, f.d.Stats().Lights)
	assert.False(t, f.index.Has(f.sprimID(light)))
}

func TestLightSyncDisabledSkipsReconciliation(t *testing.T) {
	f := newFixture(t, false)
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	light := f.host.CreateNode(grp, "key", "directionalLight", host.KindLight)
	f.populate(t)
	f.d.SetParams(f.d.Params().WithLightSync(false))

	f.frame(host.DrawContext{})
	assert.Equal(t, true, f.d.GetLightParamValue(f.sprimID(light), adapter.ParamLightingOn))
}

func TestLightsDisabledCreatesNoLights(t *testing.T) {
	f := newFixture(t, true)
	p := config.DefaultParams().WithLights(false)
	p.UseMeshAdapter = true
	f.d.SetParams(p)
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	f.host.CreateNode(grp, "key", "directionalLight", host.KindLight)
	f.populate(t)
	f.frame(host.DrawContext{})

	assert.Zero(t, f.d.Stats().Lights)
}

func TestMaterialTagChangeRebuildsBoundShapes(t *testing.T) {
	f := newFixture(t, true)
	shader := f.host.CreateNode(nil, "lambert1", "lambert", host.KindOther)
	se := f.host.CreateNode(nil, "lambert1SG", "shadingEngine", host.KindShadingEngine)
	f.host.SetAttribute(se, host.AttrSurfaceShader, shader)
	_, a := f.mesh(nil, "a")
	_, b := f.mesh(nil, "b")
	_, c := f.mesh(nil, "c")
	f.host.BindMaterial(a, se)
	f.host.BindMaterial(b, se)
	f.populate(t)
	idA, idB, idC := f.shapeID(a), f.shapeID(b), f.shapeID(c)
	require.Equal(t, 1, f.index.InsertCount(idA))

	f.host.SetAttribute(shader, host.AttrTransparency, 0.5)
	require.Equal(t, 1, f.d.Stats().PendingTags)

	f.frame(host.DrawContext{})
	for _, id := range []common.Path{idA, idB} {
		assert.Equal(t, 1, f.index.RemoveCount(id), id)
		assert.Equal(t, 2, f.index.InsertCount(id), id)
	}
	assert.Zero(t, f.index.RemoveCount(idC))
	assert.Zero(t, f.d.Stats().PendingRebuilds)
}

func TestSecondInstanceRecreatesShape(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "grp1")
	f.populate(t)
	id := f.shapeID(shape)
	require.Equal(t, common.EmptyPath, f.d.GetInstancerID(id))

	grp2 := f.host.CreateNode(nil, "grp2", "transform", host.KindTransform)
	require.NoError(t, f.host.AddInstance(shape, grp2))
	f.frame(host.DrawContext{})

	instancer := f.d.GetInstancerID(id)
	require.Equal(t, id.AppendProperty("instancer"), instancer)
	assert.True(t, f.index.Has(instancer))
	assert.Equal(t, 2, f.index.InsertCount(id))
	assert.Equal(t, []common.Path{id}, f.d.GetInstancerPrototypes(instancer))
	assert.Equal(t, []int32{0, 1}, f.d.GetInstanceIndices(instancer, id))
	assert.Len(t, f.d.Get(instancer, common.TokenInstanceMatrix), 2)
	assert.Equal(t, []common.PrimvarDescriptor{{Name: common.TokenInstanceMatrix, Interpolation: common.InterpolationInstance}},
		f.d.GetPrimvarDescriptors(instancer, common.InterpolationInstance))
	assert.Equal(t, common.EmptyPath, f.d.GetInstancerID(instancer))
}

func TestThirdInstanceOnlyDirtiesInstancer(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "grp1")
	grp2 := f.host.CreateNode(nil, "grp2", "transform", host.KindTransform)
	require.NoError(t, f.host.AddInstance(shape, grp2))
	f.populate(t)
	id := f.shapeID(shape)
	f.index.MarkAllClean()

	grp3 := f.host.CreateNode(nil, "grp3", "transform", host.KindTransform)
	require.NoError(t, f.host.AddInstance(shape, grp3))
	f.frame(host.DrawContext{})

	assert.Equal(t, 1, f.index.InsertCount(id))
	assert.True(t, f.index.DirtyBits(id).Has(render_index.DirtyInstanceIndex))
	assert.Len(t, f.d.GetInstanceIndices(id.AppendProperty("instancer"), id), 3)
}

func TestDeletingInstanceParentDropsInstance(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "grp1")
	grp2 := f.host.CreateNode(nil, "grp2", "transform", host.KindTransform)
	grp3 := f.host.CreateNode(nil, "grp3", "transform", host.KindTransform)
	require.NoError(t, f.host.AddInstance(shape, grp2))
	require.NoError(t, f.host.AddInstance(shape, grp3))
	f.populate(t)
	id := f.shapeID(shape)
	instancer := id.AppendProperty("instancer")
	require.Equal(t, []int32{0, 1, 2}, f.d.GetInstanceIndices(instancer, id))
	f.index.MarkAllClean()

	f.host.DeleteNode(grp3)
	f.frame(host.DrawContext{})
	assert.Equal(t, []int32{0, 1}, f.d.GetInstanceIndices(instancer, id))
	assert.Len(t, f.d.Get(instancer, common.TokenInstanceMatrix), 2)
	assert.True(t, f.index.DirtyBits(instancer).Has(render_index.DirtyInstanceIndex))
	assert.Equal(t, 1, f.index.InsertCount(id))

	// the last extra instance going away makes the shape a plain rprim again
	f.host.DeleteNode(grp2)
	f.frame(host.DrawContext{})
	assert.Equal(t, common.EmptyPath, f.d.GetInstancerID(id))
	assert.False(t, f.index.Has(instancer))
	assert.True(t, f.index.Has(id))
	assert.Equal(t, 1, f.d.Stats().Shapes)
}

func TestRecreateWithInvalidNodeOnlyRemoves(t *testing.T) {
	f := newFixture(t, true)
	xform, shape := f.mesh(nil, "cube")
	f.populate(t)
	id := f.shapeID(shape)

	f.d.RecreateAdapterOnIdle(id, shape)
	f.host.DeleteNode(xform)
	require.True(t, f.d.queue.pendingRecreate(id))
	f.frame(host.DrawContext{})
	assert.False(t, f.d.queue.pendingRecreate(id))
	assert.False(t, f.index.Has(id))
	assert.Equal(t, 1, f.index.InsertCount(id))

	_, other := f.mesh(nil, "other")
	f.d.InsertDag(other)
	otherID := f.shapeID(other)
	f.host.DeleteNode(other)
	f.d.RecreateAdapter(otherID, other)
	assert.False(t, f.index.Has(otherID))
	assert.Equal(t, 1, f.index.InsertCount(otherID))
}

func TestDefaultLightSetConnectionRebuildsVisibility(t *testing.T) {
	f := newFixture(t, true)
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	light := f.host.CreateNode(grp, "key", "spotLight", host.KindLight)
	set := f.host.CreateNode(nil, host.DefaultLightSetName, "objectSet", host.KindSet)
	f.populate(t)
	id := f.sprimID(light)
	require.True(t, f.d.GetVisible(id))

	f.host.SetAttribute(light, host.AttrIlluminates, false)
	f.host.Connect(host.Plug{Node: grp, Attribute: host.AttrInstObjGroups}, host.Plug{Node: set, Attribute: "dagSetMembers"}, false)
	flags, ok := f.d.queue.pendingRebuild(id)
	require.True(t, ok)
	assert.True(t, flags.Has(adapter.RebuildFlagVisibility))

	f.frame(host.DrawContext{})
	assert.False(t, f.d.GetVisible(id))
	assert.Equal(t, 2, f.index.InsertCount(id))
}

func TestFailingEntityDoesNotBlockSync(t *testing.T) {
	reg := adapter.NewRegistry()
	reg.RegisterShape("brokenShape", func(adapter.Producer, common.Path, host.Node) adapter.ShapeAdapter {
		panic("broken adapter")
	})
	f := newFixture(t, true, WithRegistry(reg))
	f.populate(t)

	bx := f.host.CreateNode(nil, "bad", "transform", host.KindTransform)
	f.host.CreateNode(bx, "badShape", "brokenShape", host.KindMesh)
	_, good := f.mesh(nil, "good")

	require.NotPanics(t, func() { f.frame(host.DrawContext{}) })
	assert.True(t, f.index.Has(f.shapeID(good)))
	assert.Equal(t, 1, f.d.Stats().Shapes)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.d.metrics.stepFailures.WithLabelValues(stepAddedNodes)))
}

func TestHostCallbacksQueueDirtyBitsForNextSync(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)
	id := f.shapeID(shape)
	f.index.MarkAllClean()

	f.host.SetAttribute(shape, host.AttrPoints, []mgl64.Vec3{{0, 0, 0}, {2, 0, 0}, {0, 2, 0}})
	assert.Equal(t, render_index.Clean, f.index.DirtyBits(id))
	assert.True(t, f.d.queue.pendingDirty(id).Has(render_index.DirtyPoints))

	f.frame(host.DrawContext{})
	assert.True(t, f.index.DirtyBits(id).Has(render_index.DirtyPoints|render_index.DirtyExtent))
	assert.Equal(t, render_index.Clean, f.d.queue.pendingDirty(id))

	// bits queued for an adapter that is gone by the next pass are dropped
	f.host.SetAttribute(shape, host.AttrPoints, nil)
	f.d.RemoveAdapter(id)
	require.NotPanics(t, func() { f.frame(host.DrawContext{}) })
	assert.False(t, f.index.Has(id))
}

func TestHostEditsRaceFreeWithRebuilds(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	light := f.host.CreateNode(grp, "key", "pointLight", host.KindLight)
	f.populate(t)
	id, lightID := f.shapeID(shape), f.sprimID(light)
	const rounds = 200

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range rounds {
			f.host.SetAttribute(shape, host.AttrPoints, nil)
			f.host.SetLocalMatrix(grp, mgl64.Translate3D(float64(i), 0, 0))
		}
	}()
	for range rounds {
		f.d.RebuildAdapterOnIdle(id, adapter.RebuildFlagPrim)
		f.d.RebuildAdapterOnIdle(lightID, adapter.RebuildFlagPrim)
		f.frame(host.DrawContext{})
	}
	<-done
	f.frame(host.DrawContext{})

	assert.True(t, f.index.Has(id))
	assert.True(t, f.index.Has(lightID))
	assert.Equal(t, rounds+1, f.index.InsertCount(id))
	assert.Equal(t, mgl64.Translate3D(rounds-1, 0, 0), f.d.GetTransform(lightID))
}

func TestSetParamsDirtiesDependentAdapters(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	light := f.host.CreateNode(grp, "key", "pointLight", host.KindLight)
	f.populate(t)
	id, lightID := f.shapeID(shape), f.sprimID(light)
	f.index.MarkAllClean()

	p := f.d.Params()
	p.DisplaySmoothMeshes = true
	p.MotionSampleEnd = 0.5
	p.MaximumShadowMapResolution = 512
	f.d.SetParams(p)

	assert.True(t, f.index.DirtyBits(id).Has(render_index.DirtyTopology|render_index.DirtyTransform|render_index.DirtyPoints))
	assert.Equal(t, render_index.AllDirty, f.index.DirtyBits(lightID))
	assert.Equal(t, 512, f.d.GetLightParamValue(lightID, adapter.ParamShadowResolution))

	times, _ := f.d.SampleTransform(id, 4)
	assert.Equal(t, []float32{0, 0.5}, times)
}

func TestSetParamsRejectsInvalidAndKeepsMode(t *testing.T) {
	f := newFixture(t, true)
	before := f.d.Params()

	bad := before
	bad.SyncWorkers = -1
	f.d.SetParams(bad)
	assert.Equal(t, before, f.d.Params())

	flipped := before
	flipped.UseMeshAdapter = false
	f.d.SetParams(flipped)
	assert.True(t, f.d.Params().UseMeshAdapter)
}

func TestSetCameraViewport(t *testing.T) {
	f := newFixture(t, false)
	grp := f.host.CreateNode(nil, "persp", "transform", host.KindTransform)
	cam := f.host.CreateNode(grp, "perspShape", "camera", host.KindCamera)
	f.populate(t)
	f.frame(host.DrawContext{})

	vp := mgl64.Vec4{0, 0, 1920, 1080}
	id := f.d.SetCameraViewport(cam.Paths()[0], vp)
	require.Equal(t, f.sprimID(cam), id)
	assert.Equal(t, vp, f.d.GetCameraParamValue(id, adapter.CameraParamViewport))
	assert.Equal(t, common.EmptyPath, f.d.SetCameraViewport("|nope|nopeShape", vp))
}

func TestAddPickHitToSelection(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	f.populate(t)

	path, ok := f.d.AddPickHitToSelection(f.shapeID(shape))
	assert.True(t, ok)
	assert.Equal(t, "|cube", path)

	_, ok = f.d.AddPickHitToSelection("/elsewhere/cube")
	assert.False(t, ok)

	path, ok = f.d.AddPickHitToSelection(f.d.RprimRoot().AppendChild("ghost"))
	assert.True(t, ok)
	assert.Empty(t, path)
}

func TestCloseReleasesEverything(t *testing.T) {
	f := newFixture(t, true)
	_, shape := f.mesh(nil, "cube")
	se := f.host.CreateNode(nil, "lambert1SG", "shadingEngine", host.KindShadingEngine)
	f.host.BindMaterial(shape, se)
	grp := f.host.CreateNode(nil, "lightGrp", "transform", host.KindTransform)
	f.host.CreateNode(grp, "key", "directionalLight", host.KindLight)
	f.populate(t)
	require.Positive(t, f.index.Len())

	require.NoError(t, f.d.Close())
	assert.Zero(t, f.index.Len())
	assert.Zero(t, f.host.LiveCallbacks())
	assert.Zero(t, f.host.Subscribers())
	assert.NoError(t, f.d.Close())

	// a closed delegate ignores frames
	f.mesh(nil, "late")
	f.frame(host.DrawContext{})
	assert.Zero(t, f.index.Len())
}
