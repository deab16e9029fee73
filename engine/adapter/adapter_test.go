package adapter

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/config"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProducer records the work adapters hand back instead of applying it.
type testProducer struct {
	host   host.MemoryHost
	index  render_index.MemoryIndex
	logger *slog.Logger
	params config.Params

	playback bool
	xray     bool

	recreated []common.Path
	rebuilt   map[common.Path]RebuildFlags
	dirty     map[common.Path]render_index.DirtyBits
	tags      []common.Path
}

var _ Producer = &testProducer{}

func newTestProducer() *testProducer {
	return &testProducer{
		host:    host.NewMemoryHost(),
		index:   render_index.NewMemoryIndex(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		params:  config.DefaultParams(),
		rebuilt: make(map[common.Path]RebuildFlags),
		dirty:   make(map[common.Path]render_index.DirtyBits),
	}
}

func (p *testProducer) RenderIndex() render_index.RenderIndex { return p.index }
func (p *testProducer) Host() host.Host                       { return p.host }
func (p *testProducer) Logger() *slog.Logger                  { return p.logger }
func (p *testProducer) Params() config.Params                 { return p.params }
func (p *testProducer) PlaybackRunning() bool                 { return p.playback }
func (p *testProducer) XRayEnabled() bool                     { return p.xray }

func (p *testProducer) MaterialPath(se host.Node) common.Path {
	if se == nil {
		return common.EmptyPath
	}
	return common.Path("/test/materials").AppendChild(se.Name())
}

func (p *testProducer) RecreateAdapterOnIdle(id common.Path, _ host.Node) {
	p.recreated = append(p.recreated, id)
}

func (p *testProducer) RebuildAdapterOnIdle(id common.Path, flags RebuildFlags) {
	p.rebuilt[id] |= flags
}

func (p *testProducer) MarkDirtyOnIdle(id common.Path, bits render_index.DirtyBits) {
	p.dirty[id] |= bits
}

func (p *testProducer) MaterialTagChanged(id common.Path) {
	p.tags = append(p.tags, id)
}

func activate(t *testing.T, a Adapter) {
	t.Helper()
	require.True(t, a.IsSupported())
	require.NoError(t, a.Populate())
	require.NoError(t, a.CreateCallbacks())
	t.Cleanup(a.RemoveCallbacks)
}

func TestShapeAdapterLifecycle(t *testing.T) {
	p := newTestProducer()
	grp := p.host.CreateNode(nil, "grp", "transform", host.KindTransform)
	n := p.host.CreateNode(grp, "grpShape", "mesh", host.KindMesh)
	p.host.SetAttribute(n, host.AttrPoints, []mgl64.Vec3{{0, 0, 0}, {2, 1, 0}, {0, 1, 3}})
	p.host.SetAttribute(n, host.AttrFaceVertexCounts, []int32{3})
	p.host.SetAttribute(n, host.AttrFaceVertexIndices, []int32{0, 1, 2})
	id := common.Path("/test/rprims/grp/grpShape")

	s := NewShapeAdapter(p, id, n)
	activate(t, s)
	assert.False(t, s.IsInstanced())
	assert.Equal(t, common.EmptyPath, s.InstancerID())
	assert.True(t, p.index.Has(id))
	assert.Equal(t, 3, p.host.LiveCallbacks())
	assert.Equal(t, common.Range3d{Max: mgl64.Vec3{2, 1, 3}}, s.GetExtent())
	assert.Equal(t, []int32{3}, s.GetMeshTopology().FaceVertexCounts)
	assert.True(t, s.GetCurvesTopology().IsEmpty())
	assert.True(t, s.GetDoubleSided())
	assert.Equal(t, common.RenderTagGeometry, s.GetRenderTag())

	p.index.MarkAllClean()
	p.host.SetLocalMatrix(grp, mgl64.Translate3D(0, 0, 4))
	assert.Equal(t, render_index.Clean, p.index.DirtyBits(id), "callbacks only queue dirty bits")
	assert.True(t, p.dirty[id].Has(render_index.DirtyTransform))
	assert.Equal(t, mgl64.Translate3D(0, 0, 4), s.GetTransform())

	s.MarkDirty(p.dirty[id])
	assert.True(t, p.index.DirtyBits(id).Has(render_index.DirtyTransform))

	p.host.SetVisible(grp, false)
	assert.False(t, s.GetVisible())

	require.NoError(t, s.RemovePrim())
	assert.False(t, p.index.Has(id))
	require.NoError(t, s.RemovePrim())
}

func TestShapeAdapterRequestsRecreateWhenInstanced(t *testing.T) {
	p := newTestProducer()
	grp := p.host.CreateNode(nil, "grp", "transform", host.KindTransform)
	n := p.host.CreateNode(grp, "grpShape", "mesh", host.KindMesh)
	id := common.Path("/test/rprims/grp/grpShape")
	s := NewShapeAdapter(p, id, n)
	activate(t, s)

	require.NoError(t, p.host.AddInstance(n, p.host.CreateNode(nil, "grp2", "transform", host.KindTransform)))
	assert.Equal(t, []common.Path{id}, p.recreated)
}

func TestInstancedShape(t *testing.T) {
	p := newTestProducer()
	a := p.host.CreateNode(nil, "a", "transform", host.KindTransform)
	b := p.host.CreateNode(nil, "b", "transform", host.KindTransform)
	p.host.SetLocalMatrix(b, mgl64.Translate3D(3, 0, 0))
	n := p.host.CreateNode(a, "shape", "mesh", host.KindMesh)
	require.NoError(t, p.host.AddInstance(n, b))
	id := common.Path("/test/rprims/a/shape")

	s := NewShapeAdapter(p, id, n)
	activate(t, s)
	require.True(t, s.IsInstanced())
	inst := s.InstancerID()
	assert.True(t, p.index.Has(inst))
	assert.Equal(t, inst, p.index.InstancerOf(id))
	assert.Equal(t, mgl64.Ident4(), s.GetTransform())
	assert.Equal(t, []common.Path{id}, s.GetInstancerPrototypes())
	assert.Equal(t, []int32{0, 1}, s.GetInstanceIndices(id))
	assert.Nil(t, s.GetInstanceIndices("/elsewhere"))
	assert.Equal(t, []mgl64.Mat4{mgl64.Ident4(), mgl64.Translate3D(3, 0, 0)}, s.GetInstancePrimvar(common.TokenInstanceMatrix))

	p.index.MarkAllClean()
	require.NoError(t, p.host.AddInstance(n, p.host.CreateNode(nil, "c", "transform", host.KindTransform)))
	assert.Empty(t, p.recreated)
	assert.True(t, p.dirty[id].Has(render_index.DirtyInstanceIndex))
	s.MarkDirty(p.dirty[id])
	assert.True(t, p.index.DirtyBits(inst).Has(render_index.DirtyInstanceIndex))

	require.NoError(t, s.RemovePrim())
	assert.Zero(t, p.index.Len())
}

func TestCurveShape(t *testing.T) {
	p := newTestProducer()
	n := p.host.CreateNode(nil, "curve", "nurbsCurve", host.KindCurve)
	p.host.SetAttribute(n, host.AttrPoints, []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 1, 0}, {3, 1, 0}})
	s := NewShapeAdapter(p, "/test/rprims/curve", n)

	assert.Equal(t, render_index.PrimTypeBasisCurves, s.PrimType())
	assert.Equal(t, []int32{4}, s.GetCurvesTopology().CurveVertexCounts)
	assert.True(t, s.GetMeshTopology().IsEmpty())
	assert.Equal(t, common.SubdivTags{}, s.GetSubdivTags())
}

func TestShapeRefinementFollowsParams(t *testing.T) {
	p := newTestProducer()
	n := p.host.CreateNode(nil, "mesh", "mesh", host.KindMesh)
	p.host.SetAttribute(n, host.AttrSmoothLevel, 2)
	s := NewShapeAdapter(p, "/test/rprims/mesh", n)

	assert.Equal(t, 0, s.GetDisplayStyle().RefineLevel)
	p.params.DisplaySmoothMeshes = true
	assert.Equal(t, 2, s.GetDisplayStyle().RefineLevel)
	assert.Equal(t, common.TokenCatmullClark, s.GetMeshTopology().Scheme)
}

func TestSampleTransformUsesMotionInterval(t *testing.T) {
	p := newTestProducer()
	n := p.host.CreateNode(nil, "mesh", "mesh", host.KindMesh)
	s := NewShapeAdapter(p, "/test/rprims/mesh", n)

	times, mats := s.SampleTransform(4)
	assert.Equal(t, []float32{0}, times)
	assert.Len(t, mats, 1)

	p.params.MotionSampleStart, p.params.MotionSampleEnd = -0.5, 0.5
	times, _ = s.SampleTransform(4)
	assert.Equal(t, []float32{-0.5, 0.5}, times)
	times, _ = s.SampleTransform(1)
	assert.Equal(t, []float32{-0.5}, times)
	times, _ = s.SampleTransform(0)
	assert.Empty(t, times)
}

func TestLightAdapter(t *testing.T) {
	p := newTestProducer()
	grp := p.host.CreateNode(nil, "grp", "transform", host.KindTransform)
	n := p.host.CreateNode(grp, "spot", "spotLight", host.KindLight)
	p.host.SetAttribute(n, host.AttrConeAngle, 60.0)
	id := common.Path("/test/sprims/grp/spot")

	l := NewLightAdapter(p, id, n)
	activate(t, l)
	pt, _ := p.index.PrimType(id)
	assert.Equal(t, render_index.PrimTypeSphereLight, pt)
	assert.True(t, l.GetVisible())
	assert.True(t, l.LightingOn())
	assert.Equal(t, 30.0, l.GetLightParamValue(ParamConeAngle))
	assert.Equal(t, mgl64.Vec3{0, 0, -1}, l.GetLightParamValue(ParamDirection))
	assert.Nil(t, l.GetLightParamValue(ParamShadowMatrix))
	assert.Nil(t, l.GetLightParamValue("unknown"))

	p.index.MarkAllClean()
	l.SetLightingOn(false)
	assert.Equal(t, false, l.GetLightParamValue(ParamLightingOn))
	assert.True(t, p.index.DirtyBits(id).Has(render_index.DirtySprimParams))

	vp := mgl64.Ident4()
	p.index.MarkAllClean()
	l.SetShadowProjectionMatrix(vp)
	assert.True(t, p.index.DirtyBits(id).Has(render_index.DirtySprimShadowParams))
	p.index.MarkAllClean()
	l.SetShadowProjectionMatrix(vp)
	assert.Equal(t, render_index.Clean, p.index.DirtyBits(id))

	p.host.SetAttribute(n, host.AttrIlluminates, false)
	assert.True(t, l.GetVisible(), "visibility is only re-read on request")
	assert.True(t, l.UpdateVisibility())
	assert.False(t, l.GetVisible())
	assert.False(t, l.UpdateVisibility())
}

func TestLightPrimType(t *testing.T) {
	assert.Equal(t, render_index.PrimTypeDistantLight, LightPrimType("directionalLight"))
	assert.Equal(t, render_index.PrimTypeSimpleLight, LightPrimType("ambientLight"))
	assert.Equal(t, render_index.PrimTypeDomeLight, LightPrimType("aiSkyDomeLight"))
	assert.Empty(t, LightPrimType("meshLight"))

	p := newTestProducer()
	n := p.host.CreateNode(nil, "mesh", "meshLight", host.KindLight)
	assert.False(t, NewLightAdapter(p, "/test/sprims/mesh", n).IsSupported())
}

func TestMaterialAdapterTagAndXRay(t *testing.T) {
	p := newTestProducer()
	shader := p.host.CreateNode(nil, "blinn1", "blinn", host.KindOther)
	se := p.host.CreateNode(nil, "blinn1SG", "shadingEngine", host.KindShadingEngine)
	p.host.SetAttribute(se, host.AttrSurfaceShader, shader)
	id := p.MaterialPath(se)

	m := NewMaterialAdapter(p, id, se)
	activate(t, m)
	assert.Equal(t, MaterialTagDefault, m.MaterialTag())
	assert.Equal(t, 2, p.host.LiveCallbacks())

	res := m.GetMaterialResource()
	require.NotNil(t, res.Surface())
	assert.Equal(t, 1.0, res.Surface().Parameters[InputOpacity])

	p.host.SetAttribute(shader, host.AttrTransparency, 0.25)
	assert.Equal(t, []common.Path{id}, p.tags)
	assert.True(t, p.dirty[id].Has(render_index.DirtySprimResource))
	assert.Equal(t, MaterialTagDefault, m.MaterialTag())
	assert.True(t, m.UpdateMaterialTag())
	assert.Equal(t, MaterialTagTranslucent, m.MaterialTag())
	assert.False(t, m.UpdateMaterialTag())

	p.index.MarkAllClean()
	m.EnableXRayShadingMode(true)
	assert.True(t, p.index.DirtyBits(id).Has(render_index.DirtySprimResource))
	assert.InDelta(t, 0.375, m.GetMaterialResource().Surface().Parameters[InputOpacity], 1e-9)
}

func TestMaterialNetworks(t *testing.T) {
	fallback := FallbackMaterialNetwork()
	assert.Same(t, fallback, FallbackMaterialNetwork())
	assert.False(t, fallback.IsEmpty())
	assert.Equal(t, PreviewSurface, fallback.Surface().Identifier)
	assert.Equal(t, []common.Token{common.TokenDisplayColor}, fallback.PrimvarNames)

	def := NewDefaultMaterialNetwork("/d/__default_material__")
	assert.Equal(t, common.Path("/d/__default_material__/surface"), def.Surface().Path)

	var empty *MaterialNetwork
	assert.True(t, empty.IsEmpty())
	assert.Nil(t, empty.Surface())
}

func TestCameraAdapter(t *testing.T) {
	p := newTestProducer()
	grp := p.host.CreateNode(nil, "persp", "transform", host.KindTransform)
	n := p.host.CreateNode(grp, "perspShape", "camera", host.KindCamera)
	id := common.Path("/test/sprims/persp/perspShape")

	c := NewCameraAdapter(p, id, n)
	activate(t, c)
	assert.Equal(t, ProjectionPerspective, c.GetCameraParamValue(CameraParamProjection))
	assert.Equal(t, mgl64.Vec2{0.1, 10000}, c.GetCameraParamValue(CameraParamClippingRange))
	fov := c.GetCameraParamValue(CameraParamFov).(float64)
	assert.InDelta(t, 2*math.Atan(0.94488*25.4/70)*180/math.Pi, fov, 1e-9)

	p.index.MarkAllClean()
	c.SetViewport(mgl64.Vec4{0, 0, 200, 100})
	assert.True(t, p.index.DirtyBits(id).Has(render_index.DirtySprimParams))
	assert.Equal(t, mgl64.Vec4{0, 0, 200, 100}, c.GetCameraParamValue(CameraParamViewport))
	assert.Equal(t, common.Perspective(fov, 2, 0.1, 10000), c.GetCameraParamValue(CameraParamProjectionMatrix))

	p.host.SetAttribute(n, host.AttrOrthographic, true)
	assert.Equal(t, ProjectionOrthographic, c.GetCameraParamValue(CameraParamProjection))

	p.host.SetLocalMatrix(grp, mgl64.Translate3D(0, 0, 10))
	view, ok := c.GetCameraParamValue(CameraParamViewMatrix).(mgl64.Mat4)
	require.True(t, ok)
	assert.True(t, common.MatricesEqual(mgl64.Translate3D(0, 0, -10), view, 1e-9))
}

func TestRenderItemAdapter(t *testing.T) {
	p := newTestProducer()
	src := p.host.CreateNode(nil, "shape", "mesh", host.KindMesh)
	item := &host.RenderItem{
		FastID:     9,
		Name:       "Shaded",
		Primitive:  wgpu.PrimitiveTopologyTriangleStrip,
		Source:     src,
		SourcePath: "|shape",
		Points:     []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		Indices:    []int32{0, 1, 2, 3},
		Matrix:     mgl64.Ident4(),
		Visible:    true,
	}
	id := RenderItemPath("/test/rprims", item)
	assert.Equal(t, common.Path("/test/rprims/shape/Shaded"), id)

	ri := NewRenderItemAdapter(p, id, item)
	activate(t, ri)
	assert.Equal(t, 9, ri.FastID())
	assert.Equal(t, []int32{0, 1, 2, 2, 1, 3}, ri.GetMeshTopology().FaceVertexIndices)
	assert.Equal(t, []int32{3, 3}, ri.GetMeshTopology().FaceVertexCounts)

	p.index.MarkAllClean()
	ri.UpdateFromDelta(item, host.ChangedGeometry, host.ActiveWireframeColor, host.StatusLead, common.RangeFromPoints(item.Points))
	bits := p.index.DirtyBits(id)
	assert.True(t, bits.Has(render_index.DirtyPoints|render_index.DirtyExtent|render_index.DirtyRenderTag))
	assert.True(t, ri.GetDisplayStyle().OccludedSelectionShowsThrough)
	assert.Equal(t, mgl64.Vec3{1, 1, 0}, ri.GetExtent().Max)

	p.playback = true
	assert.False(t, ri.GetVisible())
	item.VisibleDuringPlayback = true
	assert.True(t, ri.GetVisible())

	ri.UpdateFromDelta(nil, 0, host.ActiveWireframeColor, host.StatusTemplate, common.EmptyRange())
	assert.Equal(t, common.RenderTagGuide, ri.GetRenderTag())
}

func TestRenderItemLines(t *testing.T) {
	p := newTestProducer()
	item := &host.RenderItem{
		FastID:    3,
		Name:      "Wire",
		Primitive: wgpu.PrimitiveTopologyLineList,
		Points:    []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}},
		Indices:   []int32{0, 1, 1, 2},
	}
	id := RenderItemPath("/test/rprims", item)
	assert.Equal(t, common.Path("/test/rprims/Wire"), id)

	ri := NewRenderItemAdapter(p, id, item)
	activate(t, ri)
	assert.Equal(t, render_index.PrimTypeBasisCurves, ri.PrimType())
	assert.Equal(t, common.TokenConstantLighting, ri.GetShadingStyle())
	assert.Equal(t, common.CullStyleNothing, ri.GetCullStyle())
	assert.Equal(t, []int32{2, 2}, ri.GetCurvesTopology().CurveVertexCounts)
	assert.Zero(t, p.host.LiveCallbacks(), "items without a source node watch nothing")

	c := host.DormantWireframeColor
	assert.Equal(t, mgl64.Vec3{c.R, c.G, c.B}, ri.Get(common.TokenDisplayColor))
	assert.Empty(t, RenderItemPath("/test/rprims", &host.RenderItem{}))
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	for _, typ := range []string{"mesh", "nurbsCurve", "bezierCurve", "particle", "nParticle"} {
		assert.NotNil(t, r.ShapeCreator(typ), typ)
	}
	assert.NotNil(t, r.LightCreator("domeLight"))
	assert.NotNil(t, r.CameraCreator("camera"))
	assert.NotNil(t, r.MaterialCreator("shadingEngine"))
	assert.Nil(t, r.ShapeCreator("locator"))

	r.RegisterShape("locator", NewShapeAdapter)
	assert.NotNil(t, r.ShapeCreator("locator"))
}
